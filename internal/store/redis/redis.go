package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/huddlechat/huddle-server/internal/store"
)

// Retention policy per key family.
const (
	roomChatTTL   = 24 * time.Hour
	dmTTL         = 7 * 24 * time.Hour
	reactionTTL   = 7 * 24 * time.Hour
	membershipTTL = time.Hour
	presenceTTL   = time.Hour
	speakingTTL   = 10 * time.Second
	activeHorizon = 24 * time.Hour
)

// Ring buffer caps.
const (
	roomChatCap = 50
	dmCap       = 100
)

// toggleScript flips author membership for one (message, emoji) reaction
// bucket in a single round-trip. Empty buckets vanish with the set itself.
var toggleScript = redis.NewScript(`
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
	redis.call('SREM', KEYS[1], ARGV[1])
else
	redis.call('SADD', KEYS[1], ARGV[1])
	redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return redis.call('SMEMBERS', KEYS[1])
`)

// offlineScript deletes a presence mapping only while it still points at
// the given connection, so a reconnect's newer registration survives.
var offlineScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

var defaultRooms = []store.RoomInfo{
	{ID: "general", Name: "General", Icon: "💬"},
	{ID: "gaming", Name: "Gaming", Icon: "🎮"},
	{ID: "music", Name: "Music", Icon: "🎵"},
}

// RedisStore implements store.Store on a Redis server.
type RedisStore struct {
	rdb *redis.Client
	log *zerolog.Logger
}

// New connects to Redis using a redis:// URL.
func New(url string, logger *zerolog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opts), log: logger}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(rdb *redis.Client, logger *zerolog.Logger) *RedisStore {
	return &RedisStore{rdb: rdb, log: logger}
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func chatKey(roomID string) string      { return "room:" + roomID + ":chat" }
func dmKey(dmID string) string          { return "dm:" + dmID + ":messages" }
func membersKey(roomID string) string   { return "room:" + roomID + ":members" }
func speakingKey(roomID string) string  { return "room:" + roomID + ":speaking" }
func presenceKey(identity string) string { return "presence:user:" + identity }

func reactionKey(scope, messageID, emoji string) string {
	return "react:" + scope + ":" + messageID + ":" + emoji
}

const (
	activeRoomsKey = "rooms:active"
	catalogKey     = "app:rooms"
)

func (s *RedisStore) pushMessage(ctx context.Context, key string, msg store.Message, cap int64, ttl time.Duration) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, cap-1)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

func (s *RedisStore) history(ctx context.Context, key string, cap int64) ([]store.Message, error) {
	items, err := s.rdb.LRange(ctx, key, 0, cap-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	// Stored newest-first; return oldest-first for display.
	msgs := make([]store.Message, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var msg store.Message
		if err := json.Unmarshal([]byte(items[i]), &msg); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("skipping corrupt history entry")
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// PushRoomMessage appends to the room ring buffer.
func (s *RedisStore) PushRoomMessage(ctx context.Context, roomID string, msg store.Message) error {
	return s.pushMessage(ctx, chatKey(roomID), msg, roomChatCap, roomChatTTL)
}

// RoomHistory returns room history, oldest first.
func (s *RedisStore) RoomHistory(ctx context.Context, roomID string) ([]store.Message, error) {
	return s.history(ctx, chatKey(roomID), roomChatCap)
}

// PushDirectMessage appends to the conversation ring buffer.
func (s *RedisStore) PushDirectMessage(ctx context.Context, dmID string, msg store.Message) error {
	return s.pushMessage(ctx, dmKey(dmID), msg, dmCap, dmTTL)
}

// DirectHistory returns conversation history, oldest first.
func (s *RedisStore) DirectHistory(ctx context.Context, dmID string) ([]store.Message, error) {
	return s.history(ctx, dmKey(dmID), dmCap)
}

// ToggleReaction flips author membership for (messageID, emoji) in one
// atomic script eval and returns the resulting author list.
func (s *RedisStore) ToggleReaction(ctx context.Context, scope, messageID, emoji, author string) ([]string, error) {
	key := reactionKey(scope, messageID, emoji)
	res, err := toggleScript.Run(ctx, s.rdb, []string{key}, author, reactionTTL.Milliseconds()).Result()
	if err != nil {
		return nil, fmt.Errorf("toggle reaction: %w", err)
	}

	raw, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("toggle reaction: unexpected reply %T", res)
	}
	authors := make([]string, 0, len(raw))
	for _, v := range raw {
		if str, ok := v.(string); ok {
			authors = append(authors, str)
		}
	}
	return authors, nil
}

// SetOnline registers identity -> connID with last-write-wins semantics.
func (s *RedisStore) SetOnline(ctx context.Context, identity, connID string) error {
	if err := s.rdb.Set(ctx, presenceKey(identity), connID, presenceTTL).Err(); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

// Resolve returns the connection id for identity, or "" if absent.
func (s *RedisStore) Resolve(ctx context.Context, identity string) (string, error) {
	connID, err := s.rdb.Get(ctx, presenceKey(identity)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve presence: %w", err)
	}
	return connID, nil
}

// SetOffline removes the mapping only if it still points at connID.
func (s *RedisStore) SetOffline(ctx context.Context, identity, connID string) error {
	if err := offlineScript.Run(ctx, s.rdb, []string{presenceKey(identity)}, connID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("set offline: %w", err)
	}
	return nil
}

// SetSpeaking marks or clears a connection in the room's speaking set.
func (s *RedisStore) SetSpeaking(ctx context.Context, roomID, connID string, speaking bool) error {
	key := speakingKey(roomID)
	if speaking {
		_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, key, connID)
			pipe.Expire(ctx, key, speakingTTL)
			return nil
		})
		if err != nil {
			return fmt.Errorf("set speaking: %w", err)
		}
		return nil
	}
	if err := s.rdb.SRem(ctx, key, connID).Err(); err != nil {
		return fmt.Errorf("clear speaking: %w", err)
	}
	return nil
}

// Speaking lists connection ids currently speaking in a room.
func (s *RedisStore) Speaking(ctx context.Context, roomID string) ([]string, error) {
	ids, err := s.rdb.SMembers(ctx, speakingKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list speaking: %w", err)
	}
	return ids, nil
}

func (s *RedisStore) touchRoom(ctx context.Context, pipe redis.Pipeliner, roomID string) {
	pipe.ZAdd(ctx, activeRoomsKey, redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: roomID,
	})
}

// AddMember upserts the member entry and refreshes expiry and recency.
func (s *RedisStore) AddMember(ctx context.Context, roomID string, member store.UserRef) ([]store.UserRef, error) {
	data, err := json.Marshal(member)
	if err != nil {
		return nil, fmt.Errorf("marshal member: %w", err)
	}

	_, err = s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, membersKey(roomID), member.ConnID, data)
		pipe.Expire(ctx, membersKey(roomID), membershipTTL)
		s.touchRoom(ctx, pipe, roomID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	return s.Members(ctx, roomID)
}

// RemoveMember deletes the member entry and refreshes recency.
func (s *RedisStore) RemoveMember(ctx context.Context, roomID, connID string) ([]store.UserRef, error) {
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, membersKey(roomID), connID)
		s.touchRoom(ctx, pipe, roomID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove member: %w", err)
	}
	return s.Members(ctx, roomID)
}

// Members returns the current member list.
func (s *RedisStore) Members(ctx context.Context, roomID string) ([]store.UserRef, error) {
	entries, err := s.rdb.HGetAll(ctx, membersKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}

	members := make([]store.UserRef, 0, len(entries))
	for connID, raw := range entries {
		var ref store.UserRef
		if err := json.Unmarshal([]byte(raw), &ref); err != nil {
			s.log.Warn().Err(err).Str("room", roomID).Str("conn", connID).Msg("skipping corrupt member entry")
			continue
		}
		members = append(members, ref)
	}
	return members, nil
}

// ActiveRooms returns room ids by most recent activity, pruning entries
// past the 24-hour horizon.
func (s *RedisStore) ActiveRooms(ctx context.Context, limit int64) ([]string, error) {
	cutoff := time.Now().Add(-activeHorizon).UnixMilli()
	if err := s.rdb.ZRemRangeByScore(ctx, activeRoomsKey, "-inf", strconv.FormatInt(cutoff, 10)).Err(); err != nil {
		return nil, fmt.Errorf("prune active rooms: %w", err)
	}

	if limit <= 0 {
		limit = 100
	}
	ids, err := s.rdb.ZRevRange(ctx, activeRoomsKey, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list active rooms: %w", err)
	}
	return ids, nil
}

// Rooms returns the catalog, seeding defaults on first read. A corrupt
// catalog value falls back to defaults rather than failing.
func (s *RedisStore) Rooms(ctx context.Context) ([]store.RoomInfo, error) {
	raw, err := s.rdb.Get(ctx, catalogKey).Result()
	if err == redis.Nil {
		if err := s.writeCatalog(ctx, defaultRooms); err != nil {
			return nil, err
		}
		return append([]store.RoomInfo(nil), defaultRooms...), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read room catalog: %w", err)
	}

	var rooms []store.RoomInfo
	if err := json.Unmarshal([]byte(raw), &rooms); err != nil {
		s.log.Warn().Err(err).Msg("corrupt room catalog, using defaults")
		return append([]store.RoomInfo(nil), defaultRooms...), nil
	}
	return rooms, nil
}

// AddRoom appends a room to the catalog unless its id is taken.
func (s *RedisStore) AddRoom(ctx context.Context, room store.RoomInfo) error {
	rooms, err := s.Rooms(ctx)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		if r.ID == room.ID {
			return nil
		}
	}
	return s.writeCatalog(ctx, append(rooms, room))
}

// SetRoomUsers updates the catalog's member count for a room.
func (s *RedisStore) SetRoomUsers(ctx context.Context, roomID string, count int) error {
	rooms, err := s.Rooms(ctx)
	if err != nil {
		return err
	}
	for i := range rooms {
		if rooms[i].ID == roomID {
			rooms[i].Users = count
			return s.writeCatalog(ctx, rooms)
		}
	}
	return nil
}

func (s *RedisStore) writeCatalog(ctx context.Context, rooms []store.RoomInfo) error {
	data, err := json.Marshal(rooms)
	if err != nil {
		return fmt.Errorf("marshal room catalog: %w", err)
	}
	if err := s.rdb.Set(ctx, catalogKey, data, 0).Err(); err != nil {
		return fmt.Errorf("write room catalog: %w", err)
	}
	return nil
}

// Ensure RedisStore implements store.Store.
var _ store.Store = (*RedisStore)(nil)
