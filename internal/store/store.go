package store

import (
	"context"
	"sort"
	"time"
)

// Message kinds as persisted and broadcast.
const (
	KindText   = "text"
	KindVoice  = "voice"
	KindSystem = "system"
)

// Message is a chat or direct message as persisted in the shared store.
// Exactly one of RoomID / DMID is set, depending on scope.
type Message struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId,omitempty"`
	DMID      string `json:"dmId,omitempty"`
	Kind      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Audio     string `json:"audio,omitempty"` // base64 payload for voice messages
	Duration  int    `json:"duration,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	User      string `json:"user"`
	From      string `json:"from,omitempty"` // connection id of the author
	To        string `json:"to,omitempty"`   // DM recipient identity
	CreatedAt int64  `json:"createdAt"`      // unix millis
}

// UserRef is the small user descriptor kept per room member.
type UserRef struct {
	ConnID string `json:"connId"`
	Name   string `json:"name"`
}

// RoomInfo describes a room in the catalog.
type RoomInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Users int    `json:"users"`
}

// Call log outcomes.
const (
	CallOutcomeMissed   = "missed"
	CallOutcomeRejected = "rejected"
	CallOutcomeEnded    = "ended"
	CallOutcomeFailed   = "failed"
)

// Call log directions, from the perspective of Identity.
const (
	CallDirectionIncoming = "incoming"
	CallDirectionOutgoing = "outgoing"
)

// CallRecord is one side's view of a finished call.
type CallRecord struct {
	ID              int64
	Identity        string
	Peer            string
	Direction       string
	Outcome         string
	DurationSeconds int
	CreatedAt       time.Time
}

// OrderByActivity returns the catalog with recently active rooms first,
// in activeIDs order (most recent first). Rooms without recent activity
// follow in their catalog order.
func OrderByActivity(rooms []RoomInfo, activeIDs []string) []RoomInfo {
	rank := make(map[string]int, len(activeIDs))
	for i, id := range activeIDs {
		rank[id] = i
	}

	out := make([]RoomInfo, len(rooms))
	copy(out, rooms)
	sort.SliceStable(out, func(i, j int) bool {
		ri, iActive := rank[out[i].ID]
		rj, jActive := rank[out[j].ID]
		if iActive != jActive {
			return iActive
		}
		return iActive && ri < rj
	})
	return out
}

// ChatStore persists bounded message history per scope.
type ChatStore interface {
	// PushRoomMessage appends to the room ring buffer (cap 50, 24h expiry).
	PushRoomMessage(ctx context.Context, roomID string, msg Message) error

	// RoomHistory returns the room's history, oldest first.
	RoomHistory(ctx context.Context, roomID string) ([]Message, error)

	// PushDirectMessage appends to the conversation ring buffer (cap 100, 7d expiry).
	PushDirectMessage(ctx context.Context, dmID string, msg Message) error

	// DirectHistory returns the conversation history, oldest first.
	DirectHistory(ctx context.Context, dmID string) ([]Message, error)
}

// ReactionStore toggles reaction membership per (scope, message, emoji).
type ReactionStore interface {
	// ToggleReaction adds author if absent, removes if present, and returns
	// the resulting author list for that (messageID, emoji) pair. The toggle
	// is a single atomic store operation.
	ToggleReaction(ctx context.Context, scope, messageID, emoji, author string) ([]string, error)
}

// PresenceStore maps identities to live connections.
type PresenceStore interface {
	// SetOnline registers identity -> connID, last write wins.
	SetOnline(ctx context.Context, identity, connID string) error

	// Resolve returns the connection id for identity, or "" if absent.
	Resolve(ctx context.Context, identity string) (string, error)

	// SetOffline removes the mapping only if it still points at connID.
	SetOffline(ctx context.Context, identity, connID string) error

	// SetSpeaking marks a connection as speaking in a room.
	SetSpeaking(ctx context.Context, roomID, connID string, speaking bool) error

	// Speaking lists connection ids currently speaking in a room.
	Speaking(ctx context.Context, roomID string) ([]string, error)
}

// RoomStore tracks membership, the recency index, and the room catalog.
type RoomStore interface {
	// AddMember upserts the member entry, refreshes membership expiry and
	// the room's recency score, and returns the current member list.
	AddMember(ctx context.Context, roomID string, member UserRef) ([]UserRef, error)

	// RemoveMember deletes the member entry, refreshes recency, and returns
	// the updated member list. Removing an absent member is a no-op.
	RemoveMember(ctx context.Context, roomID, connID string) ([]UserRef, error)

	// Members returns the current member list.
	Members(ctx context.Context, roomID string) ([]UserRef, error)

	// ActiveRooms returns room ids ordered by most recent activity.
	// Entries older than 24 hours are purged lazily.
	ActiveRooms(ctx context.Context, limit int64) ([]string, error)

	// Rooms returns the room catalog, seeding defaults on first read.
	Rooms(ctx context.Context) ([]RoomInfo, error)

	// AddRoom appends a room to the catalog if its id is not taken.
	AddRoom(ctx context.Context, room RoomInfo) error

	// SetRoomUsers updates the catalog's member count for a room.
	SetRoomUsers(ctx context.Context, roomID string, count int) error
}

// CallLogStore persists finished-call records.
type CallLogStore interface {
	RecordCall(ctx context.Context, rec CallRecord) error
	RecentCalls(ctx context.Context, identity string, limit int) ([]CallRecord, error)

	// Close closes the underlying database connection.
	Close() error
}

// Store aggregates the shared-store interfaces.
type Store interface {
	ChatStore
	ReactionStore
	PresenceStore
	RoomStore

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases the underlying connection.
	Close() error
}
