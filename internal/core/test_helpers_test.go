package core

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddlechat/huddle-server/internal/callengine"
	"github.com/huddlechat/huddle-server/internal/store"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func newTestHub(t *testing.T, cfg CallConfig) (*Hub, *fakeStore, *fakeCallLog, *fakeEngine) {
	t.Helper()

	st := newFakeStore()
	callLog := &fakeCallLog{}
	engine := &fakeEngine{}
	logger := zerolog.Nop()

	hub := NewHub(st, callLog, engine, cfg, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	return hub, st, callLog, engine
}

// fakeStore is an in-memory store.Store for hub tests.
type fakeStore struct {
	mu        sync.Mutex
	roomMsgs  map[string][]store.Message
	dmMsgs    map[string][]store.Message
	reactions map[string]map[string]bool
	presence  map[string]string
	speaking  map[string]map[string]bool
	members   map[string]map[string]store.UserRef
	catalog   []store.RoomInfo
	touched   []string // most recent first
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		roomMsgs:  make(map[string][]store.Message),
		dmMsgs:    make(map[string][]store.Message),
		reactions: make(map[string]map[string]bool),
		presence:  make(map[string]string),
		speaking:  make(map[string]map[string]bool),
		members:   make(map[string]map[string]store.UserRef),
	}
}

func (f *fakeStore) PushRoomMessage(_ context.Context, roomID string, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roomMsgs[roomID] = append(f.roomMsgs[roomID], msg)
	return nil
}

func (f *fakeStore) RoomHistory(_ context.Context, roomID string) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.roomMsgs[roomID]...), nil
}

func (f *fakeStore) PushDirectMessage(_ context.Context, dmID string, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dmMsgs[dmID] = append(f.dmMsgs[dmID], msg)
	return nil
}

func (f *fakeStore) DirectHistory(_ context.Context, dmID string) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.dmMsgs[dmID]...), nil
}

func (f *fakeStore) ToggleReaction(_ context.Context, scope, messageID, emoji, author string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scope + ":" + messageID + ":" + emoji
	set := f.reactions[key]
	if set == nil {
		set = make(map[string]bool)
		f.reactions[key] = set
	}
	if set[author] {
		delete(set, author)
	} else {
		set[author] = true
	}
	authors := make([]string, 0, len(set))
	for a := range set {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	return authors, nil
}

func (f *fakeStore) SetOnline(_ context.Context, identity, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presence[identity] = connID
	return nil
}

func (f *fakeStore) Resolve(_ context.Context, identity string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.presence[identity], nil
}

func (f *fakeStore) SetOffline(_ context.Context, identity, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presence[identity] == connID {
		delete(f.presence, identity)
	}
	return nil
}

func (f *fakeStore) SetSpeaking(_ context.Context, roomID, connID string, speaking bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.speaking[roomID]
	if set == nil {
		set = make(map[string]bool)
		f.speaking[roomID] = set
	}
	if speaking {
		set[connID] = true
	} else {
		delete(set, connID)
	}
	return nil
}

func (f *fakeStore) Speaking(_ context.Context, roomID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.speaking[roomID]))
	for id := range f.speaking[roomID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeStore) AddMember(_ context.Context, roomID string, member store.UserRef) ([]store.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	set := f.members[roomID]
	if set == nil {
		set = make(map[string]store.UserRef)
		f.members[roomID] = set
	}
	set[member.ConnID] = member
	f.touchLocked(roomID)
	return f.memberListLocked(roomID), nil
}

func (f *fakeStore) RemoveMember(_ context.Context, roomID, connID string) ([]store.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[roomID], connID)
	f.touchLocked(roomID)
	return f.memberListLocked(roomID), nil
}

func (f *fakeStore) touchLocked(roomID string) {
	for i, id := range f.touched {
		if id == roomID {
			f.touched = append(f.touched[:i], f.touched[i+1:]...)
			break
		}
	}
	f.touched = append([]string{roomID}, f.touched...)
}

func (f *fakeStore) Members(_ context.Context, roomID string) ([]store.UserRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberListLocked(roomID), nil
}

func (f *fakeStore) memberListLocked(roomID string) []store.UserRef {
	members := make([]store.UserRef, 0, len(f.members[roomID]))
	for _, m := range f.members[roomID] {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ConnID < members[j].ConnID })
	return members
}

func (f *fakeStore) ActiveRooms(_ context.Context, _ int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.touched...), nil
}

func (f *fakeStore) Rooms(_ context.Context) ([]store.RoomInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.RoomInfo(nil), f.catalog...), nil
}

func (f *fakeStore) AddRoom(_ context.Context, room store.RoomInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.catalog {
		if r.ID == room.ID {
			return nil
		}
	}
	f.catalog = append(f.catalog, room)
	return nil
}

func (f *fakeStore) SetRoomUsers(_ context.Context, roomID string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.catalog {
		if f.catalog[i].ID == roomID {
			f.catalog[i].Users = count
			return nil
		}
	}
	f.catalog = append(f.catalog, store.RoomInfo{ID: roomID, Name: roomID, Users: count})
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// fakeCallLog records calls in memory.
type fakeCallLog struct {
	mu      sync.Mutex
	records []store.CallRecord
}

func (f *fakeCallLog) RecordCall(_ context.Context, rec store.CallRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeCallLog) RecentCalls(_ context.Context, identity string, _ int) ([]store.CallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CallRecord
	for _, rec := range f.records {
		if rec.Identity == identity {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (f *fakeCallLog) Close() error { return nil }

func (f *fakeCallLog) byIdentity(identity string) []store.CallRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CallRecord
	for _, rec := range f.records {
		if rec.Identity == identity {
			out = append(out, rec)
		}
	}
	return out
}

// fakeEngine hands out sessions and exposes the last state callback so
// tests can drive transport transitions.
type fakeEngine struct {
	mu      sync.Mutex
	opened  int
	onState func(callengine.TransportState)
}

func (f *fakeEngine) Open(_ context.Context, _ string, _, _ string, onState func(callengine.TransportState)) (callengine.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	f.onState = onState
	return &fakeSession{}, nil
}

func (f *fakeEngine) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

type fakeSession struct {
	mu     sync.Mutex
	closed int
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}
