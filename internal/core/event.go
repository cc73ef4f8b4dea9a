package core

import (
	"encoding/json"

	"github.com/huddlechat/huddle-server/internal/store"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventRoomUsers carries the updated member list of a room.
	EventRoomUsers EventKind = iota
	// EventChatHistory replays room history to a joining client.
	EventChatHistory
	// EventChatMessage is a chat message broadcast to a room.
	EventChatMessage
	// EventChatReaction is a reaction update for one (message, emoji) pair.
	EventChatReaction
	// EventTypingStatus is a typing indicator change.
	EventTypingStatus
	// EventSpeakingList carries connection ids currently speaking.
	EventSpeakingList
	// EventDMHistory replays a direct conversation to the requester.
	EventDMHistory
	// EventDMMessage is a direct message, delivered to both participants.
	EventDMMessage
	// EventDMReaction is a reaction update on a direct message.
	EventDMReaction
	// EventRoomsList carries room summaries for discovery.
	EventRoomsList

	// Call notifications.
	EventCallIncoming
	EventCallAccepted
	EventCallRejected
	EventCallEnded
	EventCallTimeout
	EventCallUnavailable

	// EventSignal relays an opaque negotiation payload.
	EventSignal
)

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind EventKind

	Room     string
	Members  []store.UserRef
	Messages []store.Message
	Message  *store.Message
	DMID     string
	Rooms    []store.RoomInfo
	Speaking []string

	Reaction *ReactionUpdate
	Typing   *TypingStatus
	Call     *CallNotice
	Signal   *SignalEvent
}

// ReactionUpdate carries the resulting author list for one
// (messageID, emoji) pair after a toggle.
type ReactionUpdate struct {
	MessageID string
	Emoji     string
	User      string
	Users     []string
}

// TypingStatus reports a typing indicator change for a connection.
type TypingStatus struct {
	ConnID   string
	User     string
	IsTyping bool
}

// CallNotice holds data for call state notifications.
type CallNotice struct {
	From     string
	To       string
	Duration int
}

// SignalEvent is a relayed negotiation payload. The payload is opaque.
type SignalEvent struct {
	Kind    string
	From    string
	Payload json.RawMessage
}
