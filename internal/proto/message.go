package proto

import "encoding/json"

// Inbound is the envelope for events coming from the client.
type Inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Outbound is the envelope for events sent to the client.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Client-to-server event names.
const (
	EventUserOnline    = "user:online"
	EventRoomJoin      = "room:join"
	EventRoomLeave     = "room:leave"
	EventChatSend      = "chat:send"
	EventChatSendVoice = "chat:send:voice"
	EventChatReact     = "chat:react"
	EventChatTyping    = "chat:typing"
	EventSpeaking      = "presence:speaking"
	EventDMHistory     = "dm:history"
	EventDMSend        = "dm:send"
	EventDMSendVoice   = "dm:send:voice"
	EventDMReact       = "dm:react"
	EventCallRequest   = "call:request"
	EventCallAccept    = "call:accept"
	EventCallReject    = "call:reject"
	EventCallEnd       = "call:end"
)

// Server-to-client event names.
const (
	EventRoomUsers        = "room:users"
	EventChatHistory      = "chat:history"
	EventChatMessage      = "chat:message"
	EventChatReaction     = "chat:reaction"
	EventChatTypingStatus = "chat:typing:status"
	EventSpeakingList     = "presence:speaking:list"
	EventDMMessage        = "dm:message"
	EventDMReaction       = "dm:reaction"
	EventRoomsList        = "rooms:list"
	EventCallIncoming     = "call:incoming"
	EventCallAccepted     = "call:accepted"
	EventCallRejected     = "call:rejected"
	EventCallEnded        = "call:ended"
	EventCallTimeout      = "call:timeout"
	EventCallUnavailable  = "call:unavailable"
)

// Bidirectional negotiation relay event names. Payloads are opaque.
const (
	EventWebRTCOffer  = "webrtc:offer"
	EventWebRTCAnswer = "webrtc:answer"
	EventWebRTCICE    = "webrtc:ice"
)

// UserOnlineData registers the client's identity.
type UserOnlineData struct {
	Name string `json:"name"`
}

// RoomJoinData requests to join a room.
type RoomJoinData struct {
	RoomID string       `json:"roomId"`
	User   RoomJoinUser `json:"user"`
}

// RoomJoinUser is the joiner's descriptor.
type RoomJoinUser struct {
	Name string `json:"name"`
}

// ChatSendData is a text message.
type ChatSendData struct {
	Text string `json:"text"`
}

// VoiceData is a recorded voice message.
type VoiceData struct {
	Audio    string `json:"audio"`
	Duration int    `json:"duration"`
	MimeType string `json:"mimeType"`
}

// ReactData toggles a reaction.
type ReactData struct {
	MessageID string `json:"messageId"`
	Emoji     string `json:"emoji"`
}

// TypingData updates the typing indicator.
type TypingData struct {
	IsTyping bool `json:"isTyping"`
}

// SpeakingData updates the speaking indicator.
type SpeakingData struct {
	IsSpeaking bool `json:"isSpeaking"`
}

// DMData addresses a direct-conversation action; unused fields are empty.
type DMData struct {
	ToUser    string `json:"toUser"`
	Text      string `json:"text,omitempty"`
	Audio     string `json:"audio,omitempty"`
	Duration  int    `json:"duration,omitempty"`
	MimeType  string `json:"mimeType,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Emoji     string `json:"emoji,omitempty"`
}

// CallData drives the call state machine.
type CallData struct {
	To       string `json:"to"`
	Duration int    `json:"duration,omitempty"`
}

// SignalData is an addressed opaque negotiation payload.
type SignalData struct {
	To      string          `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

// CallNotice notifies a call state change.
type CallNotice struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// SignalNotice delivers a relayed negotiation payload.
type SignalNotice struct {
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// ReactionNotice carries the author list for one (message, emoji) pair.
type ReactionNotice struct {
	MessageID string   `json:"messageId"`
	Emoji     string   `json:"emoji"`
	User      string   `json:"user"`
	Users     []string `json:"users"`
}

// TypingNotice reports a typing indicator change.
type TypingNotice struct {
	ConnID   string `json:"connId"`
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

// DMHistoryNotice replays a direct conversation.
type DMHistoryNotice struct {
	DMID    string `json:"dmId"`
	History any    `json:"history"`
}
