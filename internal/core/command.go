package core

import "encoding/json"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandHello registers the client's identity in the presence directory.
	CommandHello CommandKind = iota
	// CommandJoinRoom joins a room and replays its history.
	CommandJoinRoom
	// CommandLeaveRoom leaves the current room explicitly.
	CommandLeaveRoom
	// CommandSendChat sends a text message to the current room.
	CommandSendChat
	// CommandSendVoice sends a voice message to the current room.
	CommandSendVoice
	// CommandReact toggles a reaction on a room message.
	CommandReact
	// CommandTyping updates the typing indicator.
	CommandTyping
	// CommandSpeaking updates the speaking indicator.
	CommandSpeaking
	// CommandDMHistory requests direct-conversation history.
	CommandDMHistory
	// CommandSendDM sends a direct text message.
	CommandSendDM
	// CommandSendDMVoice sends a direct voice message.
	CommandSendDMVoice
	// CommandDMReact toggles a reaction on a direct message.
	CommandDMReact
	// CommandCallRequest initiates a call.
	CommandCallRequest
	// CommandCallAccept accepts a ringing call.
	CommandCallAccept
	// CommandCallReject rejects a ringing call.
	CommandCallReject
	// CommandCallEnd ends the current call.
	CommandCallEnd
	// CommandSignal relays an opaque negotiation payload.
	CommandSignal
)

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	Name string // hello
	Room string // join
	User string // join: user descriptor name

	Text      string
	Audio     string
	Duration  int // voice message length; call:end fallback seconds
	MimeType  string
	MessageID string
	Emoji     string

	IsTyping   bool
	IsSpeaking bool

	To      string // DM recipient or call peer
	Signal  string // webrtc:offer, webrtc:answer, webrtc:ice
	Payload json.RawMessage
}
