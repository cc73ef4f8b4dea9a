package http

import (
	"encoding/json"

	"github.com/huddlechat/huddle-server/internal/core"
	"github.com/huddlechat/huddle-server/internal/proto"
)

// inboundToCommand maps a wire event to a core command. Unknown events and
// unparsable payloads yield nil: the protocol silently ignores bad input.
func inboundToCommand(inbound proto.Inbound) *core.Command {
	switch inbound.Event {
	case proto.EventUserOnline:
		var d proto.UserOnlineData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandHello, Name: d.Name}

	case proto.EventRoomJoin:
		var d proto.RoomJoinData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandJoinRoom, Room: d.RoomID, User: d.User.Name}

	case proto.EventRoomLeave:
		return &core.Command{Kind: core.CommandLeaveRoom}

	case proto.EventChatSend:
		var d proto.ChatSendData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandSendChat, Text: d.Text}

	case proto.EventChatSendVoice:
		var d proto.VoiceData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandSendVoice, Audio: d.Audio, Duration: d.Duration, MimeType: d.MimeType}

	case proto.EventChatReact:
		var d proto.ReactData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandReact, MessageID: d.MessageID, Emoji: d.Emoji}

	case proto.EventChatTyping:
		var d proto.TypingData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandTyping, IsTyping: d.IsTyping}

	case proto.EventSpeaking:
		var d proto.SpeakingData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandSpeaking, IsSpeaking: d.IsSpeaking}

	case proto.EventDMHistory:
		var d proto.DMData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandDMHistory, To: d.ToUser}

	case proto.EventDMSend:
		var d proto.DMData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandSendDM, To: d.ToUser, Text: d.Text}

	case proto.EventDMSendVoice:
		var d proto.DMData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{
			Kind:     core.CommandSendDMVoice,
			To:       d.ToUser,
			Audio:    d.Audio,
			Duration: d.Duration,
			MimeType: d.MimeType,
		}

	case proto.EventDMReact:
		var d proto.DMData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandDMReact, To: d.ToUser, MessageID: d.MessageID, Emoji: d.Emoji}

	case proto.EventCallRequest, proto.EventCallAccept, proto.EventCallReject, proto.EventCallEnd:
		var d proto.CallData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		kind := core.CommandCallRequest
		switch inbound.Event {
		case proto.EventCallAccept:
			kind = core.CommandCallAccept
		case proto.EventCallReject:
			kind = core.CommandCallReject
		case proto.EventCallEnd:
			kind = core.CommandCallEnd
		}
		return &core.Command{Kind: kind, To: d.To, Duration: d.Duration}

	case proto.EventWebRTCOffer, proto.EventWebRTCAnswer, proto.EventWebRTCICE:
		var d proto.SignalData
		if json.Unmarshal(inbound.Data, &d) != nil {
			return nil
		}
		return &core.Command{Kind: core.CommandSignal, Signal: inbound.Event, To: d.To, Payload: d.Payload}

	default:
		return nil
	}
}

func outboundFromEvent(ev *core.Event) proto.Outbound {
	switch ev.Kind {
	case core.EventRoomUsers:
		return proto.Outbound{Event: proto.EventRoomUsers, Data: ev.Members}

	case core.EventChatHistory:
		return proto.Outbound{Event: proto.EventChatHistory, Data: ev.Messages}

	case core.EventChatMessage:
		return proto.Outbound{Event: proto.EventChatMessage, Data: ev.Message}

	case core.EventChatReaction:
		return proto.Outbound{Event: proto.EventChatReaction, Data: reactionNotice(ev)}

	case core.EventTypingStatus:
		return proto.Outbound{Event: proto.EventChatTypingStatus, Data: proto.TypingNotice{
			ConnID:   ev.Typing.ConnID,
			User:     ev.Typing.User,
			IsTyping: ev.Typing.IsTyping,
		}}

	case core.EventSpeakingList:
		return proto.Outbound{Event: proto.EventSpeakingList, Data: ev.Speaking}

	case core.EventDMHistory:
		return proto.Outbound{Event: proto.EventDMHistory, Data: proto.DMHistoryNotice{
			DMID:    ev.DMID,
			History: ev.Messages,
		}}

	case core.EventDMMessage:
		return proto.Outbound{Event: proto.EventDMMessage, Data: ev.Message}

	case core.EventDMReaction:
		return proto.Outbound{Event: proto.EventDMReaction, Data: reactionNotice(ev)}

	case core.EventRoomsList:
		return proto.Outbound{Event: proto.EventRoomsList, Data: ev.Rooms}

	case core.EventCallIncoming:
		return proto.Outbound{Event: proto.EventCallIncoming, Data: callNotice(ev)}
	case core.EventCallAccepted:
		return proto.Outbound{Event: proto.EventCallAccepted, Data: callNotice(ev)}
	case core.EventCallRejected:
		return proto.Outbound{Event: proto.EventCallRejected, Data: callNotice(ev)}
	case core.EventCallEnded:
		return proto.Outbound{Event: proto.EventCallEnded, Data: callNotice(ev)}
	case core.EventCallTimeout:
		return proto.Outbound{Event: proto.EventCallTimeout, Data: callNotice(ev)}
	case core.EventCallUnavailable:
		return proto.Outbound{Event: proto.EventCallUnavailable, Data: callNotice(ev)}

	case core.EventSignal:
		return proto.Outbound{Event: ev.Signal.Kind, Data: proto.SignalNotice{
			From:    ev.Signal.From,
			Payload: ev.Signal.Payload,
		}}

	default:
		return proto.Outbound{}
	}
}

func reactionNotice(ev *core.Event) proto.ReactionNotice {
	return proto.ReactionNotice{
		MessageID: ev.Reaction.MessageID,
		Emoji:     ev.Reaction.Emoji,
		User:      ev.Reaction.User,
		Users:     ev.Reaction.Users,
	}
}

func callNotice(ev *core.Event) proto.CallNotice {
	return proto.CallNotice{
		From:     ev.Call.From,
		To:       ev.Call.To,
		Duration: ev.Call.Duration,
	}
}
