package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/huddlechat/huddle-server/internal/callengine"
	"github.com/huddlechat/huddle-server/internal/store"
	"github.com/huddlechat/huddle-server/internal/utils"
)

const typingExpiry = 2 * time.Second

// Hub coordinates clients, rooms, and fan-out. Each client's commands are
// handled serially by its own serve loop; handlers may suspend on store
// round-trips while other connections' loops proceed. Shared cross-connection
// state lives in the store and is mutated only through its atomic operations.
type Hub struct {
	store store.Store
	calls *Coordinator
	log   *zerolog.Logger

	mu      sync.RWMutex
	clients map[string]*Client            // connection id -> client
	rooms   map[string]map[*Client]struct{} // local fan-out sets
	typing  map[string]*time.Timer        // connection id -> expiry timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates the hub and its call coordinator.
func NewHub(st store.Store, callLog store.CallLogStore, engine callengine.Engine, callCfg CallConfig, logger *zerolog.Logger) *Hub {
	h := &Hub{
		store:   st,
		log:     logger,
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[*Client]struct{}),
		typing:  make(map[string]*time.Timer),
	}
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.calls = NewCoordinator(engine, callLog,
		func(ctx context.Context, identity string) (string, error) {
			return st.Resolve(ctx, identity)
		},
		h.sendToConn,
		callCfg, logger)
	return h
}

// Run blocks until ctx is cancelled, then stops all serve loops and
// tears down live calls.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.cancel()
	h.calls.Shutdown()

	h.mu.Lock()
	for _, timer := range h.typing {
		timer.Stop()
	}
	h.typing = make(map[string]*time.Timer)
	h.mu.Unlock()
}

// RegisterClient adds a connection and starts its serve loop.
func (h *Hub) RegisterClient(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	go h.serveClient(c)
}

// UnregisterClient runs the implicit-leave path for a dropped connection.
// Safe to call after an explicit leave: cleanup runs exactly once.
func (h *Hub) UnregisterClient(c *Client) {
	ctx := h.ctx
	_, identity := c.User()

	if identity != "" {
		h.calls.HandleDisconnect(ctx, identity)
		if err := h.store.SetOffline(ctx, identity, c.ID); err != nil {
			h.log.Warn().Err(err).Str("identity", identity).Msg("presence cleanup failed")
		}
	}
	h.leaveRoom(ctx, c)
	h.cancelTyping(c.ID)

	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()
	close(c.Commands)
}

func (h *Hub) serveClient(c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			h.dispatch(h.ctx, c, cmd)
		case <-h.ctx.Done():
			return
		}
	}
}

// dispatch executes one command. Malformed or incomplete input is ignored
// without surfacing an error; this leniency is part of the protocol.
func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandHello:
		h.handleHello(ctx, c, cmd.Name)
	case CommandJoinRoom:
		h.handleJoin(ctx, c, cmd.Room, cmd.User)
	case CommandLeaveRoom:
		h.handleLeave(ctx, c)
	case CommandSendChat:
		h.handleChat(ctx, c, cmd.Text)
	case CommandSendVoice:
		h.handleVoice(ctx, c, cmd.Audio, cmd.Duration, cmd.MimeType)
	case CommandReact:
		h.handleReact(ctx, c, cmd.MessageID, cmd.Emoji)
	case CommandTyping:
		h.handleTyping(c, cmd.IsTyping)
	case CommandSpeaking:
		h.handleSpeaking(ctx, c, cmd.IsSpeaking)
	case CommandDMHistory:
		h.handleDMHistory(ctx, c, cmd.To)
	case CommandSendDM:
		h.handleSendDM(ctx, c, cmd.To, cmd.Text)
	case CommandSendDMVoice:
		h.handleSendDMVoice(ctx, c, cmd.To, cmd.Audio, cmd.Duration, cmd.MimeType)
	case CommandDMReact:
		h.handleDMReact(ctx, c, cmd.To, cmd.MessageID, cmd.Emoji)
	case CommandCallRequest:
		name, identity := c.User()
		h.calls.Request(ctx, identity, name, cmd.To)
	case CommandCallAccept:
		name, identity := c.User()
		h.calls.Accept(ctx, identity, name, cmd.To)
	case CommandCallReject:
		name, identity := c.User()
		h.calls.Reject(ctx, identity, name, cmd.To)
	case CommandCallEnd:
		name, identity := c.User()
		h.calls.End(ctx, identity, name, cmd.To, cmd.Duration)
	case CommandSignal:
		h.handleSignal(ctx, c, cmd.Signal, cmd.To, cmd.Payload)
	}
}

func (h *Hub) handleHello(ctx context.Context, c *Client, name string) {
	display := strings.TrimSpace(name)
	identity := NormalizeIdentity(name)
	if identity == "" {
		return
	}
	c.setUser(display, identity)
	if err := h.store.SetOnline(ctx, identity, c.ID); err != nil {
		h.log.Warn().Err(err).Str("identity", identity).Msg("presence registration failed")
		return
	}
	h.log.Debug().Str("identity", identity).Str("conn", c.ID).Msg("user online")
}

func (h *Hub) handleJoin(ctx context.Context, c *Client, roomID, userName string) {
	display := strings.TrimSpace(userName)
	identity := NormalizeIdentity(userName)
	if roomID == "" || identity == "" {
		return
	}

	// At most one room per connection.
	if current := c.Room(); current != "" && current != roomID {
		h.leaveRoom(ctx, c)
	}

	c.setUser(display, identity)
	c.setRoom(roomID)
	c.leaveHandled.Store(false)

	if err := h.store.SetOnline(ctx, identity, c.ID); err != nil {
		h.log.Warn().Err(err).Str("identity", identity).Msg("presence registration failed")
	}

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	h.mu.Unlock()

	members, err := h.store.AddMember(ctx, roomID, store.UserRef{ConnID: c.ID, Name: display})
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("join failed")
		return
	}
	h.broadcastRoom(roomID, &Event{Kind: EventRoomUsers, Room: roomID, Members: members})
	h.announceRooms(ctx, roomID, len(members))

	// Replay history to the joiner only, before any of its further
	// commands are handled.
	history, err := h.store.RoomHistory(ctx, roomID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("history replay failed")
	} else {
		c.send(&Event{Kind: EventChatHistory, Room: roomID, Messages: history})
	}

	h.systemMessage(ctx, roomID, display+" joined the room")
	h.log.Info().Str("room", roomID).Str("identity", identity).Msg("joined room")
}

// handleLeave is the explicit leave path.
func (h *Hub) handleLeave(ctx context.Context, c *Client) {
	h.leaveRoom(ctx, c)
}

// leaveRoom runs the room cleanup exactly once per leave event, whether
// triggered explicitly or by disconnect.
func (h *Hub) leaveRoom(ctx context.Context, c *Client) {
	roomID := c.Room()
	if roomID == "" {
		return
	}
	if !c.leaveHandled.CompareAndSwap(false, true) {
		return
	}
	name, identity := c.User()
	c.setRoom("")
	h.cancelTyping(c.ID)

	h.mu.Lock()
	if set := h.rooms[roomID]; set != nil {
		delete(set, c)
		if len(set) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	members, err := h.store.RemoveMember(ctx, roomID, c.ID)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("leave failed")
		return
	}
	h.broadcastRoom(roomID, &Event{Kind: EventRoomUsers, Room: roomID, Members: members})
	h.announceRooms(ctx, roomID, len(members))

	if name != "" {
		h.systemMessage(ctx, roomID, name+" left the room")
	}
	h.log.Info().Str("room", roomID).Str("identity", identity).Msg("left room")
}

func (h *Hub) handleChat(ctx context.Context, c *Client, text string) {
	roomID := c.Room()
	clean := strings.TrimSpace(text)
	if roomID == "" || clean == "" {
		return
	}
	name, _ := c.User()

	msg := store.Message{
		ID:        utils.NewMessageID(),
		RoomID:    roomID,
		Kind:      store.KindText,
		Text:      clean,
		User:      name,
		From:      c.ID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.store.PushRoomMessage(ctx, roomID, msg); err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("persist message failed")
		return
	}
	h.broadcastRoom(roomID, &Event{Kind: EventChatMessage, Room: roomID, Message: &msg})
}

func (h *Hub) handleVoice(ctx context.Context, c *Client, audio string, duration int, mimeType string) {
	roomID := c.Room()
	if roomID == "" || audio == "" {
		return
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	name, _ := c.User()

	msg := store.Message{
		ID:        utils.NewMessageID(),
		RoomID:    roomID,
		Kind:      store.KindVoice,
		Audio:     audio,
		Duration:  duration,
		MimeType:  mimeType,
		User:      name,
		From:      c.ID,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.store.PushRoomMessage(ctx, roomID, msg); err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("persist voice message failed")
		return
	}
	h.broadcastRoom(roomID, &Event{Kind: EventChatMessage, Room: roomID, Message: &msg})
}

func (h *Hub) handleReact(ctx context.Context, c *Client, messageID, emoji string) {
	roomID := c.Room()
	name, _ := c.User()
	if roomID == "" || name == "" || messageID == "" || emoji == "" {
		return
	}

	authors, err := h.store.ToggleReaction(ctx, roomID, messageID, emoji, name)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("toggle reaction failed")
		return
	}
	h.broadcastRoom(roomID, &Event{
		Kind: EventChatReaction,
		Room: roomID,
		Reaction: &ReactionUpdate{
			MessageID: messageID,
			Emoji:     emoji,
			User:      name,
			Users:     authors,
		},
	})
}

func (h *Hub) handleTyping(c *Client, isTyping bool) {
	roomID := c.Room()
	if roomID == "" {
		return
	}
	name, _ := c.User()

	h.broadcastRoomExcept(roomID, c, &Event{
		Kind:   EventTypingStatus,
		Room:   roomID,
		Typing: &TypingStatus{ConnID: c.ID, User: name, IsTyping: isTyping},
	})

	h.cancelTyping(c.ID)
	if !isTyping {
		return
	}

	// Auto-expire: unless refreshed, rebroadcast isTyping=false.
	var timer *time.Timer
	timer = time.AfterFunc(typingExpiry, func() {
		h.mu.Lock()
		if h.typing[c.ID] != timer {
			// Refreshed or cancelled in the meantime.
			h.mu.Unlock()
			return
		}
		delete(h.typing, c.ID)
		h.mu.Unlock()

		if c.Room() == roomID {
			h.broadcastRoomExcept(roomID, c, &Event{
				Kind:   EventTypingStatus,
				Room:   roomID,
				Typing: &TypingStatus{ConnID: c.ID, User: name, IsTyping: false},
			})
		}
	})
	h.mu.Lock()
	h.typing[c.ID] = timer
	h.mu.Unlock()
}

func (h *Hub) cancelTyping(connID string) {
	h.mu.Lock()
	if timer := h.typing[connID]; timer != nil {
		timer.Stop()
		delete(h.typing, connID)
	}
	h.mu.Unlock()
}

func (h *Hub) handleSpeaking(ctx context.Context, c *Client, isSpeaking bool) {
	roomID := c.Room()
	if roomID == "" {
		return
	}
	if err := h.store.SetSpeaking(ctx, roomID, c.ID, isSpeaking); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("set speaking failed")
		return
	}
	speaking, err := h.store.Speaking(ctx, roomID)
	if err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("list speaking failed")
		return
	}
	h.broadcastRoom(roomID, &Event{Kind: EventSpeakingList, Room: roomID, Speaking: speaking})
}

func (h *Hub) handleDMHistory(ctx context.Context, c *Client, to string) {
	_, identity := c.User()
	if identity == "" || strings.TrimSpace(to) == "" {
		return
	}
	dmID := DMID(identity, to)

	history, err := h.store.DirectHistory(ctx, dmID)
	if err != nil {
		h.log.Warn().Err(err).Str("dm", dmID).Msg("dm history failed")
		return
	}
	c.send(&Event{Kind: EventDMHistory, DMID: dmID, Messages: history})
}

func (h *Hub) handleSendDM(ctx context.Context, c *Client, to, text string) {
	name, identity := c.User()
	toDisplay := strings.TrimSpace(to)
	clean := strings.TrimSpace(text)
	if identity == "" || toDisplay == "" || clean == "" {
		return
	}
	dmID := DMID(identity, toDisplay)

	msg := store.Message{
		ID:        utils.NewMessageID(),
		DMID:      dmID,
		Kind:      store.KindText,
		Text:      clean,
		User:      name,
		To:        toDisplay,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.store.PushDirectMessage(ctx, dmID, msg); err != nil {
		h.log.Error().Err(err).Str("dm", dmID).Msg("persist dm failed")
		return
	}
	h.deliverDM(ctx, c, toDisplay, &Event{Kind: EventDMMessage, DMID: dmID, Message: &msg})
}

func (h *Hub) handleSendDMVoice(ctx context.Context, c *Client, to, audio string, duration int, mimeType string) {
	name, identity := c.User()
	toDisplay := strings.TrimSpace(to)
	if identity == "" || toDisplay == "" || audio == "" {
		return
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}
	dmID := DMID(identity, toDisplay)

	msg := store.Message{
		ID:        utils.NewMessageID(),
		DMID:      dmID,
		Kind:      store.KindVoice,
		Audio:     audio,
		Duration:  duration,
		MimeType:  mimeType,
		User:      name,
		To:        toDisplay,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.store.PushDirectMessage(ctx, dmID, msg); err != nil {
		h.log.Error().Err(err).Str("dm", dmID).Msg("persist dm voice failed")
		return
	}
	h.deliverDM(ctx, c, toDisplay, &Event{Kind: EventDMMessage, DMID: dmID, Message: &msg})
}

func (h *Hub) handleDMReact(ctx context.Context, c *Client, to, messageID, emoji string) {
	name, identity := c.User()
	toDisplay := strings.TrimSpace(to)
	if identity == "" || toDisplay == "" || messageID == "" || emoji == "" {
		return
	}
	dmID := DMID(identity, toDisplay)

	authors, err := h.store.ToggleReaction(ctx, dmID, messageID, emoji, name)
	if err != nil {
		h.log.Error().Err(err).Str("dm", dmID).Msg("toggle dm reaction failed")
		return
	}
	h.deliverDM(ctx, c, toDisplay, &Event{
		Kind: EventDMReaction,
		DMID: dmID,
		Reaction: &ReactionUpdate{
			MessageID: messageID,
			Emoji:     emoji,
			User:      name,
			Users:     authors,
		},
	})
}

// deliverDM sends to the sender's own connection and, when online, the
// recipient's.
func (h *Hub) deliverDM(ctx context.Context, sender *Client, to string, ev *Event) {
	sender.send(ev)

	connID, err := h.store.Resolve(ctx, NormalizeIdentity(to))
	if err != nil || connID == "" || connID == sender.ID {
		return
	}
	h.sendToConn(connID, ev)
}

// handleSignal forwards an opaque negotiation payload. Absent targets are
// silent no-ops.
func (h *Hub) handleSignal(ctx context.Context, c *Client, kind, to string, payload []byte) {
	name, identity := c.User()
	toIdentity := NormalizeIdentity(to)
	if identity == "" || toIdentity == "" {
		return
	}

	connID, err := h.store.Resolve(ctx, toIdentity)
	if err != nil || connID == "" {
		return
	}
	h.sendToConn(connID, &Event{
		Kind:   EventSignal,
		Signal: &SignalEvent{Kind: kind, From: name, Payload: payload},
	})

	// A forwarded answer completes the negotiation round-trip.
	if kind == SignalAnswer {
		h.calls.NotifyAnswer(identity, toIdentity)
	}
}

// Signal kinds relayed verbatim.
const (
	SignalOffer  = "webrtc:offer"
	SignalAnswer = "webrtc:answer"
	SignalICE    = "webrtc:ice"
)

// systemMessage persists and broadcasts a system notice to a room.
func (h *Hub) systemMessage(ctx context.Context, roomID, text string) {
	msg := store.Message{
		ID:        utils.NewMessageID(),
		RoomID:    roomID,
		Kind:      store.KindSystem,
		Text:      text,
		User:      "system",
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := h.store.PushRoomMessage(ctx, roomID, msg); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("persist system message failed")
		return
	}
	h.broadcastRoom(roomID, &Event{Kind: EventChatMessage, Room: roomID, Message: &msg})
}

// announceRooms updates the catalog count and broadcasts summaries to all
// connected clients.
func (h *Hub) announceRooms(ctx context.Context, roomID string, count int) {
	if err := h.store.SetRoomUsers(ctx, roomID, count); err != nil {
		h.log.Warn().Err(err).Str("room", roomID).Msg("update room count failed")
	}
	rooms, err := h.store.Rooms(ctx)
	if err != nil {
		h.log.Warn().Err(err).Msg("read room catalog failed")
		return
	}
	if active, err := h.store.ActiveRooms(ctx, 100); err != nil {
		h.log.Warn().Err(err).Msg("read active rooms failed")
	} else {
		rooms = store.OrderByActivity(rooms, active)
	}
	h.broadcastAll(&Event{Kind: EventRoomsList, Rooms: rooms})
}

func (h *Hub) sendToConn(connID string, ev *Event) bool {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return false
	}
	return c.send(ev)
}

func (h *Hub) broadcastRoom(roomID string, ev *Event) {
	h.broadcastRoomExcept(roomID, nil, ev)
}

func (h *Hub) broadcastRoomExcept(roomID string, except *Client, ev *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		if c == except {
			continue
		}
		c.send(ev)
	}
}

func (h *Hub) broadcastAll(ev *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.send(ev)
	}
}
