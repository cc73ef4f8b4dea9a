package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/huddlechat/huddle-server/internal/proto"
	"github.com/huddlechat/huddle-server/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	user := flag.String("user", "cli-user", "username")
	room := flag.String("room", "general", "room to join")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, *addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// History replays may carry voice messages.
	conn.SetReadLimit(1 << 20)

	send := func(event string, data any) {
		payload, err := json.Marshal(data)
		if err != nil {
			log.Printf("marshal %s: %v", event, err)
			return
		}
		if writeErr := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); writeErr != nil {
			cancel()
			log.Printf("send: %v", writeErr)
		}
	}

	send(proto.EventUserOnline, proto.UserOnlineData{Name: *user})
	send(proto.EventRoomJoin, proto.RoomJoinData{RoomID: *room, User: proto.RoomJoinUser{Name: *user}})

	fmt.Printf("Connected to %s as %s in room %s\n", *addr, *user, *room)
	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, send)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var outbound proto.Outbound
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch outbound.Event {
		case proto.EventChatMessage:
			var msg store.Message
			if err := reparse(outbound.Data, &msg); err != nil {
				log.Printf("decode chat message: %v", err)
				continue
			}
			fmt.Printf("[%s] %s: %s\n", msg.RoomID, msg.User, msg.Text)
		case proto.EventChatHistory:
			var history []store.Message
			if err := reparse(outbound.Data, &history); err != nil {
				log.Printf("decode chat history: %v", err)
				continue
			}
			for _, msg := range history {
				fmt.Printf("  history %s: %s\n", msg.User, msg.Text)
			}
		case proto.EventRoomUsers:
			var users []store.UserRef
			if err := reparse(outbound.Data, &users); err != nil {
				log.Printf("decode room users: %v", err)
				continue
			}
			names := make([]string, 0, len(users))
			for _, u := range users {
				names = append(names, u.Name)
			}
			fmt.Printf("room users: %s\n", strings.Join(names, ", "))
		case proto.EventChatTypingStatus:
			var notice proto.TypingNotice
			if err := reparse(outbound.Data, &notice); err != nil {
				continue
			}
			if notice.IsTyping {
				fmt.Printf("%s is typing...\n", notice.User)
			}
		case proto.EventCallIncoming:
			var notice proto.CallNotice
			if err := reparse(outbound.Data, &notice); err != nil {
				continue
			}
			fmt.Printf("incoming call from %s\n", notice.From)
		default:
			fmt.Printf("event=%s data=%v\n", outbound.Event, outbound.Data)
		}
	}
}

// reparse round-trips a decoded `any` value into a typed struct.
func reparse(data any, dst any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func writeLoop(ctx context.Context, send func(event string, data any)) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			send(proto.EventChatSend, proto.ChatSendData{Text: text})
		}
	}
}
