package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/huddlechat/huddle-server/internal/callengine/p2p"
	"github.com/huddlechat/huddle-server/internal/config"
	"github.com/huddlechat/huddle-server/internal/core"
	"github.com/huddlechat/huddle-server/internal/proto"
	redisstore "github.com/huddlechat/huddle-server/internal/store/redis"
	"github.com/huddlechat/huddle-server/internal/store/sqlite"
)

func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := zerolog.Nop()
	st := redisstore.NewWithClient(rdb, &logger)

	callLog, err := sqlite.New(filepath.Join(t.TempDir(), "calls.db"))
	if err != nil {
		t.Fatalf("open call log: %v", err)
	}
	t.Cleanup(func() { _ = callLog.Close() })

	hub := core.NewHub(st, callLog, p2p.New(), core.CallConfig{}, &logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	server := NewServer(hub, st, callLog, config.Config{
		Addr:              ":0",
		ClientOrigin:      "*",
		ReadLimit:         1 << 20,
		ReadHeaderTimeout: time.Second,
		ShutdownTimeout:   time.Second,
	}, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHealthEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
}

func TestRoomsEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("rooms request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Rooms []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			Icon string `json:"icon"`
		} `json:"rooms"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(payload.Rooms) != 3 || payload.Rooms[0].ID != "general" {
		t.Fatalf("unexpected default catalog: %s", body)
	}
}

func TestCallsEndpoint(t *testing.T) {
	ts := startTestServer(t)

	resp, err := ts.Client().Get(ts.URL + "/api/calls")
	if err != nil {
		t.Fatalf("calls request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 without user, got %d", resp.StatusCode)
	}

	resp, err = ts.Client().Get(ts.URL + "/api/calls?user=Alice")
	if err != nil {
		t.Fatalf("calls request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Calls []json.RawMessage `json:"calls"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode calls: %v", err)
	}
	if len(payload.Calls) != 0 {
		t.Fatalf("expected empty call history, got %s", body)
	}
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.SetReadLimit(1 << 20)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s: %v", event, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); err != nil {
		t.Fatalf("write %s: %v", event, err)
	}
}

// readUntil reads outbound frames until match returns true or the context
// deadline expires.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(event string, data json.RawMessage) bool) {
	t.Helper()

	for {
		var outbound struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &outbound); err != nil {
			t.Fatalf("read outbound: %v", err)
		}
		if match(outbound.Event, outbound.Data) {
			return
		}
	}
}

func TestWebSocketChatFlow(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts)
	connB := dialWS(t, ctx, ts)

	sendEvent(t, ctx, connA, proto.EventUserOnline, proto.UserOnlineData{Name: "Alice"})
	sendEvent(t, ctx, connB, proto.EventUserOnline, proto.UserOnlineData{Name: "Bob"})
	sendEvent(t, ctx, connA, proto.EventRoomJoin, proto.RoomJoinData{RoomID: "general", User: proto.RoomJoinUser{Name: "Alice"}})
	sendEvent(t, ctx, connB, proto.EventRoomJoin, proto.RoomJoinData{RoomID: "general", User: proto.RoomJoinUser{Name: "Bob"}})

	// Wait until B sees both members before A talks.
	readUntil(t, ctx, connB, func(event string, data json.RawMessage) bool {
		if event != proto.EventRoomUsers {
			return false
		}
		var members []json.RawMessage
		return json.Unmarshal(data, &members) == nil && len(members) == 2
	})

	sendEvent(t, ctx, connA, proto.EventChatSend, proto.ChatSendData{Text: "hi there"})

	readUntil(t, ctx, connB, func(event string, data json.RawMessage) bool {
		if event != proto.EventChatMessage {
			return false
		}
		var msg struct {
			Kind string `json:"type"`
			Text string `json:"text"`
			User string `json:"user"`
		}
		if json.Unmarshal(data, &msg) != nil {
			return false
		}
		return msg.Kind == "text" && msg.Text == "hi there" && msg.User == "Alice"
	})
}

func TestWebSocketLargeVoiceMessage(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	connA := dialWS(t, ctx, ts)
	connB := dialWS(t, ctx, ts)

	sendEvent(t, ctx, connA, proto.EventUserOnline, proto.UserOnlineData{Name: "Alice"})
	sendEvent(t, ctx, connB, proto.EventUserOnline, proto.UserOnlineData{Name: "Bob"})
	sendEvent(t, ctx, connA, proto.EventRoomJoin, proto.RoomJoinData{RoomID: "general", User: proto.RoomJoinUser{Name: "Alice"}})
	sendEvent(t, ctx, connB, proto.EventRoomJoin, proto.RoomJoinData{RoomID: "general", User: proto.RoomJoinUser{Name: "Bob"}})

	readUntil(t, ctx, connB, func(event string, data json.RawMessage) bool {
		if event != proto.EventRoomUsers {
			return false
		}
		var members []json.RawMessage
		return json.Unmarshal(data, &members) == nil && len(members) == 2
	})

	// A realistic base64 audio blob, far past the ws library's default
	// frame limit.
	audio := strings.Repeat("QUJD", 32*1024) // 128 KiB
	sendEvent(t, ctx, connA, proto.EventChatSendVoice, proto.VoiceData{
		Audio:    audio,
		Duration: 7,
		MimeType: "audio/webm",
	})

	readUntil(t, ctx, connB, func(event string, data json.RawMessage) bool {
		if event != proto.EventChatMessage {
			return false
		}
		var msg struct {
			Kind     string `json:"type"`
			Audio    string `json:"audio"`
			Duration int    `json:"duration"`
		}
		if json.Unmarshal(data, &msg) != nil {
			return false
		}
		return msg.Kind == "voice" && msg.Duration == 7 && msg.Audio == audio
	})
}

func TestRoomsEndpointOrdersByActivity(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)
	sendEvent(t, ctx, conn, proto.EventUserOnline, proto.UserOnlineData{Name: "Alice"})
	sendEvent(t, ctx, conn, proto.EventRoomJoin, proto.RoomJoinData{RoomID: "music", User: proto.RoomJoinUser{Name: "Alice"}})

	readUntil(t, ctx, conn, func(event string, data json.RawMessage) bool {
		return event == proto.EventRoomUsers
	})

	resp, err := ts.Client().Get(ts.URL + "/api/rooms")
	if err != nil {
		t.Fatalf("rooms request failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Rooms []struct {
			ID string `json:"id"`
		} `json:"rooms"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(payload.Rooms) != 3 || payload.Rooms[0].ID != "music" {
		t.Fatalf("expected music first after activity, got %s", body)
	}
}

func TestWebSocketIgnoresUnknownEvents(t *testing.T) {
	ts := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)

	sendEvent(t, ctx, conn, "bogus:event", map[string]string{"x": "y"})

	// The connection survives and handles valid traffic afterwards.
	sendEvent(t, ctx, conn, proto.EventUserOnline, proto.UserOnlineData{Name: "Alice"})
	sendEvent(t, ctx, conn, proto.EventRoomJoin, proto.RoomJoinData{RoomID: "general", User: proto.RoomJoinUser{Name: "Alice"}})

	readUntil(t, ctx, conn, func(event string, data json.RawMessage) bool {
		return event == proto.EventRoomUsers
	})
}
