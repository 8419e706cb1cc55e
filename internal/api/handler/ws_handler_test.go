package handler

import (
	"Courier/internal/api/dto"
	"Courier/internal/pkg/database"
	"Courier/internal/pkg/security"
	"Courier/internal/realtime"
	"Courier/internal/repository"
	"Courier/internal/service"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testSecret = "gateway-test-secret"

type gatewayFixture struct {
	server   *httptest.Server
	tokens   *security.TokenManager
	im       service.IMService
	hub      *realtime.Hub
	convRepo repository.ConversationRepo
}

// fixtureOptions auth 为空时使用真实的 JWT 校验
type fixtureOptions struct {
	gateway GatewayOptions
	auth    security.Authenticator
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	return newGatewayFixtureWith(t, fixtureOptions{})
}

func newGatewayFixtureWith(t *testing.T, opts fixtureOptions) *gatewayFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err = database.AutoMigrate(db); err != nil {
		t.Fatal(err)
	}

	hub := realtime.NewHub()
	broadcaster := realtime.NewLocalBroadcaster(hub)
	convRepo := repository.NewConversationRepo(db)
	messageRepo := repository.NewMessageRepo(db)
	notifRepo := repository.NewNotificationRepo(db)
	catalogRepo := repository.NewCatalogRepo(db)
	prefRepo := repository.NewPreferenceRepo(db)

	resolver := service.NewChannelResolver(prefRepo, catalogRepo, nil, 0, 0)
	notif := service.NewNotificationService(notifRepo, repository.NewDeliveryRepo(db), catalogRepo, nil, resolver, nil, service.NotificationOptions{})
	im := service.NewIMService(convRepo, messageRepo, nil, broadcaster, nil, nil, hub, service.IMOptions{})
	read := service.NewReadService(convRepo, messageRepo, repository.NewReadRepo(db), broadcaster)
	presence := service.NewPresenceService(broadcaster, hub)

	tokens := security.NewTokenManager(testSecret, "courier-test")
	auth := opts.auth
	if auth == nil {
		auth = security.NewTokenAuthenticator(tokens, nil)
	}
	if opts.gateway.AuthTimeout == 0 {
		opts.gateway.AuthTimeout = time.Second
	}
	h := NewWsHandler(auth, hub, im, read, presence, notif, opts.gateway)

	r := gin.New()
	r.GET("/ws", h.Connect)
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		hub.Close()
		srv.Close()
		im.Close()
		_ = sqlDB.Close()
	})
	return &gatewayFixture{server: srv, tokens: tokens, im: im, hub: hub, convRepo: convRepo}
}

func (f *gatewayFixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func (f *gatewayFixture) connect(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	token, err := f.tokens.GenerateToken(userID, nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	ws := f.dial(t, "?token="+token)
	frame := readFrame(t, ws, dto.FrameConnectionEstablished)
	if frame["user_id"] != userID {
		t.Fatalf("connection_established for %v, want %s", frame["user_id"], userID)
	}
	if frame["event_id"] == "" {
		t.Fatal("frames must carry an event_id")
	}
	return ws
}

// readFrame 读取直到出现指定类型的帧
func readFrame(t *testing.T, ws *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", frameType, err)
		}
		var frame map[string]any
		if err = json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame["type"] == frameType {
			return frame
		}
	}
}

func writeFrame(t *testing.T, ws *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := ws.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func expectClose(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := ws.ReadMessage()
	if !websocket.IsCloseError(err, code) {
		t.Fatalf("err = %v, want close code %d", err, code)
	}
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	f := newGatewayFixture(t)
	expectClose(t, f.dial(t, ""), CloseMissingCredential)
}

func TestGatewayRejectsInvalidToken(t *testing.T) {
	f := newGatewayFixture(t)
	expectClose(t, f.dial(t, "?token=not-a-jwt"), CloseInvalidCredential)

	forged, err := security.NewTokenManager("other-secret", "courier-test").GenerateToken("alice", nil, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	expectClose(t, f.dial(t, "?token="+forged), CloseInvalidCredential)
}

type unavailableAuthenticator struct{}

func (unavailableAuthenticator) AuthenticateConnection(context.Context, string) (string, error) {
	return "", errors.New("redis: connection refused")
}

func TestGatewayAuthBackendFailureIsNotCredentialError(t *testing.T) {
	f := newGatewayFixtureWith(t, fixtureOptions{auth: unavailableAuthenticator{}})
	expectClose(t, f.dial(t, "?token=anything"), websocket.CloseTryAgainLater)
}

func TestGatewayClosesIdleConnectionDespitePongs(t *testing.T) {
	f := newGatewayFixtureWith(t, fixtureOptions{gateway: GatewayOptions{
		IdleTimeout: 300 * time.Millisecond,
		Connection:  realtime.ConnectionOptions{PingPeriod: 50 * time.Millisecond},
	}})
	alice := f.connect(t, "alice")

	// 客户端读取时自动回复 ping, 但没有发送任何业务帧
	pings := 0
	alice.SetPingHandler(func(data string) error {
		pings++
		return alice.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	start := time.Now()
	expectClose(t, alice, websocket.CloseNormalClosure)
	if pings == 0 {
		t.Fatal("server should have pinged the idle connection")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("idle connection closed after %v", elapsed)
	}
}

func TestGatewayValidFramesKeepConnectionAlive(t *testing.T) {
	f := newGatewayFixtureWith(t, fixtureOptions{gateway: GatewayOptions{IdleTimeout: 300 * time.Millisecond}})
	alice := f.connect(t, "alice")

	for i := 0; i < 4; i++ {
		time.Sleep(150 * time.Millisecond)
		writeFrame(t, alice, map[string]any{"type": dto.FrameMarkAllNotificationsRead})
		readFrame(t, alice, dto.FrameSuccess)
	}
}

func TestGatewayDisconnectPersistsLastSeen(t *testing.T) {
	f := newGatewayFixture(t)
	ctx := context.Background()
	conv, err := f.im.StartConversation(ctx, "alice", &dto.StartConversationReq{ParticipantIDs: []string{"bob"}})
	if err != nil {
		t.Fatal(err)
	}

	alice := f.connect(t, "alice")
	mark := time.Now().UTC()
	_ = alice.Close()

	deadline := time.Now().Add(3 * time.Second)
	for {
		m, err := f.convRepo.GetMember(ctx, conv.ID, "alice")
		if err != nil {
			t.Fatal(err)
		}
		if m.LastSeenAt != nil && !m.LastSeenAt.Before(mark) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("last_seen_at = %v, want >= %v", m.LastSeenAt, mark)
		}
		time.Sleep(10 * time.Millisecond)
	}
	if f.hub.IsOnline("alice") {
		t.Fatal("alice should be unregistered after disconnect")
	}
}

func TestGatewayDeliversMessagesToParticipants(t *testing.T) {
	f := newGatewayFixture(t)
	conv, err := f.im.StartConversation(context.Background(), "alice", &dto.StartConversationReq{ParticipantIDs: []string{"bob"}})
	if err != nil {
		t.Fatal(err)
	}

	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")

	writeFrame(t, alice, map[string]any{
		"type":            dto.FrameSendMessage,
		"conversation_id": conv.ID,
		"content":         "hello bob",
	})

	got := readFrame(t, bob, dto.FrameMessage)
	msg, _ := got["message"].(map[string]any)
	if msg["content"] != "hello bob" || msg["sender_id"] != "alice" {
		t.Fatalf("bob received %v", got)
	}
	// 发送者自己的连接同样收到广播
	readFrame(t, alice, dto.FrameMessage)

	writeFrame(t, bob, map[string]any{"type": dto.FrameTypingStart, "conversation_id": conv.ID})
	typing := readFrame(t, alice, dto.FrameTyping)
	if typing["user_id"] != "bob" || typing["is_typing"] != true {
		t.Fatalf("typing frame = %v", typing)
	}
}

func TestGatewayReportsFrameErrors(t *testing.T) {
	f := newGatewayFixture(t)
	alice := f.connect(t, "alice")

	writeFrame(t, alice, map[string]any{"type": "teleport"})
	frame := readFrame(t, alice, dto.FrameError)
	if frame["code"] != service.ReasonInvalidFrame {
		t.Fatalf("unknown frame code = %v", frame["code"])
	}

	if err := alice.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	frame = readFrame(t, alice, dto.FrameError)
	if frame["code"] != service.ReasonInvalidFrame {
		t.Fatalf("malformed frame code = %v", frame["code"])
	}

	writeFrame(t, alice, map[string]any{"type": dto.FrameJoinConversation, "conversation_id": "missing"})
	frame = readFrame(t, alice, dto.FrameError)
	if frame["code"] != service.ReasonNotFound {
		t.Fatalf("join missing conversation code = %v", frame["code"])
	}

	// 错误之后连接仍然可用
	writeFrame(t, alice, map[string]any{"type": dto.FrameMarkAllNotificationsRead})
	ack := readFrame(t, alice, dto.FrameSuccess)
	if ack["action"] != dto.FrameMarkAllNotificationsRead {
		t.Fatalf("ack = %v", ack)
	}
}
