package handler

import (
	"Courier/internal/api/dto"
	"Courier/internal/pkg/logger"
	"Courier/internal/pkg/security"
	"Courier/internal/pkg/util"
	"Courier/internal/realtime"
	"Courier/internal/service"
	"context"
	"errors"
	log "log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 鉴权失败的关闭码, 客户端据此区分 "补充凭据重试" 与 "重新登录"
const (
	CloseMissingCredential = 4001
	CloseInvalidCredential = 4002
)

// GatewayOptions 长连接参数
type GatewayOptions struct {
	AuthTimeout    time.Duration
	IdleTimeout    time.Duration
	MaxMessageSize int64
	Connection     realtime.ConnectionOptions
}

func (o GatewayOptions) withDefaults() GatewayOptions {
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 5 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 90 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 << 10
	}
	return o
}

type WsHandler struct {
	auth         security.Authenticator
	hub          *realtime.Hub
	imService    service.IMService
	readService  service.ReadService
	presence     service.PresenceService
	notifService service.NotificationService
	upgrader     websocket.Upgrader
	opts         GatewayOptions
}

func NewWsHandler(
	auth security.Authenticator,
	hub *realtime.Hub,
	im service.IMService,
	read service.ReadService,
	presence service.PresenceService,
	notif service.NotificationService,
	opts GatewayOptions,
) *WsHandler {
	return &WsHandler{
		auth:         auth,
		hub:          hub,
		imService:    im,
		readService:  read,
		presence:     presence,
		notifService: notif,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		opts: opts.withDefaults(),
	}
}

// Connect 先完成协议升级, 再用关闭码反馈鉴权结果
func (s *WsHandler) Connect(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WarnContext(c.Request.Context(), "websocket upgrade failed", "err", err)
		return
	}

	ctx := logger.WithTraceID(context.Background(), uuid.NewString())

	token := c.Query("token")
	if token == "" {
		rejectHandshake(ws, CloseMissingCredential, "missing credential")
		return
	}
	authCtx, cancel := context.WithTimeout(ctx, s.opts.AuthTimeout)
	userID, err := s.auth.AuthenticateConnection(authCtx, token)
	cancel()
	if err != nil {
		switch {
		case security.IsCredentialError(err):
			rejectHandshake(ws, CloseInvalidCredential, "invalid credential")
		case errors.Is(err, context.DeadlineExceeded):
			log.WarnContext(ctx, "websocket auth timed out", "err", err)
			rejectHandshake(ws, websocket.CloseTryAgainLater, "authentication timed out")
		default:
			// 鉴权依赖 (如黑名单缓存) 故障, 凭据本身未必无效
			log.ErrorContext(ctx, "websocket auth unavailable", "err", err)
			rejectHandshake(ws, websocket.CloseTryAgainLater, "authentication unavailable")
		}
		return
	}

	conn := realtime.NewConnection(userID, ws, s.opts.Connection)
	conn.Start()
	s.hub.Register(conn)
	defer s.disconnect(ctx, conn)

	ids, err := s.imService.ActiveConversationIDs(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "load active conversations failed", "user_id", userID, "err", err)
		conn.Close(websocket.CloseInternalServerErr, "membership lookup failed")
		return
	}
	for _, id := range ids {
		s.hub.Join(realtime.ConversationGroup(id), conn)
	}

	log.InfoContext(ctx, "websocket connected", "user_id", userID, "conn_id", conn.ID(), "conversations", len(ids))
	s.reply(ctx, conn, &dto.ConnectionEstablishedFrame{
		FrameHeader: realtime.NewHeader(dto.FrameConnectionEstablished),
		UserID:      userID,
	})

	s.readLoop(ctx, ws, conn)
}

func (s *WsHandler) readLoop(ctx context.Context, ws *websocket.Conn, conn *realtime.Connection) {
	// 读超时 = 最后一个合法帧 + IdleTimeout; pong 与非法帧不续期,
	// 对端失联时同一个超时也会触发
	ws.SetReadLimit(s.opts.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.InfoContext(ctx, "websocket idle timeout", "conn_id", conn.ID(), "user_id", conn.UserID())
				conn.Close(websocket.CloseNormalClosure, "idle timeout")
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.InfoContext(ctx, "websocket read ended", "conn_id", conn.ID(), "err", err)
			}
			return
		}

		var frame dto.InboundFrame
		if err = json.Unmarshal(data, &frame); err != nil {
			s.replyError(ctx, conn, service.ErrFrameInvalid)
			continue
		}
		if err = util.ValidateDTO(&frame); err != nil {
			s.replyError(ctx, conn, service.ErrFrameInvalid)
			continue
		}

		// 只有合法帧才算活跃
		_ = ws.SetReadDeadline(time.Now().Add(s.opts.IdleTimeout))
		if err = s.dispatch(ctx, conn, &frame); err != nil {
			s.replyError(ctx, conn, err)
		}
	}
}

func (s *WsHandler) dispatch(ctx context.Context, conn *realtime.Connection, f *dto.InboundFrame) error {
	userID := conn.UserID()
	switch f.Type {
	case dto.FrameSendMessage:
		if f.ConversationID == "" {
			return service.ErrFrameInvalid
		}
		_, err := s.imService.SendMessage(ctx, userID, &dto.SendMessageReq{
			ConversationID: f.ConversationID,
			Content:        f.Content,
			MessageType:    f.MessageType,
			ReplyTo:        f.ReplyTo,
			FileURL:        f.FileURL,
			FileName:       f.FileName,
			FileSize:       f.FileSize,
		})
		return err

	case dto.FrameEditMessage:
		if f.MessageID == "" {
			return service.ErrFrameInvalid
		}
		_, err := s.imService.EditMessage(ctx, userID, f.MessageID, &dto.EditMessageReq{Content: f.Content})
		return err

	case dto.FrameDeleteMessage:
		if f.MessageID == "" {
			return service.ErrFrameInvalid
		}
		return s.imService.DeleteMessage(ctx, userID, f.MessageID)

	case dto.FrameJoinConversation:
		if f.ConversationID == "" {
			return service.ErrFrameInvalid
		}
		if err := s.imService.CheckMember(ctx, f.ConversationID, userID); err != nil {
			return err
		}
		s.hub.Join(realtime.ConversationGroup(f.ConversationID), conn)
		s.ack(ctx, conn, f.Type, f.ConversationID, "")
		return nil

	case dto.FrameLeaveConversation:
		if f.ConversationID == "" {
			return service.ErrFrameInvalid
		}
		s.hub.Leave(realtime.ConversationGroup(f.ConversationID), conn)
		s.ack(ctx, conn, f.Type, f.ConversationID, "")
		return nil

	case dto.FrameMarkRead:
		if f.ConversationID == "" {
			return service.ErrFrameInvalid
		}
		if _, err := s.readService.MarkConversationRead(ctx, userID, f.ConversationID); err != nil {
			return err
		}
		s.ack(ctx, conn, f.Type, f.ConversationID, "")
		return nil

	case dto.FrameMarkMessageRead:
		if f.MessageID == "" {
			return service.ErrFrameInvalid
		}
		res, err := s.readService.MarkMessageRead(ctx, userID, f.MessageID)
		if err != nil {
			return err
		}
		s.ack(ctx, conn, f.Type, res.ConversationID, "")
		return nil

	case dto.FrameTypingStart, dto.FrameTypingStop:
		if f.ConversationID == "" {
			return service.ErrFrameInvalid
		}
		if !s.hub.InGroup(realtime.ConversationGroup(f.ConversationID), conn) {
			return service.ErrNotJoined
		}
		return s.presence.Typing(ctx, userID, f.ConversationID, f.Type == dto.FrameTypingStart)

	case dto.FrameMarkNotificationRead:
		if f.NotificationID == "" {
			return service.ErrFrameInvalid
		}
		if err := s.notifService.MarkRead(ctx, userID, f.NotificationID); err != nil {
			return err
		}
		s.ack(ctx, conn, f.Type, "", f.NotificationID)
		return nil

	case dto.FrameMarkAllNotificationsRead:
		if _, err := s.notifService.MarkAllRead(ctx, userID); err != nil {
			return err
		}
		s.ack(ctx, conn, f.Type, "", "")
		return nil

	default:
		return service.ErrFrameTypeUnknown
	}
}

func (s *WsHandler) disconnect(ctx context.Context, conn *realtime.Connection) {
	conn.Close(websocket.CloseNormalClosure, "")
	remaining := s.hub.Unregister(conn)

	touchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.imService.TouchLastSeen(touchCtx, conn.UserID()); err != nil {
		log.WarnContext(ctx, "persist last_seen_at failed", "user_id", conn.UserID(), "err", err)
	}
	log.InfoContext(ctx, "websocket disconnected", "user_id", conn.UserID(), "conn_id", conn.ID(), "remaining", remaining)
}

func (s *WsHandler) ack(ctx context.Context, conn *realtime.Connection, action, convID, notificationID string) {
	s.reply(ctx, conn, &dto.SuccessFrame{
		FrameHeader:    realtime.NewHeader(dto.FrameSuccess),
		Action:         action,
		ConversationID: convID,
		NotificationID: notificationID,
	})
}

// replyError 仅回复发起操作的连接
func (s *WsHandler) replyError(ctx context.Context, conn *realtime.Connection, err error) {
	_, reason := service.Classify(err)
	msg := err.Error()
	if !service.IsKnown(err) {
		log.ErrorContext(ctx, "websocket frame failed", "conn_id", conn.ID(), "err", err)
		msg = service.UnExpectedError.Error()
	}
	s.reply(ctx, conn, &dto.ErrorFrame{
		FrameHeader: realtime.NewHeader(dto.FrameError),
		Code:        reason,
		Message:     msg,
	})
}

func (s *WsHandler) reply(ctx context.Context, conn *realtime.Connection, frame any) {
	payload, err := realtime.Encode(frame)
	if err != nil {
		log.ErrorContext(ctx, "encode frame failed", "err", err)
		return
	}
	if err = conn.Send(payload); err != nil {
		log.WarnContext(ctx, "reply to connection failed", "conn_id", conn.ID(), "err", err)
	}
}

func rejectHandshake(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = ws.Close()
}
