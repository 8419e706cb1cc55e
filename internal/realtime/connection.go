package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("connection buffer exceeded")
)

// Subscriber 广播组中的一个订阅者
type Subscriber interface {
	ID() string
	UserID() string
	Send(payload []byte) error
	Close(code int, reason string)
}

// ConnectionOptions 写循环参数
type ConnectionOptions struct {
	WriteWait  time.Duration
	PingPeriod time.Duration
	SendBuffer int
}

func (o ConnectionOptions) withDefaults() ConnectionOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 30 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 128
	}
	return o
}

// Connection 包装 websocket, 所有写操作经由缓冲通道串行到写循环
type Connection struct {
	id     string
	userID string
	opts   ConnectionOptions

	ws    *websocket.Conn
	send  chan []byte
	once  sync.Once
	close chan struct{}
	done  chan struct{}

	// 关闭帧由写循环发出, 在 close 关闭前写入
	closeCode   int
	closeReason string
}

func NewConnection(userID string, ws *websocket.Conn, opts ConnectionOptions) *Connection {
	opts = opts.withDefaults()
	return &Connection{
		id:     uuid.NewString(),
		userID: userID,
		opts:   opts,
		ws:     ws,
		send:   make(chan []byte, opts.SendBuffer),
		close:  make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (c *Connection) ID() string     { return c.id }
func (c *Connection) UserID() string { return c.userID }

// Start 启动写循环, 每个连接只能调用一次
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send 入队待发送的帧, 缓冲区满说明客户端过慢, 直接断开
func (c *Connection) Send(payload []byte) error {
	select {
	case <-c.close:
		return ErrConnectionClosed
	default:
	}
	select {
	case <-c.close:
		return ErrConnectionClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.ClosePolicyViolation, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close 标记关闭并通知写循环发送关闭帧, 不阻塞调用方, 可重复调用
// send 通道不关闭, 并发的 Send 依靠 close 信号退出
func (c *Connection) Close(code int, reason string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.close)
	})
}

// Done 写循环退出后关闭
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(c.closeCode, c.closeReason), time.Now().Add(c.opts.WriteWait))
		_ = c.ws.Close()
		close(c.done)
	}()

	for {
		select {
		case <-c.close:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Connection) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
