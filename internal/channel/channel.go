// Package channel provides the duplex message channel every interactive
// session runs on: one websocket connection with an explicit
// idle → connecting → open → closed lifecycle, fire-and-forget sends, and
// callback delivery of inbound messages in transport order.
package channel

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 15 * time.Second
	defaultSendQueue        = 256
	closeGrace              = time.Second
)

// ErrClosed is reported when the remote side closes the connection normally.
var ErrClosed = errors.New("channel closed")

// State is the lifecycle position of a Channel.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// MessageKind distinguishes text frames from binary frames.
type MessageKind int

const (
	Text MessageKind = iota
	Binary
)

// Message is one payload received from or sent to the remote side.
type Message struct {
	Kind MessageKind
	Data []byte
}

// TextMessage wraps s as a text frame.
func TextMessage(s string) Message { return Message{Kind: Text, Data: []byte(s)} }

// BinaryMessage wraps b as a binary frame.
func BinaryMessage(b []byte) Message { return Message{Kind: Binary, Data: b} }

// Handler receives channel events. Calls are made from the channel's read
// goroutine, one at a time, in the order the transport produced them.
type Handler interface {
	OnOpen()
	OnMessage(Message)
	OnError(error)
	// OnClose fires once when the connection ends for any reason other than
	// a local Close. err is ErrClosed for a normal remote closure.
	OnClose(err error)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are skipped.
type HandlerFuncs struct {
	Open    func()
	Message func(Message)
	Error   func(error)
	Close   func(error)
}

func (h HandlerFuncs) OnOpen() {
	if h.Open != nil {
		h.Open()
	}
}

func (h HandlerFuncs) OnMessage(m Message) {
	if h.Message != nil {
		h.Message(m)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

func (h HandlerFuncs) OnClose(err error) {
	if h.Close != nil {
		h.Close(err)
	}
}

// Dialer opens Channels. The zero value is usable.
type Dialer struct {
	Header             http.Header
	InsecureSkipVerify bool
	HandshakeTimeout   time.Duration
	WriteTimeout       time.Duration
	// PingInterval enables keepalive pings; the read deadline is twice the
	// interval and is extended on every pong. Zero disables both.
	PingInterval time.Duration
	SendQueue    int
	Logger       *slog.Logger
}

func (d *Dialer) websocketDialer() *websocket.Dialer {
	ws := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if ws.HandshakeTimeout <= 0 {
		ws.HandshakeTimeout = defaultHandshakeTimeout
	}
	if d.InsecureSkipVerify {
		ws.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return ws
}

func (d *Dialer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Channel is one duplex connection. Use Dialer.Open to create one.
type Channel struct {
	url     string
	dialer  *Dialer
	handler Handler
	logger  *slog.Logger
	outbox  chan Message
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	state State
	conn  *websocket.Conn
}

// Open starts connecting to url and returns immediately. Dial failures are
// reported to h through OnError and OnClose, never to the caller.
func (d *Dialer) Open(ctx context.Context, url string, h Handler) *Channel {
	queue := d.SendQueue
	if queue <= 0 {
		queue = defaultSendQueue
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Channel{
		url:     url,
		dialer:  d,
		handler: h,
		logger:  d.logger().With("url", url),
		outbox:  make(chan Message, queue),
		cancel:  cancel,
		done:    make(chan struct{}),
		state:   StateConnecting,
	}
	go c.run(ctx)
	return c
}

// State reports the current lifecycle state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed once the read goroutine has exited and no further
// callbacks will run.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Send queues msg for delivery. It never blocks: outside the open state, or
// when the queue is full, the message is dropped.
func (c *Channel) Send(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateOpen {
		return
	}
	select {
	case c.outbox <- msg:
	default:
		c.logger.Warn("send queue full, dropping message", "bytes", len(msg.Data))
	}
}

// SendText is Send(TextMessage(s)).
func (c *Channel) SendText(s string) { c.Send(TextMessage(s)) }

// SendBinary is Send(BinaryMessage(b)).
func (c *Channel) SendBinary(b []byte) { c.Send(BinaryMessage(b)) }

// Close releases the connection. It is idempotent and safe to call from a
// handler. Once Close returns no new callback is started; OnClose is not
// invoked for a local close.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	conn := c.conn
	c.mu.Unlock()

	c.cancel()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGrace))
	return conn.Close()
}

// transition moves from one state to another and reports whether this
// caller performed the move.
func (c *Channel) transition(from, to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.state = to
	return true
}

// dispatch runs fn only while the channel is still in state want.
func (c *Channel) dispatch(want State, fn func()) {
	c.mu.Lock()
	ok := c.state == want
	c.mu.Unlock()
	if ok {
		fn()
	}
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	conn, _, err := c.dialer.websocketDialer().DialContext(ctx, c.url, c.dialer.Header)
	if err != nil {
		if c.transition(StateConnecting, StateClosed) {
			c.logger.Debug("dial failed", "error", err)
			c.handler.OnError(err)
			c.handler.OnClose(err)
		}
		return
	}

	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.state = StateOpen
	c.conn = conn
	c.mu.Unlock()

	pumpCtx, stopPump := context.WithCancel(ctx)
	defer stopPump()
	go c.writePump(pumpCtx, conn)

	if ping := c.dialer.PingInterval; ping > 0 {
		conn.SetReadDeadline(time.Now().Add(2 * ping))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(2 * ping))
		})
	}

	c.logger.Debug("channel open")
	c.dispatch(StateOpen, c.handler.OnOpen)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.finish(conn, err)
			return
		}
		msg := Message{Kind: Text, Data: data}
		if kind == websocket.BinaryMessage {
			msg.Kind = Binary
		}
		c.dispatch(StateOpen, func() { c.handler.OnMessage(msg) })
	}
}

// finish handles the end of the read loop. Only a remote or transport
// closure reaches the handler.
func (c *Channel) finish(conn *websocket.Conn, err error) {
	conn.Close()
	if !c.transition(StateOpen, StateClosed) {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Debug("channel closed by remote")
		c.handler.OnClose(ErrClosed)
		return
	}
	c.logger.Debug("channel failed", "error", err)
	c.handler.OnError(err)
	c.handler.OnClose(err)
}

// writePump is the single writer for conn. A write failure closes the
// connection so the read loop reports it.
func (c *Channel) writePump(ctx context.Context, conn *websocket.Conn) {
	timeout := c.dialer.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	var tick <-chan time.Time
	if c.dialer.PingInterval > 0 {
		ticker := time.NewTicker(c.dialer.PingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.outbox:
			frame := websocket.TextMessage
			if msg.Kind == Binary {
				frame = websocket.BinaryMessage
			}
			conn.SetWriteDeadline(time.Now().Add(timeout))
			if err := conn.WriteMessage(frame, msg.Data); err != nil {
				c.logger.Debug("write failed", "error", err)
				conn.Close()
				return
			}
		case <-tick:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(timeout)); err != nil {
				conn.Close()
				return
			}
		}
	}
}
