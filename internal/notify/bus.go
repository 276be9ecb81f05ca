// Package notify keeps a long-lived notification channel to the agent open
// and hands each host event to the current subscriber.
//
// The bus reconnects after every close with the same fixed delay, forever.
// The signal is low volume and only drives refreshes, so there is no
// backoff and no retry limit.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opsdeck/console/internal/channel"
)

// DefaultReconnectDelay is the pause between a close and the next dial.
const DefaultReconnectDelay = 3 * time.Second

type Options struct {
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// Bus owns one notification channel at a time.
type Bus struct {
	dialer *channel.Dialer
	url    string
	delay  time.Duration
	logger *slog.Logger

	subscriber atomic.Pointer[func(Event)]
	reconnects atomic.Int64
	dropped    atomic.Int64

	mu      sync.Mutex
	ch      *channel.Channel
	timer   *time.Timer
	gen     int
	started bool
	closed  bool
}

// New returns a bus for url. Nothing is dialled until Start.
func New(dialer *channel.Dialer, url string, opts Options) *Bus {
	if dialer == nil {
		dialer = &channel.Dialer{}
	}
	delay := opts.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		dialer: dialer,
		url:    url,
		delay:  delay,
		logger: logger.With("capability", "notifications"),
	}
}

// Subscribe makes fn the only receiver of events, replacing any previous
// subscriber. fn runs on the channel's read goroutine. A nil fn
// unsubscribes.
func (b *Bus) Subscribe(fn func(Event)) {
	if fn == nil {
		b.subscriber.Store(nil)
		return
	}
	b.subscriber.Store(&fn)
}

// Start dials the first connection.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started || b.closed {
		return
	}
	b.started = true
	b.dialLocked()
}

// Close stops the bus for good: the channel is closed and no reconnect is
// scheduled afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.gen++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.ch != nil {
		b.ch.Close()
		b.ch = nil
	}
}

// State reports the current connection state. Between a close and the next
// dial the bus reports connecting.
func (b *Bus) State() channel.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.closed:
		return channel.StateClosed
	case !b.started:
		return channel.StateIdle
	case b.ch == nil:
		return channel.StateConnecting
	}
	return b.ch.State()
}

// Reconnects counts dials after the first.
func (b *Bus) Reconnects() int64 { return b.reconnects.Load() }

// Dropped counts frames that did not decode.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

func (b *Bus) dialLocked() {
	b.gen++
	b.ch = b.dialer.Open(context.Background(), b.url, &link{b: b, gen: b.gen})
}

// channelClosed is called once per channel, so each close arms exactly one timer.
func (b *Bus) channelClosed(gen int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.gen != gen {
		return
	}
	b.ch = nil
	b.logger.Info("notification channel closed, reconnecting", "error", err, "delay", b.delay)
	b.timer = time.AfterFunc(b.delay, func() { b.redial(gen) })
}

func (b *Bus) redial(gen int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.gen != gen {
		return
	}
	b.timer = nil
	b.reconnects.Add(1)
	b.dialLocked()
}

func (b *Bus) deliver(gen int, data []byte) {
	b.mu.Lock()
	live := !b.closed && b.gen == gen
	b.mu.Unlock()
	if !live {
		return
	}

	ev, err := DecodeEvent(data)
	if err != nil {
		b.dropped.Add(1)
		b.logger.Debug("dropped notification", "error", err)
		return
	}
	if fn := b.subscriber.Load(); fn != nil {
		(*fn)(ev)
	}
}

type link struct {
	b   *Bus
	gen int
}

func (l *link) OnOpen() {
	l.b.logger.Debug("notification channel open")
}

func (l *link) OnMessage(m channel.Message) {
	if m.Kind != channel.Text {
		return
	}
	l.b.deliver(l.gen, m.Data)
}

func (l *link) OnError(err error) {
	l.b.logger.Debug("notification channel error", "error", err)
}

func (l *link) OnClose(err error) {
	l.b.channelClosed(l.gen, err)
}
