package screen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/opsdeck/console/internal/api"
	"github.com/opsdeck/console/internal/channel"
)

// Quality bounds forwarded to the agent.
const (
	MinQuality = 0.1
	MaxQuality = 1.0
)

// DisplayLister fetches a host's capturable displays.
type DisplayLister interface {
	ListDisplays(ctx context.Context, addr string) ([]api.Display, error)
}

// Options are chosen by the operator after negotiation.
type Options struct {
	Display          int
	Quality          float64
	Codec            Codec
	Format           PixelFormat
	KeyframeInterval int
}

// Config wires a Session to its collaborators.
type Config struct {
	Host      string
	Displays  DisplayLister
	Endpoints *api.Endpoints
	Dialer    *channel.Dialer
	// Surface receives raw-codec frames.
	Surface Surface
	// Decoder plays the compressed codec. Required only for CodecMPEG1.
	Decoder Decoder
	// OnChange is called after every state transition, outside the session
	// lock. err is non-nil when the transition was caused by a failure.
	OnChange func(state channel.State, err error)
	Logger   *slog.Logger
}

// Session is one screen engagement with one host.
type Session struct {
	ID   string
	Host string

	cfg    Config
	logger *slog.Logger

	frames    atomic.Uint64
	truncated atomic.Uint64

	// paintMu is held across the generation check and Paint, so teardown
	// can wait out a frame already being painted.
	paintMu sync.Mutex

	mu       sync.Mutex
	state    channel.State
	displays []api.Display
	opts     Options
	source   api.Display
	ch       *channel.Channel
	decoding bool
	gen      int
	lastErr  error
	disposed bool
}

// NewSession returns an idle session.
func NewSession(cfg Config) *Session {
	id := uuid.NewString()
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &channel.Dialer{}
	}
	return &Session{
		ID:     id,
		Host:   cfg.Host,
		cfg:    cfg,
		logger: logger.With("session", id, "host", cfg.Host, "capability", "screen"),
		state:  channel.StateIdle,
	}
}

// State reports the connection state.
func (s *Session) State() channel.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err is the failure behind the most recent transition to closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Displays returns the negotiated display list.
func (s *Session) Displays() []api.Display {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]api.Display(nil), s.displays...)
}

// Active returns the options and source of the current connection.
func (s *Session) Active() (Options, api.Display) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts, s.source
}

// Frames counts decoded raw frames.
func (s *Session) Frames() uint64 { return s.frames.Load() }

// Truncated counts raw payloads shorter than the pixel grid.
func (s *Session) Truncated() uint64 { return s.truncated.Load() }

// Negotiate fetches the host's displays. A failure leaves the session idle.
func (s *Session) Negotiate(ctx context.Context) ([]api.Display, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil, ErrDisposed
	}
	if s.activeLocked() {
		s.mu.Unlock()
		return nil, ErrSessionActive
	}
	s.mu.Unlock()

	displays, err := s.cfg.Displays.ListDisplays(ctx, s.Host)
	if err != nil {
		return nil, fmt.Errorf("list displays: %w", err)
	}
	if len(displays) == 0 {
		return nil, ErrNoDisplays
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeLocked() {
		return nil, ErrSessionActive
	}
	s.displays = displays
	s.logger.Debug("displays negotiated", "count", len(displays))
	return append([]api.Display(nil), displays...), nil
}

// Connect opens the stream described by opts. The codec is fixed until the
// session returns to idle or closed.
func (s *Session) Connect(ctx context.Context, opts Options) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.activeLocked() {
		s.mu.Unlock()
		return ErrSessionActive
	}
	source, err := s.validateLocked(opts)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	s.gen++
	gen := s.gen
	s.opts = opts
	s.source = source
	s.lastErr = nil
	s.state = channel.StateConnecting
	url := s.cfg.Endpoints.Stream(s.Host, string(opts.Codec), api.StreamParams{
		Display:          opts.Display,
		Quality:          opts.Quality,
		Format:           string(opts.Format),
		KeyframeInterval: opts.KeyframeInterval,
	})
	s.logger.Info("screen connecting", "codec", opts.Codec, "display", source.Name,
		"width", source.Width, "height", source.Height, "quality", opts.Quality)

	if opts.Codec == CodecRaw {
		s.ch = s.cfg.Dialer.Open(ctx, url, &link{s: s, gen: gen})
		s.mu.Unlock()
		s.notify(channel.StateConnecting, nil)
		return nil
	}

	err = s.cfg.Decoder.Start(ctx, url, source.Width, source.Height, func(err error) {
		s.closeGen(gen, err)
	})
	if err != nil {
		s.state = channel.StateClosed
		s.lastErr = err
		s.mu.Unlock()
		s.notify(channel.StateClosed, err)
		return err
	}
	s.decoding = true
	s.state = channel.StateOpen
	s.mu.Unlock()
	s.notify(channel.StateOpen, nil)
	return nil
}

func (s *Session) validateLocked(opts Options) (api.Display, error) {
	if s.displays == nil {
		return api.Display{}, ErrNotNegotiated
	}
	if opts.Display < 0 || opts.Display >= len(s.displays) {
		return api.Display{}, fmt.Errorf("%w: %d of %d", ErrBadDisplay, opts.Display, len(s.displays))
	}
	if d := s.displays[opts.Display]; d.Width <= 0 || d.Height <= 0 {
		return api.Display{}, fmt.Errorf("%w: %s is %dx%d", ErrBadDisplay, d.Name, d.Width, d.Height)
	}
	if opts.Quality < MinQuality || opts.Quality > MaxQuality {
		return api.Display{}, fmt.Errorf("%w: %v", ErrBadQuality, opts.Quality)
	}
	switch opts.Codec {
	case CodecRaw:
		if opts.Format.BytesPerPixel() == 0 {
			return api.Display{}, fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
		}
		if s.cfg.Surface == nil {
			return api.Display{}, fmt.Errorf("screen: raw codec needs a surface")
		}
	case CodecMPEG1:
		if s.cfg.Decoder == nil {
			return api.Display{}, fmt.Errorf("screen: %s needs a decoder", opts.Codec)
		}
	default:
		return api.Display{}, fmt.Errorf("%w: %q", ErrUnknownCodec, opts.Codec)
	}
	return s.displays[opts.Display], nil
}

func (s *Session) activeLocked() bool {
	return s.state == channel.StateConnecting || s.state == channel.StateOpen
}

// Disconnect closes the stream and returns the session to idle. The surface
// keeps its last frame.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if !s.activeLocked() {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.state = channel.StateIdle
	disposed := s.disposed
	s.mu.Unlock()
	s.waitPaint()

	s.logger.Info("screen disconnected")
	if !disposed {
		s.notify(channel.StateIdle, nil)
	}
}

// Dispose releases the session for good. It is idempotent and no OnChange
// call starts after it returns.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	if s.activeLocked() {
		s.stopLocked()
		s.state = channel.StateIdle
	}
	s.mu.Unlock()
	s.waitPaint()
	s.logger.Debug("screen disposed")
}

func (s *Session) waitPaint() {
	s.paintMu.Lock()
	s.paintMu.Unlock()
}

func (s *Session) stopLocked() {
	s.gen++
	if s.ch != nil {
		s.ch.Close()
		s.ch = nil
	}
	if s.decoding {
		_ = s.cfg.Decoder.Stop()
		s.decoding = false
	}
}

// CheckGeometry compares fresh display metadata with the negotiated list.
// When the selected display's size changed or it disappeared, an active
// stream is torn down and the session must be negotiated again.
func (s *Session) CheckGeometry(current []api.Display) error {
	s.mu.Lock()
	if s.displays == nil {
		s.mu.Unlock()
		return nil
	}
	index := s.opts.Display
	if !s.activeLocked() {
		index = -1
	}
	changed := len(current) != len(s.displays)
	for i := 0; !changed && i < len(current); i++ {
		if current[i].Width != s.displays[i].Width || current[i].Height != s.displays[i].Height {
			changed = i == index || index < 0
		}
	}
	if !changed {
		s.mu.Unlock()
		return nil
	}

	s.displays = nil
	if !s.activeLocked() {
		s.mu.Unlock()
		return ErrGeometryChanged
	}
	s.stopLocked()
	s.state = channel.StateClosed
	s.lastErr = ErrGeometryChanged
	disposed := s.disposed
	s.mu.Unlock()
	s.waitPaint()

	s.logger.Warn("display geometry changed, stream closed")
	if !disposed {
		s.notify(channel.StateClosed, ErrGeometryChanged)
	}
	return ErrGeometryChanged
}

// closeGen moves the connection opened as gen to closed.
func (s *Session) closeGen(gen int, err error) {
	s.mu.Lock()
	if s.disposed || s.gen != gen || !s.activeLocked() {
		s.mu.Unlock()
		return
	}
	s.ch = nil
	s.decoding = false
	s.state = channel.StateClosed
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("screen stream failed", "error", err)
	} else {
		s.logger.Info("screen stream ended")
	}
	s.notify(channel.StateClosed, err)
}

func (s *Session) notify(state channel.State, err error) {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(state, err)
	}
}

// link routes raw-stream callbacks for one connection generation.
type link struct {
	s   *Session
	gen int
}

func (l *link) current() (api.Display, PixelFormat, bool) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	if l.s.disposed || l.s.gen != l.gen {
		return api.Display{}, "", false
	}
	return l.s.source, l.s.opts.Format, true
}

func (l *link) OnOpen() {
	s := l.s
	s.mu.Lock()
	if s.disposed || s.gen != l.gen || s.state != channel.StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = channel.StateOpen
	s.cfg.Surface.Resize(s.source.Width, s.source.Height)
	s.mu.Unlock()

	s.logger.Info("screen connected")
	s.notify(channel.StateOpen, nil)
}

// OnMessage decodes outside the session lock and paints under paintMu.
func (l *link) OnMessage(m channel.Message) {
	if m.Kind != channel.Binary {
		return
	}
	source, format, ok := l.current()
	if !ok {
		return
	}
	frame, complete, err := Decode(format, m.Data, source.Width, source.Height)
	if err != nil {
		return
	}
	if !complete {
		l.s.truncated.Add(1)
		l.s.logger.Debug("short frame payload", "bytes", len(m.Data))
	}

	l.s.paintMu.Lock()
	defer l.s.paintMu.Unlock()
	if _, _, ok := l.current(); !ok {
		return
	}
	l.s.cfg.Surface.Paint(frame)
	l.s.frames.Add(1)
}

func (l *link) OnError(err error) {
	l.s.logger.Debug("screen channel error", "error", err)
}

func (l *link) OnClose(err error) {
	l.s.closeGen(l.gen, err)
}
