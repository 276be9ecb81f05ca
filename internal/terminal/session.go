// Package terminal runs an interactive shell session on a remote host. The
// remote shell reads a plain pipe, so the session pairs a duplex channel
// with a local line discipline and writes everything to a character-grid
// display (normally the operator's own tty in raw mode).
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/opsdeck/console/internal/channel"
	"github.com/opsdeck/console/internal/linedisc"
)

// DetachKey (^]) ends Session.Run locally without reaching the remote.
const DetachKey = 0x1d

const (
	clearScreen = "\x1b[2J\x1b[H"
	red         = "\x1b[31m"
	reset       = "\x1b[0m"
)

// ErrDisposed is returned when Connect is called on a disposed session.
var ErrDisposed = errors.New("terminal: session disposed")

var errDetached = errors.New("detached")

// Options configures a Session.
type Options struct {
	Host  string
	Shell string
	// URL is the interactive process endpoint for Host and Shell.
	URL     string
	Dialer  *channel.Dialer
	Display io.Writer
	Logger  *slog.Logger
}

// Session is one terminal engagement with one host. All display writes and
// line-buffer mutations happen under the session lock, so remote output and
// local echo never interleave mid-write.
type Session struct {
	ID    string
	Host  string
	Shell string

	url     string
	dialer  *channel.Dialer
	display io.Writer
	logger  *slog.Logger

	mu       sync.Mutex
	state    channel.State
	ch       *channel.Channel
	gen      int
	disc     *linedisc.Discipline
	ended    chan struct{}
	disposed bool
}

// NewSession returns an idle session.
func NewSession(opts Options) *Session {
	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = &channel.Dialer{}
	}
	s := &Session{
		ID:      id,
		Host:    opts.Host,
		Shell:   opts.Shell,
		url:     opts.URL,
		dialer:  dialer,
		display: opts.Display,
		logger:  logger.With("session", id, "host", opts.Host, "capability", "terminal"),
		state:   channel.StateIdle,
		ended:   make(chan struct{}),
	}
	s.disc = linedisc.New(opts.Display, senderFunc(s.sendLocked))
	return s
}

type senderFunc func(string)

func (f senderFunc) SendText(p string) { f(p) }

// sendLocked forwards submitted input. Called by the discipline while the
// session lock is held.
func (s *Session) sendLocked(p string) {
	if s.ch != nil {
		s.ch.SendText(p)
	}
}

// State reports the session's connection state.
func (s *Session) State() channel.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ended is closed when the current connection attempt finishes, whether by
// remote closure, failure, Disconnect or Dispose.
func (s *Session) Ended() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// Connect clears the display and line buffer, announces the target and
// opens the channel. Connecting an already live session is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrDisposed
	}
	if s.state == channel.StateConnecting || s.state == channel.StateOpen {
		return nil
	}

	s.gen++
	s.ended = make(chan struct{})
	s.write(clearScreen)
	s.disc.Enable()
	s.write(fmt.Sprintf("Connecting to %s with %s...\r\n", s.Host, s.Shell))

	s.state = channel.StateConnecting
	s.ch = s.dialer.Open(ctx, s.url, &link{s: s, gen: s.gen})
	s.logger.Info("terminal connecting", "shell", s.Shell)
	return nil
}

// HandleInput feeds one keystroke event through the line discipline. Input
// is ignored unless the channel is open.
func (s *Session) HandleInput(data string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != channel.StateOpen {
		return
	}
	s.disc.HandleInput(data)
}

// Buffer returns the unsubmitted input line.
func (s *Session) Buffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disc.Buffer()
}

// Disconnect closes the channel at the operator's request and shows the
// disconnected indicator. The session can be connected again.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardownLocked()
}

// Dispose releases the session for good. It is idempotent.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return
	}
	s.disposed = true
	s.teardownLocked()
	s.logger.Debug("terminal disposed")
}

func (s *Session) teardownLocked() {
	if s.state != channel.StateConnecting && s.state != channel.StateOpen {
		return
	}
	if s.ch != nil {
		s.ch.Close()
	}
	s.markClosedLocked()
}

func (s *Session) markClosedLocked() {
	s.state = channel.StateClosed
	s.disc.Disable()
	s.write("\r\n" + red + "Disconnected." + reset + "\r\n")
	close(s.ended)
	s.logger.Info("terminal disconnected")
}

func (s *Session) write(text string) {
	if s.display == nil {
		return
	}
	_, _ = io.WriteString(s.display, text)
}

// link routes channel callbacks to the session generation that opened the
// channel. Callbacks from a superseded or disposed connection are dropped.
type link struct {
	s   *Session
	gen int
}

func (l *link) lock() bool {
	l.s.mu.Lock()
	if l.s.disposed || l.s.gen != l.gen {
		l.s.mu.Unlock()
		return false
	}
	return true
}

func (l *link) OnOpen() {
	if !l.lock() {
		return
	}
	defer l.s.mu.Unlock()
	if l.s.state != channel.StateConnecting {
		return
	}
	l.s.state = channel.StateOpen
	l.s.write("Connected.\r\n\r\n")
	l.s.logger.Info("terminal connected")
}

func (l *link) OnMessage(m channel.Message) {
	if !l.lock() {
		return
	}
	defer l.s.mu.Unlock()
	if l.s.state != channel.StateOpen {
		return
	}
	l.s.write(linedisc.RenderOutput(string(m.Data)))
}

func (l *link) OnError(err error) {
	if !l.lock() {
		return
	}
	defer l.s.mu.Unlock()
	l.s.write("\r\n" + red + "Connection error: " + err.Error() + reset + "\r\n")
	l.s.logger.Warn("terminal channel error", "error", err)
}

func (l *link) OnClose(error) {
	if !l.lock() {
		return
	}
	defer l.s.mu.Unlock()
	if l.s.state == channel.StateClosed {
		return
	}
	l.s.markClosedLocked()
}

// Run connects and relays in to the session until the remote side closes,
// ctx is cancelled, in is exhausted, or the operator presses DetachKey. The
// session is disposed on return.
func (s *Session) Run(ctx context.Context, in io.Reader) error {
	if err := s.Connect(ctx); err != nil {
		return err
	}
	defer s.Dispose()
	ended := s.Ended()

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1024)
		for {
			n, err := in.Read(buf)
			if n > 0 {
				chunk := string(buf[:n])
				if i := strings.IndexByte(chunk, DetachKey); i >= 0 {
					s.HandleInput(chunk[:i])
					readErr <- errDetached
					return
				}
				s.HandleInput(chunk)
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ended:
		return nil
	case err := <-readErr:
		if errors.Is(err, errDetached) || errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("read input: %w", err)
	}
}

// DefaultShells lists the shells offered for a host platform, preferred
// first.
func DefaultShells(platform string) []string {
	p := strings.ToLower(platform)
	switch {
	case strings.Contains(p, "windows"):
		return []string{"powershell", "cmd"}
	case strings.Contains(p, "macos"), strings.Contains(p, "darwin"):
		return []string{"zsh", "bash", "sh"}
	default:
		return []string{"bash", "sh"}
	}
}
