package channel

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/opsdeck/console/internal/fakeagent"
)

// recorder is a Handler that captures every callback for assertions.
type recorder struct {
	mu       sync.Mutex
	opened   chan struct{}
	closed   chan error
	messages chan Message
	errs     []error
	closes   int
}

func newRecorder() *recorder {
	return &recorder{
		opened:   make(chan struct{}, 1),
		closed:   make(chan error, 4),
		messages: make(chan Message, 16),
	}
}

func (r *recorder) OnOpen()             { r.opened <- struct{}{} }
func (r *recorder) OnMessage(m Message) { r.messages <- m }
func (r *recorder) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}
func (r *recorder) OnClose(err error) {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	r.closed <- err
}

func (r *recorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

func wsURL(a *fakeagent.Agent, path string) string {
	return "ws" + strings.TrimPrefix(a.URL(), "http") + path
}

func waitOpen(t *testing.T, r *recorder) {
	t.Helper()
	select {
	case <-r.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnOpen")
	}
}

func acceptPeer(t *testing.T, ch chan *fakeagent.Peer) *fakeagent.Peer {
	t.Helper()
	select {
	case p := <-ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server-side connection")
		return nil
	}
}

func TestOpenSendReceive(t *testing.T) {
	agent := fakeagent.Start()
	defer agent.Close()

	rec := newRecorder()
	d := &Dialer{}
	c := d.Open(context.Background(), wsURL(agent, "/api/v1/server/notification"), rec)
	defer c.Close()

	peer := acceptPeer(t, agent.Notifications)
	waitOpen(t, rec)

	if got := c.State(); got != StateOpen {
		t.Fatalf("State() = %v, want open", got)
	}

	c.SendText("hello")
	got, err := peer.ReadText(2 * time.Second)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if got != "hello" {
		t.Errorf("peer received %q, want %q", got, "hello")
	}

	for _, s := range []string{"one", "two", "three"} {
		if err := peer.WriteText(s); err != nil {
			t.Fatalf("peer write: %v", err)
		}
	}
	if err := peer.WriteBinary([]byte{1, 2, 3}); err != nil {
		t.Fatalf("peer write binary: %v", err)
	}

	for _, want := range []string{"one", "two", "three"} {
		select {
		case m := <-rec.messages:
			if m.Kind != Text || string(m.Data) != want {
				t.Errorf("message = %v %q, want text %q", m.Kind, m.Data, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}
	select {
	case m := <-rec.messages:
		if m.Kind != Binary || len(m.Data) != 3 {
			t.Errorf("expected 3-byte binary message, got %v %v", m.Kind, m.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for binary message")
	}
}

func TestSendWhileNotOpenIsDropped(t *testing.T) {
	agent := fakeagent.Start()
	defer agent.Close()

	rec := newRecorder()
	c := (&Dialer{}).Open(context.Background(), wsURL(agent, "/api/v1/server/notification"), rec)
	peer := acceptPeer(t, agent.Notifications)
	waitOpen(t, rec)

	c.SendText("after-open")
	got, err := peer.ReadText(2 * time.Second)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if got != "after-open" {
		t.Errorf("first frame = %q, want %q", got, "after-open")
	}

	c.Close()
	c.SendText("late")
	if !peer.WaitClosed(2 * time.Second) {
		t.Error("peer did not observe close")
	}
}

func TestRemoteCloseReportsOnce(t *testing.T) {
	agent := fakeagent.Start()
	defer agent.Close()

	rec := newRecorder()
	c := (&Dialer{}).Open(context.Background(), wsURL(agent, "/api/v1/server/notification"), rec)
	peer := acceptPeer(t, agent.Notifications)
	waitOpen(t, rec)

	peer.Close()

	select {
	case err := <-rec.closed:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("OnClose err = %v, want ErrClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
	<-c.Done()

	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	c.Close()
	if n := rec.closeCount(); n != 1 {
		t.Errorf("OnClose fired %d times, want 1", n)
	}
}

func TestDialFailureReportedToHandler(t *testing.T) {
	rec := newRecorder()
	c := (&Dialer{HandshakeTimeout: time.Second}).Open(context.Background(), "ws://127.0.0.1:1/nowhere", rec)

	select {
	case err := <-rec.closed:
		if err == nil {
			t.Error("expected a dial error")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for OnClose after dial failure")
	}
	<-c.Done()
	if got := c.State(); got != StateClosed {
		t.Errorf("State() = %v, want closed", got)
	}
	c.SendText("dropped") // must not panic or block
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.errs) != 1 {
		t.Errorf("OnError fired %d times, want 1", len(rec.errs))
	}
}

func TestLocalCloseIsIdempotentAndSilent(t *testing.T) {
	agent := fakeagent.Start()
	defer agent.Close()

	rec := newRecorder()
	c := (&Dialer{}).Open(context.Background(), wsURL(agent, "/api/v1/server/notification"), rec)
	peer := acceptPeer(t, agent.Notifications)
	waitOpen(t, rec)

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read goroutine did not exit")
	}

	// A frame racing the close must not reach the handler.
	_ = peer.WriteText("in-flight")
	select {
	case m := <-rec.messages:
		t.Errorf("message %q delivered after Close", m.Data)
	case <-time.After(100 * time.Millisecond):
	}
	if n := rec.closeCount(); n != 0 {
		t.Errorf("OnClose fired %d times after local close, want 0", n)
	}
}

func TestCloseWhileConnecting(t *testing.T) {
	// A listener that never answers keeps the handshake pending.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	rec := newRecorder()
	c := (&Dialer{HandshakeTimeout: 5 * time.Second}).Open(context.Background(), "ws://"+ln.Addr().String()+"/stall", rec)
	if got := c.State(); got != StateConnecting {
		t.Fatalf("State() = %v, want connecting", got)
	}
	c.Close()

	<-c.Done()
	if n := rec.closeCount(); n != 0 {
		t.Errorf("OnClose fired %d times for a cancelled dial, want 0", n)
	}
}

func TestCloseFromHandler(t *testing.T) {
	agent := fakeagent.Start()
	defer agent.Close()

	var c *Channel
	ready := make(chan struct{})
	got := make(chan struct{}, 1)
	h := HandlerFuncs{
		Message: func(Message) {
			<-ready
			c.Close()
			got <- struct{}{}
		},
	}
	c = (&Dialer{}).Open(context.Background(), wsURL(agent, "/api/v1/server/notification"), h)
	close(ready)
	peer := acceptPeer(t, agent.Notifications)

	deadline := time.Now().Add(2 * time.Second)
	for c.State() != StateOpen && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	peer.WriteText("bye")

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not run")
	}
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Close from handler deadlocked")
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateIdle:       "idle",
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		State(42):       "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
