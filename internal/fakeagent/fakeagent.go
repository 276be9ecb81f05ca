// Package fakeagent is an in-process stand-in for the remote agent server.
// It serves the REST metadata endpoints and upgrades the streaming endpoints
// to websockets, handing each accepted connection to the test as a Peer.
// Wire types mirror the agent protocol without importing console packages.
package fakeagent

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Host mirrors the agent's per-client metadata record.
type Host struct {
	Addr           string `json:"addr"`
	Version        string `json:"version"`
	TargetPlatform string `json:"target_platform"`
	ConnectedTime  string `json:"connected_time"`
	SystemInfo     struct {
		HostName      string `json:"host_name,omitempty"`
		LongOSVersion string `json:"long_os_version,omitempty"`
		CPUArch       string `json:"cpu_arch"`
	} `json:"system_info"`
}

// Display mirrors one capturable screen surface.
type Display struct {
	Name      string `json:"name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsOnline  bool   `json:"is_online"`
	IsPrimary bool   `json:"is_primary"`
}

type envelope struct {
	Code int `json:"code"`
	Body any `json:"body"`
}

// Agent is a running fake server. Accepted websocket connections are
// delivered on the Terminals, Screens and Notifications channels.
type Agent struct {
	Server *httptest.Server
	Token  string

	Terminals     chan *Peer
	Screens       chan *Peer
	Notifications chan *Peer

	notifyAccepts atomic.Int64

	mu          sync.Mutex
	hosts       []Host
	displays    map[string][]Display
	failDisplay bool
	peers       []*Peer
	acceptTimes []time.Time
}

// Start launches a fake agent on a loopback listener.
func Start() *Agent {
	a := &Agent{
		Terminals:     make(chan *Peer, 16),
		Screens:       make(chan *Peer, 16),
		Notifications: make(chan *Peer, 16),
		displays:      make(map[string][]Display),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/server", a.handleServer)
	mux.HandleFunc("GET /api/v1/server/notification", a.handleNotification)
	mux.HandleFunc("GET /api/v1/client", a.handleHosts)
	mux.HandleFunc("GET /api/v1/client/{addr}", a.handleHost)
	mux.HandleFunc("GET /api/v1/client/{addr}/rd", a.handleDisplays)
	mux.HandleFunc("GET /api/v1/client/{addr}/rd/stream/{codec}", a.handleScreen)
	mux.HandleFunc("GET /api/v1/client/{addr}/process/interactive", a.handleTerminal)

	a.Server = httptest.NewServer(a.authorize(mux))
	return a
}

// URL is the http base of the fake server.
func (a *Agent) URL() string { return a.Server.URL }

// Close shuts down the server and every accepted connection.
func (a *Agent) Close() {
	a.mu.Lock()
	peers := a.peers
	a.peers = nil
	a.mu.Unlock()
	for _, p := range peers {
		p.Drop()
	}
	a.Server.Close()
}

// AddHost registers a host for the listing endpoints.
func (a *Agent) AddHost(h Host) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hosts = append(a.hosts, h)
}

// SetDisplays replaces the display list reported for addr.
func (a *Agent) SetDisplays(addr string, displays []Display) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.displays[addr] = displays
}

// FailDisplays makes the display listing return an error envelope.
func (a *Agent) FailDisplays(fail bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failDisplay = fail
}

// NotificationAccepts counts accepted notification connections.
func (a *Agent) NotificationAccepts() int {
	return int(a.notifyAccepts.Load())
}

// NotificationAcceptTimes returns when each notification connection was
// accepted, in order.
func (a *Agent) NotificationAcceptTimes() []time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]time.Time(nil), a.acceptTimes...)
}

func (a *Agent) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Token != "" {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != a.Token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeEnvelope(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{Code: code, Body: body})
}

func (a *Agent) handleServer(w http.ResponseWriter, _ *http.Request) {
	writeEnvelope(w, 0, map[string]string{
		"version":     "0.0.0-test",
		"build_time":  "1970-01-01T00:00:00Z",
		"commit_hash": "deadbeef",
	})
}

func (a *Agent) handleHosts(w http.ResponseWriter, _ *http.Request) {
	a.mu.Lock()
	hosts := append([]Host{}, a.hosts...)
	a.mu.Unlock()
	writeEnvelope(w, 0, hosts)
}

func (a *Agent) handleHost(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("addr")
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.hosts {
		if h.Addr == addr {
			writeEnvelope(w, 0, h)
			return
		}
	}
	writeEnvelope(w, 404, "client not found")
}

func (a *Agent) handleDisplays(w http.ResponseWriter, r *http.Request) {
	addr := r.PathValue("addr")
	a.mu.Lock()
	fail := a.failDisplay
	displays, ok := a.displays[addr]
	a.mu.Unlock()
	if fail {
		writeEnvelope(w, 500, "display capture unavailable")
		return
	}
	if !ok {
		writeEnvelope(w, 404, "client not found")
		return
	}
	writeEnvelope(w, 0, displays)
}

func (a *Agent) handleTerminal(w http.ResponseWriter, r *http.Request) {
	a.accept(w, r, a.Terminals)
}

func (a *Agent) handleScreen(w http.ResponseWriter, r *http.Request) {
	a.accept(w, r, a.Screens)
}

func (a *Agent) handleNotification(w http.ResponseWriter, r *http.Request) {
	if p := a.accept(w, r, a.Notifications); p != nil {
		a.notifyAccepts.Add(1)
	}
}

func (a *Agent) accept(w http.ResponseWriter, r *http.Request, out chan<- *Peer) *Peer {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil
	}
	p := &Peer{
		Path:  r.URL.Path,
		Query: r.URL.Query(),
		Addr:  r.PathValue("addr"),
		Codec: r.PathValue("codec"),
		conn:  conn,
	}
	a.mu.Lock()
	a.peers = append(a.peers, p)
	if out == a.Notifications {
		a.acceptTimes = append(a.acceptTimes, time.Now())
	}
	a.mu.Unlock()

	select {
	case out <- p:
	default:
		p.Drop()
		return nil
	}
	return p
}

// Peer is the server side of one accepted websocket connection.
type Peer struct {
	Path  string
	Query url.Values
	Addr  string
	Codec string

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

// WriteText sends a text frame to the console.
func (p *Peer) WriteText(s string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.TextMessage, []byte(s))
}

// WriteBinary sends a binary frame to the console.
func (p *Peer) WriteBinary(b []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteMessage(websocket.BinaryMessage, b)
}

// WriteJSON sends v as a JSON text frame.
func (p *Peer) WriteJSON(v any) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.conn.WriteJSON(v)
}

// ReadText waits up to timeout for the next frame from the console.
func (p *Peer) ReadText(timeout time.Duration) (string, error) {
	p.conn.SetReadDeadline(time.Now().Add(timeout))
	kind, data, err := p.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if kind != websocket.TextMessage {
		return "", errors.New("fakeagent: expected text frame")
	}
	return string(data), nil
}

// WaitClosed reports whether the console closed the connection within
// timeout. Frames received in the meantime are discarded.
func (p *Peer) WaitClosed(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	p.conn.SetReadDeadline(deadline)
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				return false
			}
			return true
		}
	}
}

// Close performs a normal websocket close handshake from the server side.
func (p *Peer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.writeMu.Lock()
	_ = p.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	p.writeMu.Unlock()
	return p.conn.Close()
}

// Drop closes the underlying connection without a close frame.
func (p *Peer) Drop() {
	if p.closed.CompareAndSwap(false, true) {
		p.conn.Close()
	}
}
