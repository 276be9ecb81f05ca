package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Endpoints builds websocket URLs for the agent's streaming endpoints.
type Endpoints struct {
	base string
}

// NewEndpoints derives the ws(s) base from the agent's http(s) URL.
func NewEndpoints(serverURL string) (*Endpoints, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return &Endpoints{base: strings.TrimRight(u.String(), "/")}, nil
}

func (e *Endpoints) client(addr string) string {
	return e.base + "/api/v1/client/" + url.PathEscape(addr)
}

// Terminal is the interactive process endpoint running shell on addr.
func (e *Endpoints) Terminal(addr, shell string) string {
	q := url.Values{"command": {shell}}
	return e.client(addr) + "/process/interactive?" + q.Encode()
}

// StreamParams selects and tunes a screen stream.
type StreamParams struct {
	Display int
	Quality float64
	// Format is the raw stream's pixel format; ignored for compressed video.
	Format string
	// KeyframeInterval is forwarded when positive.
	KeyframeInterval int
}

// Stream is the screen stream endpoint for codec on addr.
func (e *Endpoints) Stream(addr, codec string, p StreamParams) string {
	q := url.Values{}
	q.Set("display", strconv.Itoa(p.Display))
	q.Set("quality", strconv.FormatFloat(p.Quality, 'f', -1, 64))
	if codec == "rgb" && p.Format != "" {
		q.Set("format", p.Format)
	}
	if p.KeyframeInterval > 0 {
		q.Set("kf", strconv.Itoa(p.KeyframeInterval))
	}
	return e.client(addr) + "/rd/stream/" + url.PathEscape(codec) + "?" + q.Encode()
}

// Notifications is the server-wide host event endpoint.
func (e *Endpoints) Notifications() string {
	return e.base + "/api/v1/server/notification"
}
