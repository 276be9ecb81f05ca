package notify

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind tags a host notification. The numbering is the agent's.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
	Updated
)

func (k EventKind) String() string {
	switch k {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Updated:
		return "updated"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event reports a change to one host.
type Event struct {
	Kind        EventKind
	HostAddress string
}

type wireEvent struct {
	Event *int   `json:"event"`
	Addr  string `json:"addr"`
}

var errMalformed = errors.New("notify: malformed event")

// DecodeEvent parses one notification frame.
func DecodeEvent(data []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return Event{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	if w.Event == nil || w.Addr == "" {
		return Event{}, fmt.Errorf("%w: missing field", errMalformed)
	}
	kind := EventKind(*w.Event)
	if kind < Connected || kind > Updated {
		return Event{}, fmt.Errorf("%w: unknown kind %d", errMalformed, *w.Event)
	}
	return Event{Kind: kind, HostAddress: w.Addr}, nil
}
