package hosts

import (
	"strings"
	"testing"
	"time"

	"github.com/opsdeck/console/internal/api"
)

func sample() []api.Host {
	return []api.Host{
		{Addr: "10.0.0.7:9000", TargetPlatform: "windows"},
		{Addr: "10.0.0.5:9000", TargetPlatform: "linux", Version: "1.2.0"},
		{Addr: "10.0.0.6:9000", TargetPlatform: "macos"},
	}
}

func TestSetHostsSortsAndKeepsSelection(t *testing.T) {
	m := New()
	m.SetHosts(sample())
	if h, _ := m.Current(); h.Addr != "10.0.0.5:9000" {
		t.Fatalf("first host = %q, want sorted order", h.Addr)
	}

	m.Next()
	m.Next()
	if h, _ := m.Current(); h.Addr != "10.0.0.7:9000" {
		t.Fatalf("selected %q", h.Addr)
	}

	// A refresh that adds a host keeps the same address selected.
	m.SetHosts(append(sample(), api.Host{Addr: "10.0.0.1:9000"}))
	if h, _ := m.Current(); h.Addr != "10.0.0.7:9000" {
		t.Errorf("selection moved to %q after refresh", h.Addr)
	}

	// Removing the selected host falls back to the first row.
	m.SetHosts(sample()[1:])
	if m.Selected != 0 {
		t.Errorf("Selected = %d, want 0", m.Selected)
	}
}

func TestNavigationWraps(t *testing.T) {
	m := New()
	m.Prev()
	if _, ok := m.Current(); ok {
		t.Fatal("empty table reported a selection")
	}
	m.SetHosts(sample())
	m.Prev()
	if m.Selected != 2 {
		t.Errorf("Prev from top = %d, want 2", m.Selected)
	}
	m.Next()
	if m.Selected != 0 {
		t.Errorf("Next from bottom = %d, want 0", m.Selected)
	}
}

func TestView(t *testing.T) {
	m := New()
	if !strings.Contains(m.View(), "No hosts") {
		t.Error("empty view should say no hosts")
	}

	m.Width = 140
	m.SetHosts(sample())
	v := m.View()
	for _, want := range []string{"10.0.0.5:9000", "10.0.0.6:9000", "1.2.0", "[W]", "[M]", "[L]"} {
		if !strings.Contains(v, want) {
			t.Errorf("view missing %q", want)
		}
	}
	if !strings.Contains(v, "> ") {
		t.Error("selected row has no marker")
	}
}

func TestFlashExpires(t *testing.T) {
	now := time.Unix(1000, 0)
	m := New()
	m.now = func() time.Time { return now }
	m.SetHosts(sample())
	m.Flash("10.0.0.5:9000", "connected")
	if kind, ok := m.flashing("10.0.0.5:9000", now); !ok || kind != "connected" {
		t.Fatalf("flashing = %q, %v", kind, ok)
	}
	if _, ok := m.flashing("10.0.0.5:9000", now.Add(flashFor)); ok {
		t.Error("flash did not expire")
	}
}
