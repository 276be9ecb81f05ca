package debug

import (
	"strings"
	"testing"
)

func TestAddEntry(t *testing.T) {
	m := New()
	m.Add(KindBus, "connected")
	if len(m.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(m.Entries))
	}
	if m.Entries[0].Kind != KindBus {
		t.Errorf("expected kind %q, got %q", KindBus, m.Entries[0].Kind)
	}
}

func TestAddStripsControlSequences(t *testing.T) {
	m := New()
	m.Add(KindTerm, "\x1b[31mred\x1b[0m\nnext")
	if got := m.Entries[0].Message; got != "red next" {
		t.Errorf("Message = %q, want %q", got, "red next")
	}
}

func TestAddf(t *testing.T) {
	m := New()
	m.Addf(KindScreen, "frame %dx%d", 640, 480)
	if got := m.Entries[0].Message; got != "frame 640x480" {
		t.Errorf("Message = %q", got)
	}
}

func TestMaxEntries(t *testing.T) {
	m := New()
	for i := 0; i < maxEntries+50; i++ {
		m.Add(KindBus, "msg")
	}
	if len(m.Entries) != maxEntries {
		t.Errorf("expected %d entries, got %d", maxEntries, len(m.Entries))
	}
}

func TestScrollUpDown(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.Add(KindBus, "msg")
	}
	if m.Offset != 0 {
		t.Fatal("expected offset 0 after adds")
	}

	m.ScrollUp(5)
	if m.Offset != 5 {
		t.Errorf("expected offset 5, got %d", m.Offset)
	}

	m.ScrollDown(3)
	if m.Offset != 2 {
		t.Errorf("expected offset 2, got %d", m.Offset)
	}

	m.ScrollDown(10)
	if m.Offset != 0 {
		t.Errorf("expected offset 0, got %d", m.Offset)
	}
}

func TestScrollUpCapped(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.Add(KindBus, "msg")
	}
	m.ScrollUp(100)
	if m.Offset != 4 {
		t.Errorf("expected offset 4, got %d", m.Offset)
	}
}

func TestViewEmpty(t *testing.T) {
	m := New()
	v := m.View(80, 20)
	if !strings.Contains(v, "No events") {
		t.Error("empty view should show 'No events' message")
	}
}

func TestViewWithEntries(t *testing.T) {
	m := New()
	m.Add(KindBus, "connected")
	m.Add(KindErr, "timeout")
	v := m.View(80, 20)
	if !strings.Contains(v, "connected") {
		t.Error("view should contain 'connected'")
	}
	if !strings.Contains(v, "timeout") {
		t.Error("view should contain 'timeout'")
	}
}

func TestAddResetsScroll(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		m.Add(KindBus, "msg")
	}
	m.ScrollUp(5)
	m.Add(KindBus, "new")
	if m.Offset != 0 {
		t.Error("adding entry should reset scroll to 0")
	}
}
