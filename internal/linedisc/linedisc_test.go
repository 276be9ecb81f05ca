package linedisc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/x/ansi"
)

type sent struct{ payloads []string }

func (s *sent) SendText(p string) { s.payloads = append(s.payloads, p) }

func newTestDiscipline() (*Discipline, *bytes.Buffer, *sent) {
	display := &bytes.Buffer{}
	out := &sent{}
	return New(display, out), display, out
}

func TestPrintableThenEnter(t *testing.T) {
	tests := []struct {
		name string
		keys []string
		want string
	}{
		{"single key", []string{"x"}, "x\n"},
		{"typed one by one", []string{"l", "s"}, "ls\n"},
		{"embedded spaces", []string{"e", "c", "h", "o", " ", "h", "i"}, "echo hi\n"},
		{"pasted chunk", []string{"ls -la /tmp"}, "ls -la /tmp\n"},
		{"unicode", []string{"é", "ß"}, "éß\n"},
		{"empty line", nil, "\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, display, out := newTestDiscipline()
			for _, k := range tt.keys {
				d.HandleInput(k)
			}
			d.HandleInput("\r")

			if len(out.payloads) != 1 || out.payloads[0] != tt.want {
				t.Fatalf("sent %q, want exactly [%q]", out.payloads, tt.want)
			}
			if d.Len() != 0 {
				t.Errorf("buffer not cleared after Enter: %q", d.Buffer())
			}
			wantEcho := strings.Join(tt.keys, "") + "\r\n"
			if display.String() != wantEcho {
				t.Errorf("display = %q, want %q", display.String(), wantEcho)
			}
		})
	}
}

func TestNothingSentBeforeEnter(t *testing.T) {
	d, _, out := newTestDiscipline()
	d.HandleInput("partial")
	if len(out.payloads) != 0 {
		t.Errorf("sent %q before Enter", out.payloads)
	}
	if d.Buffer() != "partial" {
		t.Errorf("Buffer() = %q", d.Buffer())
	}
}

func TestBackspace(t *testing.T) {
	for _, key := range []string{"\x7f", "\b"} {
		d, display, out := newTestDiscipline()
		d.HandleInput("abc")
		display.Reset()

		d.HandleInput(key)
		if d.Buffer() != "ab" {
			t.Errorf("key %q: Buffer() = %q, want %q", key, d.Buffer(), "ab")
		}
		if display.String() != "\b \b" {
			t.Errorf("key %q: display = %q, want one erased cell", key, display.String())
		}
		if len(out.payloads) != 0 {
			t.Errorf("key %q: backspace sent %q", key, out.payloads)
		}
	}
}

func TestBackspaceOnEmptyBufferIsNoop(t *testing.T) {
	d, display, out := newTestDiscipline()
	d.HandleInput("\x7f")
	d.HandleInput("\b")
	if display.Len() != 0 {
		t.Errorf("display mutated: %q", display.String())
	}
	if len(out.payloads) != 0 {
		t.Errorf("bytes sent: %q", out.payloads)
	}
}

func TestInterrupt(t *testing.T) {
	d, display, out := newTestDiscipline()
	d.HandleInput("sleep 100")
	display.Reset()

	d.HandleInput("\x03")
	if len(out.payloads) != 1 || out.payloads[0] != "\x03" {
		t.Fatalf("sent %q, want raw ETX only", out.payloads)
	}
	if display.String() != "^C\r\n" {
		t.Errorf("display = %q, want %q", display.String(), "^C\r\n")
	}
	if d.Len() != 0 {
		t.Errorf("buffer not cleared: %q", d.Buffer())
	}
}

func TestEndOfInputLeavesBuffer(t *testing.T) {
	d, display, out := newTestDiscipline()
	d.HandleInput("abc")
	display.Reset()

	d.HandleInput("\x04")
	if len(out.payloads) != 1 || out.payloads[0] != "\x04" {
		t.Fatalf("sent %q, want raw EOT", out.payloads)
	}
	if d.Buffer() != "abc" {
		t.Errorf("buffer changed to %q", d.Buffer())
	}
	if display.Len() != 0 {
		t.Errorf("EOT echoed %q", display.String())
	}
}

func TestClearLineErasesBufferLength(t *testing.T) {
	for _, line := range []string{"", "a", "ls -la", "  spaced  out  ", "héllo wörld"} {
		d, display, _ := newTestDiscipline()
		d.HandleInput(line)
		n := d.Len()
		display.Reset()

		d.HandleInput("\x15")
		if got := strings.Count(display.String(), "\b \b"); got != n {
			t.Errorf("%q: erased %d cells, want %d", line, got, n)
		}
		if display.String() != EraseCells(n) {
			t.Errorf("%q: display = %q", line, display.String())
		}
		if d.Len() != 0 {
			t.Errorf("%q: buffer not empty: %q", line, d.Buffer())
		}
	}
}

func TestDeleteWord(t *testing.T) {
	tests := []struct {
		before string
		after  string
	}{
		{"foo bar ", "foo "},
		{"ping -c 1 ", "ping -c "},
		{"foo bar", "foo "},
		{"single", ""},
		{"   ", ""},
		{"", ""},
		{"a  b   ", "a  "},
	}
	for _, tt := range tests {
		t.Run(tt.before, func(t *testing.T) {
			d, display, out := newTestDiscipline()
			d.HandleInput(tt.before)
			display.Reset()

			d.HandleInput("\x17")
			if d.Buffer() != tt.after {
				t.Errorf("Buffer() = %q, want %q", d.Buffer(), tt.after)
			}
			removed := len([]rune(tt.before)) - len([]rune(tt.after))
			if display.String() != EraseCells(removed) {
				t.Errorf("display = %q, want %d erased cells", display.String(), removed)
			}
			if len(out.payloads) != 0 {
				t.Errorf("word erase sent %q", out.payloads)
			}
		})
	}
}

func TestIgnoredInput(t *testing.T) {
	d, display, out := newTestDiscipline()
	// Arrow keys, a function key, a bell and a tab.
	d.HandleInput("\x1b[A")
	d.HandleInput("\x1b[D")
	d.HandleInput("\x1bOP")
	d.HandleInput("\x07\t")
	if display.Len() != 0 || d.Len() != 0 || len(out.payloads) != 0 {
		t.Errorf("control input had effects: display=%q buf=%q sent=%q", display.String(), d.Buffer(), out.payloads)
	}

	d.HandleInput("a\x1b[Cb")
	if d.Buffer() != "ab" {
		t.Errorf("escape sequence leaked into buffer: %q", d.Buffer())
	}
}

func TestCRLFInOneEventSubmitsOnce(t *testing.T) {
	d, _, out := newTestDiscipline()
	d.HandleInput("pwd\r\n")
	if len(out.payloads) != 1 || out.payloads[0] != "pwd\n" {
		t.Errorf("sent %q, want one submission", out.payloads)
	}

	d.HandleInput("a\nb\n")
	if len(out.payloads) != 3 || out.payloads[1] != "a\n" || out.payloads[2] != "b\n" {
		t.Errorf("sent %q", out.payloads)
	}
}

func TestDisabledDropsInput(t *testing.T) {
	d, display, out := newTestDiscipline()
	d.Disable()
	d.HandleInput("ls\r")
	if display.Len() != 0 || len(out.payloads) != 0 || d.Len() != 0 {
		t.Error("disabled discipline reacted to input")
	}
	if d.Enabled() {
		t.Error("Enabled() = true after Disable")
	}

	d.Enable()
	d.HandleInput("ls\r")
	if len(out.payloads) != 1 {
		t.Errorf("re-enabled discipline sent %q", out.payloads)
	}
}

// The visible line must always hold exactly the buffered characters.
func TestBufferAndDisplayNeverDiverge(t *testing.T) {
	tests := []struct {
		name string
		keys []string
	}{
		{"ascii editing", []string{"g", "i", "t", " ", "s", "t", "\x7f", "\x7f", "c", "o", "m", "m", "i", "t", " ", "-", "m", " ", "\x17", "\x17", "\x7f", "x", "\x15", "l", "s"}},
		{"decomposed accent", []string{"cafe\u0301", "\x7f", "e\u0301", " ", "x", "\x17", "\x7f"}},
		{"accent typed alone", []string{"e", "\u0301", "\x7f", "a"}},
		{"emoji with modifier", []string{"ok ", "👍🏽", "\x7f", "👍🏽👍", "\x7f"}},
		{"wide characters", []string{"日本", "\x7f", "語 x", "\x17", "\x17", "中", "\x15"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, display, _ := newTestDiscipline()
			for _, k := range tt.keys {
				d.HandleInput(k)
				if got := visibleLine(display.String()); got != d.Buffer() {
					t.Fatalf("after %q: visible %q, buffer %q", k, got, d.Buffer())
				}
			}
		})
	}
}

// visibleLine replays echo output onto a single line of cells. A wide
// character fills its first cell and leaves the rest as continuations.
func visibleLine(s string) string {
	var cells []string
	cursor := 0
	var state byte
	for len(s) > 0 {
		seq, _, n, newState := ansi.DecodeSequence(s, state, nil)
		state = newState
		s = s[n:]
		if seq == "\b" {
			if cursor > 0 {
				cursor--
			}
			continue
		}
		w := ansi.StringWidth(seq)
		for i := 0; i < w; i++ {
			cell := ""
			if i == 0 {
				cell = seq
			}
			if cursor < len(cells) {
				cells[cursor] = cell
			} else {
				cells = append(cells, cell)
			}
			cursor++
		}
	}
	return strings.Join(cells[:cursor], "")
}

func TestRenderOutput(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a\nb\n", "a\r\nb\r\n"},
		{"file1\nfile2\n", "file1\r\nfile2\r\n"},
		{"no newline", "no newline"},
		{"\n", "\r\n"},
		{"already\r\nfine\n", "already\r\nfine\r\n"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := RenderOutput(tt.in); got != tt.want {
			t.Errorf("RenderOutput(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGraphemeEditing(t *testing.T) {
	tests := []struct {
		name   string
		keys   []string
		buffer string
		erased int
		sent   string
	}{
		{"decomposed accent is one character", []string{"e\u0301", "\x7f"}, "", 1, "\n"},
		{"accent joins previous character", []string{"ne", "\u0301", "\x7f"}, "n", 1, "n\n"},
		{"lone accent ignored", []string{"\u0301"}, "", 0, "\n"},
		{"wide character erases two cells", []string{"日", "\x7f"}, "", 2, "\n"},
		{"emoji modifier erased with base", []string{"a👍🏽", "\x7f"}, "a", 2, "a\n"},
		{"clear line counts cells", []string{"日本 é", "\x15"}, "", 6, "\n"},
		{"word erase over wide word", []string{"ls 日本", "\x17"}, "ls ", 4, "ls \n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, display, out := newTestDiscipline()
			for _, k := range tt.keys[:len(tt.keys)-1] {
				d.HandleInput(k)
			}
			display.Reset()
			d.HandleInput(tt.keys[len(tt.keys)-1])

			if d.Buffer() != tt.buffer {
				t.Errorf("Buffer() = %q, want %q", d.Buffer(), tt.buffer)
			}
			if display.String() != EraseCells(tt.erased) {
				t.Errorf("display = %q, want %d erased cells", display.String(), tt.erased)
			}
			d.HandleInput("\r")
			if len(out.payloads) != 1 || out.payloads[0] != tt.sent {
				t.Errorf("sent %q, want [%q]", out.payloads, tt.sent)
			}
		})
	}
}

func TestLenCountsCharacters(t *testing.T) {
	d, _, _ := newTestDiscipline()
	d.HandleInput("e\u0301日👍🏽x")
	if d.Len() != 4 {
		t.Errorf("Len() = %d, want 4", d.Len())
	}
}
