// Package linedisc fakes a terminal line discipline on the console side.
//
// The remote process reads its standard input through a pipe: it never
// echoes, never interprets editing keys, and only sees complete lines. A
// Discipline keeps the unsubmitted line locally, echoes and edits it on the
// display, and forwards input to the remote only on Enter, interrupt or
// end-of-input. Every change to the line buffer is paired with the matching
// redraw, so the buffer and the visible line never diverge.
package linedisc

import (
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Control bytes recognised by the discipline.
const (
	Interrupt  = 0x03 // ^C
	EndOfInput = 0x04 // ^D
	Backspace  = 0x08 // ^H
	ClearLine  = 0x15 // ^U
	DeleteWord = 0x17 // ^W
	Delete     = 0x7f
)

const eraseCell = "\b \b"

// Sender forwards submitted input to the remote side.
type Sender interface {
	SendText(string)
}

// grapheme is one user-perceived character on the input line and the number
// of cells it occupies.
type grapheme struct {
	text  string
	width int
}

// Discipline is the line-editing state for one terminal session. It is not
// safe for concurrent use; the owning session serialises access.
type Discipline struct {
	display io.Writer
	sender  Sender
	buf     []grapheme
	enabled bool
}

// New returns an enabled Discipline that echoes to display and submits
// through sender.
func New(display io.Writer, sender Sender) *Discipline {
	return &Discipline{display: display, sender: sender, enabled: true}
}

// Buffer returns the unsubmitted line.
func (d *Discipline) Buffer() string {
	var b strings.Builder
	for _, g := range d.buf {
		b.WriteString(g.text)
	}
	return b.String()
}

// Len is the number of characters echoed but not yet submitted. A character
// is a grapheme cluster, so "e" plus a combining accent counts once.
func (d *Discipline) Len() int { return len(d.buf) }

// Reset empties the line buffer without touching the display.
func (d *Discipline) Reset() { d.buf = d.buf[:0] }

// Enable turns input handling back on and clears the buffer.
func (d *Discipline) Enable() {
	d.Reset()
	d.enabled = true
}

// Disable drops all further input until Enable is called.
func (d *Discipline) Disable() { d.enabled = false }

// Enabled reports whether input is being handled.
func (d *Discipline) Enabled() bool { return d.enabled }

// HandleInput processes one keystroke event. An event may carry several
// keys at once (a paste, or a burst read from a raw tty); escape sequences
// such as arrow keys arrive as a single token and are ignored.
func (d *Discipline) HandleInput(data string) {
	if !d.enabled {
		return
	}
	var state byte
	prevCR := false
	for len(data) > 0 {
		seq, _, n, newState := ansi.DecodeSequence(data, state, nil)
		state = newState
		data = data[n:]
		if n == 0 {
			break
		}

		if len(seq) == 1 && (seq[0] < 0x20 || seq[0] == Delete) {
			c := seq[0]
			if c == '\n' && prevCR {
				prevCR = false
				continue
			}
			prevCR = c == '\r'
			d.control(c)
			continue
		}
		prevCR = false

		if seq[0] == ansi.ESC {
			// SS3 keys (application-mode arrows, F1-F4) carry one more byte.
			if seq == "\x1bO" && len(data) > 0 {
				data = data[1:]
			}
			continue
		}
		if r, _ := utf8.DecodeRuneInString(seq); r == utf8.RuneError || !unicode.IsGraphic(r) {
			continue
		}
		d.insert(seq)
	}
}

func (d *Discipline) control(c byte) {
	switch c {
	case '\r', '\n':
		d.echo("\r\n")
		d.sender.SendText(d.Buffer() + "\n")
		d.Reset()
	case Backspace, Delete:
		if len(d.buf) == 0 {
			return
		}
		d.truncate(len(d.buf) - 1)
	case Interrupt:
		d.echo("^C\r\n")
		d.sender.SendText(string(rune(Interrupt)))
		d.Reset()
	case EndOfInput:
		d.sender.SendText(string(rune(EndOfInput)))
	case ClearLine:
		d.truncate(0)
	case DeleteWord:
		d.truncate(wordErase(d.buf))
	}
}

// truncate keeps the first n graphemes and blanks the cells of the rest.
func (d *Discipline) truncate(n int) {
	cells := 0
	for _, g := range d.buf[n:] {
		cells += g.width
	}
	d.buf = d.buf[:n]
	d.echo(EraseCells(cells))
}

// insert appends one grapheme cluster. A zero-width cluster (a combining
// mark typed on its own) joins the character before it, as the display
// draws it in that character's cell.
func (d *Discipline) insert(s string) {
	w := ansi.StringWidth(s)
	if w == 0 {
		if len(d.buf) == 0 {
			return
		}
		d.buf[len(d.buf)-1].text += s
		d.echo(s)
		return
	}
	d.buf = append(d.buf, grapheme{text: s, width: w})
	d.echo(s)
}

func (d *Discipline) echo(s string) {
	if s == "" {
		return
	}
	_, _ = io.WriteString(d.display, s)
}

// wordErase returns how many leading graphemes of buf survive a word erase:
// trailing whitespace is skipped, then everything back to and excluding the
// previous space is removed.
func wordErase(buf []grapheme) int {
	end := len(buf)
	for end > 0 && isSpace(buf[end-1]) {
		end--
	}
	for i := end - 1; i >= 0; i-- {
		if buf[i].text == " " {
			return i + 1
		}
	}
	return 0
}

func isSpace(g grapheme) bool {
	r, _ := utf8.DecodeRuneInString(g.text)
	return unicode.IsSpace(r)
}

// EraseCells returns the redraw that blanks n cells to the left of the
// cursor.
func EraseCells(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(eraseCell, n)
}

// RenderOutput prepares remote output for the display. The remote side only
// emits bare line feeds, so each one not already preceded by a carriage
// return gains one.
func RenderOutput(s string) string {
	lf := strings.Count(s, "\n")
	if lf == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + lf)
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && (i == 0 || s[i-1] != '\r') {
			b.WriteByte('\r')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
