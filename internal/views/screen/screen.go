// Package screen renders the remote screen panel: a half-block preview of
// the latest raw frame, the stream settings and a frame-rate gauge.
package screen

import (
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"

	"github.com/opsdeck/console/internal/theme"
)

const (
	gaugeWidth = 20
	// gaugeMax is the frame rate that fills the gauge.
	gaugeMax = 30.0
)

// Model holds the screen panel state. Stream settings are copied in by the
// owner; the model only renders them.
type Model struct {
	Width  int
	Height int

	Host     string
	State    string
	Err      string
	Codec    string
	Quality  float64
	Display  string
	Geometry string
	// External is set when frames go to an out-of-process player.
	External  bool
	Truncated uint64
	// Player is a resource summary of the external player, if sampled.
	Player string

	frames   uint64
	lastTick time.Time
	rate     float64
	fps      float64
	fpsVel   float64
	spring   harmonica.Spring
}

// New creates a screen panel whose gauge is animated at tick intervals.
func New(tick time.Duration) Model {
	return Model{
		State:  "idle",
		spring: harmonica.NewSpring(harmonica.FPS(int(time.Second/tick)), 6.0, 1.0),
	}
}

// Tick records the painted frame count. The measured rate is eased into the
// gauge by a spring so it doesn't jitter between ticks.
func (m *Model) Tick(frames uint64, now time.Time) {
	if !m.lastTick.IsZero() && frames >= m.frames {
		if dt := now.Sub(m.lastTick).Seconds(); dt > 0 {
			m.rate = float64(frames-m.frames) / dt
		}
	}
	m.frames = frames
	m.lastTick = now
	m.fps, m.fpsVel = m.spring.Update(m.fps, m.fpsVel, m.rate)
}

// Reset clears the frame counters, for a new connection.
func (m *Model) Reset() {
	m.frames, m.rate, m.fps, m.fpsVel = 0, 0, 0, 0
	m.lastTick = time.Time{}
	m.Player = ""
}

// FPS is the eased frame rate.
func (m Model) FPS() float64 { return max(m.fps, 0) }

// View renders the panel around img, which may be nil.
func (m Model) View(img *image.RGBA) string {
	width := max(m.Width, 40)
	height := max(m.Height, 10)

	stateColor := theme.StateColor(m.State)
	header := theme.StyleHeader.Render("Screen: "+m.Host) + "  " +
		lipgloss.NewStyle().Foreground(stateColor).Render(theme.StateGlyph(m.State)+" "+m.State)

	settings := theme.StyleDimmed.Render(fmt.Sprintf("codec %s  quality %.1f  display %s %s",
		m.Codec, m.Quality, m.Display, m.Geometry))

	gauge := renderGauge(m.FPS()/gaugeMax, gaugeWidth) + fmt.Sprintf(" %4.1f fps", m.FPS())
	if m.Truncated > 0 {
		gauge += theme.StyleDimmed.Render(fmt.Sprintf("  %d short frames", m.Truncated))
	}

	lines := []string{header, settings, gauge}
	if m.Err != "" {
		lines = append(lines, theme.StyleError.Render(m.Err))
	}

	rows := height - len(lines) - 3
	switch {
	case m.External && m.State == "open":
		lines = append(lines, "", theme.StyleDimmed.Render("Streaming to external player."))
		if m.Player != "" {
			lines = append(lines, theme.StyleDimmed.Render(m.Player))
		}
	case img != nil && rows > 0:
		lines = append(lines, "", Preview(img, width-4, rows))
	default:
		lines = append(lines, "", theme.StyleDimmed.Render("No frame yet."))
	}

	footer := theme.StyleDimmed.Render("[c] codec  [+/-] quality  [tab] display  [x] disconnect  [esc] back")
	lines = append(lines, footer)

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// Preview scales img into a cols x rows grid of half blocks. Each cell shows
// two vertically stacked pixels: the upper in the foreground, the lower in
// the background. The aspect ratio is kept.
func Preview(img *image.RGBA, cols, rows int) string {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 || cols <= 0 || rows <= 0 {
		return ""
	}
	scale := min(float64(cols)/float64(w), float64(rows*2)/float64(h))
	outW := max(int(float64(w)*scale), 1)
	outH := max(int(float64(h)*scale), 2)

	var b strings.Builder
	for y := 0; y+1 < outH; y += 2 {
		if y > 0 {
			b.WriteByte('\n')
		}
		for x := 0; x < outW; x++ {
			sx := img.Rect.Min.X + x*w/outW
			top := pixel(img, sx, img.Rect.Min.Y+y*h/outH)
			bottom := pixel(img, sx, img.Rect.Min.Y+(y+1)*h/outH)
			b.WriteString(lipgloss.NewStyle().Foreground(top).Background(bottom).Render("▀"))
		}
	}
	return b.String()
}

func pixel(img *image.RGBA, x, y int) lipgloss.Color {
	i := img.PixOffset(x, y)
	p := img.Pix[i : i+3 : i+3]
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", p[0], p[1], p[2]))
}

func renderGauge(pct float64, width int) string {
	pct = min(max(pct, 0), 1)
	filled := int(pct * float64(width))
	color := theme.ColorHealthy
	switch {
	case pct < 0.2:
		color = theme.ColorDanger
	case pct < 0.5:
		color = theme.ColorWarning
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	return lipgloss.NewStyle().Foreground(color).Render(bar)
}
