package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/opsdeck/console/internal/api"
	"github.com/opsdeck/console/internal/channel"
	"github.com/opsdeck/console/internal/config"
	"github.com/opsdeck/console/internal/notify"
	"github.com/opsdeck/console/internal/screen"
	"github.com/opsdeck/console/internal/terminal"
	"github.com/opsdeck/console/internal/theme"
	"github.com/opsdeck/console/internal/views/debug"
	"github.com/opsdeck/console/internal/views/detail"
	"github.com/opsdeck/console/internal/views/help"
	"github.com/opsdeck/console/internal/views/hosts"
	screenview "github.com/opsdeck/console/internal/views/screen"
	"github.com/opsdeck/console/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayDetail
	OverlayDebug
	OverlayHelp
)

// Mode identifies the main panel.
type Mode int

const (
	ModeHosts Mode = iota
	ModeScreen
)

const (
	tickInterval = 100 * time.Millisecond
	qualityStep  = 0.1
	eventBuffer  = 64
	// statsEvery is how many ticks pass between player samples.
	statsEvery = 10
)

// Deps are the long-lived collaborators the console drives.
type Deps struct {
	Config *config.Config
	Client *api.Client
	Dialer *channel.Dialer
	Bus    *notify.Bus
	// Decoder plays the compressed codec. Without one, screens stream raw.
	Decoder screen.Decoder
	Logger  *slog.Logger
}

// EventMsg carries one host notification into the update loop.
type EventMsg notify.Event

type hostsMsg struct {
	hosts []api.Host
	err   error
}

type serverInfoMsg struct {
	info *api.ServerInfo
	err  error
}

type displaysMsg struct {
	addr     string
	displays []api.Display
	err      error
}

type negotiatedMsg struct {
	session  *screen.Session
	displays []api.Display
	err      error
}

type geometryMsg struct {
	session  *screen.Session
	displays []api.Display
	err      error
}

type screenChangeMsg struct {
	state channel.State
	err   error
}

type terminalDoneMsg struct {
	host string
	err  error
}

type tickMsg time.Time

type statsMsg struct {
	stats screen.PlayerStats
	err   error
}

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	// events carries messages produced on other goroutines: notifications
	// and screen state changes.
	events chan tea.Msg

	keys    KeyMap
	width   int
	height  int
	mode    Mode
	overlay Overlay

	statusBar  status.Model
	hosts      hosts.Model
	detail     detail.Model
	debug      debug.Model
	screenView screenview.Model

	scr       *screen.Session
	surface   *screen.ImageSurface
	scrOpts   screen.Options
	screenErr string
	ticks     int
}

// New creates the root model.
func New(deps Deps) Model {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return Model{
		deps:       deps,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan tea.Msg, eventBuffer),
		keys:       DefaultKeyMap(),
		statusBar:  status.New(),
		hosts:      hosts.New(),
		debug:      debug.New(),
		screenView: screenview.New(tickInterval),
		scrOpts:    screenOptions(deps.Config.Screen, deps.Decoder != nil),
	}
}

// screenOptions turns the configured defaults into connect options. Display
// is chosen after negotiation.
func screenOptions(cfg config.ScreenConfig, canDecode bool) screen.Options {
	codec, err := screen.ParseCodec(cfg.Codec)
	if err != nil || (codec == screen.CodecMPEG1 && !canDecode) {
		codec = screen.CodecRaw
	}
	format, err := screen.ParsePixelFormat(cfg.PixelFormat)
	if err != nil {
		format = screen.FormatRaw
	}
	return screen.Options{
		Display:          -1,
		Quality:          cfg.Quality,
		Codec:            codec,
		Format:           format,
		KeyframeInterval: cfg.KeyframeInterval,
	}
}

// Init subscribes to notifications and loads the host list.
func (m Model) Init() tea.Cmd {
	if m.deps.Bus != nil {
		events := m.events
		// Update does not run while a terminal holds the screen. Hosts are
		// re-fetched when it returns, so a full queue drops the event rather
		// than stalling the bus reader.
		m.deps.Bus.Subscribe(func(ev notify.Event) { post(events, EventMsg(ev)) })
		m.deps.Bus.Start()
	}
	return tea.Batch(m.listen(), m.fetchHosts(), m.fetchServerInfo(), tick())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.hosts.Width = msg.Width
		m.screenView.Width = msg.Width
		m.screenView.Height = msg.Height - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		return m.handleEvent(notify.Event(msg))

	case screenChangeMsg:
		if msg.err != nil {
			m.debug.Addf(debug.KindScreen, "%s: %v", msg.state, msg.err)
		} else {
			m.debug.Addf(debug.KindScreen, "%s", msg.state)
		}
		m.syncScreenView()
		return m, m.listen()

	case hostsMsg:
		if msg.err != nil {
			m.debug.Add(debug.KindErr, "list hosts: "+msg.err.Error())
			return m, nil
		}
		m.hosts.SetHosts(msg.hosts)
		m.statusBar.Hosts = m.hosts.Len()
		return m, nil

	case serverInfoMsg:
		if msg.err != nil {
			m.debug.Add(debug.KindErr, "server info: "+msg.err.Error())
			return m, nil
		}
		m.statusBar.Server = msg.info.Version
		m.debug.Addf(debug.KindAPI, "agent %s (%s)", msg.info.Version, msg.info.CommitHash)
		return m, nil

	case displaysMsg:
		if m.detail.Host == nil || m.detail.Host.Addr != msg.addr {
			return m, nil
		}
		if msg.err != nil {
			m.detail.DisplayErr = msg.err.Error()
			m.debug.Add(debug.KindErr, "list displays: "+msg.err.Error())
			return m, nil
		}
		m.detail.DisplayErr = ""
		m.detail.Displays = msg.displays
		return m, nil

	case negotiatedMsg:
		if msg.session != m.scr {
			return m, nil
		}
		if msg.err != nil {
			m.screenErr = msg.err.Error()
			m.debug.Add(debug.KindErr, "negotiate: "+msg.err.Error())
			m.syncScreenView()
			return m, nil
		}
		if m.scrOpts.Display < 0 || m.scrOpts.Display >= len(msg.displays) {
			m.scrOpts.Display = api.PrimaryDisplay(msg.displays)
		}
		m.debug.Addf(debug.KindScreen, "%d displays on %s", len(msg.displays), m.scr.Host)
		m.connectScreen()
		return m, nil

	case geometryMsg:
		if msg.session != m.scr {
			return m, nil
		}
		if msg.err != nil {
			m.debug.Add(debug.KindErr, "list displays: "+msg.err.Error())
			return m, nil
		}
		if err := m.scr.CheckGeometry(msg.displays); errors.Is(err, screen.ErrGeometryChanged) {
			m.screenErr = "display geometry changed, press r to renegotiate"
			m.debug.Add(debug.KindScreen, "display geometry changed")
		}
		m.syncScreenView()
		return m, nil

	case terminalDoneMsg:
		if msg.err != nil {
			m.debug.Addf(debug.KindErr, "terminal %s: %v", msg.host, msg.err)
		} else {
			m.debug.Addf(debug.KindTerm, "terminal %s ended", msg.host)
		}
		return m, m.fetchHosts()

	case tickMsg:
		if m.deps.Bus != nil {
			m.statusBar.BusState = m.deps.Bus.State().String()
			m.statusBar.Reconnects = m.deps.Bus.Reconnects()
		}
		if m.mode == ModeScreen && m.surface != nil {
			m.screenView.Tick(m.surface.Frames(), time.Time(msg))
			m.syncScreenView()
		}
		m.ticks++
		if m.ticks%statsEvery == 0 && m.mode == ModeScreen && m.screenView.External {
			return m, tea.Batch(tick(), m.sampleStats())
		}
		return m, tick()

	case statsMsg:
		if m.mode != ModeScreen {
			return m, nil
		}
		if msg.err != nil {
			m.screenView.Player = ""
			return m, nil
		}
		m.screenView.Player = fmt.Sprintf("player pid %d  cpu %.1f%%  rss %.1f MB",
			msg.stats.PID, msg.stats.CPUPercent, float64(msg.stats.RSS)/(1<<20))
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlay != OverlayNone {
		return m.handleOverlayKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.shutdown()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil
	}

	if m.mode == ModeScreen {
		return m.handleScreenKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Down):
		m.hosts.Next()

	case key.Matches(msg, m.keys.Up):
		m.hosts.Prev()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchHosts()

	case key.Matches(msg, m.keys.Enter):
		h, ok := m.hosts.Current()
		if !ok {
			return m, nil
		}
		m.detail = detail.New(&h, m.shells(h))
		m.overlay = OverlayDetail
		return m, m.fetchDisplays(h.Addr)

	case key.Matches(msg, m.keys.Terminal):
		if h, ok := m.hosts.Current(); ok {
			return m, m.openTerminal(h, m.shells(h)[0])
		}

	case key.Matches(msg, m.keys.Screen):
		if h, ok := m.hosts.Current(); ok {
			return m, m.openScreen(h)
		}
	}
	return m, nil
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Escape) {
		m.overlay = OverlayNone
		return m, nil
	}

	switch m.overlay {
	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		}

	case OverlayDetail:
		h := m.detail.Host
		switch {
		case key.Matches(msg, m.keys.Tab):
			m.detail.CycleShell()
		case key.Matches(msg, m.keys.Terminal):
			m.overlay = OverlayNone
			return m, m.openTerminal(*h, m.detail.SelectedShell())
		case key.Matches(msg, m.keys.Screen):
			m.overlay = OverlayNone
			return m, m.openScreen(*h)
		}
	}
	return m, nil
}

func (m Model) handleScreenKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.closeScreen()

	case key.Matches(msg, m.keys.Disconnect):
		m.scr.Disconnect()
		m.syncScreenView()

	case key.Matches(msg, m.keys.Refresh):
		m.scr.Disconnect()
		m.screenErr = ""
		return m, m.negotiate()

	case key.Matches(msg, m.keys.Codec):
		if m.deps.Decoder == nil {
			m.screenErr = "no decoder configured for " + string(screen.CodecMPEG1)
			m.syncScreenView()
			return m, nil
		}
		if m.scrOpts.Codec == screen.CodecRaw {
			m.scrOpts.Codec = screen.CodecMPEG1
		} else {
			m.scrOpts.Codec = screen.CodecRaw
		}
		m.reconnectScreen()

	case key.Matches(msg, m.keys.QualityUp), key.Matches(msg, m.keys.QualityDn):
		step := qualityStep
		if key.Matches(msg, m.keys.QualityDn) {
			step = -step
		}
		q := math.Round((m.scrOpts.Quality+step)*10) / 10
		q = min(max(q, screen.MinQuality), screen.MaxQuality)
		if q == m.scrOpts.Quality {
			return m, nil
		}
		m.scrOpts.Quality = q
		m.reconnectScreen()

	case key.Matches(msg, m.keys.Tab):
		n := len(m.scr.Displays())
		if n < 2 {
			return m, nil
		}
		m.scrOpts.Display = (m.scrOpts.Display + 1) % n
		m.reconnectScreen()
	}
	return m, nil
}

func (m Model) handleEvent(ev notify.Event) (tea.Model, tea.Cmd) {
	m.debug.Addf(debug.KindBus, "%s %s", ev.Kind, ev.HostAddress)
	m.hosts.Flash(ev.HostAddress, ev.Kind.String())

	cmds := []tea.Cmd{m.listen(), m.fetchHosts()}
	if ev.Kind == notify.Updated && m.scr != nil && m.scr.Host == ev.HostAddress {
		cmds = append(cmds, m.fetchGeometry())
	}
	if m.overlay == OverlayDetail && m.detail.Host != nil &&
		m.detail.Host.Addr == ev.HostAddress && ev.Kind != notify.Disconnected {
		cmds = append(cmds, m.fetchDisplays(ev.HostAddress))
	}
	return m, tea.Batch(cmds...)
}

// shells lists the shells offered for h, the configured one first.
func (m Model) shells(h api.Host) []string {
	shells := terminal.DefaultShells(h.TargetPlatform)
	if s := m.deps.Config.Terminal.Shell; s != "" {
		shells = append([]string{s}, shells...)
	}
	return shells
}

func (m *Model) openTerminal(h api.Host, shell string) tea.Cmd {
	m.debug.Addf(debug.KindTerm, "terminal %s with %s", h.Addr, shell)
	cmd := &terminalCmd{
		ctx: m.ctx,
		opts: terminal.Options{
			Host:   h.Addr,
			Shell:  shell,
			URL:    m.deps.Client.Endpoints().Terminal(h.Addr, shell),
			Dialer: m.deps.Dialer,
			Logger: m.logger,
		},
	}
	return tea.Exec(cmd, func(err error) tea.Msg {
		return terminalDoneMsg{host: h.Addr, err: err}
	})
}

func (m *Model) openScreen(h api.Host) tea.Cmd {
	if m.scr != nil {
		m.scr.Dispose()
	}
	events := m.events
	m.surface = &screen.ImageSurface{}
	m.scr = screen.NewSession(screen.Config{
		Host:      h.Addr,
		Displays:  m.deps.Client,
		Endpoints: m.deps.Client.Endpoints(),
		Dialer:    m.deps.Dialer,
		Surface:   m.surface,
		Decoder:   m.deps.Decoder,
		OnChange: func(state channel.State, err error) {
			// The tick re-reads session state, so a full queue can drop this.
			post(events, screenChangeMsg{state: state, err: err})
		},
		Logger: m.logger,
	})
	m.scrOpts.Display = -1
	m.screenErr = ""
	m.mode = ModeScreen
	m.screenView.Host = h.Addr
	m.screenView.Reset()
	m.debug.Addf(debug.KindScreen, "screen %s", h.Addr)
	m.syncScreenView()
	return m.negotiate()
}

func (m *Model) closeScreen() {
	if m.scr != nil {
		m.scr.Dispose()
	}
	m.scr = nil
	m.surface = nil
	m.mode = ModeHosts
}

func (m *Model) connectScreen() {
	m.screenErr = ""
	m.screenView.Reset()
	if err := m.scr.Connect(m.ctx, m.scrOpts); err != nil {
		m.screenErr = err.Error()
		m.debug.Add(debug.KindErr, "screen connect: "+err.Error())
	}
	m.syncScreenView()
}

func (m *Model) reconnectScreen() {
	m.scr.Disconnect()
	m.connectScreen()
}

// syncScreenView copies the session's state into the panel.
func (m *Model) syncScreenView() {
	if m.scr == nil {
		return
	}
	v := &m.screenView
	state := m.scr.State()
	v.State = state.String()
	v.Codec = string(m.scrOpts.Codec)
	v.Quality = m.scrOpts.Quality
	v.External = m.scrOpts.Codec == screen.CodecMPEG1
	v.Truncated = m.scr.Truncated()

	v.Display, v.Geometry = "", ""
	if displays := m.scr.Displays(); m.scrOpts.Display >= 0 && m.scrOpts.Display < len(displays) {
		d := displays[m.scrOpts.Display]
		v.Display = d.Name
		v.Geometry = fmt.Sprintf("%dx%d", d.Width, d.Height)
	}

	v.Err = m.screenErr
	if err := m.scr.Err(); v.Err == "" && err != nil && state == channel.StateClosed {
		v.Err = err.Error()
	}
}

func (m *Model) shutdown() {
	m.cancel()
	if m.scr != nil {
		m.scr.Dispose()
	}
	if m.deps.Bus != nil {
		m.deps.Bus.Subscribe(nil)
		m.deps.Bus.Close()
	}
}

// post queues msg for the update loop without blocking. It reports false
// when the queue is full and msg was dropped.
func post(events chan<- tea.Msg, msg tea.Msg) bool {
	select {
	case events <- msg:
		return true
	default:
		return false
	}
}

// listen waits for the next message from another goroutine. It is re-armed
// after each one is handled.
func (m Model) listen() tea.Cmd {
	events, done := m.events, m.ctx.Done()
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-done:
			return nil
		}
	}
}

func (m Model) fetchHosts() tea.Cmd {
	c, ctx := m.deps.Client, m.ctx
	return func() tea.Msg {
		hosts, err := c.ListHosts(ctx)
		return hostsMsg{hosts: hosts, err: err}
	}
}

func (m Model) fetchServerInfo() tea.Cmd {
	c, ctx := m.deps.Client, m.ctx
	return func() tea.Msg {
		info, err := c.ServerInfo(ctx)
		return serverInfoMsg{info: info, err: err}
	}
}

func (m Model) fetchDisplays(addr string) tea.Cmd {
	c, ctx := m.deps.Client, m.ctx
	return func() tea.Msg {
		displays, err := c.ListDisplays(ctx, addr)
		return displaysMsg{addr: addr, displays: displays, err: err}
	}
}

func (m Model) negotiate() tea.Cmd {
	scr, ctx := m.scr, m.ctx
	return func() tea.Msg {
		displays, err := scr.Negotiate(ctx)
		return negotiatedMsg{session: scr, displays: displays, err: err}
	}
}

func (m Model) fetchGeometry() tea.Cmd {
	c, scr, ctx := m.deps.Client, m.scr, m.ctx
	return func() tea.Msg {
		displays, err := c.ListDisplays(ctx, scr.Host)
		return geometryMsg{session: scr, displays: displays, err: err}
	}
}

// sampleStats reads the player's resource use, when the decoder can report
// it.
func (m Model) sampleStats() tea.Cmd {
	r, ok := m.deps.Decoder.(screen.StatsReporter)
	if !ok {
		return nil
	}
	ctx := m.ctx
	return func() tea.Msg {
		st, err := r.Stats(ctx)
		return statsMsg{stats: st, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// View renders the full console.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	var body, hint string
	switch m.mode {
	case ModeScreen:
		body = m.screenView.View(m.surface.Snapshot())
		hint = "  c:codec  +/-:quality  tab:display  x:disconnect  r:renegotiate  esc:back  d:log  ?:keys"
	default:
		body = m.hosts.View()
		hint = "  j/k:navigate  enter:detail  t:terminal  s:screen  r:refresh  d:log  ?:keys  q:quit"
	}

	switch m.overlay {
	case OverlayDetail:
		body = m.detail.View()
	case OverlayDebug:
		body = m.debug.View(m.width, m.height-4)
	case OverlayHelp:
		body = help.View(m.keys.HelpSections(), m.width)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		body,
		theme.StyleDimmed.Render(hint),
	)
}
