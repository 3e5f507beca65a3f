package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/keytune/internal/errs"
	"github.com/muurk/keytune/internal/session"
	"github.com/muurk/keytune/internal/transport"
)

// historySize is how many transitions the watch view keeps.
const historySize = 8

// WatchSource is the part of a session the watch view drives.
type WatchSource interface {
	Status() session.Status
	Subscribe(session.Observer) func()
	AutoConnect(ctx context.Context) (*transport.DeviceInfo, error)
	Disconnect() error
}

type watchKeyMap struct {
	Connect    key.Binding
	Disconnect key.Binding
	Quit       key.Binding
}

// ShortHelp implements help.KeyMap
func (k watchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Connect, k.Disconnect, k.Quit}
}

// FullHelp implements help.KeyMap
func (k watchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var watchKeys = watchKeyMap{
	Connect: key.NewBinding(
		key.WithKeys("c"),
		key.WithHelp("c", "connect"),
	),
	Disconnect: key.NewBinding(
		key.WithKeys("d"),
		key.WithHelp("d", "disconnect"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// StatusMsg carries a session status push into the program.
type StatusMsg session.Status

// actionMsg reports the outcome of a connect or disconnect key press.
type actionMsg struct {
	action string
	err    error
}

// WatchModel is a live view of the connection lifecycle.
type WatchModel struct {
	ctx     context.Context
	src     WatchSource
	status  session.Status
	history []session.Status
	spinner spinner.Model
	help    help.Model
	lastErr error
	busy    string
	width   int
}

// NewWatchModel starts from the source's current status.
func NewWatchModel(ctx context.Context, src WatchSource) WatchModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(WarningColor)
	st := src.Status()
	return WatchModel{
		ctx:     ctx,
		src:     src,
		status:  st,
		history: []session.Status{st},
		spinner: sp,
		help:    help.New(),
		width:   GetTerminalWidth(),
	}
}

// Status returns the most recent status the model has seen.
func (m WatchModel) Status() session.Status { return m.status }

// History returns the retained transitions, oldest first.
func (m WatchModel) History() []session.Status { return m.history }

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case StatusMsg:
		st := session.Status(msg)
		m.status = st
		m.history = append(m.history, st)
		if len(m.history) > historySize {
			m.history = m.history[len(m.history)-historySize:]
		}
		return m, nil

	case actionMsg:
		m.busy = ""
		m.lastErr = msg.err
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, watchKeys.Quit):
			return m, tea.Quit
		case key.Matches(msg, watchKeys.Connect):
			if m.busy != "" {
				return m, nil
			}
			m.busy = "connecting"
			return m, m.connect()
		case key.Matches(msg, watchKeys.Disconnect):
			if m.busy != "" {
				return m, nil
			}
			m.busy = "disconnecting"
			return m, m.disconnect()
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.help.Width = m.width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m WatchModel) connect() tea.Cmd {
	ctx, src := m.ctx, m.src
	return func() tea.Msg {
		_, err := src.AutoConnect(ctx)
		return actionMsg{action: "connect", err: err}
	}
}

func (m WatchModel) disconnect() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		return actionMsg{action: "disconnect", err: src.Disconnect()}
	}
}

func transitional(s session.State) bool {
	return s == session.Connecting || s == session.Connected || s == session.Initializing
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(NewHeader("Keyboard status", "keytune watch").SetWidth(m.width).Render())
	b.WriteString("\n\n")

	state := StateStyle(m.status.State).Render(m.status.StateName)
	if transitional(m.status.State) {
		state = m.spinner.View() + " " + state
	}
	b.WriteString(ResultKeyStyle.Render("  State:") + " " + state + "\n")
	for _, d := range StatusDetails(m.status)[1:] {
		b.WriteString(ResultKeyStyle.Render("  "+d.Key+":") + " " + d.Value + "\n")
	}
	if m.busy != "" {
		b.WriteString("\n  " + StepRunningStyle.Render(m.busy+"...") + "\n")
	}
	if m.lastErr != nil {
		b.WriteString("\n  " + ErrorMessageStyle.Render(FailureMarker+" "+errs.ShortMessage(m.lastErr)) + "\n")
	}

	b.WriteString("\n  " + TroubleshootingTitleStyle.Render("Recent transitions") + "\n")
	for i := len(m.history) - 1; i >= 0; i-- {
		st := m.history[i]
		line := fmt.Sprintf("  %s  %s", st.At.Format(time.TimeOnly), StateStyle(st.State).Render(st.StateName))
		if st.Message != "" {
			line += "  " + StepNoteStyle.Render(st.Message)
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n  " + m.help.View(watchKeys) + "\n")
	return b.String()
}

// RunWatch runs the watch view until the user quits or ctx ends.
func RunWatch(ctx context.Context, src WatchSource, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(NewWatchModel(ctx, src), append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)
	unsubscribe := src.Subscribe(session.ObserverFunc(func(st session.Status) {
		p.Send(StatusMsg(st))
	}))
	defer unsubscribe()

	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
