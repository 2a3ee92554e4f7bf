// Package tui is the terminal reader built on Bubble Tea.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/example/pagemark/services/reader/internal/prefs"
	"github.com/example/pagemark/services/reader/internal/session"
)

// Terminal cells are mapped to a nominal pixel size so drag distances and the
// viewport use the same units as the session.
const (
	cellWidth    = 8
	cellHeight   = 16
	chromeRows   = 4
	flushTimeout = 3 * time.Second
)

// Reader is the part of *session.Session the UI drives.
type Reader interface {
	Snapshot() session.View
	Events() <-chan session.Event
	Next() bool
	Prev() bool
	First() bool
	Last() bool
	JumpTo(page int) error
	ZoomIn() bool
	ZoomOut() bool
	Swipe(dx, dy float64) bool
	SetViewport(width, height float64)
	Reload(ctx context.Context) error
	Flush(ctx context.Context) error
}

type Options struct {
	Context   context.Context
	Reader    Reader
	Title     string
	Theme     prefs.Theme
	PrefsPath string
	Logger    *zap.Logger
}

type eventMsg struct{ ev session.Event }

type eventsClosedMsg struct{}

type flushedMsg struct{ err error }

type Model struct {
	ctx       context.Context
	reader    Reader
	title     string
	prefsPath string
	log       *zap.Logger

	keys    keyMap
	help    help.Model
	spinner spinner.Model
	bar     progress.Model
	jump    textinput.Model

	theme prefs.Theme
	st    styles

	width, height int
	view          session.View
	notice        string
	jumping       bool
	quitting      bool

	dragging     bool
	dragX, dragY int
}

func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	theme := opts.Theme
	if !theme.Valid() {
		theme = prefs.ThemeLight
	}

	ti := textinput.New()
	ti.Prompt = "Go to page: "
	ti.CharLimit = 7
	ti.Placeholder = "number"

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:       ctx,
		reader:    opts.Reader,
		title:     opts.Title,
		prefsPath: opts.PrefsPath,
		log:       log,
		keys:      defaultKeyMap(),
		help:      help.New(),
		spinner:   sp,
		bar:       progress.New(progress.WithSolidFill("#888888"), progress.WithoutPercentage()),
		jump:      ti,
		theme:     theme,
		st:        stylesFor(theme),
		view:      opts.Reader.Snapshot(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitEvent(m.reader.Events()), m.spinner.Tick)
}

func waitEvent(ch <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return eventsClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.bar.Width = max(10, msg.Width-4)
		m.reader.SetViewport(float64(msg.Width*cellWidth), float64(m.pageRows()*cellHeight))
		m.view = m.reader.Snapshot()
		return m, nil

	case eventMsg:
		m.view = m.reader.Snapshot()
		switch msg.ev.Kind {
		case session.EventSaveFailed:
			m.notice = fmt.Sprintf("Could not save your position on page %d.", msg.ev.Position.CurrentPage)
		case session.EventSaved:
			if strings.HasPrefix(m.notice, "Could not save") {
				m.notice = ""
			}
		}
		return m, waitEvent(m.reader.Events())

	case eventsClosedMsg:
		return m, nil

	case flushedMsg:
		if msg.err != nil {
			m.log.Warn("final progress save failed", zap.Error(msg.err))
		}
		return m, tea.Quit

	case spinner.TickMsg:
		if m.view.Restored || m.view.LoadErr != nil {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.KeyMsg:
		if m.jumping {
			return m.handleJumpKey(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, m.flush()
	case key.Matches(msg, m.keys.Next):
		m.reader.Next()
	case key.Matches(msg, m.keys.Prev):
		m.reader.Prev()
	case key.Matches(msg, m.keys.First):
		m.reader.First()
	case key.Matches(msg, m.keys.Last):
		m.reader.Last()
	case key.Matches(msg, m.keys.ZoomIn):
		m.reader.ZoomIn()
	case key.Matches(msg, m.keys.ZoomOut):
		m.reader.ZoomOut()
	case key.Matches(msg, m.keys.Jump):
		if !m.view.Restored {
			return m, nil
		}
		m.jumping = true
		m.jump.SetValue("")
		return m, m.jump.Focus()
	case key.Matches(msg, m.keys.Retry):
		if m.view.LoadErr != nil {
			if err := m.reader.Reload(m.ctx); err != nil {
				m.notice = err.Error()
			}
			m.view = m.reader.Snapshot()
			return m, m.spinner.Tick
		}
	case key.Matches(msg, m.keys.Theme):
		m.theme = m.theme.Next()
		m.st = stylesFor(m.theme)
		if m.prefsPath != "" {
			if err := prefs.Save(m.prefsPath, prefs.Prefs{Theme: m.theme}); err != nil {
				m.log.Warn("save prefs", zap.Error(err))
			}
		}
	case key.Matches(msg, m.keys.Dismiss):
		m.notice = ""
	}
	m.view = m.reader.Snapshot()
	return m, nil
}

func (m Model) handleJumpKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.jumping = false
		m.jump.Blur()
		return m, nil
	case tea.KeyEnter:
		m.jumping = false
		m.jump.Blur()
		raw := strings.TrimSpace(m.jump.Value())
		page, err := strconv.Atoi(raw)
		if err != nil {
			m.notice = fmt.Sprintf("%q is not a page number.", raw)
			return m, nil
		}
		if err := m.reader.JumpTo(page); err != nil {
			var verr *session.ValidationError
			if errors.As(err, &verr) {
				m.notice = fmt.Sprintf("Page must be between %d and %d.", verr.Min, verr.Max)
			} else {
				m.notice = err.Error()
			}
		}
		m.view = m.reader.Snapshot()
		return m, nil
	}
	var cmd tea.Cmd
	m.jump, cmd = m.jump.Update(msg)
	return m, cmd
}

func (m Model) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Button == tea.MouseButtonWheelDown:
		m.reader.Next()
	case msg.Button == tea.MouseButtonWheelUp:
		m.reader.Prev()
	case msg.Action == tea.MouseActionPress && msg.Button == tea.MouseButtonLeft:
		m.dragging = true
		m.dragX, m.dragY = msg.X, msg.Y
		return m, nil
	case msg.Action == tea.MouseActionRelease && m.dragging:
		m.dragging = false
		dx := float64((msg.X - m.dragX) * cellWidth)
		dy := float64((msg.Y - m.dragY) * cellHeight)
		m.reader.Swipe(dx, dy)
	default:
		return m, nil
	}
	m.view = m.reader.Snapshot()
	return m, nil
}

// flush writes any pending position before the program exits.
func (m Model) flush() tea.Cmd {
	r, ctx := m.reader, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, flushTimeout)
		defer cancel()
		return flushedMsg{err: r.Flush(ctx)}
	}
}

func (m Model) pageRows() int {
	return max(3, m.height-chromeRows)
}
