package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shubham-shewale/ticker-feed/cmd/watch/internal/window"
	"github.com/shubham-shewale/ticker-feed/pkg/models"
)

// sparkRunes maps discrete levels to block characters, lowest first.
var sparkRunes = []rune("▁▂▃▄▅▆▇█")

type PriceMsg models.PriceUpdate

type FeedClosedMsg struct{ Err error }

type keyMap struct {
	Up   key.Binding
	Down key.Binding
	Hide key.Binding
	Quit key.Binding
}

var keys = keyMap{
	Up:   key.NewBinding(key.WithKeys("up", "k")),
	Down: key.NewBinding(key.WithKeys("down", "j")),
	Hide: key.NewBinding(key.WithKeys("x")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

// Model renders one row per displayed symbol: latest price, last update
// time and a sparkline of the rolling window. History buffers are
// created lazily on the first event for a symbol and discarded when the
// symbol is hidden.
type Model struct {
	events <-chan models.PriceUpdate

	windows map[string]*window.Window
	latest  map[string]models.PriceUpdate
	order   []string

	selectedIndex int
	feedErr       error
	closed        bool
}

func NewModel(events <-chan models.PriceUpdate) Model {
	return Model{
		events:  events,
		windows: make(map[string]*window.Window),
		latest:  make(map[string]models.PriceUpdate),
	}
}

func (m Model) Init() tea.Cmd {
	return m.waitForUpdate()
}

func (m Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.events
		if !ok {
			return FeedClosedMsg{}
		}
		return PriceMsg(update)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case PriceMsg:
		update := models.PriceUpdate(msg)
		if _, ok := m.windows[update.Symbol]; !ok {
			m.windows[update.Symbol] = window.New(window.HistoryLen)
			m.order = append(m.order, update.Symbol)
		}
		m.windows[update.Symbol].Push(update.Price)
		m.latest[update.Symbol] = update
		return m, m.waitForUpdate()

	case FeedClosedMsg:
		m.closed = true
		m.feedErr = msg.Err
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.selectedIndex > 0 {
				m.selectedIndex--
			}
		case key.Matches(msg, keys.Down):
			if m.selectedIndex < len(m.order)-1 {
				m.selectedIndex++
			}
		case key.Matches(msg, keys.Hide):
			m.hideSelected()
		}
	}
	return m, nil
}

// hideSelected stops displaying a symbol and discards its history.
func (m *Model) hideSelected() {
	if m.selectedIndex >= len(m.order) {
		return
	}
	sym := m.order[m.selectedIndex]
	delete(m.windows, sym)
	delete(m.latest, sym)
	m.order = append(m.order[:m.selectedIndex], m.order[m.selectedIndex+1:]...)
	if m.selectedIndex >= len(m.order) && m.selectedIndex > 0 {
		m.selectedIndex--
	}
}

func (m Model) View() string {
	var b strings.Builder

	header := fmt.Sprintf("%-8s %12s %10s  %s", "Ticker", "Price", "Time", "Trend")
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	if len(m.order) == 0 {
		b.WriteString(statusStyle.Render("waiting for ticks..."))
		b.WriteString("\n")
	}

	for i, sym := range m.order {
		update := m.latest[sym]
		w := m.windows[sym]

		row := fmt.Sprintf("%-8s %12.2f %10s  ",
			sym,
			update.Price,
			time.UnixMilli(update.Timestamp).Format("15:04:05"))

		style := rowStyle
		if i == m.selectedIndex {
			style = selectedRowStyle
		}

		b.WriteString(style.Render(row))
		b.WriteString(Sparkline(w))
		b.WriteString("\n")
	}

	status := "q quit · ↑/↓ select · x hide"
	if m.closed {
		status = "feed disconnected"
		if m.feedErr != nil {
			status = "feed disconnected: " + m.feedErr.Error()
		}
	}
	b.WriteString(statusStyle.Render(status))

	return lipgloss.NewStyle().Padding(1, 2).Render(b.String())
}

// Sparkline renders the rolling window as colored block runes. Zero or
// one sample, or an all-equal window, draws a flat neutral baseline.
func Sparkline(w *window.Window) string {
	levels := w.Levels(len(sparkRunes))
	if len(levels) == 0 {
		return flatStyle.Render(string(sparkRunes[0]))
	}

	runes := make([]rune, len(levels))
	for i, lvl := range levels {
		runes[i] = sparkRunes[lvl]
	}

	switch w.Trend() {
	case window.Up:
		return upStyle.Render(string(runes))
	case window.Down:
		return downStyle.Render(string(runes))
	default:
		return flatStyle.Render(string(runes))
	}
}
