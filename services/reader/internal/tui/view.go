package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func (m Model) View() string {
	if m.quitting {
		return m.st.Muted.Render("Saving your place...") + "\n"
	}
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.header())
	b.WriteString("\n")
	b.WriteString(m.body())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	if m.jumping {
		b.WriteString(m.jump.View())
	} else {
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

func (m Model) header() string {
	title := m.title
	if title == "" {
		title = m.view.Position.BookID
	}
	return m.st.Title.Render(title) + "  " + m.st.Muted.Render(string(m.theme))
}

func (m Model) body() string {
	rows := m.pageRows()
	switch {
	case m.view.LoadErr != nil:
		msg := m.st.Error.Render("Could not open this book.") + "\n" +
			m.st.Muted.Render(m.view.LoadErr.Error()) + "\n\n" +
			m.st.Accent.Render("Press r to try again.")
		return lipgloss.Place(m.width, rows, lipgloss.Center, lipgloss.Center, msg)
	case !m.view.Restored:
		return lipgloss.Place(m.width, rows, lipgloss.Center, lipgloss.Center, m.spinner.View()+" Opening...")
	}

	pos := m.view.Position
	// The page box widens with zoom; height is bounded by the terminal.
	w := min(m.width-2, max(16, int(float64(m.width)/3*pos.ZoomLevel)))
	h := max(1, rows-3)
	content := fmt.Sprintf("Page %d\n\nof %d", pos.CurrentPage, m.view.TotalPages)
	page := m.st.Page.Width(w).Height(h).Render(content)

	frac := 0.0
	if m.view.TotalPages > 1 {
		frac = float64(pos.CurrentPage-1) / float64(m.view.TotalPages-1)
	}
	return lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.PlaceHorizontal(m.width, lipgloss.Center, page),
		m.bar.ViewAs(frac),
	)
}

func (m Model) statusLine() string {
	pos := m.view.Position
	parts := []string{}
	if m.view.Restored {
		parts = append(parts,
			fmt.Sprintf("%d / %d", pos.CurrentPage, m.view.TotalPages),
			fmt.Sprintf("%.0f%%", pos.ZoomLevel*100),
			m.saveState(),
		)
	}
	line := m.st.Status.Render(strings.Join(parts, "  ·  "))
	if m.notice != "" {
		line += "  " + m.st.Error.Render(m.notice) + m.st.Muted.Render(" (x to dismiss)")
	}
	return line
}

func (m Model) saveState() string {
	switch {
	case m.view.Saving:
		return m.st.Muted.Render("saving...")
	case m.view.SaveErr != nil:
		return m.st.Error.Render("not saved")
	default:
		return m.st.Ok.Render("saved")
	}
}
