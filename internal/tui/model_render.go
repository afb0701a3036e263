package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/kestreldev/kestrel/internal/core/entity"
	"github.com/kestreldev/kestrel/internal/core/eventbus"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.width == 0 {
		return "loading..."
	}

	var body string
	switch m.view {
	case ViewHelp:
		body = m.renderHelp()
	case ViewSearch:
		body = m.renderSearch()
	case ViewDetail:
		body = m.renderDetail()
	default:
		body = m.renderTaskList()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderTitleBar(),
		body,
		m.renderStatusBar(),
	)
}

func (m *Model) renderTitleBar() string {
	title := "kestrel"
	if m.workspaceName != "" {
		title += " · " + m.workspaceName
	}
	left := styleTitle.Render(title)

	var right string
	if len(m.syncing) > 0 {
		right = styleMuted.Render(m.spinner.View() + "syncing")
	}

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) renderTaskList() string {
	if len(m.tasks) == 0 {
		if len(m.syncing) > 0 {
			return "\n  " + m.spinner.View() + " loading tasks...\n"
		}
		return "\n  " + styleMuted.Render("No tasks. Press r to refresh.") + "\n"
	}

	visible := max(m.height-4, 3)
	start := 0
	if m.cursor >= visible {
		start = m.cursor - visible + 1
	}
	end := min(start+visible, len(m.tasks))

	now := m.now()
	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(m.renderTaskRow(m.tasks[i], i == m.cursor, now))
		b.WriteByte('\n')
	}
	if end < len(m.tasks) {
		b.WriteString(styleMuted.Render(fmt.Sprintf("  … %d more", len(m.tasks)-end)))
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *Model) renderTaskRow(t *entity.Task, selected bool, now time.Time) string {
	cursor := "  "
	if selected {
		cursor = styleSelected.Render("> ")
	}

	check := "[ ]"
	if t.Completed {
		check = "[x]"
	}

	name := t.Name
	maxName := max(m.width-30, 10)
	if lipgloss.Width(name) > maxName {
		name = name[:maxName-1] + "…"
	}
	if t.Completed {
		name = styleCompleted.Render(name)
	} else if selected {
		name = styleSelected.Render(name)
	}

	due := m.renderDue(t, now)
	row := fmt.Sprintf("%s%s %s", cursor, check, name)
	gap := m.width - lipgloss.Width(row) - lipgloss.Width(due) - 2
	if gap < 1 {
		gap = 1
	}
	return row + strings.Repeat(" ", gap) + due
}

func (m *Model) renderDue(t *entity.Task, now time.Time) string {
	if t.DueAt == nil {
		return ""
	}
	text := t.DueDisplay(now)
	switch t.Priority(now) {
	case entity.PriorityCritical:
		return styleDueCritical.Render(text)
	case entity.PriorityHigh:
		return styleDueHigh.Render(text)
	case entity.PriorityMedium:
		return styleDueMedium.Render(text)
	default:
		return styleMuted.Render(text)
	}
}

func (m *Model) renderDetail() string {
	if m.selected == nil {
		return styleMuted.Render("nothing selected")
	}
	if !m.detailReady {
		m.detailVP.SetContent(m.buildDetailContent())
		m.detailReady = true
	}

	var sections []string
	sections = append(sections, m.detailVP.View())
	if m.mode != inputNone {
		prompt := "comment"
		if m.mode == inputDue {
			prompt = "due"
		}
		sections = append(sections,
			styleInputPrompt.Render(prompt+"> ")+m.textInput.View())
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// buildDetailContent assembles the scrollable detail body. Rendered
// notes are cached per task version; scrolling must never re-run the
// markdown renderer.
func (m *Model) buildDetailContent() string {
	t := m.selected
	now := m.now()

	var b strings.Builder
	b.WriteString(styleDetailHeader.Width(max(m.width-4, 20)).Render(t.Name))
	b.WriteByte('\n')

	meta := []string{m.renderDue(t, now)}
	if t.AssigneeName != "" {
		meta = append(meta, styleMuted.Render("assignee: ")+t.AssigneeName)
	}
	if len(t.Tags) > 0 {
		meta = append(meta, styleMuted.Render("tags: ")+strings.Join(t.Tags, ", "))
	}
	if t.Completed {
		meta = append(meta, styleToastInfo.Render("completed"))
	}
	b.WriteString(strings.Join(meta, "   "))
	b.WriteString("\n\n")

	if t.Notes != "" {
		b.WriteString(m.renderedNotes(t))
		b.WriteString("\n\n")
	}

	b.WriteString(styleDetailHeader.Render(fmt.Sprintf("Comments (%d)", len(m.comments))))
	b.WriteByte('\n')
	if len(m.comments) == 0 {
		b.WriteString(styleMuted.Render("no comments yet"))
		b.WriteByte('\n')
	}
	for _, c := range m.comments {
		author := c.AuthorName
		if author == "" {
			author = "someone"
		}
		b.WriteString(styleCommentAuthor.Render(author))
		b.WriteString(" ")
		b.WriteString(styleCommentTime.Render(humanize.Time(c.CreatedAt)))
		b.WriteByte('\n')
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// renderedNotes returns the glamour-rendered note body, cached by task
// version and width.
func (m *Model) renderedNotes(t *entity.Task) string {
	key := fmt.Sprintf("%s|%d|%d", t.Gid, t.ModifiedAt.UnixNano(), m.width)
	if cached, ok := m.renderCache.Get(key); ok {
		return cached
	}
	out := m.renderer.Render(t.Notes)
	m.renderCache.Set(key, out)
	return out
}

func (m *Model) renderSearch() string {
	var b strings.Builder
	b.WriteString(styleInputPrompt.Render("search> "))
	b.WriteString(m.searchInput.View())
	b.WriteString("\n\n")

	if len(m.results) == 0 {
		b.WriteString(styleMuted.Render("  no matches"))
		b.WriteByte('\n')
		return b.String()
	}

	visible := max(m.height-6, 3)
	for i, r := range m.results {
		if i >= visible {
			b.WriteString(styleMuted.Render(fmt.Sprintf("  … %d more", len(m.results)-i)))
			b.WriteByte('\n')
			break
		}
		line := "  " + r.Text
		if i == m.searchCursor {
			line = styleSelected.Render("> " + r.Text)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func (m *Model) renderHelp() string {
	return "\n" + m.help.FullHelpView(m.keys.FullHelp()) + "\n\n" +
		styleMuted.Render("  press any key to go back") + "\n"
}

func (m *Model) renderStatusBar() string {
	if len(m.toasts) > 0 {
		t := m.toasts[len(m.toasts)-1]
		switch t.notification.Level {
		case eventbus.LevelError:
			return styleToastError.Render(t.notification.Message)
		case eventbus.LevelWarning:
			return styleToastWarning.Render(t.notification.Message)
		default:
			return styleToastInfo.Render(t.notification.Message)
		}
	}
	return styleStatusBar.Render(m.help.ShortHelpView(m.keys.ShortHelp()))
}
