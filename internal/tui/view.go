package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/sandeepkv93/trackd/internal/model"
)

func (m Model) View() string {
	if m.Quitting {
		return ""
	}

	header := headerStyle.Render("trackd") + "  " + renderTabs(m.CurrentView)

	var body string
	switch m.CurrentView {
	case ViewTasks:
		body = panelStyle.Render(m.taskList.View())
	case ViewTemplates:
		body = panelStyle.Render(m.templateList.View())
	case ViewDetail:
		body = panelStyle.Render(m.renderDetail())
	case ViewNewTask:
		body = panelStyle.Render("New task\n\n" + m.nameInput.View())
	}

	lines := []string{header, body, m.renderStatus()}
	if m.HelpVisible {
		lines = append(lines, footerStyle.Render(m.helpText()))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderStatus() string {
	text := m.Status.Text
	if m.Loading {
		text = m.syncSpinner.View() + " working..."
	}
	if m.Status.IsError {
		return errorStyle.Render(text)
	}
	return statusStyle.Render(text)
}

func (m Model) renderDetail() string {
	kind := "Task"
	if m.detailTemplate {
		kind = "Template"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", headerStyle.Render(m.detail.Task.Name), tabStyle.Render(kind))
	if desc := renderMarkdown(m.detail.Task.Description); desc != "" {
		b.WriteString(desc + "\n")
	}
	fmt.Fprintf(&b, "\n%s\n", tabStyle.Render(fmt.Sprintf("%d items, page %d", m.detail.Count, m.page)))

	for i, item := range m.detail.Items {
		marker := "[ ]"
		line := item.Name
		if item.Status == string(model.StatusCompleted) {
			marker = "[x]"
			line = doneStyle.Render(line)
		}
		if len(item.Tags) > 0 {
			line += tabStyle.Render("  #" + strings.Join(item.Tags, " #"))
		}
		if item.PlannedDate != nil {
			line += tabStyle.Render("  " + *item.PlannedDate)
		}
		row := fmt.Sprintf("%s %s", marker, line)
		if i == m.itemCursor {
			row = selectedStyle.Render("> ") + row
		} else {
			row = "  " + row
		}
		b.WriteString(row + "\n")
	}

	nav := make([]string, 0, 2)
	if m.detail.Previous != nil {
		nav = append(nav, "h: prev page")
	}
	if m.detail.Next != nil {
		nav = append(nav, "l: next page")
	}
	if len(nav) > 0 {
		b.WriteString(footerStyle.Render(strings.Join(nav, "  ")))
	}
	return b.String()
}

func (m Model) helpText() string {
	keys := []string{
		m.Keys.SwitchPane + ": switch pane",
		"enter: open",
		m.Keys.NewTask + ": new task",
		m.Keys.Delete + ": delete task",
		m.Keys.SaveAs + ": save as template",
		m.Keys.Instantiate + ": instantiate template",
		m.Keys.Toggle + ": toggle item",
		m.Keys.Refresh + ": refresh",
		m.Keys.Quit + ": quit",
	}
	return strings.Join(keys, "  ")
}

func renderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return ""
	}
	out, err := glamour.Render(md, "dark")
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
