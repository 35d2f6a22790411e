// Package tui is the terminal frontend: a bubbletea program browsing tasks
// and templates through the HTTP client.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"

	"github.com/sandeepkv93/trackd/internal/client"
)

type View string

const (
	ViewTasks     View = "Tasks"
	ViewTemplates View = "Templates"
	ViewDetail    View = "Detail"
	ViewNewTask   View = "New Task"
)

type StatusBar struct {
	Text    string
	IsError bool
}

type GlobalKeyMap struct {
	SwitchPane  string
	Refresh     string
	NewTask     string
	Delete      string
	SaveAs      string
	Instantiate string
	Toggle      string
	Help        string
	Quit        string
}

func defaultKeyMap() GlobalKeyMap {
	return GlobalKeyMap{
		SwitchPane:  "tab",
		Refresh:     "r",
		NewTask:     "n",
		Delete:      "d",
		SaveAs:      "s",
		Instantiate: "i",
		Toggle:      "c",
		Help:        "?",
		Quit:        "q",
	}
}

type Model struct {
	api *client.Client

	CurrentView  View
	taskList     list.Model
	templateList list.Model
	nameInput    textinput.Model
	syncSpinner  spinner.Model

	detail         client.TaskPage
	detailTemplate bool
	detailFrom     View
	page           int
	itemCursor     int

	Status      StatusBar
	Keys        GlobalKeyMap
	HelpVisible bool
	Loading     bool
	Quitting    bool
	width       int
}

func NewModel(api *client.Client) Model {
	taskList := newPaneList("Tasks")
	templateList := newPaneList("Templates")

	input := textinput.New()
	input.Placeholder = "task name"
	input.CharLimit = 256

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return Model{
		api:          api,
		CurrentView:  ViewTasks,
		taskList:     taskList,
		templateList: templateList,
		nameInput:    input,
		syncSpinner:  spin,
		page:         1,
		Keys:         defaultKeyMap(),
	}
}

func newPaneList(title string) list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 56, 16)
	l.Title = title
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	return l
}

// aggregateEntry adapts one task or template row to the list bubble.
type aggregateEntry struct {
	row client.Task
}

func (e aggregateEntry) Title() string { return e.row.Name }

func (e aggregateEntry) Description() string {
	if e.row.Description != "" {
		return e.row.Description
	}
	return fmt.Sprintf("%d items", e.row.ItemsCount)
}

func (e aggregateEntry) FilterValue() string { return e.row.Name }

func aggregateEntries(rows []client.Task) []list.Item {
	items := make([]list.Item, 0, len(rows))
	for _, row := range rows {
		items = append(items, aggregateEntry{row: row})
	}
	return items
}

// selectedAggregate returns the highlighted row of the active pane.
func (m Model) selectedAggregate() (client.Task, bool) {
	active := m.taskList
	if m.CurrentView == ViewTemplates {
		active = m.templateList
	}
	entry, ok := active.SelectedItem().(aggregateEntry)
	if !ok {
		return client.Task{}, false
	}
	return entry.row, true
}

func (m *Model) setStatus(text string) {
	m.Status = StatusBar{Text: text}
}

func (m *Model) setError(err error) {
	m.Status = StatusBar{Text: "error: " + err.Error(), IsError: true}
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	tabStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	activeTab     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("13"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	doneStyle     = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("8"))
)

func renderTabs(current View) string {
	tabs := make([]string, 0, 2)
	for _, v := range []View{ViewTasks, ViewTemplates} {
		label := string(v)
		if v == current {
			tabs = append(tabs, activeTab.Render(label))
		} else {
			tabs = append(tabs, tabStyle.Render(label))
		}
	}
	return strings.Join(tabs, "  ")
}
