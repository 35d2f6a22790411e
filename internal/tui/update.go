package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sandeepkv93/trackd/internal/client"
	"github.com/sandeepkv93/trackd/internal/model"
)

const requestTimeout = 10 * time.Second

type tasksLoadedMsg []client.Task

type templatesLoadedMsg []client.Task

type detailLoadedMsg struct {
	page     client.TaskPage
	template bool
}

type mutationDoneMsg struct {
	note string
}

type errMsg struct {
	err error
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.syncSpinner.Tick, m.loadTasks(), m.loadTemplates())
}

func (m Model) loadTasks() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		rows, err := m.api.ListTasks(ctx, "")
		if err != nil {
			return errMsg{err: err}
		}
		return tasksLoadedMsg(rows)
	}
}

func (m Model) loadTemplates() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		rows, err := m.api.ListTemplates(ctx)
		if err != nil {
			return errMsg{err: err}
		}
		return templatesLoadedMsg(rows)
	}
}

func (m Model) loadDetail(id int64, template bool, page int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		var (
			detail client.TaskPage
			err    error
		)
		if template {
			detail, err = m.api.GetTemplate(ctx, id, page)
		} else {
			detail, err = m.api.GetTask(ctx, id, page)
		}
		if err != nil {
			return errMsg{err: err}
		}
		return detailLoadedMsg{page: detail, template: template}
	}
}

func (m Model) createTask(name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		created, err := m.api.CreateTask(ctx, client.TaskDraft{Name: name})
		if err != nil {
			return errMsg{err: err}
		}
		return mutationDoneMsg{note: fmt.Sprintf("created %q", created.Name)}
	}
}

func (m Model) deleteTask(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := m.api.DeleteTask(ctx, id); err != nil {
			return errMsg{err: err}
		}
		return mutationDoneMsg{note: "task deleted"}
	}
}

func (m Model) saveAsTemplate(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		created, err := m.api.SaveAsTemplate(ctx, id)
		if err != nil {
			return errMsg{err: err}
		}
		return mutationDoneMsg{note: fmt.Sprintf("saved as template %q", created.Name)}
	}
}

func (m Model) instantiate(id int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		created, err := m.api.Instantiate(ctx, id)
		if err != nil {
			return errMsg{err: err}
		}
		return mutationDoneMsg{note: fmt.Sprintf("created task %q from template", created.Name)}
	}
}

func (m Model) toggleItem(taskID int64, item client.Item) tea.Cmd {
	next := string(model.StatusCompleted)
	if item.Status == string(model.StatusCompleted) {
		next = string(model.StatusInProcess)
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_, err := m.api.UpdateStatuses(ctx, taskID, []client.StatusUpdate{{ID: item.ID, Status: next}})
		if err != nil {
			return errMsg{err: err}
		}
		return mutationDoneMsg{note: fmt.Sprintf("item %d -> %s", item.ID, next)}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		if !m.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.syncSpinner, cmd = m.syncSpinner.Update(msg)
		return m, cmd

	case tasksLoadedMsg:
		m.Loading = false
		return m, m.taskList.SetItems(aggregateEntries(msg))

	case templatesLoadedMsg:
		m.Loading = false
		return m, m.templateList.SetItems(aggregateEntries(msg))

	case detailLoadedMsg:
		m.Loading = false
		m.detail = msg.page
		m.detailTemplate = msg.template
		m.page = currentPage(msg.page)
		m.itemCursor = 0
		m.CurrentView = ViewDetail
		return m, nil

	case mutationDoneMsg:
		m.Loading = false
		m.setStatus(msg.note)
		cmds := []tea.Cmd{m.loadTasks(), m.loadTemplates()}
		if m.CurrentView == ViewDetail {
			cmds = append(cmds, m.loadDetail(m.detail.Task.ID, m.detailTemplate, m.page))
		}
		return m, tea.Batch(cmds...)

	case errMsg:
		m.Loading = false
		m.setError(msg.err)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func currentPage(page client.TaskPage) int {
	if page.Previous != nil {
		return *page.Previous + 1
	}
	return 1
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.Quitting = true
		return m, tea.Quit
	}

	if m.CurrentView == ViewNewTask {
		return m.handleNewTaskKey(msg)
	}

	switch msg.String() {
	case m.Keys.Quit:
		m.Quitting = true
		return m, tea.Quit
	case m.Keys.Help:
		m.HelpVisible = !m.HelpVisible
		return m, nil
	case m.Keys.Refresh:
		m.Loading = true
		return m, tea.Batch(m.syncSpinner.Tick, m.loadTasks(), m.loadTemplates())
	}

	switch m.CurrentView {
	case ViewTasks, ViewTemplates:
		return m.handleBrowseKey(msg)
	case ViewDetail:
		return m.handleDetailKey(msg)
	}
	return m, nil
}

func (m Model) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case m.Keys.SwitchPane:
		if m.CurrentView == ViewTasks {
			m.CurrentView = ViewTemplates
		} else {
			m.CurrentView = ViewTasks
		}
		return m, nil

	case "enter":
		row, ok := m.selectedAggregate()
		if !ok {
			return m, nil
		}
		m.Loading = true
		m.detailFrom = m.CurrentView
		return m, tea.Batch(m.syncSpinner.Tick, m.loadDetail(row.ID, m.CurrentView == ViewTemplates, 1))

	case m.Keys.NewTask:
		if m.CurrentView != ViewTasks {
			return m, nil
		}
		m.CurrentView = ViewNewTask
		m.nameInput.SetValue("")
		return m, m.nameInput.Focus()

	case m.Keys.Delete:
		if m.CurrentView != ViewTasks {
			return m, nil
		}
		if row, ok := m.selectedAggregate(); ok {
			m.Loading = true
			return m, tea.Batch(m.syncSpinner.Tick, m.deleteTask(row.ID))
		}
		return m, nil

	case m.Keys.SaveAs:
		if m.CurrentView != ViewTasks {
			return m, nil
		}
		if row, ok := m.selectedAggregate(); ok {
			m.Loading = true
			return m, tea.Batch(m.syncSpinner.Tick, m.saveAsTemplate(row.ID))
		}
		return m, nil

	case m.Keys.Instantiate:
		if m.CurrentView != ViewTemplates {
			return m, nil
		}
		if row, ok := m.selectedAggregate(); ok {
			m.Loading = true
			return m, tea.Batch(m.syncSpinner.Tick, m.instantiate(row.ID))
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.CurrentView == ViewTasks {
		m.taskList, cmd = m.taskList.Update(msg)
	} else {
		m.templateList, cmd = m.templateList.Update(msg)
	}
	return m, cmd
}

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.CurrentView = m.detailFrom
		if m.CurrentView == "" {
			m.CurrentView = ViewTasks
		}
		return m, nil

	case "j", "down":
		if m.itemCursor < len(m.detail.Items)-1 {
			m.itemCursor++
		}
		return m, nil

	case "k", "up":
		if m.itemCursor > 0 {
			m.itemCursor--
		}
		return m, nil

	case "l", "right":
		if m.detail.Next != nil {
			m.Loading = true
			return m, tea.Batch(m.syncSpinner.Tick, m.loadDetail(m.detail.Task.ID, m.detailTemplate, *m.detail.Next))
		}
		return m, nil

	case "h", "left":
		if m.detail.Previous != nil {
			m.Loading = true
			return m, tea.Batch(m.syncSpinner.Tick, m.loadDetail(m.detail.Task.ID, m.detailTemplate, *m.detail.Previous))
		}
		return m, nil

	case m.Keys.Toggle:
		if m.detailTemplate || m.itemCursor >= len(m.detail.Items) {
			return m, nil
		}
		m.Loading = true
		return m, tea.Batch(m.syncSpinner.Tick, m.toggleItem(m.detail.Task.ID, m.detail.Items[m.itemCursor]))
	}
	return m, nil
}

func (m Model) handleNewTaskKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.CurrentView = ViewTasks
		m.nameInput.Blur()
		return m, nil
	case "enter":
		name := m.nameInput.Value()
		if name == "" {
			m.setStatus("a task needs a name")
			return m, nil
		}
		m.CurrentView = ViewTasks
		m.nameInput.Blur()
		m.Loading = true
		return m, tea.Batch(m.syncSpinner.Tick, m.createTask(name))
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}
