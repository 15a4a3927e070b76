package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/reportcheck/internal/events"
	"github.com/alexisbeaulieu97/reportcheck/internal/tui/components"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, nil
	case EventMsg:
		m.apply(msg.Event)
		return m, nil
	case DoneMsg:
		m.finished = true
		m.result = msg.Result
		m.err = msg.Err
		if msg.Result != nil && msg.Result.Record != nil {
			m.runID = msg.Result.Record.ID
			m.elapsed = msg.Result.Record.TotalDuration()
		}
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			if m.cancel == nil {
				m.finished = true
				return m, tea.Quit
			}
			// DoneMsg follows once the engine has recorded the failure.
			m.cancel()
			return m, nil
		}
	case tea.QuitMsg:
		m.finished = true
		return m, nil
	}

	return m, nil
}

func (m *Model) apply(event events.Event) {
	switch event.Type {
	case events.RunStarted:
		m.runID = event.RunID
		m.started = event.Time
		return
	case events.RunCompleted, events.RunFailed:
		if !m.started.IsZero() && !event.Time.IsZero() {
			m.elapsed = event.Time.Sub(m.started)
		}
		return
	}

	if event.Stage == "" {
		return
	}
	entry, _ := m.stages.Get(event.Stage)
	entry.Name = event.Stage
	wasDone := entry.Done()

	switch event.Type {
	case events.StageStarted:
		entry.Status = components.StatusRunning
	case events.StageRetrying:
		entry.Status = components.StatusRetrying
		entry.Attempt = event.Attempt
	case events.StageCompleted:
		entry.Status = components.StatusSuccess
		entry.Duration = event.Duration
		if !wasDone {
			m.completed++
		}
	case events.StageFailed:
		entry.Status = components.StatusFailed
		entry.Attempt = event.Attempt
	default:
		return
	}
	m.stages.Set(entry)
}
