package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/alexisbeaulieu97/reportcheck/internal/tui/components"
	rcerrors "github.com/alexisbeaulieu97/reportcheck/pkg/errors"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("reportcheck • %s", m.heading())))

	progress := components.NewProgress(m.total).View(m.completed)
	sections = append(sections, sectionStyle.Render("Progress"), progress)

	if entries := m.stages.Entries(); len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Stages"), renderStageEntries(entries))
	}

	failure := ""
	if m.err != nil && !m.cancelled {
		failure = rcerrors.UserMessage(m.err)
	}
	summary := components.NewSummary(components.SummaryData{
		RunID:     m.runID,
		Model:     m.model,
		Total:     m.total,
		Completed: m.completed,
		Finished:  m.finished,
		Cancelled: m.cancelled,
		Elapsed:   m.elapsed,
		Failure:   failure,
	}).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	if !m.finished {
		sections = append(sections, hintStyle.Render("Ctrl+C to cancel"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func renderStageEntries(entries []components.StageEntry) string {
	var lines []string
	for _, entry := range entries {
		line := fmt.Sprintf(" %s %s", StatusIcon(entry.Status), entry.Name)
		if entry.Status == components.StatusRetrying && entry.Attempt > 0 {
			line = fmt.Sprintf("%s (retry after attempt %d)", line, entry.Attempt)
		}
		if entry.Duration > 0 {
			line = fmt.Sprintf("%s (%s)", line, entry.Duration.Truncate(10*time.Millisecond))
		}
		if entry.Status == components.StatusFailed && entry.Attempt > 1 {
			line = fmt.Sprintf("%s (gave up after %d attempts)", line, entry.Attempt)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m Model) heading() string {
	if strings.TrimSpace(m.title) != "" {
		return m.title
	}
	return "Review"
}

// StatusIcon returns the glyph representing a stage status.
func StatusIcon(status string) string {
	switch status {
	case components.StatusSuccess:
		return successStyle.Render("✓")
	case components.StatusRunning:
		return runningStyle.Render("⏳")
	case components.StatusRetrying:
		return retryStyle.Render("↻")
	case components.StatusFailed:
		return failureStyle.Render("✗")
	case components.StatusSkipped:
		return skippedStyle.Render("⊘")
	default:
		return pendingStyle.Render("…")
	}
}
