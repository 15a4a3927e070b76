package components

import (
	"fmt"
	"strings"
	"time"
)

// SummaryData aggregates what the summary shows.
type SummaryData struct {
	RunID     string
	Model     string
	Total     int
	Completed int
	Finished  bool
	Cancelled bool
	Elapsed   time.Duration
	// Failure is the user-facing failure message, if the run failed.
	Failure string
}

// Summary renders a textual run summary.
type Summary struct {
	data SummaryData
}

// NewSummary creates a new Summary component.
func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.RunID != "" {
		lines = append(lines, fmt.Sprintf("Run: %s", s.data.RunID))
	}
	if s.data.Model != "" {
		lines = append(lines, fmt.Sprintf("Model: %s", s.data.Model))
	}
	if s.data.Total > 0 {
		lines = append(lines, fmt.Sprintf("Stages: %d/%d completed", s.data.Completed, s.data.Total))
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Review cancelled")
	case s.data.Failure != "":
		lines = append(lines, s.data.Failure)
	case s.data.Finished:
		line := "Review finished"
		if s.data.Elapsed > 0 {
			line = fmt.Sprintf("%s in %s", line, s.data.Elapsed.Round(100*time.Millisecond))
		}
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}
