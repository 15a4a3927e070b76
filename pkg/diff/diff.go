// Package diff renders line-oriented differences between two texts.
package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	maxDiffLines    = 2000
	truncateMessage = "... (diff truncated, exceeds 2,000 lines) ..."
)

// Stats counts changed lines.
type Stats struct {
	Added   int
	Removed int
}

// Lines returns a unified-style diff of before and after, or "" when the
// texts are identical. Long diffs are truncated with a marker line.
func Lines(before, after, beforeLabel, afterLabel string) string {
	if before == after {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "--- %s\n", beforeLabel)
	fmt.Fprintf(&b, "+++ %s\n", afterLabel)

	written := 2
	for _, d := range lineDiffs(before, after) {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range splitLines(d.Text) {
			if written == maxDiffLines {
				b.WriteString(truncateMessage + "\n")
				return b.String()
			}
			b.WriteString(prefix + line + "\n")
			written++
		}
	}
	return b.String()
}

// Count reports how many lines after adds and removes relative to before.
func Count(before, after string) Stats {
	var s Stats
	for _, d := range lineDiffs(before, after) {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			s.Removed += len(splitLines(d.Text))
		case diffmatchpatch.DiffInsert:
			s.Added += len(splitLines(d.Text))
		}
	}
	return s
}

func lineDiffs(before, after string) []diffmatchpatch.Diff {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	return dmp.DiffCharsToLines(diffs, lines)
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}
