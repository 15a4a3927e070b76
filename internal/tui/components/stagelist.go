package components

import "time"

// Stage statuses.
const (
	StatusPending  = "pending"
	StatusRunning  = "running"
	StatusRetrying = "retrying"
	StatusSuccess  = "success"
	StatusFailed   = "failed"
	StatusSkipped  = "skipped"
)

// StageEntry is the display state of one stage.
type StageEntry struct {
	Name     string
	Status   string
	Attempt  int
	Duration time.Duration
}

// Done reports whether the stage will not change any more.
func (e StageEntry) Done() bool {
	switch e.Status {
	case StatusSuccess, StatusFailed, StatusSkipped:
		return true
	}
	return false
}

// StageList keeps stage entries in workflow order.
type StageList struct {
	order   []string
	entries map[string]StageEntry
}

// NewStageList starts every stage as pending.
func NewStageList(names []string) StageList {
	l := StageList{entries: make(map[string]StageEntry, len(names))}
	for _, name := range names {
		l.order = append(l.order, name)
		l.entries[name] = StageEntry{Name: name, Status: StatusPending}
	}
	return l
}

// Get returns the entry for name.
func (l StageList) Get(name string) (StageEntry, bool) {
	e, ok := l.entries[name]
	return e, ok
}

// Set replaces the entry, appending unknown stages at the end.
func (l *StageList) Set(entry StageEntry) {
	if _, ok := l.entries[entry.Name]; !ok {
		l.order = append(l.order, entry.Name)
	}
	// Copy on write so Model values stay independent.
	entries := make(map[string]StageEntry, len(l.entries)+1)
	for k, v := range l.entries {
		entries[k] = v
	}
	entries[entry.Name] = entry
	l.entries = entries
}

// Entries returns the entries in order.
func (l StageList) Entries() []StageEntry {
	out := make([]StageEntry, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.entries[name])
	}
	return out
}
