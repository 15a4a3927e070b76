package workflow

import "time"

// Snapshot is the state captured after a stage completed.
type Snapshot struct {
	State      State         `json:"state"`
	Stage      string        `json:"stage"`
	RunState   RunState      `json:"run_state"`
	Duration   time.Duration `json:"duration"`
	ModelCalls int           `json:"model_calls"`
	At         time.Time     `json:"at"`
}

// Terminal describes how a run ended.
type Terminal struct {
	State State `json:"state"`
	// Reached is the last state whose snapshot was recorded.
	Reached     State  `json:"reached"`
	FailedStage string `json:"failed_stage,omitempty"`
	Error       string `json:"error,omitempty"`
}

// RunRecord is the trace of one run. Once Terminal is set the record is
// complete and stores refuse to overwrite it.
type RunRecord struct {
	ID         string     `json:"id"`
	Model      string     `json:"model,omitempty"`
	Input      RunState   `json:"input"`
	Snapshots  []Snapshot `json:"snapshots"`
	Terminal   *Terminal  `json:"terminal,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// Done reports whether the run has ended.
func (r *RunRecord) Done() bool {
	return r != nil && r.Terminal != nil
}

// Failed reports whether the run ended in the Failed state.
func (r *RunRecord) Failed() bool {
	return r.Done() && r.Terminal.State == Failed
}

// Snapshot returns the snapshot recorded for state.
func (r *RunRecord) Snapshot(state State) (Snapshot, bool) {
	if r == nil {
		return Snapshot{}, false
	}
	for _, snap := range r.Snapshots {
		if snap.State == state {
			return snap, true
		}
	}
	return Snapshot{}, false
}

// Final returns the latest state of the run: the last snapshot, or the
// input when no stage completed.
func (r *RunRecord) Final() RunState {
	if r == nil {
		return RunState{}
	}
	if n := len(r.Snapshots); n > 0 {
		return r.Snapshots[n-1].RunState.Clone()
	}
	return r.Input.Clone()
}

// Durations maps stage names to their recorded durations.
func (r *RunRecord) Durations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(r.Snapshots))
	for _, snap := range r.Snapshots {
		out[snap.Stage] = snap.Duration
	}
	return out
}

// TotalDuration sums the stage durations.
func (r *RunRecord) TotalDuration() time.Duration {
	var total time.Duration
	for _, snap := range r.Snapshots {
		total += snap.Duration
	}
	return total
}

// Clone returns a deep copy of r.
func (r *RunRecord) Clone() *RunRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Input = r.Input.Clone()
	out.Snapshots = make([]Snapshot, len(r.Snapshots))
	for i, snap := range r.Snapshots {
		snap.RunState = snap.RunState.Clone()
		out.Snapshots[i] = snap
	}
	if r.Terminal != nil {
		term := *r.Terminal
		out.Terminal = &term
	}
	return &out
}
