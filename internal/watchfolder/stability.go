package watchfolder

import (
	"io/fs"
	"time"
)

// FileStabilityCheck is the verdict for one candidate on one sweep.
type FileStabilityCheck struct {
	Stable bool
	// Reason names the failed criterion when Stable is false.
	Reason string
}

// fileState tracks a candidate across sweeps.
type fileState struct {
	lastSize     int64
	stableChecks int
	firstSeen    time.Time
}

// StabilityTracker decides when a file has finished copying in. A file is
// stable once its size has not changed for the required number of consecutive
// sweeps and its modification time is older than the minimum age. Any size
// change resets the counter.
type StabilityTracker struct {
	minAge         time.Duration
	requiredChecks int
	states         map[string]*fileState
	now            func() time.Time
}

// NewStabilityTracker creates a tracker.
func NewStabilityTracker(minAge time.Duration, requiredChecks int) *StabilityTracker {
	if requiredChecks < 1 {
		requiredChecks = 1
	}
	return &StabilityTracker{
		minAge:         minAge,
		requiredChecks: requiredChecks,
		states:         make(map[string]*fileState),
		now:            time.Now,
	}
}

// Observe records one sweep's observation of the candidate and returns the
// stability verdict.
func (t *StabilityTracker) Observe(path string, info fs.FileInfo) FileStabilityCheck {
	state, ok := t.states[path]
	if !ok {
		state = &fileState{lastSize: info.Size(), firstSeen: t.now()}
		t.states[path] = state
		return FileStabilityCheck{Reason: "first observation"}
	}

	if info.Size() != state.lastSize {
		state.lastSize = info.Size()
		state.stableChecks = 0
		return FileStabilityCheck{Reason: "size still changing"}
	}

	state.stableChecks++
	if state.stableChecks < t.requiredChecks {
		return FileStabilityCheck{Reason: "awaiting consecutive stable checks"}
	}
	if age := t.now().Sub(info.ModTime()); age < t.minAge {
		return FileStabilityCheck{Reason: "modified too recently"}
	}
	return FileStabilityCheck{Stable: true}
}

// Forget drops tracking state for a path once it has been ingested or removed
// from disk.
func (t *StabilityTracker) Forget(path string) {
	delete(t.states, path)
}
