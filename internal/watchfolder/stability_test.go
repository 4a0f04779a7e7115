package watchfolder

import (
	"io/fs"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// stubInfo is a minimal fs.FileInfo for tracker tests.
type stubInfo struct {
	size    int64
	modTime time.Time
}

func (s stubInfo) Name() string       { return "clip.mov" }
func (s stubInfo) Size() int64        { return s.size }
func (s stubInfo) Mode() fs.FileMode  { return 0o644 }
func (s stubInfo) ModTime() time.Time { return s.modTime }
func (s stubInfo) IsDir() bool        { return false }
func (s stubInfo) Sys() any           { return nil }

func TestStability_FirstObservationNeverStable(t *testing.T) {
	tracker := NewStabilityTracker(0, 1)

	check := tracker.Observe("/w/a.mov", stubInfo{size: 100})
	assert.False(t, check.Stable)
	assert.Equal(t, "first observation", check.Reason)
}

func TestStability_SizeChangeResetsCounter(t *testing.T) {
	tracker := NewStabilityTracker(0, 2)

	tracker.Observe("/w/a.mov", stubInfo{size: 100})
	tracker.Observe("/w/a.mov", stubInfo{size: 100}) // check 1 of 2

	// The copy is still in flight; the counter starts over.
	check := tracker.Observe("/w/a.mov", stubInfo{size: 200})
	assert.False(t, check.Stable)
	assert.Equal(t, "size still changing", check.Reason)

	check = tracker.Observe("/w/a.mov", stubInfo{size: 200})
	assert.False(t, check.Stable)
	check = tracker.Observe("/w/a.mov", stubInfo{size: 200})
	assert.True(t, check.Stable)
}

func TestStability_RequiresConsecutiveChecks(t *testing.T) {
	tracker := NewStabilityTracker(0, 3)

	tracker.Observe("/w/a.mov", stubInfo{size: 100})
	assert.False(t, tracker.Observe("/w/a.mov", stubInfo{size: 100}).Stable)
	assert.False(t, tracker.Observe("/w/a.mov", stubInfo{size: 100}).Stable)
	assert.True(t, tracker.Observe("/w/a.mov", stubInfo{size: 100}).Stable)
}

func TestStability_MinAge(t *testing.T) {
	now := time.Now()
	tracker := NewStabilityTracker(time.Minute, 1)
	tracker.now = func() time.Time { return now }

	recent := stubInfo{size: 100, modTime: now.Add(-10 * time.Second)}
	tracker.Observe("/w/a.mov", recent)
	check := tracker.Observe("/w/a.mov", recent)
	assert.False(t, check.Stable)
	assert.Equal(t, "modified too recently", check.Reason)

	old := stubInfo{size: 100, modTime: now.Add(-2 * time.Minute)}
	check = tracker.Observe("/w/a.mov", old)
	assert.True(t, check.Stable)
}

func TestStability_ForgetDropsState(t *testing.T) {
	tracker := NewStabilityTracker(0, 1)

	tracker.Observe("/w/a.mov", stubInfo{size: 100})
	tracker.Forget("/w/a.mov")

	check := tracker.Observe("/w/a.mov", stubInfo{size: 100})
	assert.Equal(t, "first observation", check.Reason)
}
