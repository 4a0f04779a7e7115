// Package engine defines the narrow interface shared by the FFmpeg and
// Resolve adapters: run one clip, stream coarse progress, honour a
// cancellation token, and report a terminal result.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/proxyforge/proxyforge/internal/models"
)

// ResultKind is the terminal outcome of one clip execution.
type ResultKind string

const (
	ResultSuccess   ResultKind = "success"
	ResultFailed    ResultKind = "failed"
	ResultCancelled ResultKind = "cancelled"
)

// ExecutionResult is the adapter's terminal report for one clip.
type ExecutionResult struct {
	Kind          ResultKind
	OutputPath    string
	FailureReason string
	// Argv is the exact command line used, recorded for audit.
	Argv []string
	// EncoderID names the effective encoder, e.g. "libx264".
	EncoderID   string
	ExitCode    int
	StderrTail  string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Progress is a coarse progress sample. Percent and ETASeconds are nil when
// the engine cannot report them honestly.
type Progress struct {
	Stage      models.DeliveryStage
	Percent    *float64
	ETASeconds *float64
}

// ProgressFunc receives progress samples. Adapters call it only on stage
// transitions and 5 percent crossings, never per output line.
type ProgressFunc func(Progress)

// Engine is the adapter interface.
type Engine interface {
	Kind() models.EngineKind
	// Execute runs one clip to a terminal result. It never returns a Go
	// error; failures are carried in the result so the scheduler has a
	// single handling path.
	Execute(ctx context.Context, task *models.ClipTask, settings models.DeliverSettings, token *CancelToken, progress ProgressFunc) ExecutionResult
}

// CancelToken is the cooperative per-job cancellation flag. Adapters poll it
// at safe points and terminate their subprocess when it fires. Cancelling an
// already-cancelled token is a no-op.
type CancelToken struct {
	once   sync.Once
	done   chan struct{}
	mu     sync.Mutex
	reason string
}

// NewCancelToken creates an unfired token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel fires the token with a reason. Idempotent.
func (t *CancelToken) Cancel(reason string) {
	t.once.Do(func() {
		t.mu.Lock()
		t.reason = reason
		t.mu.Unlock()
		close(t.done)
	})
}

// Done returns a channel closed when the token fires.
func (t *CancelToken) Done() <-chan struct{} {
	return t.done
}

// Cancelled reports whether the token has fired.
func (t *CancelToken) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Reason returns the cancellation reason, empty until the token fires.
func (t *CancelToken) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Failed builds a FAILED result with a tagged reason.
func Failed(tag models.ErrorTag, detail string) ExecutionResult {
	return ExecutionResult{
		Kind:          ResultFailed,
		FailureReason: models.ExecutionFailure(tag, detail),
	}
}
