package license

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/proxyforge/proxyforge/internal/models"
)

// Enforcer admits or refuses workers against the license cap. The active and
// rejected sets are guarded for concurrent heartbeats; admission does not
// block on anything outside the set itself.
type Enforcer struct {
	license License
	logger  *slog.Logger

	mu       sync.Mutex
	admitted map[string]*models.WorkerStatus
	rejected map[string]*models.WorkerStatus
}

// NewEnforcer creates an enforcer for the resolved license.
func NewEnforcer(lic License, logger *slog.Logger) *Enforcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enforcer{
		license:  lic,
		logger:   logger,
		admitted: make(map[string]*models.WorkerStatus),
		rejected: make(map[string]*models.WorkerStatus),
	}
}

// License returns the resolved license.
func (e *Enforcer) License() License {
	return e.license
}

// Heartbeat registers a worker heartbeat. A known admitted worker refreshes
// its last-seen instant; a new worker is admitted if the cap allows, refused
// otherwise. Returns whether the worker may execute tasks and, on refusal,
// the refusal describing current/max.
func (e *Enforcer) Heartbeat(workerID string, currentJobID *models.UUID) (bool, *models.ValidationError) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now().UTC()

	if worker, ok := e.admitted[workerID]; ok {
		worker.LastSeen = now
		worker.CurrentJobID = currentJobID
		if currentJobID != nil {
			worker.State = models.WorkerBusy
		} else {
			worker.State = models.WorkerIdle
		}
		return true, nil
	}

	if e.license.MaxWorkers != nil && len(e.admitted) >= *e.license.MaxWorkers {
		verr := models.NewValidationError(
			models.TagWorkerLimitExceeded,
			"worker %q refused: %d/%d workers admitted on tier %s",
			workerID, len(e.admitted), *e.license.MaxWorkers, e.license.Tier,
		)
		e.rejected[workerID] = &models.WorkerStatus{
			WorkerID: workerID,
			Hostname: hostname(),
			State:    models.WorkerRejected,
			LastSeen: now,
		}
		e.logger.Warn("worker admission refused",
			slog.String("worker_id", workerID),
			slog.Int("current", len(e.admitted)),
			slog.Int("max", *e.license.MaxWorkers),
		)
		return false, verr
	}

	state := models.WorkerIdle
	if currentJobID != nil {
		state = models.WorkerBusy
	}
	e.admitted[workerID] = &models.WorkerStatus{
		WorkerID:     workerID,
		Hostname:     hostname(),
		State:        state,
		LastSeen:     now,
		CurrentJobID: currentJobID,
	}
	delete(e.rejected, workerID)
	return true, nil
}

// Refresh bumps an admitted worker's last-seen instant without touching its
// job assignment. Unknown workers are ignored.
func (e *Enforcer) Refresh(workerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if worker, ok := e.admitted[workerID]; ok {
		worker.LastSeen = time.Now().UTC()
	}
}

// IsAdmitted reports whether a worker may execute tasks. Engine adapters
// consult this before spawning a process.
func (e *Enforcer) IsAdmitted(workerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.admitted[workerID]
	return ok
}

// Deregister removes a worker on clean shutdown.
func (e *Enforcer) Deregister(workerID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.admitted, workerID)
	delete(e.rejected, workerID)
}

// PurgeStale marks admitted workers unseen since the threshold offline and
// removes them from the active set, freeing their license slot.
func (e *Enforcer) PurgeStale(olderThan time.Duration) []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)
	var purged []string
	for id, worker := range e.admitted {
		if worker.LastSeen.Before(cutoff) {
			worker.State = models.WorkerOffline
			delete(e.admitted, id)
			purged = append(purged, id)
		}
	}
	return purged
}

// Workers returns a snapshot of all known workers, admitted and rejected.
func (e *Enforcer) Workers() []models.WorkerStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	workers := make([]models.WorkerStatus, 0, len(e.admitted)+len(e.rejected))
	for _, w := range e.admitted {
		workers = append(workers, *w)
	}
	for _, w := range e.rejected {
		workers = append(workers, *w)
	}
	return workers
}

// ActiveCount returns the size of the admitted set.
func (e *Enforcer) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.admitted)
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}
