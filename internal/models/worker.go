package models

import "time"

// WorkerState is the observed state of a worker.
type WorkerState string

const (
	WorkerIdle     WorkerState = "idle"
	WorkerBusy     WorkerState = "busy"
	WorkerOffline  WorkerState = "offline"
	WorkerRejected WorkerState = "rejected"
)

// WorkerStatus is the heartbeat record for a single worker. Workers are
// identified by a hostname-scoped id and live only in memory; the monitor
// flips a worker to offline purely by applying a last-seen threshold.
// A rejected worker must not execute any task.
type WorkerStatus struct {
	WorkerID     string      `json:"worker_id"`
	Hostname     string      `json:"hostname"`
	State        WorkerState `json:"status"`
	LastSeen     time.Time   `json:"last_seen"`
	CurrentJobID *UUID       `json:"current_job_id,omitempty"`
}
