// Package query is the read-only surface behind the monitor endpoints and the
// CLI status output. It never mutates state.
package query

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/repository"
)

// defaultTimelineLimit bounds the timeline slice embedded in a job detail.
// The full timeline stays queryable through the events repository.
const defaultTimelineLimit = 100

// JobSummary is the list-view projection of a job.
type JobSummary struct {
	ID            models.UUID        `json:"id"`
	Status        models.JobStatus   `json:"status"`
	Engine        models.EngineKind  `json:"engine"`
	ClipCount     int                `json:"clip_count"`
	Counters      models.JobCounters `json:"counters"`
	CreatedAt     time.Time          `json:"created_at"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
	FailureReason string             `json:"failure_reason,omitempty"`
}

// JobDetail is the full job view with a bounded timeline slice.
type JobDetail struct {
	Job      *models.Job              `json:"job"`
	Timeline []*models.ExecutionEvent `json:"timeline"`
	PresetID string                   `json:"preset_id,omitempty"`
	Counters models.JobCounters       `json:"counters"`
}

// ReportArtifact describes one report file found for a job.
type ReportArtifact struct {
	Filename  string    `json:"filename"`
	AbsPath   string    `json:"abs_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mtime"`
}

// Service answers read queries.
type Service struct {
	jobs          repository.JobRepository
	events        repository.EventRepository
	bindings      repository.BindingRepository
	reportsDir    string
	timelineLimit int
}

// NewService creates the query service.
func NewService(jobs repository.JobRepository, events repository.EventRepository, bindings repository.BindingRepository, reportsDir string) *Service {
	return &Service{
		jobs:          jobs,
		events:        events,
		bindings:      bindings,
		reportsDir:    reportsDir,
		timelineLimit: defaultTimelineLimit,
	}
}

// ListJobs returns summaries for every job, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]JobSummary, error) {
	jobs, err := s.jobs.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, JobSummary{
			ID:            job.ID,
			Status:        job.Status,
			Engine:        job.EffectiveSettings().Engine,
			ClipCount:     len(job.Tasks),
			Counters:      job.Counters(),
			CreatedAt:     job.CreatedAt,
			StartedAt:     job.StartedAt,
			CompletedAt:   job.CompletedAt,
			FailureReason: job.FailureReason,
		})
	}
	return summaries, nil
}

// GetJob returns the full job with its most recent timeline slice and preset
// binding. Returns models.ErrJobNotFound for unknown ids.
func (s *Service) GetJob(ctx context.Context, id models.UUID) (*JobDetail, error) {
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	timeline, err := s.events.GetByJobID(ctx, id, s.timelineLimit)
	if err != nil {
		return nil, fmt.Errorf("loading timeline: %w", err)
	}

	detail := &JobDetail{Job: job, Timeline: timeline, Counters: job.Counters()}
	if s.bindings != nil {
		binding, err := s.bindings.GetByJobID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading preset binding: %w", err)
		}
		if binding != nil {
			detail.PresetID = binding.PresetID
		}
	}
	return detail, nil
}

// Timeline returns a job's full timeline in order.
func (s *Service) Timeline(ctx context.Context, id models.UUID) ([]*models.ExecutionEvent, error) {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.events.GetByJobID(ctx, id, 0)
}

// Reports lists report artifacts for a job, newest first by modification
// time. Matching is by filename convention: proxy_job_<first 8 id chars>_
// <YYYYMMDDTHHMMSS> with a csv, json, or txt extension. A missing reports
// directory yields an empty list, not an error.
func (s *Service) Reports(ctx context.Context, id models.UUID) ([]ReportArtifact, error) {
	if _, err := s.jobs.GetByID(ctx, id); err != nil {
		return nil, err
	}

	pattern, err := regexp.Compile(
		fmt.Sprintf(`^proxy_job_%s_\d{8}T\d{6}\.(csv|json|txt)$`, regexp.QuoteMeta(shortID(id))),
	)
	if err != nil {
		return nil, fmt.Errorf("building report pattern: %w", err)
	}

	entries, err := os.ReadDir(s.reportsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []ReportArtifact{}, nil
		}
		return nil, fmt.Errorf("reading reports directory: %w", err)
	}

	artifacts := make([]ReportArtifact, 0)
	for _, entry := range entries {
		if entry.IsDir() || !pattern.MatchString(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(s.reportsDir, entry.Name()))
		if err != nil {
			abs = filepath.Join(s.reportsDir, entry.Name())
		}
		artifacts = append(artifacts, ReportArtifact{
			Filename:  entry.Name(),
			AbsPath:   abs,
			SizeBytes: info.Size(),
			ModTime:   info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModTime.After(artifacts[j].ModTime)
	})
	return artifacts, nil
}

// shortID returns the first 8 characters of the job id, the prefix used in
// report filenames.
func shortID(id models.UUID) string {
	s := id.String()
	if len(s) < 8 {
		return s
	}
	return s[:8]
}
