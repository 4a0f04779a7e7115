// Package ingest is the single authoritative entry for job creation. It
// validates sources against the capability matrix, freezes the settings
// snapshot, and persists the job atomically. Nothing is persisted when
// validation fails; the ingestion service never starts execution.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/proxyforge/proxyforge/internal/capability"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/proxyforge/proxyforge/internal/naming"
	"github.com/proxyforge/proxyforge/internal/repository"
)

// ErrResolveNotSupported marks a resolve-engine request against a deployment
// profile without Resolve support. The control surface maps it to 501.
var ErrResolveNotSupported = errors.New("resolve engine is not supported in this deployment profile")

// MediaProber probes a source file for media metadata.
type MediaProber interface {
	Probe(ctx context.Context, path string) (*models.MediaInfo, time.Duration, error)
}

// ResolveGate is the slice of the Resolve adapter the ingestion service
// consults before accepting a resolve-routed job.
type ResolveGate interface {
	CheckAvailability(ctx context.Context) (bool, string)
	ValidatePreset(ctx context.Context, preset string) *models.ValidationError
	CheckEdition(ctx context.Context, required string) (*models.SkipMetadata, error)
}

// Request describes one job to create.
type Request struct {
	// SourcePaths is the ordered, non-empty list of absolute source paths.
	SourcePaths []string
	// PresetID references a proxy profile; mutually exclusive with Settings.
	PresetID string
	// Settings is an inline deliver-settings object.
	Settings *models.DeliverSettings
	// EngineOverride forces an engine regardless of profile declaration.
	EngineOverride *models.EngineKind
	// OutputDirOverride replaces the settings' output directory.
	OutputDirOverride *string
}

// Service creates jobs.
type Service struct {
	jobs           repository.JobRepository
	events         repository.EventRepository
	prober         MediaProber
	resolve        ResolveGate
	resolveEnabled bool
	logger         *slog.Logger
}

// NewService creates the ingestion service. prober and resolve may be nil in
// reduced deployments; resolve-routed jobs then fail their gating checks.
func NewService(jobs repository.JobRepository, events repository.EventRepository, prober MediaProber, resolve ResolveGate, resolveEnabled bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		jobs:           jobs,
		events:         events,
		prober:         prober,
		resolve:        resolve,
		resolveEnabled: resolveEnabled,
		logger:         logger.With(slog.String("component", "ingest")),
	}
}

// Create validates the request and persists a PENDING job with one ClipTask
// per source. Two outcomes return a persisted non-PENDING job instead of an
// error: Resolve unavailable (FAILED, zero tasks) and edition mismatch
// (SKIPPED, all tasks skipped).
func (s *Service) Create(ctx context.Context, req Request) (*models.Job, error) {
	if err := s.validateSources(req.SourcePaths); err != nil {
		return nil, err
	}

	settings, err := s.resolveSettings(req)
	if err != nil {
		return nil, err
	}

	if err := s.validateOutputDir(settings.OutputDir); err != nil {
		return nil, err
	}
	if verr := naming.ValidateTemplate(settings.File.NamingTemplate, len(req.SourcePaths)); verr != nil {
		return nil, verr
	}

	clips, engineKind, err := s.validateClips(ctx, req.SourcePaths, settings)
	if err != nil {
		return nil, err
	}
	settings.Engine = engineKind

	if engineKind == models.EngineResolve {
		return s.createResolveJob(ctx, req, settings, clips)
	}
	return s.persistJob(ctx, req, settings, clips, models.JobStatusPending, nil, "")
}

// clipInfo carries per-source validation output into job construction.
type clipInfo struct {
	sourcePath string
	outputPath string
	media      *models.MediaInfo
}

func (s *Service) validateSources(paths []string) error {
	if len(paths) == 0 {
		return models.NewValidationError(models.TagSourceMissing, "no source paths given")
	}
	for _, path := range paths {
		if !filepath.IsAbs(path) {
			return models.NewValidationError(models.TagSourceMissing, "source path %q is not absolute", path)
		}
		info, err := os.Stat(path)
		if err != nil {
			return models.NewValidationError(models.TagSourceMissing, "source %q does not exist", path)
		}
		if !info.Mode().IsRegular() {
			return models.NewValidationError(models.TagSourceMissing, "source %q is not a regular file", path)
		}
	}
	return nil
}

func (s *Service) validateOutputDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return models.NewValidationError(models.TagSourceMissing, "output directory %q does not exist", dir).
			WithAction("create the output directory before submitting the job")
	}
	probe := filepath.Join(dir, ".proxyforge_write_check")
	f, err := os.Create(probe)
	if err != nil {
		return models.NewValidationError(models.TagSourceMissing, "output directory %q is not writable", dir)
	}
	f.Close()
	os.Remove(probe)
	return nil
}

// resolveSettings freezes the snapshot from either the preset or the inline
// settings, then applies request-level overrides.
func (s *Service) resolveSettings(req Request) (models.DeliverSettings, error) {
	var settings models.DeliverSettings

	switch {
	case req.PresetID != "" && req.Settings != nil:
		return settings, models.NewValidationError(models.TagProxyProfileMismatch,
			"request names both a preset and inline settings")
	case req.PresetID != "":
		profile, ok := capability.LookupProfile(req.PresetID)
		if !ok {
			return settings, models.NewValidationError(models.TagProxyProfileMismatch,
				"unknown proxy profile %q", req.PresetID).
				WithAction("use one of the registered profiles")
		}
		settings = models.DeliverSettings{
			Engine:     profile.Engine,
			Resolution: profile.Resolution,
			Video:      models.VideoSettings{Codec: profile.Codec},
			Audio:      models.AudioSettings{Policy: models.AudioCopy},
			File: models.FileSettings{
				Container:      profile.Container,
				NamingTemplate: "{source_name}_proxy",
			},
			ProxyProfile:           profile.ID,
			ResolvePreset:          profile.ResolvePreset,
			RequiresResolveEdition: "either",
		}
	case req.Settings != nil:
		settings = *req.Settings
		if settings.RequiresResolveEdition == "" {
			settings.RequiresResolveEdition = "either"
		}
	default:
		return settings, models.NewValidationError(models.TagProxyProfileMismatch,
			"request names neither a preset nor inline settings")
	}

	if req.EngineOverride != nil {
		settings.Engine = *req.EngineOverride
	}
	if req.OutputDirOverride != nil {
		settings.OutputDir = *req.OutputDirOverride
	}
	return settings, nil
}

// validateClips routes every source and resolves its output path. All clips
// of a job must route to the same engine.
func (s *Service) validateClips(ctx context.Context, paths []string, settings models.DeliverSettings) ([]clipInfo, models.EngineKind, error) {
	var jobEngine models.EngineKind
	clips := make([]clipInfo, 0, len(paths))
	planned := make(map[string]bool)

	for i, path := range paths {
		container := capability.Normalize(filepath.Ext(path))
		codec, media := s.probeCodec(ctx, path, container)

		routed, verr := capability.RouteSource(container, codec)
		if verr != nil {
			return nil, "", verr
		}

		if settings.Engine != "" && settings.Engine != routed {
			if settings.Engine == models.EngineResolve {
				// Resolve can also render delivery codecs; an explicit
				// resolve request keeps resolve routing.
				routed = models.EngineResolve
			} else {
				return nil, "", models.NewValidationError(models.TagSourceUnsupported,
					"source %q routes to engine %q, not %q", path, routed, settings.Engine)
			}
		}

		if settings.ProxyProfile != "" {
			profile, ok := capability.LookupProfile(settings.ProxyProfile)
			if !ok {
				return nil, "", models.NewValidationError(models.TagProxyProfileMismatch,
					"unknown proxy profile %q", settings.ProxyProfile)
			}
			if verr := capability.ValidateProfileEngine(profile, routed); verr != nil {
				return nil, "", verr
			}
		}

		if jobEngine == "" {
			jobEngine = routed
		} else if jobEngine != routed {
			return nil, "", models.NewValidationError(models.TagSourceUnsupported,
				"sources route to different engines (%q and %q); split them into separate jobs", jobEngine, routed)
		}

		outputPath := naming.Resolve(naming.Context{
			SourcePath: path,
			OutputDir:  settings.OutputDir,
			Container:  settings.File.Container,
			Codec:      settings.Video.Codec,
			Resolution: string(settings.Resolution),
			Index:      i,
			Date:       models.Now(),
			File:       settings.File,
		})
		outputPath = naming.ResolveUnique(outputPath, func(p string) bool {
			if planned[p] {
				return true
			}
			_, err := os.Stat(p)
			return err == nil
		})
		planned[outputPath] = true

		clips = append(clips, clipInfo{sourcePath: path, outputPath: outputPath, media: media})
	}

	return clips, jobEngine, nil
}

// probeCodec determines the source codec. Camera-original extensions name
// their codec; delivery containers need a probe. A failed probe downgrades to
// an extension guess so ingest still works without ffprobe on PATH.
func (s *Service) probeCodec(ctx context.Context, path, container string) (string, *models.MediaInfo) {
	switch container {
	case "braw":
		return "braw", nil
	case "r3d":
		return "redcode", nil
	case "ari", "arri":
		return "arriraw", nil
	case "dng":
		return "cinemadng", nil
	}

	if s.prober != nil {
		if media, _, err := s.prober.Probe(ctx, path); err == nil {
			return capability.Normalize(media.Codec), media
		}
		s.logger.Warn("probe failed, using container to guess codec", slog.String("source", path))
	}

	// Without a probe, assume the ubiquitous delivery codec for the container.
	switch container {
	case "mp4", "mov", "mkv":
		return "h264", nil
	case "mxf":
		return "dnxhd", nil
	}
	return container, nil
}

// createResolveJob applies the Resolve gating checks and persists the
// resulting job: FAILED with zero tasks when Resolve is unavailable, SKIPPED
// on edition mismatch, PENDING otherwise.
func (s *Service) createResolveJob(ctx context.Context, req Request, settings models.DeliverSettings, clips []clipInfo) (*models.Job, error) {
	if !s.resolveEnabled || s.resolve == nil {
		return nil, ErrResolveNotSupported
	}

	// The availability check runs exactly once per job, no retries.
	if available, reason := s.resolve.CheckAvailability(ctx); !available {
		job := s.buildJob(settings, nil)
		job.Status = models.JobStatusFailed
		job.FailureReason = string(models.TagResolveAvailability) + ": " + reason
		now := models.Now()
		job.CompletedAt = &now
		if err := s.jobs.CreateWithTasks(ctx, job, s.binding(req)); err != nil {
			return nil, fmt.Errorf("persisting failed job: %w", err)
		}
		s.append(ctx, job.ID, models.EventJobCreated, "")
		s.append(ctx, job.ID, models.EventExecutionFailed, job.FailureReason)
		return job, nil
	}

	if verr := s.resolve.ValidatePreset(ctx, settings.ResolvePreset); verr != nil {
		return nil, verr
	}

	skip, err := s.resolve.CheckEdition(ctx, settings.RequiresResolveEdition)
	if err != nil {
		return nil, models.NewValidationError(models.TagResolveAvailability, "%v", err)
	}
	if skip != nil {
		return s.persistJob(ctx, req, settings, clips, models.JobStatusSkipped, skip, skip.Reason)
	}

	return s.persistJob(ctx, req, settings, clips, models.JobStatusPending, nil, "")
}

// persistJob writes the job and its tasks in one transaction and appends the
// creation events.
func (s *Service) persistJob(ctx context.Context, req Request, settings models.DeliverSettings, clips []clipInfo, status models.JobStatus, skip *models.SkipMetadata, skipReason string) (*models.Job, error) {
	job := s.buildJob(settings, clips)

	if status == models.JobStatusSkipped {
		job.Status = models.JobStatusSkipped
		job.SkipMeta = skip
		now := models.Now()
		job.CompletedAt = &now
		for i := range job.Tasks {
			if err := job.Tasks[i].MarkSkipped(skipReason); err != nil {
				return nil, fmt.Errorf("skipping task: %w", err)
			}
		}
	}

	if err := s.jobs.CreateWithTasks(ctx, job, s.binding(req)); err != nil {
		return nil, fmt.Errorf("persisting job: %w", err)
	}

	s.append(ctx, job.ID, models.EventJobCreated, fmt.Sprintf("%d clips", len(job.Tasks)))
	s.append(ctx, job.ID, models.EventEngineSelected, string(settings.Engine))
	for i := range job.Tasks {
		s.appendClip(ctx, job.ID, job.Tasks[i].ID, models.EventClipQueued, job.Tasks[i].SourcePath)
	}

	s.logger.Info("job created",
		slog.String("job_id", job.ID.String()),
		slog.String("status", string(job.Status)),
		slog.String("engine", string(settings.Engine)),
		slog.Int("clips", len(job.Tasks)),
	)
	return job, nil
}

func (s *Service) buildJob(settings models.DeliverSettings, clips []clipInfo) *models.Job {
	job := &models.Job{
		ID:        models.NewUUID(),
		Status:    models.JobStatusPending,
		CreatedAt: models.Now(),
		Settings:  settings,
	}
	for i, clip := range clips {
		job.Tasks = append(job.Tasks, models.ClipTask{
			ID:            models.NewUUID(),
			JobID:         job.ID,
			Position:      i,
			SourcePath:    clip.sourcePath,
			OutputPath:    clip.outputPath,
			Status:        models.TaskStatusQueued,
			DeliveryStage: models.StageQueued,
			Media:         clip.media,
		})
	}
	return job
}

func (s *Service) binding(req Request) *models.JobPresetBinding {
	if req.PresetID == "" {
		return nil
	}
	return &models.JobPresetBinding{PresetID: req.PresetID, BoundAt: models.Now()}
}

func (s *Service) append(ctx context.Context, jobID models.UUID, eventType models.EventType, message string) {
	err := s.events.Append(ctx, &models.ExecutionEvent{JobID: jobID, Type: eventType, Message: message})
	if err != nil {
		s.logger.Warn("failed to append event", slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
	}
}

func (s *Service) appendClip(ctx context.Context, jobID, clipID models.UUID, eventType models.EventType, message string) {
	err := s.events.Append(ctx, &models.ExecutionEvent{JobID: jobID, Type: eventType, ClipID: &clipID, Message: message})
	if err != nil {
		s.logger.Warn("failed to append event", slog.String("event_type", string(eventType)), slog.String("error", err.Error()))
	}
}
