// Package resolveenc is the DaVinci Resolve engine adapter. Resolve handles
// camera-proprietary formats FFmpeg cannot decode; execution goes through the
// Resolve scripting API and progress is indeterminate by contract.
package resolveenc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/proxyforge/proxyforge/internal/config"
	"github.com/proxyforge/proxyforge/internal/engine"
	"github.com/proxyforge/proxyforge/internal/models"
)

// Adapter runs clips through DaVinci Resolve.
type Adapter struct {
	cfg    config.ResolveConfig
	bridge Bridge
	logger *slog.Logger
}

// New creates the Resolve adapter with the production script bridge.
func New(cfg config.ResolveConfig, logger *slog.Logger) *Adapter {
	return NewWithBridge(cfg, NewScriptBridge(cfg.ScriptPath), logger)
}

// NewWithBridge creates the adapter with a caller-supplied bridge.
func NewWithBridge(cfg config.ResolveConfig, bridge Bridge, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxListedPresets <= 0 {
		cfg.MaxListedPresets = 10
	}
	return &Adapter{
		cfg:    cfg,
		bridge: bridge,
		logger: logger.With(slog.String("component", "resolve")),
	}
}

var _ engine.Engine = (*Adapter)(nil)

// Kind returns the engine kind.
func (a *Adapter) Kind() models.EngineKind {
	return models.EngineResolve
}

// CheckAvailability probes for a reachable Resolve instance. Callers invoke
// this exactly once per job; there are no retries.
func (a *Adapter) CheckAvailability(ctx context.Context) (bool, string) {
	probeCtx := ctx
	if a.cfg.AvailabilityTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, a.cfg.AvailabilityTimeout)
		defer cancel()
	}
	return a.bridge.CheckAvailability(probeCtx)
}

// ValidatePreset checks the requested render preset exists. A missing preset
// error carries the available list, truncated at the configured maximum.
func (a *Adapter) ValidatePreset(ctx context.Context, preset string) *models.ValidationError {
	if preset == "" {
		return models.NewValidationError(models.TagResolvePresetMissing, "no resolve preset named in the job")
	}

	available, err := a.bridge.ListPresets(ctx)
	if err != nil {
		return models.NewValidationError(models.TagResolveAvailability, "listing resolve presets: %v", err)
	}
	for _, p := range available {
		if p == preset {
			return nil
		}
	}

	listed := available
	truncated := ""
	if len(listed) > a.cfg.MaxListedPresets {
		listed = listed[:a.cfg.MaxListedPresets]
		truncated = fmt.Sprintf(" (and %d more)", len(available)-a.cfg.MaxListedPresets)
	}
	return models.NewValidationError(
		models.TagResolvePresetMissing,
		"resolve preset %q not found; available: %s%s", preset, strings.Join(listed, ", "), truncated,
	).WithAction("pick one of the listed presets")
}

// CheckEdition enforces the requires_resolve_edition policy. A mismatch
// returns skip metadata: the job is SKIPPED, not FAILED. Edition "either" is
// never skipped.
func (a *Adapter) CheckEdition(ctx context.Context, required string) (*models.SkipMetadata, error) {
	if required == "" || required == "either" {
		return nil, nil
	}

	detected, version, err := a.bridge.DetectEdition(ctx)
	if err != nil {
		return nil, fmt.Errorf("detecting resolve edition: %w", err)
	}
	if detected == required {
		return nil, nil
	}

	return &models.SkipMetadata{
		Reason:          fmt.Sprintf("resolve_%s_not_installed", required),
		DetectedEdition: detected,
		RequiredEdition: required,
		ResolveVersion:  version,
	}, nil
}

// Execute runs one clip through Resolve. The delivery stage advances on real
// state transitions, but percent and ETA stay nil: Resolve reports no usable
// progress and none is invented.
func (a *Adapter) Execute(ctx context.Context, task *models.ClipTask, settings models.DeliverSettings, token *engine.CancelToken, progress engine.ProgressFunc) engine.ExecutionResult {
	started := models.Now()

	report := func(stage models.DeliveryStage) {
		if progress != nil {
			progress(engine.Progress{Stage: stage})
		}
	}
	report(models.StageStarting)

	renderCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-token.Done():
			cancel()
		case <-watchDone:
		}
	}()

	report(models.StageEncoding)
	renderErr := a.bridge.Render(renderCtx, task.SourcePath, task.OutputPath, settings.ResolvePreset)
	completed := models.Now()

	base := engine.ExecutionResult{
		EncoderID:   "resolve:" + settings.ResolvePreset,
		StartedAt:   started,
		CompletedAt: completed,
	}

	if token.Cancelled() {
		removePartial(task.OutputPath)
		base.Kind = engine.ResultCancelled
		base.FailureReason = models.ExecutionFailure(models.TagCancelled, token.Reason())
		return base
	}

	if renderErr != nil {
		removePartial(task.OutputPath)
		base.Kind = engine.ResultFailed
		base.FailureReason = models.ExecutionFailure(models.TagEngineFailure, renderErr.Error())
		return base
	}

	report(models.StageFinalizing)

	if info, err := os.Stat(task.OutputPath); err != nil || info.Size() == 0 {
		base.Kind = engine.ResultFailed
		base.FailureReason = models.ExecutionFailure(models.TagEngineFailure, "output_missing")
		return base
	}

	base.Kind = engine.ResultSuccess
	base.OutputPath = task.OutputPath
	return base
}

func removePartial(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}
