// Package ffmpegenc is the FFmpeg engine adapter. It builds a deterministic
// argv, supervises the subprocess, derives honest progress from parsed stderr
// values, and verifies the output on exit.
package ffmpegenc

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/proxyforge/proxyforge/internal/capability"
	"github.com/proxyforge/proxyforge/internal/config"
	"github.com/proxyforge/proxyforge/internal/engine"
	"github.com/proxyforge/proxyforge/internal/models"
)

// gracePeriod is how long a cancelled process gets to exit after SIGTERM
// before it is killed.
const gracePeriod = 5 * time.Second

// stderrTailLines bounds how much stderr travels in a failure reason.
const stderrTailLines = 5

// Adapter runs clips through ffmpeg.
type Adapter struct {
	binaryPath string
	prober     *Prober
	hw         HardwareCaps
	logger     *slog.Logger
}

// New creates the FFmpeg adapter. Hardware capabilities are probed once per
// process and drive encoder selection for every clip.
func New(cfg config.FFmpegConfig, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	binary := cfg.BinaryPath
	if binary == "" {
		binary = "ffmpeg"
	}
	log := logger.With(slog.String("component", "ffmpeg"))

	hw := ProbeHardware(binary)
	log.Info("hardware capabilities probed",
		slog.Any("hwaccels", hw.HWAccels),
		slog.Bool("gpu_h264", hw.GPUCapable("h264")),
	)

	return &Adapter{
		binaryPath: binary,
		prober:     NewProber(cfg.ProbePath),
		hw:         hw,
		logger:     log,
	}
}

var _ engine.Engine = (*Adapter)(nil)

// Kind returns the engine kind.
func (a *Adapter) Kind() models.EngineKind {
	return models.EngineFFmpeg
}

// Prober exposes the adapter's ffprobe wrapper for ingest-time probing.
func (a *Adapter) Prober() *Prober {
	return a.prober
}

// timeRe and speedRe pull progress values out of ffmpeg's stderr stats line,
// e.g. "frame= 240 fps= 48 time=00:00:10.00 bitrate= 900kbits/s speed=2.0x".
var (
	timeRe  = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	speedRe = regexp.MustCompile(`speed=\s*(\d+(?:\.\d+)?)x`)
)

// Execute runs one clip to a terminal result.
func (a *Adapter) Execute(ctx context.Context, task *models.ClipTask, settings models.DeliverSettings, token *engine.CancelToken, progress engine.ProgressFunc) engine.ExecutionResult {
	started := models.Now()

	profile, ok := capability.LookupProfile(settings.ProxyProfile)
	if !ok {
		result := engine.Failed(models.TagEngineFailure, fmt.Sprintf("unknown proxy profile %q", settings.ProxyProfile))
		result.StartedAt, result.CompletedAt = started, models.Now()
		return result
	}

	args, encoder, verr := BuildArgs(task.SourcePath, task.OutputPath, settings, profile, a.hw)
	if verr != nil {
		result := engine.Failed(verr.Tag, verr.Message)
		result.StartedAt, result.CompletedAt = started, models.Now()
		return result
	}

	// Duration comes from a prior probe; unknown duration keeps progress
	// honest at zero rather than guessing.
	var duration time.Duration
	if task.Media != nil && task.Media.DurationMs > 0 {
		duration = time.Duration(task.Media.DurationMs) * time.Millisecond
	} else if _, probed, err := a.prober.Probe(ctx, task.SourcePath); err == nil {
		duration = probed
	}

	report := func(stage models.DeliveryStage, percent, eta *float64) {
		if progress != nil {
			progress(engine.Progress{Stage: stage, Percent: percent, ETASeconds: eta})
		}
	}
	report(models.StageStarting, nil, nil)

	cmd := exec.CommandContext(ctx, a.binaryPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		result := engine.Failed(models.TagEngineFailure, fmt.Sprintf("stderr pipe: %v", err))
		result.Argv, result.StartedAt, result.CompletedAt = argv(a.binaryPath, args), started, models.Now()
		return result
	}

	a.logger.Debug("spawning ffmpeg", slog.String("source", task.SourcePath), slog.String("args", strings.Join(args, " ")))
	if err := cmd.Start(); err != nil {
		result := engine.Failed(models.TagEngineFailure, fmt.Sprintf("starting ffmpeg: %v", err))
		result.Argv, result.StartedAt, result.CompletedAt = argv(a.binaryPath, args), started, models.Now()
		return result
	}

	// Cancellation watcher: graceful signal, short deadline, then kill.
	watchDone := make(chan struct{})
	go func() {
		select {
		case <-token.Done():
			if cmd.Process != nil {
				_ = cmd.Process.Signal(syscall.SIGTERM)
				select {
				case <-watchDone:
				case <-time.After(gracePeriod):
					_ = cmd.Process.Kill()
				}
			}
		case <-watchDone:
		case <-ctx.Done():
		}
	}()

	tail := a.superviseStderr(stderr, duration, report)

	waitErr := cmd.Wait()
	close(watchDone)
	completed := models.Now()

	base := engine.ExecutionResult{
		Argv:        argv(a.binaryPath, args),
		EncoderID:   encoder,
		StartedAt:   started,
		CompletedAt: completed,
		StderrTail:  tail,
	}

	if token.Cancelled() {
		removePartial(task.OutputPath)
		base.Kind = engine.ResultCancelled
		base.FailureReason = models.ExecutionFailure(models.TagCancelled, token.Reason())
		return base
	}

	if waitErr != nil {
		removePartial(task.OutputPath)
		base.Kind = engine.ResultFailed
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			base.ExitCode = exitErr.ExitCode()
			base.FailureReason = models.ExecutionFailure(models.TagEngineFailure,
				fmt.Sprintf("exit %d: %s", exitErr.ExitCode(), tail))
		} else {
			base.FailureReason = models.ExecutionFailure(models.TagEngineFailure, waitErr.Error())
		}
		return base
	}

	report(models.StageFinalizing, nil, nil)

	// An exit-zero with no usable output is still a failure.
	if info, err := os.Stat(task.OutputPath); err != nil || info.Size() == 0 {
		removePartial(task.OutputPath)
		base.Kind = engine.ResultFailed
		base.FailureReason = models.ExecutionFailure(models.TagEngineFailure, "output_missing")
		return base
	}

	base.Kind = engine.ResultSuccess
	base.OutputPath = task.OutputPath
	return base
}

// superviseStderr consumes the stderr stream, deriving progress only from
// really parsed values and reporting only on stage entry and 5% crossings.
// It returns the tail of stderr for failure reporting.
func (a *Adapter) superviseStderr(stderr interface{ Read([]byte) (int, error) }, duration time.Duration, report func(models.DeliveryStage, *float64, *float64)) string {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)

	var tailLines []string
	encodingReported := false
	lastBucket := -1

	for scanner.Scan() {
		line := scanner.Text()

		tailLines = append(tailLines, line)
		if len(tailLines) > stderrTailLines {
			tailLines = tailLines[1:]
		}

		position, havePosition := parseTime(line)
		if !havePosition {
			continue
		}

		if !encodingReported {
			encodingReported = true
			report(models.StageEncoding, nil, nil)
		}
		if duration <= 0 {
			continue
		}

		percent := position.Seconds() / duration.Seconds() * 100
		if percent > 100 {
			percent = 100
		}

		bucket := int(percent / 5)
		if bucket == lastBucket {
			continue
		}
		lastBucket = bucket

		var eta *float64
		if speed, ok := parseSpeed(line); ok && speed > 0 {
			remaining := (duration - position).Seconds() / speed
			if remaining < 0 {
				remaining = 0
			}
			eta = &remaining
		}
		report(models.StageEncoding, &percent, eta)
	}

	return strings.Join(tailLines, " | ")
}

// parseTime extracts the current position from a stats line.
func parseTime(line string) (time.Duration, bool) {
	m := timeRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.ParseFloat(m[3], 64)
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second)), true
}

// parseSpeed extracts the encode speed multiplier from a stats line.
func parseSpeed(line string) (float64, bool) {
	m := speedRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	speed, err := strconv.ParseFloat(m[1], 64)
	return speed, err == nil
}

func removePartial(path string) {
	if path != "" {
		_ = os.Remove(path)
	}
}

func argv(binary string, args []string) []string {
	return append([]string{binary}, args...)
}
