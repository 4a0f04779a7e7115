package resolveenc

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/proxyforge/proxyforge/internal/config"
	"github.com/proxyforge/proxyforge/internal/engine"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBridge simulates a Resolve installation.
type fakeBridge struct {
	available    bool
	reason       string
	presets      []string
	edition      string
	version      string
	renderErr    error
	renderOutput []byte
}

func (f *fakeBridge) CheckAvailability(ctx context.Context) (bool, string) {
	return f.available, f.reason
}

func (f *fakeBridge) ListPresets(ctx context.Context) ([]string, error) {
	return f.presets, nil
}

func (f *fakeBridge) DetectEdition(ctx context.Context) (string, string, error) {
	return f.edition, f.version, nil
}

func (f *fakeBridge) Render(ctx context.Context, sourcePath, outputPath, preset string) error {
	if f.renderErr != nil {
		return f.renderErr
	}
	return os.WriteFile(outputPath, f.renderOutput, 0o644)
}

func newTestAdapter(bridge *fakeBridge) *Adapter {
	return NewWithBridge(config.ResolveConfig{MaxListedPresets: 3}, bridge, nil)
}

func TestCheckAvailability(t *testing.T) {
	adapter := newTestAdapter(&fakeBridge{available: false, reason: "no resolve process"})

	available, reason := adapter.CheckAvailability(context.Background())
	assert.False(t, available)
	assert.Equal(t, "no resolve process", reason)
}

func TestValidatePreset_MissingListsTruncated(t *testing.T) {
	adapter := newTestAdapter(&fakeBridge{
		presets: []string{"A", "B", "C", "D", "E"},
	})

	verr := adapter.ValidatePreset(context.Background(), "Nope")
	require.NotNil(t, verr)
	assert.Equal(t, models.TagResolvePresetMissing, verr.Tag)
	assert.Contains(t, verr.Message, "A, B, C")
	assert.Contains(t, verr.Message, "2 more")
	assert.NotContains(t, verr.Message, "D")
}

func TestValidatePreset_Found(t *testing.T) {
	adapter := newTestAdapter(&fakeBridge{presets: []string{"ProRes Proxy"}})
	assert.Nil(t, adapter.ValidatePreset(context.Background(), "ProRes Proxy"))
}

func TestCheckEdition(t *testing.T) {
	adapter := newTestAdapter(&fakeBridge{edition: "studio", version: "19.1"})
	ctx := context.Background()

	// "either" never skips.
	skip, err := adapter.CheckEdition(ctx, "either")
	require.NoError(t, err)
	assert.Nil(t, skip)

	// Matching edition passes.
	skip, err = adapter.CheckEdition(ctx, "studio")
	require.NoError(t, err)
	assert.Nil(t, skip)

	// Mismatch produces skip metadata, not an error.
	skip, err = adapter.CheckEdition(ctx, "free")
	require.NoError(t, err)
	require.NotNil(t, skip)
	assert.Equal(t, "resolve_free_not_installed", skip.Reason)
	assert.Equal(t, "studio", skip.DetectedEdition)
	assert.Equal(t, "free", skip.RequiredEdition)
	assert.Equal(t, "19.1", skip.ResolveVersion)
}

func TestExecute_Success(t *testing.T) {
	adapter := newTestAdapter(&fakeBridge{renderOutput: []byte("rendered")})

	outputPath := filepath.Join(t.TempDir(), "a_proxy.mov")
	task := &models.ClipTask{SourcePath: "/m/a.braw", OutputPath: outputPath}

	var stages []models.DeliveryStage
	result := adapter.Execute(context.Background(), task,
		models.DeliverSettings{ResolvePreset: "ProRes Proxy"},
		engine.NewCancelToken(),
		func(p engine.Progress) {
			stages = append(stages, p.Stage)
			// Indeterminate progress: never a percent.
			assert.Nil(t, p.Percent)
			assert.Nil(t, p.ETASeconds)
		})

	assert.Equal(t, engine.ResultSuccess, result.Kind)
	assert.Equal(t, outputPath, result.OutputPath)
	assert.Equal(t, []models.DeliveryStage{
		models.StageStarting, models.StageEncoding, models.StageFinalizing,
	}, stages)
}

func TestExecute_RenderFailure(t *testing.T) {
	adapter := newTestAdapter(&fakeBridge{renderErr: errors.New("render job rejected")})

	task := &models.ClipTask{
		SourcePath: "/m/a.braw",
		OutputPath: filepath.Join(t.TempDir(), "a_proxy.mov"),
	}
	result := adapter.Execute(context.Background(), task,
		models.DeliverSettings{ResolvePreset: "ProRes Proxy"},
		engine.NewCancelToken(), nil)

	assert.Equal(t, engine.ResultFailed, result.Kind)
	assert.Contains(t, result.FailureReason, "execution.engine_failure")
}

func TestExecute_EmptyOutputIsFailure(t *testing.T) {
	adapter := newTestAdapter(&fakeBridge{renderOutput: nil})

	task := &models.ClipTask{
		SourcePath: "/m/a.braw",
		OutputPath: filepath.Join(t.TempDir(), "a_proxy.mov"),
	}
	result := adapter.Execute(context.Background(), task,
		models.DeliverSettings{ResolvePreset: "ProRes Proxy"},
		engine.NewCancelToken(), nil)

	assert.Equal(t, engine.ResultFailed, result.Kind)
	assert.Contains(t, result.FailureReason, "output_missing")
}

func TestExecute_Cancelled(t *testing.T) {
	adapter := newTestAdapter(&fakeBridge{renderOutput: []byte("rendered")})

	token := engine.NewCancelToken()
	token.Cancel("operator request")

	task := &models.ClipTask{
		SourcePath: "/m/a.braw",
		OutputPath: filepath.Join(t.TempDir(), "a_proxy.mov"),
	}
	result := adapter.Execute(context.Background(), task,
		models.DeliverSettings{ResolvePreset: "ProRes Proxy"},
		token, nil)

	assert.Equal(t, engine.ResultCancelled, result.Kind)
	assert.Contains(t, result.FailureReason, "execution.cancelled")
	assert.NoFileExists(t, task.OutputPath)
}
