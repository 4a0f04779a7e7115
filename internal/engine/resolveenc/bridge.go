package resolveenc

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// Bridge abstracts the Resolve scripting API so the adapter can be exercised
// without a Resolve installation.
type Bridge interface {
	// CheckAvailability probes for a reachable Resolve instance.
	CheckAvailability(ctx context.Context) (bool, string)
	// ListPresets returns the render presets of the current installation.
	ListPresets(ctx context.Context) ([]string, error)
	// DetectEdition returns the installed edition (free or studio) and the
	// Resolve version string.
	DetectEdition(ctx context.Context) (string, string, error)
	// Render runs one render to completion. Progress is indeterminate by
	// contract; Resolve does not stream a usable percent.
	Render(ctx context.Context, sourcePath, outputPath, preset string) error
}

// scriptBridge drives Resolve through a bridge script that speaks the
// scripting API and prints JSON on stdout.
type scriptBridge struct {
	scriptPath string
}

// NewScriptBridge creates the production bridge.
func NewScriptBridge(scriptPath string) Bridge {
	return &scriptBridge{scriptPath: scriptPath}
}

type availabilityReply struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason"`
}

func (b *scriptBridge) CheckAvailability(ctx context.Context) (bool, string) {
	out, err := exec.CommandContext(ctx, b.scriptPath, "availability").Output()
	if err != nil {
		return false, fmt.Sprintf("resolve bridge not reachable: %v", err)
	}
	var reply availabilityReply
	if err := json.Unmarshal(out, &reply); err != nil {
		return false, fmt.Sprintf("resolve bridge returned malformed reply: %v", err)
	}
	return reply.Available, reply.Reason
}

func (b *scriptBridge) ListPresets(ctx context.Context) ([]string, error) {
	out, err := exec.CommandContext(ctx, b.scriptPath, "presets").Output()
	if err != nil {
		return nil, fmt.Errorf("listing resolve presets: %w", err)
	}
	var presets []string
	if err := json.Unmarshal(out, &presets); err != nil {
		return nil, fmt.Errorf("parsing resolve presets: %w", err)
	}
	return presets, nil
}

type editionReply struct {
	Edition string `json:"edition"`
	Version string `json:"version"`
}

func (b *scriptBridge) DetectEdition(ctx context.Context) (string, string, error) {
	out, err := exec.CommandContext(ctx, b.scriptPath, "edition").Output()
	if err != nil {
		return "", "", fmt.Errorf("detecting resolve edition: %w", err)
	}
	var reply editionReply
	if err := json.Unmarshal(out, &reply); err != nil {
		return "", "", fmt.Errorf("parsing resolve edition: %w", err)
	}
	return reply.Edition, reply.Version, nil
}

func (b *scriptBridge) Render(ctx context.Context, sourcePath, outputPath, preset string) error {
	cmd := exec.CommandContext(ctx, b.scriptPath, "render",
		"--source", sourcePath,
		"--output", outputPath,
		"--preset", preset,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("resolve render failed: %w: %s", err, tail(string(out)))
	}
	return nil
}

// tail bounds bridge output carried into error messages.
func tail(s string) string {
	const max = 512
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
