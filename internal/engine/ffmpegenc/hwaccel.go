package ffmpegenc

import (
	"bufio"
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// HardwareCaps is the one-time hardware capability probe result.
type HardwareCaps struct {
	HWAccels []string
	// Encoders holds the ffmpeg encoder names reported by -encoders.
	Encoders map[string]bool
}

var (
	hwOnce sync.Once
	hwCaps HardwareCaps
)

// ProbeHardware runs the hwaccel and encoder listing once per process and
// caches the result.
func ProbeHardware(binaryPath string) HardwareCaps {
	hwOnce.Do(func() {
		if binaryPath == "" {
			binaryPath = "ffmpeg"
		}
		hwCaps = HardwareCaps{Encoders: make(map[string]bool)}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if out, err := exec.CommandContext(ctx, binaryPath, "-hide_banner", "-hwaccels").Output(); err == nil {
			scanner := bufio.NewScanner(strings.NewReader(string(out)))
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" || strings.HasPrefix(line, "Hardware") {
					continue
				}
				hwCaps.HWAccels = append(hwCaps.HWAccels, line)
			}
		}

		if out, err := exec.CommandContext(ctx, binaryPath, "-hide_banner", "-encoders").Output(); err == nil {
			scanner := bufio.NewScanner(strings.NewReader(string(out)))
			for scanner.Scan() {
				fields := strings.Fields(scanner.Text())
				// Encoder lines look like " V....D libx264   H.264 ...".
				if len(fields) >= 2 && (strings.HasPrefix(fields[0], "V") || strings.HasPrefix(fields[0], "A")) {
					hwCaps.Encoders[fields[1]] = true
				}
			}
		}
	})
	return hwCaps
}

// hwSuffixPreference orders the encoder families tried for a GPU-capable
// codec.
var hwSuffixPreference = []string{"nvenc", "qsv", "vaapi", "videotoolbox"}

// HardwareEncoder returns the preferred hardware encoder name for a codec.
// The second return is false when the codec stays on the software path.
func (c HardwareCaps) HardwareEncoder(codec string) (string, bool) {
	if !c.GPUCapable(codec) {
		return "", false
	}
	base := strings.ToLower(codec)
	for _, suffix := range hwSuffixPreference {
		if name := base + "_" + suffix; c.Encoders[name] {
			return name, true
		}
	}
	return "", false
}

// GPUCapable reports whether a codec can be hardware-accelerated on this
// host. ProRes is never GPU-accelerated regardless of what the encoder list
// claims; no GPU ProRes encoder exists.
func (c HardwareCaps) GPUCapable(codec string) bool {
	switch strings.ToLower(codec) {
	case "prores", "prores_ks", "prores_raw":
		return false
	}
	if len(c.HWAccels) == 0 {
		return false
	}
	for name := range c.Encoders {
		if strings.Contains(name, strings.ToLower(codec)) &&
			(strings.Contains(name, "nvenc") || strings.Contains(name, "qsv") ||
				strings.Contains(name, "vaapi") || strings.Contains(name, "videotoolbox")) {
			return true
		}
	}
	return false
}
