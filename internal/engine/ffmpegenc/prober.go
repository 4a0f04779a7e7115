package ffmpegenc

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/proxyforge/proxyforge/internal/models"
)

// Prober wraps ffprobe.
type Prober struct {
	probePath string
}

// NewProber creates a Prober. An empty path falls back to PATH lookup.
func NewProber(probePath string) *Prober {
	if probePath == "" {
		probePath = "ffprobe"
	}
	return &Prober{probePath: probePath}
}

// ffprobeOutput mirrors the JSON ffprobe emits with -print_format json.
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		Channels     int    `json:"channels"`
		ColorSpace   string `json:"color_space"`
	} `json:"streams"`
}

// Probe inspects a source file and returns its media metadata together with
// the container duration. Duration zero means unknown.
func (p *Prober) Probe(ctx context.Context, path string) (*models.MediaInfo, time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.probePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probed ffprobeOutput
	if err := json.Unmarshal(out, &probed); err != nil {
		return nil, 0, fmt.Errorf("parsing ffprobe output: %w", err)
	}

	info := &models.MediaInfo{}
	var duration time.Duration
	if secs, err := strconv.ParseFloat(probed.Format.Duration, 64); err == nil {
		duration = time.Duration(secs * float64(time.Second))
		info.DurationMs = duration.Milliseconds()
	}
	if name, _, found := strings.Cut(probed.Format.FormatName, ","); found {
		info.Container = name
	} else {
		info.Container = probed.Format.FormatName
	}

	for _, stream := range probed.Streams {
		switch stream.CodecType {
		case "video":
			if info.Codec == "" {
				info.Codec = stream.CodecName
				info.Resolution = fmt.Sprintf("%dx%d", stream.Width, stream.Height)
				info.Fps = parseFrameRate(stream.AvgFrameRate)
				info.ColorSpace = stream.ColorSpace
			}
		case "audio":
			if info.Audio == "" {
				info.Audio = fmt.Sprintf("%s %dch", stream.CodecName, stream.Channels)
			}
		}
	}

	return info, duration, nil
}

// parseFrameRate converts ffprobe's "num/den" rate string.
func parseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
