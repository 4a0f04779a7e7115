package ffmpegenc

import (
	"fmt"

	"github.com/proxyforge/proxyforge/internal/capability"
	"github.com/proxyforge/proxyforge/internal/models"
)

// encoderFor maps normalised codecs to ffmpeg software encoder names.
var encoderFor = map[string]string{
	"h264":   "libx264",
	"h265":   "libx265",
	"hevc":   "libx265",
	"prores": "prores_ks",
	"dnxhr":  "dnxhd",
	"dnxhd":  "dnxhd",
}

// scaleFor maps resolution policies to ffmpeg scale filters. Half dimensions
// are rounded to even values so subsampled pixel formats stay valid.
var scaleFor = map[models.ResolutionPolicy]string{
	models.ResolutionHalf:   "scale=trunc(iw/4)*2:trunc(ih/4)*2",
	models.Resolution720p:   "scale=-2:720",
	models.Resolution1080p:  "scale=-2:1080",
	models.ResolutionSource: "",
}

// BuildArgs constructs the ffmpeg argv deterministically from the resolved
// parameters and the probed hardware capabilities. Codec/container coherence
// is enforced again here so a bad pair can never reach the subprocess even if
// validation was bypassed upstream.
func BuildArgs(sourcePath, outputPath string, settings models.DeliverSettings, profile capability.Profile, hw HardwareCaps) ([]string, string, *models.ValidationError) {
	codec := capability.Normalize(profile.Codec)
	container := capability.Normalize(profile.Container)

	if verr := capability.ValidateCodecContainer(codec, container); verr != nil {
		return nil, "", verr
	}
	encoder, ok := encoderFor[codec]
	if !ok {
		return nil, "", models.NewValidationError(models.TagSourceUnsupported, "no ffmpeg encoder for codec %q", codec)
	}
	hwEncoder, gpu := hw.HardwareEncoder(codec)
	if gpu {
		encoder = hwEncoder
	}

	args := []string{
		"-hide_banner",
		"-i", sourcePath,
		"-y",
		"-c:v", encoder,
	}

	// Encoder tuning in stable key order. crf and preset are libx264/libx265
	// flags; hardware encoders keep their rate-control defaults.
	if !gpu {
		switch codec {
		case "h264", "h265", "hevc":
			if crf, ok := profile.EngineParams["crf"]; ok {
				args = append(args, "-crf", crf)
			}
			if preset, ok := profile.EngineParams["preset"]; ok {
				args = append(args, "-preset", preset)
			}
		case "prores", "dnxhr", "dnxhd":
			if prof, ok := profile.EngineParams["profile"]; ok {
				args = append(args, "-profile:v", prof)
			}
		}
	}

	resolution := settings.Resolution
	if resolution == "" {
		resolution = profile.Resolution
	}
	if filter, ok := scaleFor[resolution]; ok {
		if filter != "" {
			args = append(args, "-vf", filter)
		}
	} else {
		return nil, "", models.NewValidationError(models.TagSourceUnsupported, "unknown resolution policy %q", resolution)
	}

	if settings.Video.FpsMode == models.FpsExplicit && settings.Video.FpsExplicit > 0 {
		args = append(args, "-r", fmt.Sprintf("%g", settings.Video.FpsExplicit))
	}

	switch settings.Audio.Policy {
	case models.AudioDiscard:
		args = append(args, "-an")
	case models.AudioEncode:
		if container == "mp4" || container == "mkv" {
			args = append(args, "-c:a", "aac", "-b:a", "192k")
		} else {
			args = append(args, "-c:a", "pcm_s16le")
		}
	default:
		// Copy is the default; mp4 cannot carry arbitrary PCM so re-encode
		// there instead of failing mid-encode.
		if container == "mp4" {
			args = append(args, "-c:a", "aac", "-b:a", "192k")
		} else {
			args = append(args, "-c:a", "copy")
		}
	}

	args = append(args, outputPath)
	return args, encoder, nil
}
