package ffmpegenc

import (
	"testing"
	"time"

	"github.com/proxyforge/proxyforge/internal/capability"
	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTime(t *testing.T) {
	pos, ok := parseTime("frame= 240 fps= 48 q=28.0 size= 1024kB time=00:01:30.50 bitrate= 900kbits/s speed=2.0x")
	require.True(t, ok)
	assert.Equal(t, 90*time.Second+500*time.Millisecond, pos)

	_, ok = parseTime("Stream mapping:")
	assert.False(t, ok)
}

func TestParseSpeed(t *testing.T) {
	speed, ok := parseSpeed("time=00:00:10.00 speed=1.33x")
	require.True(t, ok)
	assert.InDelta(t, 1.33, speed, 0.001)

	_, ok = parseSpeed("time=00:00:10.00 speed=N/A")
	assert.False(t, ok)
}

func TestBuildArgs_H264(t *testing.T) {
	profile, _ := capability.LookupProfile("proxy_h264_low")
	settings := models.DeliverSettings{
		Resolution:   models.ResolutionHalf,
		ProxyProfile: profile.ID,
		Audio:        models.AudioSettings{Policy: models.AudioCopy},
	}

	args, encoder, verr := BuildArgs("/m/a.mov", "/o/a_proxy.mp4", settings, profile, HardwareCaps{})
	require.Nil(t, verr)
	assert.Equal(t, "libx264", encoder)
	assert.Contains(t, args, "-crf")
	assert.Contains(t, args, "28")
	assert.Equal(t, "/o/a_proxy.mp4", args[len(args)-1])
	// mp4 cannot carry copied PCM; audio is re-encoded.
	assert.Contains(t, args, "aac")

	// Deterministic: same inputs, same argv.
	again, _, _ := BuildArgs("/m/a.mov", "/o/a_proxy.mp4", settings, profile, HardwareCaps{})
	assert.Equal(t, args, again)
}

func TestBuildArgs_ProRes(t *testing.T) {
	profile, _ := capability.LookupProfile("proxy_prores_proxy")
	settings := models.DeliverSettings{
		Resolution:   models.ResolutionHalf,
		ProxyProfile: profile.ID,
	}

	args, encoder, verr := BuildArgs("/m/a.mov", "/o/a_proxy.mov", settings, profile, HardwareCaps{})
	require.Nil(t, verr)
	assert.Equal(t, "prores_ks", encoder)
	assert.Contains(t, args, "-profile:v")
	assert.Contains(t, args, "-c:a")
	assert.Contains(t, args, "copy")
}

func TestBuildArgs_CoherenceEnforcedAtBuildTime(t *testing.T) {
	profile := capability.Profile{
		ID:        "bad",
		Engine:    models.EngineFFmpeg,
		Codec:     "dnxhd",
		Container: "mov",
	}

	_, _, verr := BuildArgs("/m/a.mxf", "/o/a.mov", models.DeliverSettings{}, profile, HardwareCaps{})
	require.NotNil(t, verr)
	assert.Equal(t, models.TagCodecContainerMismatch, verr.Tag)
}

func TestBuildArgs_ExplicitFps(t *testing.T) {
	profile, _ := capability.LookupProfile("proxy_h264_medium")
	settings := models.DeliverSettings{
		ProxyProfile: profile.ID,
		Video: models.VideoSettings{
			FpsMode:     models.FpsExplicit,
			FpsExplicit: 23.976,
		},
	}

	args, _, verr := BuildArgs("/m/a.mov", "/o/a.mp4", settings, profile, HardwareCaps{})
	require.Nil(t, verr)
	assert.Contains(t, args, "-r")
	assert.Contains(t, args, "23.976")
}

func TestHardwareCaps_ProResNeverGPU(t *testing.T) {
	caps := HardwareCaps{
		HWAccels: []string{"videotoolbox"},
		Encoders: map[string]bool{"prores_videotoolbox": true, "h264_videotoolbox": true},
	}

	assert.False(t, caps.GPUCapable("prores"))
	assert.True(t, caps.GPUCapable("h264"))

	_, ok := caps.HardwareEncoder("prores")
	assert.False(t, ok)
	name, ok := caps.HardwareEncoder("h264")
	require.True(t, ok)
	assert.Equal(t, "h264_videotoolbox", name)
}

func TestBuildArgs_HardwareEncoderSelected(t *testing.T) {
	profile, _ := capability.LookupProfile("proxy_h264_low")
	settings := models.DeliverSettings{
		Resolution:   models.ResolutionHalf,
		ProxyProfile: profile.ID,
		Audio:        models.AudioSettings{Policy: models.AudioCopy},
	}
	caps := HardwareCaps{
		HWAccels: []string{"cuda"},
		Encoders: map[string]bool{"h264_nvenc": true, "libx264": true},
	}

	args, encoder, verr := BuildArgs("/m/a.mov", "/o/a_proxy.mp4", settings, profile, caps)
	require.Nil(t, verr)
	assert.Equal(t, "h264_nvenc", encoder)
	assert.Contains(t, args, "h264_nvenc")
	// Software rate-control flags stay off the hardware path.
	assert.NotContains(t, args, "-crf")
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 23.976, parseFrameRate("24000/1001"), 0.001)
	assert.InDelta(t, 25.0, parseFrameRate("25/1"), 0.001)
	assert.Zero(t, parseFrameRate("0/0"))
}
