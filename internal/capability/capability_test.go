package capability

import (
	"testing"

	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "mov", Normalize(".MOV"))
	assert.Equal(t, "h264", Normalize("H264"))
	assert.Equal(t, "mxf", Normalize(" .mxf "))
}

func TestRouteSource(t *testing.T) {
	tests := []struct {
		name      string
		container string
		codec     string
		engine    models.EngineKind
		tag       models.ErrorTag
	}{
		{"h264 mp4", "mp4", "h264", models.EngineFFmpeg, ""},
		{"h264 mkv", "mkv", "h264", models.EngineFFmpeg, ""},
		{"hevc mov", ".mov", "HEVC", models.EngineFFmpeg, ""},
		{"prores mov", "mov", "prores", models.EngineFFmpeg, ""},
		{"dnxhr mxf", "mxf", "dnxhr", models.EngineFFmpeg, ""},
		{"dnxhd mxf", "mxf", "dnxhd", models.EngineFFmpeg, ""},
		{"braw routes to resolve", "braw", "braw", models.EngineResolve, ""},
		{"redcode routes to resolve", "r3d", "redcode", models.EngineResolve, ""},
		{"arriraw routes to resolve", "ari", "arriraw", models.EngineResolve, ""},
		{"dnxhd in mov rejected", "mov", "dnxhd", "", models.TagCodecContainerMismatch},
		{"prores in mp4 rejected", "mp4", "prores", "", models.TagCodecContainerMismatch},
		{"unknown codec rejected", "avi", "cinepak", "", models.TagSourceUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, verr := RouteSource(tt.container, tt.codec)
			if tt.tag != "" {
				require.NotNil(t, verr)
				assert.Equal(t, tt.tag, verr.Tag)
				assert.NotEmpty(t, verr.RecommendedAction)
				return
			}
			require.Nil(t, verr)
			assert.Equal(t, tt.engine, engine)
		})
	}
}

func TestValidateCodecContainer_ErrorNamesBothSides(t *testing.T) {
	verr := ValidateCodecContainer("dnxhd", "mov")
	require.NotNil(t, verr)
	assert.Contains(t, verr.Message, "dnxhd")
	assert.Contains(t, verr.Message, "mov")
	assert.Contains(t, verr.RecommendedAction, "mxf")
}

func TestLookupProfile(t *testing.T) {
	p, ok := LookupProfile("proxy_h264_low")
	require.True(t, ok)
	assert.Equal(t, models.EngineFFmpeg, p.Engine)
	assert.Equal(t, "mp4", p.Container)

	_, ok = LookupProfile("does_not_exist")
	assert.False(t, ok)
}

func TestProfileIDs_Sorted(t *testing.T) {
	ids := ProfileIDs()
	require.NotEmpty(t, ids)
	for i := 1; i < len(ids); i++ {
		assert.Less(t, ids[i-1], ids[i])
	}
}

func TestValidateProfileEngine(t *testing.T) {
	p, ok := LookupProfile("proxy_prores_proxy_resolve")
	require.True(t, ok)

	assert.Nil(t, ValidateProfileEngine(p, models.EngineResolve))

	verr := ValidateProfileEngine(p, models.EngineFFmpeg)
	require.NotNil(t, verr)
	assert.Equal(t, models.TagProxyProfileMismatch, verr.Tag)
	assert.Contains(t, verr.Message, "proxy_prores_proxy_resolve")
	assert.Contains(t, verr.Message, "ffmpeg")
}

func TestProfilesPassCoherence(t *testing.T) {
	for _, id := range ProfileIDs() {
		p, _ := LookupProfile(id)
		assert.Nil(t, ValidateCodecContainer(p.Codec, p.Container), "profile %s", id)
	}
}
