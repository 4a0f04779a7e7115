package jobspec

import (
	"encoding/json"
	"testing"

	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSpecJSON() []byte {
	return []byte(`{
		"jobspec_version": "2.0",
		"sources": ["/media/a.mov"],
		"output_directory": "/proxies",
		"codec": "h264",
		"container": "mp4",
		"resolution": "half",
		"naming_template": "{source_name}_proxy",
		"proxy_profile": "proxy_h264_low"
	}`)
}

func TestParse_Valid(t *testing.T) {
	spec, err := Parse(validSpecJSON())
	require.NoError(t, err)
	require.NoError(t, spec.Validate())
	assert.Equal(t, []string{"/media/a.mov"}, spec.Sources)
}

func TestParse_UnknownFieldRejected(t *testing.T) {
	_, err := Parse([]byte(`{"jobspec_version": "2.0", "surprise": true}`))
	assert.Error(t, err)
}

func TestValidate_Version(t *testing.T) {
	spec, err := Parse(validSpecJSON())
	require.NoError(t, err)

	spec.Version = "1.4"
	assert.Error(t, spec.Validate())

	spec.Version = "3.1"
	assert.NoError(t, spec.Validate())

	spec.Version = ""
	assert.Error(t, spec.Validate())

	spec.Version = "banana"
	assert.Error(t, spec.Validate())
}

func TestValidate_RequiredFields(t *testing.T) {
	spec, err := Parse(validSpecJSON())
	require.NoError(t, err)

	spec.Sources = nil
	err = spec.Validate()
	require.Error(t, err)
	verr, ok := models.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, models.TagSourceMissing, verr.Tag)

	spec, _ = Parse(validSpecJSON())
	spec.Sources = []string{"relative/path.mov"}
	assert.Error(t, spec.Validate())

	spec, _ = Parse(validSpecJSON())
	spec.ProxyProfile = ""
	assert.Error(t, spec.Validate())
}

func TestValidate_EditionAndFps(t *testing.T) {
	spec, _ := Parse(validSpecJSON())
	spec.RequiresResolveEdition = "studio"
	assert.NoError(t, spec.Validate())

	spec.RequiresResolveEdition = "pro"
	assert.Error(t, spec.Validate())

	spec, _ = Parse(validSpecJSON())
	spec.FpsMode = "explicit"
	assert.Error(t, spec.Validate())

	spec.FpsExplicit = 23.976
	assert.NoError(t, spec.Validate())
}

func TestSettings_Defaults(t *testing.T) {
	spec, _ := Parse(validSpecJSON())
	settings := spec.Settings()

	assert.Equal(t, "/proxies", settings.OutputDir)
	assert.Equal(t, models.ResolutionHalf, settings.Resolution)
	assert.Equal(t, models.FpsPassthrough, settings.Video.FpsMode)
	assert.Equal(t, "either", settings.RequiresResolveEdition)
	assert.Equal(t, "mp4", settings.File.Container)
}

func TestRoundTrip(t *testing.T) {
	spec, err := Parse(validSpecJSON())
	require.NoError(t, err)

	data, err := json.Marshal(spec)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, spec, again)
}
