package naming

import (
	"testing"
	"time"

	"github.com/proxyforge/proxyforge/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTemplate(t *testing.T) {
	tests := []struct {
		name      string
		template  string
		clipCount int
		wantErr   bool
	}{
		{"single clip plain name", "output", 1, false},
		{"multi clip plain name", "output", 2, true},
		{"multi clip with index", "proxy_{index}", 2, false},
		{"multi clip with source name", "{source_name}_proxy", 5, false},
		{"empty template", "  ", 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateTemplate(tt.template, tt.clipCount)
			if tt.wantErr {
				require.NotNil(t, verr)
				assert.Equal(t, models.TagNamingTemplateAmbiguous, verr.Tag)
			} else {
				assert.Nil(t, verr)
			}
		})
	}
}

func TestResolve_Tokens(t *testing.T) {
	ctx := Context{
		SourcePath: "/media/day01/a.mov",
		OutputDir:  "/proxies",
		Container:  "mp4",
		Codec:      "h264",
		Resolution: "720p",
		Index:      3,
		Date:       time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
		File: models.FileSettings{
			NamingTemplate: "{source_name}_{codec}_{resolution}_{index}_{date}",
		},
	}

	assert.Equal(t, "/proxies/a_h264_720p_0003_20260824.mp4", Resolve(ctx))
}

func TestResolve_PrefixSuffixAndExtension(t *testing.T) {
	ctx := Context{
		SourcePath: "/media/a.mov",
		OutputDir:  "/proxies",
		Container:  ".mov",
		File: models.FileSettings{
			NamingTemplate: "{source_name}",
			Prefix:         "px_",
			Suffix:         "_proxy",
		},
	}

	assert.Equal(t, "/proxies/px_a_proxy.mov", Resolve(ctx))
}

func TestResolve_PreserveSourceDirs(t *testing.T) {
	ctx := Context{
		SourcePath: "/media/shoot/day01/cam_a/a.mov",
		OutputDir:  "/proxies",
		Container:  "mp4",
		File: models.FileSettings{
			NamingTemplate:     "{source_name}_proxy",
			PreserveSourceDirs: true,
			PreserveDirLevels:  2,
		},
	}

	assert.Equal(t, "/proxies/day01/cam_a/a_proxy.mp4", Resolve(ctx))
}

func TestResolveUnique(t *testing.T) {
	taken := map[string]bool{
		"/p/a_proxy.mp4":   true,
		"/p/a_proxy_1.mp4": true,
	}
	exists := func(p string) bool { return taken[p] }

	assert.Equal(t, "/p/a_proxy_2.mp4", ResolveUnique("/p/a_proxy.mp4", exists))
	assert.Equal(t, "/p/b_proxy.mp4", ResolveUnique("/p/b_proxy.mp4", exists))
}
