// Package jobspec reads and validates the versioned JobSpec JSON consumed by
// the CLI. A JobSpec describes one job: its sources and its deliver settings.
package jobspec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/proxyforge/proxyforge/internal/models"
)

// MinVersion is the lowest accepted jobspec_version.
const MinVersion = "2.0"

// JobSpec is the on-disk job description.
type JobSpec struct {
	Version         string   `json:"jobspec_version"`
	Sources         []string `json:"sources"`
	OutputDirectory string   `json:"output_directory"`
	Codec           string   `json:"codec"`
	Container       string   `json:"container"`
	Resolution      string   `json:"resolution"`
	NamingTemplate  string   `json:"naming_template"`
	ProxyProfile    string   `json:"proxy_profile"`

	ResolvePreset          string  `json:"resolve_preset,omitempty"`
	RequiresResolveEdition string  `json:"requires_resolve_edition,omitempty"`
	FpsMode                string  `json:"fps_mode,omitempty"`
	FpsExplicit            float64 `json:"fps_explicit,omitempty"`
}

// Load reads and parses a JobSpec file.
func Load(path string) (*JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading jobspec: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JobSpec. Unknown fields are rejected.
func Parse(data []byte) (*JobSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var spec JobSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing jobspec: %w", err)
	}
	return &spec, nil
}

// Validate checks version and required fields. It does not touch the
// filesystem; source existence is the ingestion service's concern.
func (s *JobSpec) Validate() error {
	if err := checkVersion(s.Version); err != nil {
		return err
	}
	if len(s.Sources) == 0 {
		return models.NewValidationError(models.TagSourceMissing, "jobspec has no sources")
	}
	for _, src := range s.Sources {
		if !strings.HasPrefix(src, "/") {
			return models.NewValidationError(models.TagSourceMissing, "source path %q is not absolute", src)
		}
	}

	required := map[string]string{
		"output_directory": s.OutputDirectory,
		"codec":            s.Codec,
		"container":        s.Container,
		"resolution":       s.Resolution,
		"naming_template":  s.NamingTemplate,
		"proxy_profile":    s.ProxyProfile,
	}
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("jobspec missing required field %q", field)
		}
	}

	switch s.RequiresResolveEdition {
	case "", "free", "studio", "either":
	default:
		return fmt.Errorf("jobspec requires_resolve_edition %q is not one of free, studio, either", s.RequiresResolveEdition)
	}

	switch s.FpsMode {
	case "", string(models.FpsPassthrough):
	case string(models.FpsExplicit):
		if s.FpsExplicit <= 0 {
			return fmt.Errorf("jobspec fps_mode %q requires a positive fps_explicit", s.FpsMode)
		}
	default:
		return fmt.Errorf("jobspec fps_mode %q is not one of passthrough, explicit", s.FpsMode)
	}

	return nil
}

// checkVersion accepts any version whose major component is at least the
// minimum's major component.
func checkVersion(version string) error {
	if strings.TrimSpace(version) == "" {
		return fmt.Errorf("jobspec_version is required (minimum %s)", MinVersion)
	}
	major, err := majorOf(version)
	if err != nil {
		return fmt.Errorf("jobspec_version %q is not a version string: %w", version, err)
	}
	minMajor, _ := majorOf(MinVersion)
	if major < minMajor {
		return fmt.Errorf("jobspec_version %q is older than the minimum %s", version, MinVersion)
	}
	return nil
}

func majorOf(version string) (int, error) {
	head, _, _ := strings.Cut(version, ".")
	return strconv.Atoi(head)
}

// Settings builds the deliver-settings snapshot the file describes.
func (s *JobSpec) Settings() models.DeliverSettings {
	edition := s.RequiresResolveEdition
	if edition == "" {
		edition = "either"
	}

	fpsMode := models.FpsMode(s.FpsMode)
	if s.FpsMode == "" {
		fpsMode = models.FpsPassthrough
	}

	return models.DeliverSettings{
		OutputDir:  s.OutputDirectory,
		Resolution: models.ResolutionPolicy(s.Resolution),
		Video: models.VideoSettings{
			Codec:       s.Codec,
			FpsMode:     fpsMode,
			FpsExplicit: s.FpsExplicit,
		},
		Audio: models.AudioSettings{Policy: models.AudioCopy},
		File: models.FileSettings{
			Container:      s.Container,
			NamingTemplate: s.NamingTemplate,
		},
		ProxyProfile:           s.ProxyProfile,
		ResolvePreset:          s.ResolvePreset,
		RequiresResolveEdition: edition,
	}
}
