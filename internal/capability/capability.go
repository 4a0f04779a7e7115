// Package capability decides which engine a source routes to and enforces
// codec/container coherence. Routing is a pure function over the normalised
// (container, codec) pair; there is no fallback engine for unknown formats.
package capability

import (
	"fmt"
	"sort"
	"strings"

	"github.com/proxyforge/proxyforge/internal/models"
)

// Normalize lowercases a codec or container token and strips a leading dot,
// so ".MOV" and "mov" compare equal.
func Normalize(s string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
}

// routingContainers maps normalised codecs to the containers ffmpeg accepts
// them in. This doubles as the VALID_CODEC_CONTAINERS coherence table.
var routingContainers = map[string][]string{
	"h264":   {"mp4", "mov", "mkv"},
	"h265":   {"mp4", "mov", "mkv"},
	"hevc":   {"mp4", "mov", "mkv"},
	"prores": {"mov"},
	"dnxhr":  {"mov", "mxf"},
	"dnxhd":  {"mxf"},
}

// resolveCodecs is the camera-proprietary set that only Resolve can decode.
var resolveCodecs = map[string]bool{
	"arriraw":    true,
	"redcode":    true,
	"r3d":        true,
	"braw":       true,
	"prores_raw": true,
	"proresraw":  true,
	"cinemadng":  true,
	"dng":        true,
	"venice":     true,
	"xocn":       true,
	"x-ocn":      true,
}

// RouteSource maps a (container, codec) pair to an engine. Unknown pairs are
// rejected; there is no implicit fallback.
func RouteSource(container, codec string) (models.EngineKind, *models.ValidationError) {
	nc := Normalize(codec)
	nk := Normalize(container)

	if resolveCodecs[nc] {
		return models.EngineResolve, nil
	}

	containers, known := routingContainers[nc]
	if !known {
		return "", models.NewValidationError(
			models.TagSourceUnsupported,
			"codec %q in container %q is not supported", nc, nk,
		).WithAction("transcode the source to a supported delivery codec, or use a camera-original format routed to resolve")
	}

	for _, c := range containers {
		if c == nk {
			return models.EngineFFmpeg, nil
		}
	}
	return "", codecContainerMismatch(nc, nk, containers)
}

// ValidateCodecContainer enforces the coherence table independently of
// routing, used again at command-build time.
func ValidateCodecContainer(codec, container string) *models.ValidationError {
	nc := Normalize(codec)
	nk := Normalize(container)

	containers, known := routingContainers[nc]
	if !known {
		return models.NewValidationError(
			models.TagSourceUnsupported,
			"codec %q is not a supported delivery codec", nc,
		).WithAction("choose one of: " + strings.Join(knownCodecs(), ", "))
	}
	for _, c := range containers {
		if c == nk {
			return nil
		}
	}
	return codecContainerMismatch(nc, nk, containers)
}

func codecContainerMismatch(codec, container string, valid []string) *models.ValidationError {
	return models.NewValidationError(
		models.TagCodecContainerMismatch,
		"codec %q cannot be delivered in container %q", codec, container,
	).WithAction(fmt.Sprintf("use container %s for codec %q", strings.Join(valid, " or "), codec))
}

func knownCodecs() []string {
	codecs := make([]string, 0, len(routingContainers))
	for codec := range routingContainers {
		codecs = append(codecs, codec)
	}
	sort.Strings(codecs)
	return codecs
}
