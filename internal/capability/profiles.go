package capability

import (
	"sort"

	"github.com/proxyforge/proxyforge/internal/models"
)

// Profile binds a symbolic proxy-profile id to an engine and its encoding
// parameters. Profiles are static; operators reference them by id.
type Profile struct {
	ID            string                  `json:"id"`
	Engine        models.EngineKind       `json:"engine"`
	Codec         string                  `json:"codec"`
	Container     string                  `json:"container"`
	Resolution    models.ResolutionPolicy `json:"resolution"`
	ResolvePreset string                  `json:"resolve_preset,omitempty"`
	// EngineParams carries encoder-specific tuning, keyed by parameter name.
	EngineParams map[string]string `json:"engine_params,omitempty"`
}

var profiles = map[string]Profile{
	"proxy_h264_low": {
		ID:         "proxy_h264_low",
		Engine:     models.EngineFFmpeg,
		Codec:      "h264",
		Container:  "mp4",
		Resolution: models.ResolutionHalf,
		EngineParams: map[string]string{
			"crf":    "28",
			"preset": "faster",
		},
	},
	"proxy_h264_medium": {
		ID:         "proxy_h264_medium",
		Engine:     models.EngineFFmpeg,
		Codec:      "h264",
		Container:  "mp4",
		Resolution: models.Resolution720p,
		EngineParams: map[string]string{
			"crf":    "23",
			"preset": "medium",
		},
	},
	"proxy_prores_proxy": {
		ID:         "proxy_prores_proxy",
		Engine:     models.EngineFFmpeg,
		Codec:      "prores",
		Container:  "mov",
		Resolution: models.ResolutionHalf,
		EngineParams: map[string]string{
			// prores_ks profile 0 is ProRes 422 Proxy.
			"profile": "0",
		},
	},
	"proxy_dnxhr_lb": {
		ID:         "proxy_dnxhr_lb",
		Engine:     models.EngineFFmpeg,
		Codec:      "dnxhr",
		Container:  "mxf",
		Resolution: models.ResolutionHalf,
		EngineParams: map[string]string{
			"profile": "dnxhr_lb",
		},
	},
	"proxy_prores_proxy_resolve": {
		ID:            "proxy_prores_proxy_resolve",
		Engine:        models.EngineResolve,
		Codec:         "prores",
		Container:     "mov",
		Resolution:    models.ResolutionHalf,
		ResolvePreset: "ProRes Proxy",
	},
	"proxy_dnxhr_resolve": {
		ID:            "proxy_dnxhr_resolve",
		Engine:        models.EngineResolve,
		Codec:         "dnxhr",
		Container:     "mxf",
		Resolution:    models.ResolutionHalf,
		ResolvePreset: "DNxHR LB",
	},
}

// LookupProfile returns the profile for an id.
func LookupProfile(id string) (Profile, bool) {
	p, ok := profiles[id]
	return p, ok
}

// ProfileIDs returns all registered profile ids, sorted.
func ProfileIDs() []string {
	ids := make([]string, 0, len(profiles))
	for id := range profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ValidateProfileEngine checks the profile's declared engine against the
// engine the source routes to. A mismatch names both sides.
func ValidateProfileEngine(profile Profile, routed models.EngineKind) *models.ValidationError {
	if profile.Engine == routed {
		return nil
	}
	return models.NewValidationError(
		models.TagProxyProfileMismatch,
		"profile %q targets engine %q but the source routes to %q", profile.ID, profile.Engine, routed,
	).WithAction("pick a profile declared for engine " + string(routed))
}
