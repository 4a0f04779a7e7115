package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// EngineKind identifies the external encoder a clip is routed to.
type EngineKind string

const (
	// EngineFFmpeg routes standard delivery codecs through FFmpeg.
	EngineFFmpeg EngineKind = "ffmpeg"
	// EngineResolve routes camera-proprietary formats through DaVinci Resolve.
	EngineResolve EngineKind = "resolve"
)

// ResolutionPolicy names a vertical resolution target for the proxy.
type ResolutionPolicy string

const (
	ResolutionHalf   ResolutionPolicy = "half"
	Resolution720p   ResolutionPolicy = "720p"
	Resolution1080p  ResolutionPolicy = "1080p"
	ResolutionSource ResolutionPolicy = "source"
)

// FpsMode controls frame rate handling in the output.
type FpsMode string

const (
	// FpsPassthrough keeps the source frame rate.
	FpsPassthrough FpsMode = "passthrough"
	// FpsExplicit forces the rate given in FpsExplicit.
	FpsExplicit FpsMode = "explicit"
)

// AudioPolicy controls audio track handling.
type AudioPolicy string

const (
	AudioCopy    AudioPolicy = "copy"
	AudioEncode  AudioPolicy = "encode"
	AudioDiscard AudioPolicy = "discard"
)

// VideoSettings holds the video leg of a deliver-settings object.
type VideoSettings struct {
	Codec       string  `json:"codec"`
	FpsMode     FpsMode `json:"fps_mode,omitempty"`
	FpsExplicit float64 `json:"fps_explicit,omitempty"`
}

// AudioSettings holds the audio leg of a deliver-settings object.
type AudioSettings struct {
	Codec  string      `json:"codec,omitempty"`
	Policy AudioPolicy `json:"policy,omitempty"`
}

// FileSettings holds container and naming configuration.
type FileSettings struct {
	Container          string `json:"container"`
	NamingTemplate     string `json:"naming_template"`
	Prefix             string `json:"prefix,omitempty"`
	Suffix             string `json:"suffix,omitempty"`
	PreserveSourceDirs bool   `json:"preserve_source_dirs,omitempty"`
	PreserveDirLevels  int    `json:"preserve_dir_levels,omitempty"`
}

// DeliverSettings is the frozen settings snapshot captured at job creation.
// It is immutable after the job row is written; an optional override layer is
// applied on top without mutating the snapshot.
type DeliverSettings struct {
	OutputDir              string           `json:"output_dir"`
	Engine                 EngineKind       `json:"engine"`
	Resolution             ResolutionPolicy `json:"resolution,omitempty"`
	Video                  VideoSettings    `json:"video"`
	Audio                  AudioSettings    `json:"audio"`
	File                   FileSettings     `json:"file"`
	ProxyProfile           string           `json:"proxy_profile,omitempty"`
	ResolvePreset          string           `json:"resolve_preset,omitempty"`
	RequiresResolveEdition string           `json:"requires_resolve_edition,omitempty"` // free, studio, either
}

// Value implements driver.Valuer, serialising the snapshot as JSON text.
func (s DeliverSettings) Value() (driver.Value, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling deliver settings: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (s *DeliverSettings) Scan(value any) error {
	return scanJSON(value, s, "deliver settings")
}

// GormDataType returns the GORM data type for DeliverSettings.
func (DeliverSettings) GormDataType() string {
	return "text"
}

// SettingsOverride is an optional layer applied atop the frozen snapshot.
// Nil fields fall through to the snapshot value.
type SettingsOverride struct {
	OutputDir  *string           `json:"output_dir,omitempty"`
	Resolution *ResolutionPolicy `json:"resolution,omitempty"`
	Engine     *EngineKind       `json:"engine,omitempty"`
}

// Value implements driver.Valuer.
func (o SettingsOverride) Value() (driver.Value, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("marshaling settings override: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (o *SettingsOverride) Scan(value any) error {
	return scanJSON(value, o, "settings override")
}

// GormDataType returns the GORM data type for SettingsOverride.
func (SettingsOverride) GormDataType() string {
	return "text"
}

// Apply returns the effective settings: override values where present,
// snapshot values otherwise. The snapshot itself is never written to.
func (o *SettingsOverride) Apply(snapshot DeliverSettings) DeliverSettings {
	effective := snapshot
	if o == nil {
		return effective
	}
	if o.OutputDir != nil {
		effective.OutputDir = *o.OutputDir
	}
	if o.Resolution != nil {
		effective.Resolution = *o.Resolution
	}
	if o.Engine != nil {
		effective.Engine = *o.Engine
	}
	return effective
}

// StringList is an ordered, append-only list persisted as JSON text.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling string list: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(value any) error {
	return scanJSON(value, l, "string list")
}

// GormDataType returns the GORM data type for StringList.
func (StringList) GormDataType() string {
	return "text"
}

// scanJSON decodes a text or blob column into dst.
func scanJSON(value any, dst any, what string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for %s: %T", what, value)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("scanning %s: %w", what, err)
	}
	return nil
}
