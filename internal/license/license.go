// Package license resolves the process license and enforces the worker cap.
package license

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/proxyforge/proxyforge/internal/config"
)

// Tier is a license tier.
type Tier string

const (
	TierFree      Tier = "free"
	TierFreelance Tier = "freelance"
	TierFacility  Tier = "facility"
)

// tierWorkers maps each tier to its worker cap; nil means unlimited.
var tierWorkers = map[Tier]*int{
	TierFree:      intPtr(1),
	TierFreelance: intPtr(3),
	TierFacility:  nil,
}

func intPtr(n int) *int { return &n }

// License is the immutable resolved license. It is resolved once per process
// and never refetched.
type License struct {
	Tier       Tier      `json:"tier"`
	MaxWorkers *int      `json:"max_workers"` // nil = unlimited
	IssuedAt   time.Time `json:"issued_at"`
	Note       string    `json:"note,omitempty"`
}

// Unlimited reports whether the license has no worker cap.
func (l License) Unlimited() bool {
	return l.MaxWorkers == nil
}

// licenseFile is the on-disk license format.
type licenseFile struct {
	Tier     Tier      `json:"tier"`
	IssuedAt time.Time `json:"issued_at"`
	Note     string    `json:"note,omitempty"`
}

// Resolve determines the license tier: FORGE_LICENSE_TYPE environment
// variable first, then the license file, then the free default. An invalid
// tier from any source falls through to the next with a warning.
func Resolve(cfg config.LicenseConfig, logger *slog.Logger) License {
	if logger == nil {
		logger = slog.Default()
	}

	// cfg.Type carries FORGE_LICENSE_TYPE when set in the environment.
	if tier, ok := parseTier(cfg.Type); ok {
		return fromTier(tier, "environment")
	}
	if cfg.Type != "" {
		logger.Warn("ignoring invalid license type", slog.String("type", cfg.Type))
	}

	if cfg.File != "" {
		if lic, err := loadFile(cfg.File); err == nil {
			return lic
		} else if !os.IsNotExist(err) {
			logger.Warn("ignoring unreadable license file",
				slog.String("path", cfg.File),
				slog.String("error", err.Error()),
			)
		}
	}

	return fromTier(TierFree, "default")
}

func parseTier(s string) (Tier, bool) {
	switch Tier(s) {
	case TierFree, TierFreelance, TierFacility:
		return Tier(s), true
	}
	return "", false
}

func fromTier(tier Tier, source string) License {
	return License{
		Tier:       tier,
		MaxWorkers: tierWorkers[tier],
		IssuedAt:   time.Now().UTC(),
		Note:       "resolved from " + source,
	}
}

func loadFile(path string) (License, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return License{}, err
	}

	var lf licenseFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return License{}, fmt.Errorf("parsing license file: %w", err)
	}
	tier, ok := parseTier(string(lf.Tier))
	if !ok {
		return License{}, fmt.Errorf("license file has unknown tier %q", lf.Tier)
	}

	lic := fromTier(tier, "file")
	if !lf.IssuedAt.IsZero() {
		lic.IssuedAt = lf.IssuedAt.UTC()
	}
	if lf.Note != "" {
		lic.Note = lf.Note
	}
	return lic, nil
}
