// Package naming resolves output paths from naming templates. Templates use
// {token} placeholders expanded against the clip being delivered; unknown
// tokens are left verbatim so mistakes are visible in the output name.
package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/proxyforge/proxyforge/internal/models"
)

// Tokens recognised in naming templates.
const (
	TokenSourceName = "{source_name}"
	TokenIndex      = "{index}"
	TokenCodec      = "{codec}"
	TokenResolution = "{resolution}"
	TokenDate       = "{date}"
)

// ValidateTemplate rejects templates that would collide deterministically.
// A job with more than one clip must carry a per-clip uniquifying token;
// single-clip jobs are exempt.
func ValidateTemplate(template string, clipCount int) *models.ValidationError {
	if strings.TrimSpace(template) == "" {
		return models.NewValidationError(
			models.TagNamingTemplateAmbiguous,
			"naming template is empty",
		).WithAction("provide a template such as {source_name}_proxy")
	}
	if clipCount <= 1 {
		return nil
	}
	if strings.Contains(template, TokenIndex) || strings.Contains(template, TokenSourceName) {
		return nil
	}
	return models.NewValidationError(
		models.TagNamingTemplateAmbiguous,
		"template %q has no uniquifying token for a %d-clip job", template, clipCount,
	).WithAction("include {index} or {source_name} in the template")
}

// Context carries everything a template expansion needs for one clip.
type Context struct {
	SourcePath string
	OutputDir  string
	Container  string
	Codec      string
	Resolution string
	Index      int
	Date       time.Time
	File       models.FileSettings
}

// Resolve expands the template for one clip and returns the absolute output
// path, including the container extension.
func Resolve(ctx Context) string {
	sourceBase := filepath.Base(ctx.SourcePath)
	sourceName := strings.TrimSuffix(sourceBase, filepath.Ext(sourceBase))

	name := ctx.File.NamingTemplate
	name = strings.ReplaceAll(name, TokenSourceName, sourceName)
	name = strings.ReplaceAll(name, TokenIndex, fmt.Sprintf("%04d", ctx.Index))
	name = strings.ReplaceAll(name, TokenCodec, ctx.Codec)
	name = strings.ReplaceAll(name, TokenResolution, ctx.Resolution)
	name = strings.ReplaceAll(name, TokenDate, ctx.Date.UTC().Format("20060102"))

	name = ctx.File.Prefix + name + ctx.File.Suffix

	dir := ctx.OutputDir
	if ctx.File.PreserveSourceDirs {
		if sub := sourceSubdirs(ctx.SourcePath, ctx.File.PreserveDirLevels); sub != "" {
			dir = filepath.Join(dir, sub)
		}
	}

	return filepath.Join(dir, name+"."+strings.TrimPrefix(ctx.Container, "."))
}

// sourceSubdirs returns the last levels path components of the source's
// directory, used to mirror the source tree under the output directory.
func sourceSubdirs(sourcePath string, levels int) string {
	if levels <= 0 {
		return ""
	}
	dir := filepath.Dir(sourcePath)
	parts := strings.Split(filepath.ToSlash(dir), "/")

	kept := make([]string, 0, levels)
	for i := len(parts) - 1; i >= 0 && len(kept) < levels; i-- {
		if parts[i] == "" {
			break
		}
		kept = append([]string{parts[i]}, kept...)
	}
	return filepath.Join(kept...)
}

// ResolveUnique applies the collision policy: if the resolved path is taken,
// append _1, _2, ... before the extension until a free name is found.
func ResolveUnique(path string, exists func(string) bool) string {
	if !exists(path) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if !exists(candidate) {
			return candidate
		}
	}
}
