package watchfolder

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// mediaExtensions is the allowlist of file extensions the scanner considers.
// Everything else (sidecars, reports, partial transfers with custom suffixes)
// is ignored.
var mediaExtensions = map[string]bool{
	"mov":  true,
	"mp4":  true,
	"mkv":  true,
	"mxf":  true,
	"m4v":  true,
	"avi":  true,
	"mts":  true,
	"braw": true,
	"r3d":  true,
	"ari":  true,
	"dng":  true,
}

// candidate is one media file found by a sweep.
type candidate struct {
	path string
	info fs.FileInfo
}

// scanFolder lists media files under root. Hidden files and symlinks are
// skipped; subdirectories are only entered when recursive is set.
func scanFolder(root string, recursive bool) ([]candidate, error) {
	var found []candidate

	walk := func(path string, d fs.DirEntry) error {
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		if !mediaExtensions[ext] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			// The file vanished between listing and stat; skip it.
			return nil
		}
		found = append(found, candidate{path: path, info: info})
		return nil
	}

	if recursive {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path == root {
					return nil
				}
				// Never descend into hidden directories or the folder's own
				// proxy output.
				if strings.HasPrefix(d.Name(), ".") || d.Name() == proxySubdir {
					return filepath.SkipDir
				}
				return nil
			}
			return walk(path, d)
		})
		if err != nil {
			return nil, err
		}
		return found, nil
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := walk(filepath.Join(root, entry.Name()), entry); err != nil {
			return nil, err
		}
	}
	return found, nil
}
