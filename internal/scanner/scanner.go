// Package scanner discovers annotatable images in a folder and probes
// their pixel dimensions without decoding full frames.
package scanner

import (
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Header decoders for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/image-annotator/backend/internal/models"
)

// FileMeta describes one discovered image file.
type FileMeta struct {
	Path       string
	Name       string
	RelPath    string
	Width      int
	Height     int
	SizeBytes  int64
	ModifiedAt int64 // Unix milliseconds
}

var supportedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".bmp":  {},
	".gif":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

// Supported reports whether ext names a scannable image format. The
// leading dot is optional and case does not matter.
func Supported(ext string) bool {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	_, ok := supportedExts[ext]
	return ok
}

// Scan synchronously lists the folder's supported images in sorted path
// order, non-recursively. Probe failures are not fatal; affected entries
// keep zero dimensions.
func Scan(folder string) ([]FileMeta, error) {
	metas, _, err := collect(folder, false)
	if err != nil {
		return nil, err
	}
	for i := range metas {
		if w, h, err := Probe(metas[i].Path); err == nil {
			metas[i].Width = w
			metas[i].Height = h
		}
	}
	return metas, nil
}

// Probe decodes just the image header and returns the pixel dimensions.
func Probe(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("probe %s: %w", filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// collect walks the folder and returns supported files in sorted path
// order, dimensions unprobed. Unreadable individual entries are skipped
// and reported; an unreadable root is an error.
func collect(folder string, recursive bool) ([]FileMeta, []models.ScanError, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return nil, nil, err
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, nil, err
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%s is not a directory", folder)
	}

	metas := make([]FileMeta, 0, 64)
	var skips []models.ScanError

	if recursive {
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return err
				}
				skips = append(skips, models.ScanError{Path: path, Reason: err.Error()})
				return nil
			}
			if d.IsDir() || !Supported(filepath.Ext(d.Name())) {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				skips = append(skips, models.ScanError{Path: path, Reason: err.Error()})
				return nil
			}
			metas = append(metas, metaFor(root, path, fi))
			return nil
		})
		if err != nil {
			return nil, nil, err
		}
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !Supported(filepath.Ext(e.Name())) {
				continue
			}
			path := filepath.Join(root, e.Name())
			fi, err := e.Info()
			if err != nil {
				skips = append(skips, models.ScanError{Path: path, Reason: err.Error()})
				continue
			}
			metas = append(metas, metaFor(root, path, fi))
		}
	}

	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })
	return metas, skips, nil
}

func metaFor(root, path string, fi fs.FileInfo) FileMeta {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		rel = fi.Name()
	}
	return FileMeta{
		Path:       path,
		Name:       fi.Name(),
		RelPath:    filepath.ToSlash(rel),
		SizeBytes:  fi.Size(),
		ModifiedAt: fi.ModTime().UnixMilli(),
	}
}
