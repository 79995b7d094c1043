package project

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/image-annotator/backend/internal/codec"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/scanner"
)

// Save writes the project as a native dataset container. An empty
// path reuses the session's save path; the first save sets it. The
// file is written atomically, and a successful save clears the dirty
// flag.
func (s *Session) Save(path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if path == "" {
		path = s.savePath
	}
	if path == "" {
		return "", fmt.Errorf("%w: session has no save path", models.ErrMalformedInput)
	}
	enc, err := s.registry.Encoder("native")
	if err != nil {
		return "", err
	}
	files, err := enc.Encode(s.model.Project(), s.encodeOptionsLocked())
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, files[0].Data); err != nil {
		return "", fmt.Errorf("save project: %w", err)
	}
	s.savePath = path
	s.dirty = false
	fmt.Printf("[Session %s] Saved %s\n", s.id[:8], path)
	return path, nil
}

// Snapshot serializes the project as a msgpack container. Snapshots
// are for autosave schedulers; taking one does not clear the dirty
// flag.
func (s *Session) Snapshot() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, err := s.registry.Encoder("snapshot")
	if err != nil {
		return nil, err
	}
	files, err := enc.Encode(s.model.Project(), s.encodeOptionsLocked())
	if err != nil {
		return nil, err
	}
	return files[0].Data, nil
}

// Export serializes the project in the named format. Image entries
// whose dimensions were never probed are probed now, best effort.
func (s *Session) Export(format string, perImage bool) ([]codec.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	enc, err := s.registry.Encoder(format)
	if err != nil {
		return nil, err
	}
	s.probeMissingDimsLocked()
	opts := s.encodeOptionsLocked()
	opts.PerImage = perImage
	return enc.Encode(s.model.Project(), opts)
}

func (s *Session) probeMissingDimsLocked() {
	for _, e := range s.model.Project().Images {
		if e.Width > 0 && e.Height > 0 {
			continue
		}
		w, h, err := scanner.Probe(e.Path)
		if err != nil {
			continue
		}
		s.model.EnsureImage(e.Path, e.Name, w, h)
	}
}

// ImportSummary reports what an import merged into the session.
type ImportSummary struct {
	Format           string `json:"format"`
	LabelsAdded      int    `json:"labelsAdded"`
	ImagesMatched    int    `json:"imagesMatched"`
	ImagesAdded      int    `json:"imagesAdded"`
	AnnotationsAdded int    `json:"annotationsAdded"`
}

// Import decodes annotation data (format auto-detected) and merges it
// into the open project. Labels merge by name with the project
// winning color conflicts; images merge by file name, with unknown
// ones added as new entries; annotations append at the top of the
// z-order. Importing clears the undo history.
func (s *Session) Import(filename string, data []byte) (ImportSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dec, err := s.registry.FindDecoder(filename, data)
	if err != nil {
		return ImportSummary{}, err
	}
	decoded, err := dec.Decode(data)
	if err != nil {
		return ImportSummary{}, err
	}
	sum := ImportSummary{Format: dec.Name()}

	have := make(map[string]bool)
	for _, l := range s.model.Labels() {
		have[l.Name] = true
	}
	for _, l := range decoded.Project.Labels {
		if have[l.Name] {
			continue
		}
		if _, err := s.model.AddLabel(l.Name, l.Color); err != nil {
			return sum, err
		}
		have[l.Name] = true
		sum.LabelsAdded++
	}

	byName := make(map[string]*models.ImageEntry)
	for _, e := range s.model.Project().Images {
		if _, ok := byName[e.Name]; !ok {
			byName[e.Name] = e
		}
	}
	for _, in := range decoded.Project.Images {
		target, ok := byName[in.Name]
		if ok {
			sum.ImagesMatched++
			if target.Width == 0 && target.Height == 0 {
				s.model.EnsureImage(target.Path, target.Name, in.Width, in.Height)
			}
		} else {
			target = s.model.EnsureImage(in.Path, in.Name, in.Width, in.Height)
			byName[in.Name] = target
			sum.ImagesAdded++
		}
		for _, a := range in.Annotations {
			ann := a.Clone()
			if existing, _ := target.FindAnnotation(ann.ID); existing != nil {
				ann.ID = uuid.NewString()
			}
			if err := s.model.InsertAnnotation(target.Path, ann, len(target.Annotations)); err != nil {
				return sum, err
			}
			sum.AnnotationsAdded++
		}
	}

	s.history.Clear()
	s.drag = nil
	s.dirty = true
	fmt.Printf("[Session %s] Imported %s (%s): +%d labels, +%d annotations\n",
		s.id[:8], filename, sum.Format, sum.LabelsAdded, sum.AnnotationsAdded)
	return sum, nil
}

func (s *Session) setSavePath(path string) {
	s.mu.Lock()
	s.savePath = path
	s.mu.Unlock()
}

func (s *Session) encodeOptionsLocked() codec.Options {
	return codec.Options{
		Meta:           codec.Meta{ID: s.id, Name: s.name, SavedAt: time.Now()},
		CircleVertices: s.settings.CircleVertices,
		Compact:        s.settings.CompactJSON,
		VOCDatabase:    s.settings.VOCDatabase,
	}
}

// writeFileAtomic writes via a temp file and rename, so a failed save
// never truncates an existing project file.
func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
