// Package storage keeps generated artifacts (saved projects, exports,
// import uploads) on the local filesystem under stable ids.
package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/image-annotator/backend/internal/models"
)

// Store defines the interface for artifact storage.
type Store interface {
	Save(name, format string, r io.Reader) (*models.FileInfo, error)
	SaveBytes(name, format string, data []byte) (*models.FileInfo, error)
	CreateDir(name, format string) (*models.FileInfo, error)
	AddToDir(id, name string, data []byte) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	List(limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Rename(id, newName string) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	Open(id string) (io.ReadCloser, error)
}

// LocalStore implements Store using the local filesystem. Artifacts are
// stored as `<id>_<safe-name>`; multi-file exports become directories.
type LocalStore struct {
	mu    sync.RWMutex
	dir   string
	files map[string]*models.FileInfo
}

// NewLocalStore creates a LocalStore rooted at dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	return &LocalStore{
		dir:   dir,
		files: make(map[string]*models.FileInfo),
	}, nil
}

// Save stores the reader's content as a new artifact.
func (s *LocalStore) Save(name, format string, r io.Reader) (*models.FileInfo, error) {
	info := s.newInfo(name, format)
	path := s.diskPath(info)

	tempPath := path + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}

	size, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("committing file: %w", err)
	}

	info.Size = size
	s.register(info)
	return copyInfo(info), nil
}

// SaveBytes stores data as a new artifact. The write goes through a
// temp file and rename so readers never observe a partial artifact.
func (s *LocalStore) SaveBytes(name, format string, data []byte) (*models.FileInfo, error) {
	return s.Save(name, format, bytes.NewReader(data))
}

// CreateDir creates an empty directory artifact. Files are added with
// AddToDir; Delete removes the whole tree.
func (s *LocalStore) CreateDir(name, format string) (*models.FileInfo, error) {
	info := s.newInfo(name, format)
	path := s.diskPath(info)

	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating directory artifact: %w", err)
	}

	s.register(info)
	return copyInfo(info), nil
}

// AddToDir writes one file into a directory artifact and returns the
// updated artifact info.
func (s *LocalStore) AddToDir(id, name string, data []byte) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", id)
	}

	dirPath := s.diskPathLocked(info)
	fi, err := os.Stat(dirPath)
	if err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("artifact %s is not a directory", id)
	}

	path := filepath.Join(dirPath, safeFileName(name))
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return nil, fmt.Errorf("writing file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("committing file: %w", err)
	}

	info.Size += int64(len(data))
	return copyInfo(info), nil
}

// Get retrieves artifact metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", id)
	}
	return copyInfo(info), nil
}

// List returns the most recent artifacts, newest first.
func (s *LocalStore) List(limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		list = append(list, copyInfo(info))
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list, nil
}

// Delete removes an artifact from storage. Directory artifacts are
// removed recursively.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return fmt.Errorf("artifact not found: %s", id)
	}

	if err := os.RemoveAll(s.diskPathLocked(info)); err != nil {
		return fmt.Errorf("deleting artifact: %w", err)
	}

	delete(s.files, id)
	return nil
}

// Rename updates the display name of an artifact and moves it on disk.
func (s *LocalStore) Rename(id, newName string) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("artifact not found: %s", id)
	}

	oldPath := s.diskPathLocked(info)
	renamed := *info
	renamed.Name = newName
	newPath := s.diskPathLocked(&renamed)

	if oldPath != newPath {
		if err := os.Rename(oldPath, newPath); err != nil {
			return nil, fmt.Errorf("renaming artifact: %w", err)
		}
	}

	info.Name = newName
	return copyInfo(info), nil
}

// GetFilePath returns the absolute path of an artifact on disk.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return "", fmt.Errorf("artifact not found: %s", id)
	}
	return s.diskPathLocked(info), nil
}

// Open opens a file artifact for reading.
func (s *LocalStore) Open(id string) (io.ReadCloser, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

func (s *LocalStore) newInfo(name, format string) *models.FileInfo {
	return &models.FileInfo{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: time.Now(),
		Format:    format,
	}
}

func (s *LocalStore) register(info *models.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[info.ID] = info
}

func (s *LocalStore) diskPath(info *models.FileInfo) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.diskPathLocked(info)
}

func (s *LocalStore) diskPathLocked(info *models.FileInfo) string {
	return filepath.Join(s.dir, info.ID+"_"+safeFileName(info.Name))
}

func copyInfo(info *models.FileInfo) *models.FileInfo {
	out := *info
	return &out
}

// safeFileName strips path components and replaces characters that are
// unsafe in file names.
func safeFileName(name string) string {
	name = filepath.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 || b.String() == "." || b.String() == ".." {
		return "artifact"
	}
	return b.String()
}
