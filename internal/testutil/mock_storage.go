// mock_storage.go - In-memory storage.Store for handler tests
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/storage"
)

// MockStorage implements storage.Store in memory. Setting FailSaves
// makes every write fail, for exercising error paths.
type MockStorage struct {
	mu        sync.RWMutex
	files     map[string]*models.FileInfo
	fileData  map[string][]byte
	dirFiles  map[string]map[string][]byte // dir artifact id -> name -> data
	FailSaves bool
}

// NewMockStorage creates an empty in-memory store.
func NewMockStorage() *MockStorage {
	return &MockStorage{
		files:    make(map[string]*models.FileInfo),
		fileData: make(map[string][]byte),
		dirFiles: make(map[string]map[string][]byte),
	}
}

func (m *MockStorage) Save(name, format string, r io.Reader) (*models.FileInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return m.SaveBytes(name, format, data)
}

func (m *MockStorage) SaveBytes(name, format string, data []byte) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return nil, errors.New("mock save failure")
	}

	id := generateTestID()
	file := &models.FileInfo{
		ID:        id,
		Name:      name,
		Size:      int64(len(data)),
		CreatedAt: time.Now(),
		Format:    format,
	}
	m.files[id] = file
	m.fileData[id] = data
	return file, nil
}

func (m *MockStorage) CreateDir(name, format string) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return nil, errors.New("mock save failure")
	}

	id := generateTestID()
	file := &models.FileInfo{
		ID:        id,
		Name:      name,
		CreatedAt: time.Now(),
		Format:    format,
	}
	m.files[id] = file
	m.dirFiles[id] = make(map[string][]byte)
	return file, nil
}

func (m *MockStorage) AddToDir(id, name string, data []byte) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSaves {
		return nil, errors.New("mock save failure")
	}

	file, ok := m.files[id]
	if !ok {
		return nil, errors.New("artifact not found")
	}
	dir, ok := m.dirFiles[id]
	if !ok {
		return nil, errors.New("artifact is not a directory")
	}
	dir[name] = data
	file.Size += int64(len(data))
	return file, nil
}

func (m *MockStorage) Get(id string) (*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return nil, errors.New("artifact not found")
	}
	return file, nil
}

func (m *MockStorage) List(limit int) ([]*models.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var files []*models.FileInfo
	for _, file := range m.files {
		files = append(files, file)
		if limit > 0 && len(files) >= limit {
			break
		}
	}
	return files, nil
}

func (m *MockStorage) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[id]; !ok {
		return errors.New("artifact not found")
	}
	delete(m.files, id)
	delete(m.fileData, id)
	delete(m.dirFiles, id)
	return nil
}

func (m *MockStorage) Rename(id, newName string) (*models.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[id]
	if !ok {
		return nil, errors.New("artifact not found")
	}
	file.Name = newName
	return file, nil
}

func (m *MockStorage) GetFilePath(id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	file, ok := m.files[id]
	if !ok {
		return "", errors.New("artifact not found")
	}
	return filepath.Join("/mock", id+"_"+file.Name), nil
}

func (m *MockStorage) Open(id string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, errors.New("artifact not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Ensure MockStorage implements storage.Store
var _ storage.Store = (*MockStorage)(nil)

// Test helper methods

// GetFileData returns a single-file artifact's content.
func (m *MockStorage) GetFileData(id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.fileData[id]
	if !ok {
		return nil, errors.New("artifact not found")
	}
	return data, nil
}

// GetDirFiles returns the members of a directory artifact.
func (m *MockStorage) GetDirFiles(id string) map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dirFiles[id]
}

// GetFileCount returns the number of stored artifacts.
func (m *MockStorage) GetFileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

var (
	testIDCounter int
	testIDMutex   sync.Mutex
)

func generateTestID() string {
	testIDMutex.Lock()
	defer testIDMutex.Unlock()
	testIDCounter++
	return fmt.Sprintf("test-id-%d", testIDCounter)
}
