package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/image-annotator/backend/internal/annotation"
	"github.com/image-annotator/backend/internal/catalog"
	"github.com/image-annotator/backend/internal/codec"
	"github.com/image-annotator/backend/internal/history"
	"github.com/image-annotator/backend/internal/hittest"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/scanner"
	"github.com/image-annotator/backend/internal/viewport"
)

// DefaultMaxSessions limits concurrently open sessions to bound
// memory and catalog files.
const DefaultMaxSessions = 10

var (
	// ErrTooManySessions is returned when the session limit is
	// reached and every open session has unsaved changes.
	ErrTooManySessions = errors.New("too many sessions")

	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// Settings are the editor defaults a manager hands to every session
// it creates. Zero values fall back to the package defaults.
type Settings struct {
	// DefaultColor is assigned to unlabeled annotations created
	// without an explicit color.
	DefaultColor string
	// HistoryDepth bounds the per-session undo stack.
	HistoryDepth int
	// CircleVertices is the N-gon size used when an export format
	// needs a circle approximated.
	CircleVertices int
	// Tolerances are the hit-test grab distances in canvas pixels.
	Tolerances hittest.Tolerances
	// Limits bound the zoom factors accepted by hit-testing.
	Limits viewport.Limits
	// CompactJSON drops indentation from saved and exported JSON.
	CompactJSON bool
	// VOCDatabase names the dataset source in Pascal VOC exports.
	VOCDatabase string
}

func (s Settings) withDefaults() Settings {
	if s.DefaultColor == "" {
		s.DefaultColor = models.DefaultColor
	}
	if s.HistoryDepth <= 0 {
		s.HistoryDepth = history.DefaultDepth
	}
	if s.CircleVertices < 3 {
		s.CircleVertices = codec.DefaultCircleVertices
	}
	if s.Tolerances.VertexPx <= 0 {
		s.Tolerances.VertexPx = hittest.DefaultVertexTolerancePx
	}
	if s.Tolerances.EdgePx <= 0 {
		s.Tolerances.EdgePx = hittest.DefaultEdgeTolerancePx
	}
	if s.Limits.MinZoom <= 0 || s.Limits.MaxZoom <= s.Limits.MinZoom {
		s.Limits = viewport.DefaultLimits()
	}
	if s.Limits.ZoomStep <= 1 {
		s.Limits.ZoomStep = viewport.DefaultZoomStep
	}
	return s
}

// Manager tracks the open sessions. At capacity, creating another
// session evicts the longest-idle clean one; if every session is
// dirty the create fails with ErrTooManySessions.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	maxSessions int
	tempDir     string
	registry    *codec.Registry
	settings    Settings
}

// NewManager creates a session manager keeping catalog files under
// tempDir.
func NewManager(tempDir string, maxSessions int, settings Settings) *Manager {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	os.MkdirAll(tempDir, 0755)
	return &Manager{
		sessions:    make(map[string]*Session),
		maxSessions: maxSessions,
		tempDir:     tempDir,
		registry:    codec.GetGlobalRegistry(),
		settings:    settings.withDefaults(),
	}
}

// Settings returns the editor defaults handed to new sessions.
func (m *Manager) Settings() Settings {
	return m.settings
}

// Create opens a blank session with no image folder.
func (m *Manager) Create(name string) (*Session, error) {
	if name == "" {
		name = "untitled"
	}
	id := uuid.NewString()
	cat, err := catalog.New(m.tempDir, id)
	if err != nil {
		return nil, err
	}
	sess := newSession(id, name, annotation.NewModel("", m.settings.DefaultColor), cat, m.registry, m.settings)
	if err := m.register(sess); err != nil {
		return nil, err
	}
	fmt.Printf("[Manager] Created session %s (%s)\n", id[:8], name)
	return sess, nil
}

// CreateFromScan opens a session for an image folder. The caller
// starts a scan job to populate it; until the job completes the
// session lists only the images scanned so far.
func (m *Manager) CreateFromScan(folderPath string) (*Session, error) {
	abs, err := filepath.Abs(folderPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	fi, err := os.Stat(abs)
	if err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%w: %q is not a readable folder", models.ErrMalformedInput, folderPath)
	}
	id := uuid.NewString()
	cat, err := catalog.New(m.tempDir, id)
	if err != nil {
		return nil, err
	}
	sess := newSession(id, filepath.Base(abs), annotation.NewModel(abs, m.settings.DefaultColor), cat, m.registry, m.settings)
	if err := m.register(sess); err != nil {
		return nil, err
	}
	fmt.Printf("[Manager] Created session %s for folder %s\n", id[:8], abs)
	return sess, nil
}

// Open loads a saved project file into a new session.
func (m *Manager) Open(path string) (*Session, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("open project: %w", err)
	}
	sess, err := m.OpenData(filepath.Base(abs), data)
	if err != nil {
		return nil, err
	}
	sess.setSavePath(abs)
	return sess, nil
}

// OpenData loads uploaded project data (native container, per-image
// document, COCO file, or msgpack snapshot) into a new session. The
// session has no save path until the first explicit save.
func (m *Manager) OpenData(filename string, data []byte) (*Session, error) {
	dec, err := m.registry.FindDecoder(filename, data)
	if err != nil {
		return nil, err
	}
	decoded, err := dec.Decode(data)
	if err != nil {
		return nil, err
	}
	model, err := annotation.FromProject(decoded.Project, m.settings.DefaultColor)
	if err != nil {
		return nil, err
	}
	name := decoded.Meta.Name
	if name == "" {
		name = strings.TrimSuffix(filename, filepath.Ext(filename))
	}
	if name == "" {
		name = "untitled"
	}
	id := uuid.NewString()
	cat, err := catalog.New(m.tempDir, id)
	if err != nil {
		return nil, err
	}
	if err := seedCatalog(cat, decoded.Project); err != nil {
		cat.Close()
		return nil, err
	}
	sess := newSession(id, name, model, cat, m.registry, m.settings)
	if err := m.register(sess); err != nil {
		return nil, err
	}
	p := model.Project()
	fmt.Printf("[Manager] Opened session %s (%s): %d images, %d annotations\n",
		id[:8], name, len(p.Images), p.AnnotationTotal())
	return sess, nil
}

// seedCatalog fills a fresh catalog from a loaded project, picking up
// file sizes and mtimes for entries that still exist on disk.
func seedCatalog(cat *catalog.Catalog, p *models.Project) error {
	for _, e := range p.Images {
		row := catalog.Row{
			Path:   e.Path,
			Name:   e.Name,
			Width:  e.Width,
			Height: e.Height,
		}
		if p.FolderPath != "" {
			if rel, err := filepath.Rel(p.FolderPath, e.Path); err == nil && !strings.HasPrefix(rel, "..") {
				row.RelPath = filepath.ToSlash(rel)
			}
		}
		if fi, err := os.Stat(e.Path); err == nil && !fi.IsDir() {
			row.SizeBytes = fi.Size()
			row.ModifiedAt = fi.ModTime().UnixMilli()
		}
		cat.Add(row)
	}
	if err := cat.LastError(); err != nil {
		return err
	}
	return cat.Finalize()
}

func (m *Manager) register(sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.evictLocked(); err != nil {
		sess.close()
		return err
	}
	m.sessions[sess.id] = sess
	return nil
}

// evictLocked frees one slot when the map is at capacity by closing
// the longest-idle session without unsaved changes.
func (m *Manager) evictLocked() error {
	if len(m.sessions) < m.maxSessions {
		return nil
	}
	var victim *Session
	for _, s := range m.sessions {
		if s.Dirty() {
			continue
		}
		if victim == nil || s.LastAccess().Before(victim.LastAccess()) {
			victim = s
		}
	}
	if victim == nil {
		return fmt.Errorf("%w: %d open, all with unsaved changes", ErrTooManySessions, len(m.sessions))
	}
	delete(m.sessions, victim.id)
	victim.close()
	fmt.Printf("[Manager] Evicted idle session %s\n", victim.id[:8])
	return nil
}

// Get returns a session by id, refreshing its last-access time.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if ok {
		sess.Touch()
	}
	return sess, ok
}

// List summarizes the open sessions, oldest first.
func (m *Manager) List() []models.SessionInfo {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]models.SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt != infos[j].CreatedAt {
			return infos[i].CreatedAt < infos[j].CreatedAt
		}
		return infos[i].ID < infos[j].ID
	})
	return infos
}

// Close discards a session and removes its catalog file. Unsaved
// changes are lost.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	sess.close()
	fmt.Printf("[Manager] Closed session %s\n", sess.id[:8])
	return nil
}

// CleanupExpired closes sessions idle for longer than maxAge.
// Sessions with unsaved changes are never expired. Returns how many
// were closed.
func (m *Manager) CleanupExpired(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)
	m.mu.Lock()
	var victims []*Session
	for id, s := range m.sessions {
		if s.Dirty() || s.LastAccess().After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		victims = append(victims, s)
	}
	m.mu.Unlock()

	for _, s := range victims {
		s.close()
		fmt.Printf("[Manager] Expired session %s (idle %s)\n",
			s.id[:8], time.Since(s.LastAccess()).Round(time.Second))
	}
	return len(victims)
}

// The manager is the scanner's sink: scan jobs feed discovered files
// into the session's model and catalog through it.
var _ scanner.Sink = (*Manager)(nil)

// AddImage registers one scanned file on the session.
func (m *Manager) AddImage(sessionID string, meta scanner.FileMeta) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return sess.addScannedImage(meta)
}

// FinishScan finalizes the session's catalog after the last file.
func (m *Manager) FinishScan(sessionID string) error {
	sess, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, sessionID)
	}
	return sess.finishScan()
}
