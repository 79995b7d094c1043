package scanner

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/image-annotator/backend/internal/models"
)

// Sink receives scan results as they are produced. The session layer
// implements Sink to populate its image catalog and annotation model.
type Sink interface {
	// AddImage is called once per discovered image, in scan order.
	AddImage(sessionID string, meta FileMeta) error
	// FinishScan is called after the last image so the sink can flush
	// its index.
	FinishScan(sessionID string) error
}

// Manager handles async folder scan jobs.
type Manager struct {
	jobs map[string]*models.ScanJob
	mu   sync.RWMutex
	sink Sink
}

// NewManager creates a scan job manager feeding the given sink.
func NewManager(sink Sink) *Manager {
	return &Manager{
		jobs: make(map[string]*models.ScanJob),
		sink: sink,
	}
}

// Start begins scanning folder for the session and returns the new job.
func (m *Manager) Start(sessionID, folder string, recursive bool) models.ScanJob {
	job := models.NewScanJob(uuid.New().String(), sessionID, folder)
	job.StartTime = time.Now().UnixMilli()

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	go m.run(job, recursive)

	return m.snapshot(job)
}

// Get returns a snapshot of a job by ID.
func (m *Manager) Get(id string) (models.ScanJob, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return models.ScanJob{}, false
	}
	return snapshotLocked(job), true
}

// run performs the scan stages: walking 0-20, probing 20-80,
// indexing 80-100.
func (m *Manager) run(job *models.ScanJob, recursive bool) {
	defer func() {
		if r := recover(); r != nil {
			m.fail(job, fmt.Sprintf("panic: %v", r))
		}
	}()

	fmt.Printf("[Scan %s] Scanning %s\n", job.ID[:8], job.FolderPath)
	m.setProgress(job, 0, 0)

	metas, skips, err := collect(job.FolderPath, recursive)
	if err != nil {
		m.fail(job, fmt.Sprintf("folder not readable: %v", err))
		return
	}
	m.recordErrors(job, skips)
	m.setProgress(job, 20, 0)

	for i := range metas {
		w, h, err := Probe(metas[i].Path)
		if err != nil {
			m.recordErrors(job, []models.ScanError{{Path: metas[i].Path, Reason: err.Error()}})
		} else {
			metas[i].Width = w
			metas[i].Height = h
		}

		if err := m.sink.AddImage(job.SessionID, metas[i]); err != nil {
			m.fail(job, fmt.Sprintf("failed to index %s: %v", metas[i].Path, err))
			return
		}
		m.setProgress(job, 20+60*float64(i+1)/float64(len(metas)), i+1)
	}

	m.setProgress(job, 80, len(metas))
	if err := m.sink.FinishScan(job.SessionID); err != nil {
		m.fail(job, fmt.Sprintf("failed to finalize index: %v", err))
		return
	}

	m.complete(job, len(metas))
	fmt.Printf("[Scan %s] Complete: %d images, %d skipped\n", job.ID[:8], len(metas), len(job.Errors))
}

// setProgress updates job progress (thread-safe).
func (m *Manager) setProgress(job *models.ScanJob, progress float64, imageCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = models.ScanStatusScanning
	job.Progress = progress
	job.ImageCount = imageCount
}

func (m *Manager) recordErrors(job *models.ScanJob, errs []models.ScanError) {
	if len(errs) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Errors = append(job.Errors, errs...)
}

// complete marks the job complete (thread-safe).
func (m *Manager) complete(job *models.ScanJob, imageCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = models.ScanStatusComplete
	job.Progress = 100
	job.ImageCount = imageCount
	job.EndTime = time.Now().UnixMilli()
}

// fail marks the job failed (thread-safe).
func (m *Manager) fail(job *models.ScanJob, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job.Status = models.ScanStatusError
	job.Error = errMsg
	job.EndTime = time.Now().UnixMilli()
	fmt.Printf("[Scan %s] Error: %s\n", job.ID[:8], errMsg)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	for id, job := range m.jobs {
		if job.Status == models.ScanStatusComplete || job.Status == models.ScanStatusError {
			if job.EndTime > 0 && job.EndTime < cutoff {
				delete(m.jobs, id)
			}
		}
	}
}

func (m *Manager) snapshot(job *models.ScanJob) models.ScanJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshotLocked(job)
}

// snapshotLocked copies the job so callers never see later mutations.
func snapshotLocked(job *models.ScanJob) models.ScanJob {
	out := *job
	out.Errors = make([]models.ScanError, len(job.Errors))
	copy(out.Errors, job.Errors)
	return out
}
