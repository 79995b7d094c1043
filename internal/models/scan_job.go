package models

// ScanStatus represents the status of a folder scan job.
type ScanStatus string

const (
	ScanStatusPending  ScanStatus = "pending"
	ScanStatusScanning ScanStatus = "scanning"
	ScanStatusComplete ScanStatus = "complete"
	ScanStatusError    ScanStatus = "error"
)

// ScanJob represents an asynchronous folder scan that discovers
// images and probes their dimensions.
type ScanJob struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"sessionId"`
	FolderPath string      `json:"folderPath"`
	Status     ScanStatus  `json:"status"`
	Progress   float64     `json:"progress"` // 0-100
	ImageCount int         `json:"imageCount,omitempty"`
	StartTime  int64       `json:"startTime,omitempty"` // Unix ms
	EndTime    int64       `json:"endTime,omitempty"`   // Unix ms
	Error      string      `json:"error,omitempty"`
	Errors     []ScanError `json:"errors,omitempty"`
}

// ScanError records a file that could not be fully processed during a
// scan. Probe failures keep the image with zero dimensions.
type ScanError struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// NewScanJob creates a new ScanJob in pending status.
func NewScanJob(id, sessionID, folderPath string) *ScanJob {
	return &ScanJob{
		ID:         id,
		SessionID:  sessionID,
		FolderPath: folderPath,
		Status:     ScanStatusPending,
		Progress:   0,
		Errors:     make([]ScanError, 0),
	}
}
