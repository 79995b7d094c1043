package models

import "time"

// FileInfo represents metadata about a stored artifact: a saved
// project file or a generated export.
type FileInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
	Format    string    `json:"format"` // "native", "coco", "voc", "snapshot", "import"
}
