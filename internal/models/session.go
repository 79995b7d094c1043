package models

// SessionInfo is the API-facing summary of an open editor session.
type SessionInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	FolderPath      string `json:"folderPath"`
	SavePath        string `json:"savePath,omitempty"`
	ImageCount      int    `json:"imageCount"`
	AnnotationCount int    `json:"annotationCount"`
	LabelCount      int    `json:"labelCount"`
	Dirty           bool   `json:"dirty"`
	CreatedAt       int64  `json:"createdAt"`  // Unix ms
	LastAccess      int64  `json:"lastAccess"` // Unix ms
}
