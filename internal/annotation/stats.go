package annotation

import "github.com/image-annotator/backend/internal/models"

// Statistics aggregates annotation counts across a project. ByLabel
// buckets unlabeled annotations under the empty string.
type Statistics struct {
	TotalImages      int                 `json:"totalImages"`
	AnnotatedImages  int                 `json:"annotatedImages"`
	TotalAnnotations int                 `json:"totalAnnotations"`
	TotalLabels      int                 `json:"totalLabels"`
	ByKind           map[models.Kind]int `json:"byKind"`
	ByLabel          map[string]int      `json:"byLabel"`
}

// Statistics computes the aggregate counts for the current state.
func (m *Model) Statistics() Statistics {
	s := Statistics{
		TotalImages: len(m.project.Images),
		TotalLabels: len(m.project.Labels),
		ByKind:      make(map[models.Kind]int),
		ByLabel:     make(map[string]int),
	}
	for _, e := range m.project.Images {
		if len(e.Annotations) > 0 {
			s.AnnotatedImages++
		}
		for _, a := range e.Annotations {
			s.TotalAnnotations++
			s.ByKind[a.Kind()]++
			s.ByLabel[a.Label]++
		}
	}
	return s
}
