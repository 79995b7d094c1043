package models

// ImageEntry is one image in a project: its identity plus the ordered
// annotation list. Path is the stable identity used by lookups and by
// import merging. Annotations are kept in creation order, which is
// also the z-order (later entries render, and hit-test, on top).
type ImageEntry struct {
	// Path is the absolute or project-relative file path.
	Path string `json:"path" msgpack:"path"`
	// Name is the base file name, kept denormalized for exports that
	// key on file names.
	Name string `json:"name" msgpack:"name"`
	// Width and Height are pixel dimensions, 0 when never probed.
	Width  int `json:"width" msgpack:"width"`
	Height int `json:"height" msgpack:"height"`

	Annotations []*Annotation `json:"annotations" msgpack:"annotations"`
}

// FindAnnotation returns the annotation with the given id and its
// z-order index, or (nil, -1).
func (e *ImageEntry) FindAnnotation(id string) (*Annotation, int) {
	for i, a := range e.Annotations {
		if a.ID == id {
			return a, i
		}
	}
	return nil, -1
}

// Clone returns a deep copy of the entry.
func (e *ImageEntry) Clone() *ImageEntry {
	out := *e
	out.Annotations = make([]*Annotation, len(e.Annotations))
	for i, a := range e.Annotations {
		out.Annotations[i] = a.Clone()
	}
	return &out
}

// Project is the full annotation state for one image folder: the
// image entries in scan order and the label set in creation order.
type Project struct {
	// FolderPath is the image folder this project annotates.
	FolderPath string `json:"folderPath" msgpack:"folderPath"`

	Images []*ImageEntry `json:"images" msgpack:"images"`
	Labels []Label       `json:"labels" msgpack:"labels"`
}

// FindImage returns the entry with the given path, or nil.
func (p *Project) FindImage(path string) *ImageEntry {
	for _, e := range p.Images {
		if e.Path == path {
			return e
		}
	}
	return nil
}

// FindLabel returns the label with the given name and its index, or
// (nil, -1).
func (p *Project) FindLabel(name string) (*Label, int) {
	for i := range p.Labels {
		if p.Labels[i].Name == name {
			return &p.Labels[i], i
		}
	}
	return nil, -1
}

// AnnotationTotal counts annotations across all images.
func (p *Project) AnnotationTotal() int {
	n := 0
	for _, e := range p.Images {
		n += len(e.Annotations)
	}
	return n
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	out := &Project{
		FolderPath: p.FolderPath,
		Images:     make([]*ImageEntry, len(p.Images)),
		Labels:     make([]Label, len(p.Labels)),
	}
	for i, e := range p.Images {
		out.Images[i] = e.Clone()
	}
	copy(out.Labels, p.Labels)
	return out
}
