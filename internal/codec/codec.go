// Package codec converts projects to and from the supported
// interchange formats: the native JSON schema, COCO, Pascal VOC, and
// a msgpack snapshot of the native container. Codecs are stateless
// byte transformers; file placement and atomic writing belong to the
// storage layer.
package codec

import (
	"fmt"
	"strings"
	"time"

	"github.com/image-annotator/backend/internal/models"
)

// FormatVersion is the native container schema version.
const FormatVersion = 1

// DefaultCircleVertices is the polygon fan size used when a format
// needs a circle approximated.
const DefaultCircleVertices = 16

// File is one encoded output file. Name is a suggested base name;
// storage decides the final location.
type File struct {
	Name string
	Data []byte
}

// Meta is project metadata carried by the native container.
type Meta struct {
	ID      string
	Name    string
	SavedAt time.Time
}

// Options tune an export.
type Options struct {
	// Meta is embedded into formats that carry project metadata.
	Meta Meta
	// CircleVertices is the N-gon size for circle approximations.
	CircleVertices int
	// PerImage makes the native encoder emit one document per
	// annotated image instead of a single dataset container.
	PerImage bool
	// Compact drops JSON indentation from native output.
	Compact bool
	// VOCDatabase names the dataset source in Pascal VOC output.
	VOCDatabase string
}

// DefaultOptions returns the standard export options.
func DefaultOptions() Options {
	return Options{CircleVertices: DefaultCircleVertices}
}

func (o Options) circleVertices() int {
	if o.CircleVertices < 3 {
		return DefaultCircleVertices
	}
	return o.CircleVertices
}

// Decoded is the result of an import: a project fragment plus any
// metadata the format carried. The session merges fragments into the
// open project.
type Decoded struct {
	Project *models.Project
	Meta    Meta
}

// Encoder serializes a project into one or more files.
type Encoder interface {
	// Name returns the unique format name.
	Name() string
	// Encode serializes the project.
	Encode(p *models.Project, opts Options) ([]File, error)
}

// Decoder parses annotation data back into a project fragment.
type Decoder interface {
	// Name returns the unique format name.
	Name() string
	// CanDecode reports whether this decoder can handle the file.
	CanDecode(filename string, data []byte) bool
	// Decode parses the data.
	Decode(data []byte) (*Decoded, error)
}

// Registry holds all available codecs and provides auto-detection
// for imports.
type Registry struct {
	encoders []Encoder
	decoders []Decoder
}

// Global registry instance
var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	native := &NativeCodec{}
	coco := &COCOCodec{}
	snapshot := &SnapshotCodec{}
	return &Registry{
		encoders: []Encoder{native, coco, &VOCEncoder{}, snapshot},
		decoders: []Decoder{coco, native, snapshot},
	}
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// RegisterEncoder adds an encoder to the registry.
func (r *Registry) RegisterEncoder(e Encoder) {
	r.encoders = append(r.encoders, e)
}

// RegisterDecoder adds a decoder to the registry.
func (r *Registry) RegisterDecoder(d Decoder) {
	r.decoders = append(r.decoders, d)
}

// Encoder returns an encoder by format name.
func (r *Registry) Encoder(name string) (Encoder, error) {
	name = strings.ToLower(name)
	for _, e := range r.encoders {
		if strings.ToLower(e.Name()) == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unknown export format: %s", name)
}

// Decoder returns a decoder by format name.
func (r *Registry) Decoder(name string) (Decoder, error) {
	name = strings.ToLower(name)
	for _, d := range r.decoders {
		if strings.ToLower(d.Name()) == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("unknown import format: %s", name)
}

// FindDecoder detects the right decoder for a file by name and
// content.
func (r *Registry) FindDecoder(filename string, data []byte) (Decoder, error) {
	for _, d := range r.decoders {
		if d.CanDecode(filename, data) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: no decoder recognizes %s", models.ErrMalformedInput, filename)
}

// EncoderNames lists the registered export formats.
func (r *Registry) EncoderNames() []string {
	names := make([]string, len(r.encoders))
	for i, e := range r.encoders {
		names[i] = e.Name()
	}
	return names
}

// DecoderNames lists the registered import formats.
func (r *Registry) DecoderNames() []string {
	names := make([]string, len(r.decoders))
	for i, d := range r.decoders {
		names[i] = d.Name()
	}
	return names
}

// stem strips the extension from a file name.
func stem(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// uniqueName numbers repeated base names so per-image exports from
// nested folders cannot overwrite each other.
func uniqueName(used map[string]int, base string) string {
	used[base]++
	if n := used[base]; n > 1 {
		return fmt.Sprintf("%s_%d", base, n)
	}
	return base
}
