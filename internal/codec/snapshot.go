package codec

import (
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/image-annotator/backend/internal/models"
)

// SnapshotExtension is the file suffix for msgpack project snapshots.
const SnapshotExtension = ".snapshot"

// SnapshotCodec encodes the native dataset container with msgpack.
// Snapshots are the autosave format: the same data as a native save,
// written and restored without JSON overhead.
type SnapshotCodec struct{}

func (s *SnapshotCodec) Name() string { return "snapshot" }

func (s *SnapshotCodec) Encode(p *models.Project, opts Options) ([]File, error) {
	data, err := msgpack.Marshal(BuildContainer(p, opts))
	if err != nil {
		return nil, err
	}
	return []File{{Name: "project" + SnapshotExtension, Data: data}}, nil
}

func (s *SnapshotCodec) CanDecode(filename string, data []byte) bool {
	if !strings.HasSuffix(strings.ToLower(filename), SnapshotExtension) {
		return false
	}
	var c nativeContainer
	return msgpack.Unmarshal(data, &c) == nil && c.FormatVersion > 0
}

func (s *SnapshotCodec) Decode(data []byte) (*Decoded, error) {
	var c nativeContainer
	if err := msgpack.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedInput, err)
	}
	if c.FormatVersion <= 0 {
		return nil, fmt.Errorf("%w: snapshot without format version", models.ErrMalformedInput)
	}
	return decodeContainer(&c)
}
