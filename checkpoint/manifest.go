package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/meshdata/blobstore"
	"github.com/hupe1980/meshdata/codec"
)

// FormatVersion is the manifest layout version written by Save.
const FormatVersion = 1

// ManifestName is the manifest blob name inside a checkpoint prefix.
const ManifestName = "manifest.json"

const magic = "MESHCKPT"

var (
	// ErrCorrupt is returned when a manifest or variable blob fails to decode
	// or its checksum does not match.
	ErrCorrupt = errors.New("checkpoint corrupt")

	// ErrVersion is returned for manifests written by a newer format.
	ErrVersion = errors.New("unsupported checkpoint version")

	// ErrShapeMismatch is returned when the block of the target container
	// does not have the index shape the checkpoint was written with.
	ErrShapeMismatch = errors.New("checkpoint block shape mismatch")
)

// BlockInfo records the block a checkpoint was taken from.
type BlockInfo struct {
	ID     int    `json:"id"`
	Rank   int    `json:"rank"`
	Level  int    `json:"level"`
	NX     [3]int `json:"nx"`
	NGhost int    `json:"nghost"`
}

// Entry describes one saved variable.
type Entry struct {
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Flags    []string `json:"flags"`
	Shape    []int    `json:"shape,omitempty"`
	Sparse   bool     `json:"sparse,omitempty"`
	Blob     string   `json:"blob"`
	Values   int      `json:"values"`
	Stored   int64    `json:"stored_bytes"`
	Checksum uint32   `json:"crc32c"`
}

// Manifest lists the contents of a checkpoint.
type Manifest struct {
	Version     int       `json:"version"`
	Stage       string    `json:"stage,omitempty"`
	Block       BlockInfo `json:"block"`
	Compression string    `json:"compression"`
	CreatedAt   time.Time `json:"created_at"`
	Variables   []Entry   `json:"variables"`

	// Codec is the codec the manifest was read with. It is carried in the
	// header, not the body.
	Codec string `json:"-"`
}

// StoredBytes returns the total size of the variable blobs.
func (m *Manifest) StoredBytes() int64 {
	var n int64
	for _, e := range m.Variables {
		n += e.Stored
	}
	return n
}

// Entry returns the entry for label.
func (m *Manifest) Entry(label string) (Entry, bool) {
	for _, e := range m.Variables {
		if e.Label == label {
			return e, true
		}
	}
	return Entry{}, false
}

func manifestPath(prefix string) string {
	return path.Join(prefix, ManifestName)
}

// encodeManifest writes the header line "MESHCKPT <version> <codec>"
// followed by the codec-encoded body.
func encodeManifest(m *Manifest, c codec.Codec) ([]byte, error) {
	body, err := c.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	header := fmt.Sprintf("%s %d %s\n", magic, m.Version, c.Name())
	return append([]byte(header), body...), nil
}

func decodeManifest(data []byte) (*Manifest, error) {
	nl := bytes.IndexByte(data, '\n')
	if nl < 0 {
		return nil, fmt.Errorf("%w: missing manifest header", ErrCorrupt)
	}
	fields := strings.Fields(string(data[:nl]))
	if len(fields) != 3 || fields[0] != magic {
		return nil, fmt.Errorf("%w: bad manifest header %q", ErrCorrupt, data[:nl])
	}
	version, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad version %q", ErrCorrupt, fields[1])
	}
	if version > FormatVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, version)
	}
	c, ok := codec.ByName(fields[2])
	if !ok {
		return nil, fmt.Errorf("%w: unknown codec %q", ErrCorrupt, fields[2])
	}

	var m Manifest
	if err := c.Unmarshal(data[nl+1:], &m); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	m.Codec = c.Name()
	return &m, nil
}

// ReadManifest reads the manifest of the checkpoint under prefix.
func ReadManifest(ctx context.Context, store blobstore.Store, prefix string) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, store, manifestPath(prefix))
	if err != nil {
		return nil, err
	}
	return decodeManifest(data)
}

// List returns the prefixes of the complete checkpoints under root, sorted.
func List(ctx context.Context, store blobstore.Store, root string) ([]string, error) {
	names, err := store.List(ctx, root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range names {
		if path.Base(name) == ManifestName {
			out = append(out, path.Dir(name))
		}
	}
	return out, nil
}

// Delete removes every blob of the checkpoint under prefix, the manifest
// first so that a partial delete is never listed.
func Delete(ctx context.Context, store blobstore.Store, prefix string) error {
	if err := store.Delete(ctx, manifestPath(prefix)); err != nil {
		return err
	}
	names, err := store.List(ctx, strings.TrimSuffix(prefix, "/")+"/")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := store.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}
