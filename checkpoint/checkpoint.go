package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/meshdata"
	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/blobstore"
	"github.com/hupe1980/meshdata/internal/compress"
	"github.com/hupe1980/meshdata/internal/hash"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/resource"
)

const (
	kindCell = "cell"
	kindFace = "face"
)

// saveItem is one variable scheduled for writing.
type saveItem struct {
	entry   Entry
	buffers []*array.Buffer
}

// Save writes the selected variables of data and a manifest under prefix.
// Existing blobs under the same names are replaced.
func Save(ctx context.Context, store blobstore.Store, prefix string, data *meshdata.BlockData, optFns ...Option) (err error) {
	o := applyOptions(optFns)
	start := time.Now()

	var m *Manifest
	defer func() {
		nvars, bytes := 0, int64(0)
		if m != nil {
			nvars, bytes = len(m.Variables), m.StoredBytes()
		}
		o.Logger.LogCheckpoint(ctx, "save", prefix, nvars, bytes, time.Since(start), err)
	}()

	b, err := data.Block()
	if err != nil {
		return err
	}

	items, err := selectVariables(data, prefix, o.Flags)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i := range items {
		it := &items[i]
		g.Go(func() error {
			return writeVariable(gctx, store, it, o)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	m = &Manifest{
		Version: FormatVersion,
		Stage:   data.Stage(),
		Block: BlockInfo{
			ID:     b.ID,
			Rank:   b.Rank,
			Level:  b.Level,
			NX:     b.Shape.NX,
			NGhost: b.Shape.NGhost,
		},
		Compression: o.Compression.String(),
		CreatedAt:   time.Now().UTC(),
		Variables:   make([]Entry, len(items)),
	}
	for i, it := range items {
		m.Variables[i] = it.entry
	}

	raw, err := encodeManifest(m, o.Codec)
	if err != nil {
		return err
	}
	return store.Put(ctx, manifestPath(prefix), raw)
}

func selectVariables(data *meshdata.BlockData, prefix string, flags []metadata.Flag) ([]saveItem, error) {
	var items []saveItem
	for _, v := range data.CellVariables() {
		if !v.IsAllocated() || !v.Metadata().AnyFlagSet(flags...) {
			continue
		}
		items = append(items, saveItem{
			entry:   newEntry(prefix, v.Label(), kindCell, v.Metadata(), v.ID().IsSparse()),
			buffers: []*array.Buffer{v.Data()},
		})
	}
	for _, v := range data.FaceVariables() {
		if !v.IsAllocated() || !v.Metadata().AnyFlagSet(flags...) {
			continue
		}
		bufs := make([]*array.Buffer, 3)
		for d := range bufs {
			buf, err := v.Get(d)
			if err != nil {
				return nil, err
			}
			bufs[d] = buf
		}
		items = append(items, saveItem{
			entry:   newEntry(prefix, v.Label(), kindFace, v.Metadata(), false),
			buffers: bufs,
		})
	}
	return items, nil
}

func newEntry(prefix, label, kind string, meta metadata.Metadata, sparse bool) Entry {
	flags := meta.Flags()
	names := make([]string, len(flags))
	for i, f := range flags {
		names[i] = f.String()
	}
	return Entry{
		Label:  label,
		Kind:   kind,
		Flags:  names,
		Shape:  meta.Shape(),
		Sparse: sparse,
		Blob:   path.Join(prefix, "vars", label+".bin"),
	}
}

func writeVariable(ctx context.Context, store blobstore.Store, it *saveItem, o Options) error {
	if err := o.Resources.AcquireBackground(ctx); err != nil {
		return err
	}
	defer o.Resources.ReleaseBackground()

	var raw []byte
	for _, buf := range it.buffers {
		raw = array.AppendFloat64s(raw, buf.Data())
		it.entry.Values += buf.Len()
	}
	it.entry.Checksum = hash.CRC32C(raw)

	block, err := compress.Encode(raw, o.Compression)
	if err != nil {
		return fmt.Errorf("compress %s: %w", it.entry.Label, err)
	}
	it.entry.Stored = int64(len(block))

	w, err := store.Create(ctx, it.entry.Blob)
	if err != nil {
		return err
	}
	if _, err := resource.NewRateLimitedWriter(ctx, w, o.Resources).Write(block); err != nil {
		_ = blobstore.Abort(w)
		return fmt.Errorf("write %s: %w", it.entry.Blob, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("write %s: %w", it.entry.Blob, err)
	}
	return nil
}

// Load restores the variables recorded in the checkpoint under prefix into
// data and returns its manifest.
//
// Every saved variable must be registered in data, and the block of data
// must have the index shape the checkpoint was written with. Sparse
// variables that were allocated when saved are allocated before their values
// are restored. Cached packs of data are cleared.
func Load(ctx context.Context, store blobstore.Store, prefix string, data *meshdata.BlockData, optFns ...Option) (m *Manifest, err error) {
	o := applyOptions(optFns)
	start := time.Now()
	defer func() {
		nvars, bytes := 0, int64(0)
		if m != nil {
			nvars, bytes = len(m.Variables), m.StoredBytes()
		}
		o.Logger.LogCheckpoint(ctx, "load", prefix, nvars, bytes, time.Since(start), err)
	}()

	manifest, err := ReadManifest(ctx, store, prefix)
	if err != nil {
		return nil, err
	}

	b, err := data.Block()
	if err != nil {
		return nil, err
	}
	if b.Shape.NX != manifest.Block.NX || b.Shape.NGhost != manifest.Block.NGhost {
		return nil, fmt.Errorf("%w: block has nx=%v nghost=%d, checkpoint has nx=%v nghost=%d",
			ErrShapeMismatch, b.Shape.NX, b.Shape.NGhost, manifest.Block.NX, manifest.Block.NGhost)
	}

	targets := make([][]*array.Buffer, len(manifest.Variables))
	for i, e := range manifest.Variables {
		bufs, err := targetBuffers(data, e)
		if err != nil {
			return nil, err
		}
		targets[i] = bufs
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for i := range manifest.Variables {
		e, bufs := manifest.Variables[i], targets[i]
		g.Go(func() error {
			return readVariable(gctx, store, e, bufs, o)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	data.ClearPackCaches()
	return manifest, nil
}

func targetBuffers(data *meshdata.BlockData, e Entry) ([]*array.Buffer, error) {
	var bufs []*array.Buffer
	switch e.Kind {
	case kindCell:
		v, err := data.Get(e.Label)
		if err != nil {
			return nil, err
		}
		if e.Sparse {
			if err := data.AllocateSparse(e.Label); err != nil {
				return nil, err
			}
		}
		if !v.IsAllocated() {
			return nil, fmt.Errorf("%w: %q is not allocated", meshdata.ErrInvalidOperation, e.Label)
		}
		bufs = []*array.Buffer{v.Data()}
	case kindFace:
		v, err := data.GetFace(e.Label)
		if err != nil {
			return nil, err
		}
		for d := 0; d < 3; d++ {
			buf, err := v.Get(d)
			if err != nil {
				return nil, err
			}
			bufs = append(bufs, buf)
		}
	default:
		return nil, fmt.Errorf("%w: %q has unknown kind %q", ErrCorrupt, e.Label, e.Kind)
	}

	n := 0
	for _, buf := range bufs {
		n += buf.Len()
	}
	if n != e.Values {
		return nil, fmt.Errorf("%w: %q holds %d values, checkpoint has %d",
			ErrShapeMismatch, e.Label, n, e.Values)
	}
	return bufs, nil
}

func readVariable(ctx context.Context, store blobstore.Store, e Entry, bufs []*array.Buffer, o Options) error {
	if err := o.Resources.AcquireBackground(ctx); err != nil {
		return err
	}
	defer o.Resources.ReleaseBackground()

	block, err := readBlob(ctx, store, e.Blob, o.Resources)
	if err != nil {
		return err
	}
	raw, err := compress.Decode(block)
	if err != nil {
		if errors.Is(err, compress.ErrCorrupt) {
			return fmt.Errorf("%w: %s: %w", ErrCorrupt, e.Blob, err)
		}
		return err
	}
	if sum := hash.CRC32C(raw); sum != e.Checksum {
		return fmt.Errorf("%w: %s: checksum %08x, want %08x", ErrCorrupt, e.Blob, sum, e.Checksum)
	}

	off := 0
	for _, buf := range bufs {
		n := 8 * buf.Len()
		if off+n > len(raw) {
			return fmt.Errorf("%w: %s is truncated", ErrCorrupt, e.Blob)
		}
		if err := array.DecodeFloat64s(buf.Data(), raw[off:off+n]); err != nil {
			return err
		}
		off += n
	}
	if off != len(raw) {
		return fmt.Errorf("%w: %s has %d trailing bytes", ErrCorrupt, e.Blob, len(raw)-off)
	}
	return nil
}

func readBlob(ctx context.Context, store blobstore.Store, name string, rc *resource.Controller) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	if b.Size() == 0 {
		return []byte{}, nil
	}
	r, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(resource.NewRateLimitedReader(ctx, r, rc))
}

// Verify reads every variable blob of the checkpoint under prefix and checks
// its size and checksum without restoring it anywhere.
func Verify(ctx context.Context, store blobstore.Store, prefix string, optFns ...Option) (*Manifest, error) {
	o := applyOptions(optFns)

	m, err := ReadManifest(ctx, store, prefix)
	if err != nil {
		return nil, err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.Concurrency)
	for _, e := range m.Variables {
		g.Go(func() error {
			if err := o.Resources.AcquireBackground(gctx); err != nil {
				return err
			}
			defer o.Resources.ReleaseBackground()

			block, err := readBlob(gctx, store, e.Blob, o.Resources)
			if err != nil {
				return err
			}
			raw, err := compress.Decode(block)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", ErrCorrupt, e.Blob, err)
			}
			if len(raw) != 8*e.Values {
				return fmt.Errorf("%w: %s holds %d bytes, want %d", ErrCorrupt, e.Blob, len(raw), 8*e.Values)
			}
			if sum := hash.CRC32C(raw); sum != e.Checksum {
				return fmt.Errorf("%w: %s: checksum %08x, want %08x", ErrCorrupt, e.Blob, sum, e.Checksum)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}
