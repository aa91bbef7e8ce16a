package meshdata

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/boundary"
	"github.com/hupe1980/meshdata/internal/packcache"
	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/variable"
)

// BlockData holds the field variables of one mesh block for one stage.
//
// Cell variables and face variables live in separate ordered lists, each
// with its own label index; a label is unique within its kind. Sparse cell
// variables are additionally grouped into pools by base name.
//
// Registry operations are safe for concurrent use. Boundary exchange
// operations are driven by one task at a time.
type BlockData struct {
	mu   sync.RWMutex
	opts options
	log  *Logger

	block mesh.Ref

	cells   []*variable.CellVariable
	faces   []*variable.FaceVariable
	cellIdx map[string]*variable.CellVariable
	faceIdx map[string]*variable.FaceVariable
	pools   map[string][]*variable.CellVariable

	flags map[metadata.Flag]*roaring.Bitmap

	varPacks    *packcache.Cache[*Pack]
	coarsePacks *packcache.Cache[*Pack]
	fluxPacks   *packcache.Cache[*FluxPack]
	resolutions atomic.Uint64

	exchange *boundary.Controller
}

// New creates an empty container.
func New(optFns ...Option) *BlockData {
	return newBlockData(applyOptions(defaultOptions(), optFns))
}

func newBlockData(o options) *BlockData {
	d := &BlockData{
		opts:        o,
		cellIdx:     make(map[string]*variable.CellVariable),
		faceIdx:     make(map[string]*variable.FaceVariable),
		pools:       make(map[string][]*variable.CellVariable),
		varPacks:    packcache.New[*Pack](o.packCache),
		coarsePacks: packcache.New[*Pack](o.packCache),
		fluxPacks:   packcache.New[*FluxPack](o.packCache),
	}
	d.log = o.logger.WithStage(o.stage)

	// The container must not keep its block alive.
	b := o.block
	d.opts.block = nil
	if b != nil {
		d.SetBlockPointer(b)
	}
	return d
}

// SetBlockPointer binds the container to its owning block. The container
// holds a weak reference only. Rebinding drops any exchange state.
func (d *BlockData) SetBlockPointer(b *mesh.Block) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.block = mesh.MakeRef(b)
	d.log = d.opts.logger.WithStage(d.opts.stage)
	if b != nil {
		d.log = d.log.WithBlock(b.ID)
	}
	d.exchange = nil
}

// Block returns the owning block, or ErrStaleReference when it is unset or
// gone.
func (d *BlockData) Block() (*mesh.Block, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.liveBlock()
}

func (d *BlockData) liveBlock() (*mesh.Block, error) {
	b, err := d.block.Get()
	if err != nil {
		return nil, translateError(err)
	}
	return b, nil
}

// Stage returns the stage name given with WithStage.
func (d *BlockData) Stage() string { return d.opts.stage }

// BoundsI returns the x1 index range of the owning block.
func (d *BlockData) BoundsI(domain mesh.IndexDomain) (mesh.IndexRange, error) {
	return d.bounds(0, domain)
}

// BoundsJ returns the x2 index range of the owning block.
func (d *BlockData) BoundsJ(domain mesh.IndexDomain) (mesh.IndexRange, error) {
	return d.bounds(1, domain)
}

// BoundsK returns the x3 index range of the owning block.
func (d *BlockData) BoundsK(domain mesh.IndexDomain) (mesh.IndexRange, error) {
	return d.bounds(2, domain)
}

func (d *BlockData) bounds(dim int, domain mesh.IndexDomain) (mesh.IndexRange, error) {
	b, err := d.Block()
	if err != nil {
		return mesh.IndexRange{}, err
	}
	return b.Shape.Bounds(dim, domain), nil
}

func kindOf(meta metadata.Metadata) string {
	if meta.Where() == metadata.Face {
		return variable.KindFace.String()
	}
	return variable.KindCell.String()
}

// checkCellLabel validates a new cell label. base is the pool name for a
// sparse label and empty otherwise. Must be called with d.mu held.
func (d *BlockData) checkCellLabel(op, label, base string) error {
	if label == "" {
		return labelError(op, label, fmt.Errorf("%w: empty label", ErrInvalidOperation))
	}
	if _, ok := d.cellIdx[label]; ok {
		return labelError(op, label, ErrDuplicateName)
	}
	if base == "" {
		if _, ok := d.pools[label]; ok {
			return labelError(op, label, fmt.Errorf("%w: label is a sparse pool name", ErrDuplicateName))
		}
		return nil
	}
	if v, ok := d.cellIdx[base]; ok && !v.ID().IsSparse() {
		return labelError(op, label, fmt.Errorf("%w: pool name %q is a dense label", ErrDuplicateName, base))
	}
	return nil
}

func (d *BlockData) checkFaceLabel(op, label string) error {
	if label == "" {
		return labelError(op, label, fmt.Errorf("%w: empty label", ErrInvalidOperation))
	}
	if _, ok := d.faceIdx[label]; ok {
		return labelError(op, label, ErrDuplicateName)
	}
	return nil
}

// insertCell appends v and purges the packs its selection matches. Must be
// called with d.mu held for writing.
func (d *BlockData) insertCell(v *variable.CellVariable) {
	v.Retain()
	d.cells = append(d.cells, v)
	d.cellIdx[v.Label()] = v
	if id := v.ID(); id.IsSparse() {
		d.pools[id.Base] = append(d.pools[id.Base], v)
	}
	d.rebuildFlagIndex()
	d.purgePacks(v)
}

func (d *BlockData) insertFace(v *variable.FaceVariable) {
	v.Retain()
	d.faces = append(d.faces, v)
	d.faceIdx[v.Label()] = v
}

// Add creates and allocates a dense variable. Face topology creates a face
// variable. Sparse variables are added with AddSparse.
func (d *BlockData) Add(label string, meta metadata.Metadata) error {
	d.mu.Lock()
	_, err := d.add(label, meta)
	d.mu.Unlock()

	d.log.LogAdd(context.Background(), label, kindOf(meta), err)
	return err
}

// add creates and registers one dense variable. Must be called with d.mu
// held.
func (d *BlockData) add(label string, meta metadata.Metadata) (variable.Variable, error) {
	if meta.IsSparse() {
		return nil, labelError("add", label,
			fmt.Errorf("%w: sparse variables are added with AddSparse", ErrInvalidOperation))
	}

	switch meta.Where() {
	case metadata.Cell:
		if err := d.checkCellLabel("add", label, ""); err != nil {
			return nil, err
		}
	case metadata.Face:
		if err := d.checkFaceLabel("add", label); err != nil {
			return nil, err
		}
	default:
		return nil, labelError("add", label, fmt.Errorf("%w: %s variables", ErrUnsupported, meta.Where()))
	}

	b, err := d.liveBlock()
	if err != nil {
		return nil, labelError("add", label, err)
	}

	if meta.Where() == metadata.Face {
		fv, err := variable.NewFaceVariable(label, meta, b, d.opts.resources)
		if err != nil {
			return nil, labelError("add", label, err)
		}
		d.insertFace(fv)
		return fv, nil
	}

	cv, err := variable.NewCellVariable(variable.DenseID(label), meta)
	if err != nil {
		return nil, labelError("add", label, err)
	}
	if err := cv.Allocate(b, d.opts.resources); err != nil {
		return nil, labelError("add", label, err)
	}
	d.insertCell(cv)
	return cv, nil
}

// AddLabels adds one dense variable per label, all sharing meta. Either
// every label is added or none is.
func (d *BlockData) AddLabels(labels []string, meta metadata.Metadata) error {
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if _, dup := seen[l]; dup {
			return labelError("add", l, ErrDuplicateName)
		}
		seen[l] = struct{}{}
	}

	d.mu.Lock()
	added := make([]variable.Variable, 0, len(labels))
	var err error
	for _, l := range labels {
		var v variable.Variable
		if v, err = d.add(l, meta); err != nil {
			break
		}
		added = append(added, v)
	}
	if err != nil {
		for _, v := range added {
			switch v := v.(type) {
			case *variable.CellVariable:
				d.removeCell(v)
				v.Drop(d.opts.resources)
			case *variable.FaceVariable:
				d.removeFace(v)
			}
		}
	}
	d.mu.Unlock()

	for _, l := range labels {
		d.log.LogAdd(context.Background(), l, kindOf(meta), err)
	}
	return err
}

// AddSparse registers member id of the sparse pool base. The member starts
// unallocated; see AllocateSparse.
func (d *BlockData) AddSparse(base string, id int, meta metadata.Metadata) error {
	label := variable.MakeLabel(base, id)
	if !meta.IsSparse() {
		return labelError("add", label, fmt.Errorf("%w: metadata is not sparse", ErrInvalidOperation))
	}
	if meta.Where() != metadata.Cell {
		return labelError("add", label, fmt.Errorf("%w: sparse %s variables", ErrUnsupported, meta.Where()))
	}
	if id == variable.InvalidSparseID {
		return labelError("add", label, fmt.Errorf("%w: invalid sparse id", ErrInvalidOperation))
	}

	d.mu.Lock()
	var cv *variable.CellVariable
	err := d.checkCellLabel("add", label, base)
	if err == nil {
		cv, err = variable.NewCellVariable(variable.SparseID(base, id), meta)
		if err != nil {
			err = labelError("add", label, err)
		} else {
			d.insertCell(cv)
		}
	}
	d.mu.Unlock()

	d.log.LogAdd(context.Background(), label, variable.KindCell.String(), err)
	return err
}

// AddCellVariable adds v by reference. Storage is shared with every other
// container holding v.
func (d *BlockData) AddCellVariable(v *variable.CellVariable) error {
	base := ""
	if v.ID().IsSparse() {
		base = v.ID().Base
	}

	d.mu.Lock()
	err := d.checkCellLabel("add", v.Label(), base)
	if err == nil {
		d.insertCell(v)
	}
	d.mu.Unlock()

	d.log.LogAdd(context.Background(), v.Label(), variable.KindCell.String(), err)
	return err
}

// AddFaceVariable adds v by reference.
func (d *BlockData) AddFaceVariable(v *variable.FaceVariable) error {
	d.mu.Lock()
	err := d.checkFaceLabel("add", v.Label())
	if err == nil {
		d.insertFace(v)
	}
	d.mu.Unlock()

	d.log.LogAdd(context.Background(), v.Label(), variable.KindFace.String(), err)
	return err
}

// Remove erases the variable called label, purges every cached pack that
// could include it and releases its storage once no container holds it.
// A cell label is looked up before a face label.
func (d *BlockData) Remove(label string) error {
	d.mu.Lock()
	var (
		err    error
		cv     *variable.CellVariable
		purged int
	)
	if v, ok := d.cellIdx[label]; ok {
		if err = d.unbind(v); err != nil {
			err = labelError("remove", label, err)
		} else {
			purged = d.removeCell(v)
			cv = v
		}
	} else if fv, ok := d.faceIdx[label]; ok {
		d.removeFace(fv)
	} else {
		err = labelError("remove", label, ErrNotFound)
	}
	d.mu.Unlock()

	if cv != nil {
		cv.Drop(d.opts.resources)
	}
	d.log.LogRemove(context.Background(), label, purged, err)
	return err
}

// removeCell unregisters v and reports how many cached packs it purged.
// Must be called with d.mu held for writing.
func (d *BlockData) removeCell(v *variable.CellVariable) int {
	d.cells = slices.DeleteFunc(d.cells, func(x *variable.CellVariable) bool { return x == v })
	delete(d.cellIdx, v.Label())
	if id := v.ID(); id.IsSparse() {
		pool := slices.DeleteFunc(d.pools[id.Base], func(x *variable.CellVariable) bool { return x == v })
		if len(pool) == 0 {
			delete(d.pools, id.Base)
		} else {
			d.pools[id.Base] = pool
		}
	}
	d.rebuildFlagIndex()
	return d.purgePacks(v)
}

func (d *BlockData) removeFace(v *variable.FaceVariable) {
	d.faces = slices.DeleteFunc(d.faces, func(x *variable.FaceVariable) bool { return x == v })
	delete(d.faceIdx, v.Label())
	v.Drop(d.opts.resources)
}

// unbind takes v out of the exchange set before its storage goes away.
// Must be called with d.mu held.
func (d *BlockData) unbind(v *variable.CellVariable) error {
	if d.exchange == nil {
		return nil
	}
	fields := d.exchange.Fields()
	if !slices.Contains(fields, v) {
		return nil
	}
	kept := slices.DeleteFunc(slices.Clone(fields), func(x *variable.CellVariable) bool { return x == v })
	return translateError(d.exchange.Bind(kept))
}

// HasVariable reports whether label names a cell or face variable.
func (d *BlockData) HasVariable(label string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, cell := d.cellIdx[label]
	_, face := d.faceIdx[label]
	return cell || face
}

// HasCellVariable reports whether label names a cell variable.
func (d *BlockData) HasCellVariable(label string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.cellIdx[label]
	return ok
}

// Contains reports whether every label names a variable.
func (d *BlockData) Contains(labels ...string) bool {
	for _, l := range labels {
		if !d.HasVariable(l) {
			return false
		}
	}
	return true
}

// Get returns the cell variable called label.
func (d *BlockData) Get(label string) (*variable.CellVariable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.cellIdx[label]
	if !ok {
		return nil, labelError("get", label, ErrNotFound)
	}
	return v, nil
}

// GetAt returns the cell variable at position i in registry order.
func (d *BlockData) GetAt(i int) (*variable.CellVariable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if i < 0 || i >= len(d.cells) {
		return nil, fmt.Errorf("%w: index %d out of range [0,%d)", ErrNotFound, i, len(d.cells))
	}
	return d.cells[i], nil
}

// Index returns the registry position of the cell variable called label, or
// -1.
func (d *BlockData) Index(label string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.cellIdx[label]
	if !ok {
		return -1
	}
	return slices.Index(d.cells, v)
}

// GetFace returns the face variable called label.
func (d *BlockData) GetFace(label string) (*variable.FaceVariable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.faceIdx[label]
	if !ok {
		return nil, labelError("get face", label, ErrNotFound)
	}
	return v, nil
}

// GetFaceDir returns the buffer of face variable label along direction dir
// (0, 1 or 2).
func (d *BlockData) GetFaceDir(label string, dir int) (*array.Buffer, error) {
	v, err := d.GetFace(label)
	if err != nil {
		return nil, err
	}
	buf, err := v.Get(dir)
	if err != nil {
		return nil, labelError("get face", label, err)
	}
	return buf, nil
}

// GetEdge always fails: edge-centered variables are not supported.
func (d *BlockData) GetEdge(label string) (variable.Variable, error) {
	return nil, labelError("get edge", label, ErrUnsupported)
}

// CellVariables returns the cell variables in registry order.
func (d *BlockData) CellVariables() []*variable.CellVariable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.cells)
}

// FaceVariables returns the face variables in registry order.
func (d *BlockData) FaceVariables() []*variable.FaceVariable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.faces)
}

// VarSpan locates the variables one requested name resolved to inside the
// list returned by GetCellVariables.
type VarSpan struct {
	Name  string
	Index int
	Count int
}

// GetCellVariables resolves names like PackVariablesByName and returns the
// resolved variables with one span per requested name. A name that resolves
// to nothing has Count 0 and Index -1.
func (d *BlockData) GetCellVariables(names []string, sparseIDs ...int) ([]*variable.CellVariable, []VarSpan) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var vars []*variable.CellVariable
	spans := make([]VarSpan, 0, len(names))
	for _, name := range names {
		got := d.resolve(byNames([]string{name}, sparseIDs))
		span := VarSpan{Name: name, Index: -1, Count: len(got)}
		if len(got) > 0 {
			span.Index = len(vars)
		}
		vars = append(vars, got...)
		spans = append(spans, span)
	}
	return vars, spans
}

// AllocateSparse allocates the sparse variable called label on the owning
// block. Allocating an allocated variable does nothing. Cached packs are not
// invalidated; see ClearPackCaches.
func (d *BlockData) AllocateSparse(label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := d.cellIdx[label]
	if !ok {
		return labelError("allocate", label, ErrNotFound)
	}
	if !v.ID().IsSparse() {
		return labelError("allocate", label, fmt.Errorf("%w: variable is not sparse", ErrInvalidOperation))
	}
	if v.IsAllocated() {
		return nil
	}

	b, err := d.liveBlock()
	if err == nil {
		err = v.Allocate(b, d.opts.resources)
	}
	d.opts.metricsCollector.RecordAllocate(label, v.Bytes(), err)
	d.log.LogAllocate(context.Background(), label, v.Bytes(), err)
	if err != nil {
		return labelError("allocate", label, err)
	}
	return nil
}

// AllocSparseID allocates member id of the sparse pool base.
func (d *BlockData) AllocSparseID(base string, id int) error {
	return d.AllocateSparse(variable.MakeLabel(base, id))
}

// DeallocateSparse frees the storage of the sparse variable called label.
// The variable stays registered.
func (d *BlockData) DeallocateSparse(label string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := d.cellIdx[label]
	if !ok {
		return labelError("deallocate", label, ErrNotFound)
	}
	if !v.ID().IsSparse() {
		return labelError("deallocate", label, fmt.Errorf("%w: variable is not sparse", ErrInvalidOperation))
	}
	if !v.IsAllocated() {
		return nil
	}
	if err := d.unbind(v); err != nil {
		return labelError("deallocate", label, err)
	}
	bytes := v.Bytes()
	if err := v.Deallocate(d.opts.resources); err != nil {
		return labelError("deallocate", label, err)
	}
	d.log.LogAllocate(context.Background(), label, -bytes, nil)
	return nil
}

// IsAllocated reports whether label names an allocated cell or face
// variable. Unknown labels are not allocated.
func (d *BlockData) IsAllocated(label string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if v, ok := d.cellIdx[label]; ok {
		return v.IsAllocated()
	}
	if v, ok := d.faceIdx[label]; ok {
		return v.IsAllocated()
	}
	return false
}

// IsAllocatedID reports whether member id of pool base is allocated.
func (d *BlockData) IsAllocatedID(base string, id int) bool {
	return d.IsAllocated(variable.MakeLabel(base, id))
}

// Size returns the number of cell and face variables.
func (d *BlockData) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.cells) + len(d.faces)
}

// Labels returns the cell labels in registry order followed by the face
// labels.
func (d *BlockData) Labels() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	labels := make([]string, 0, len(d.cells)+len(d.faces))
	for _, v := range d.cells {
		labels = append(labels, v.Label())
	}
	for _, v := range d.faces {
		labels = append(labels, v.Label())
	}
	return labels
}

// Equal reports whether d and other hold the same cell labels and the same
// face labels. Storage is not compared.
func (d *BlockData) Equal(other *BlockData) bool {
	if d == other {
		return true
	}
	if other == nil {
		return false
	}
	ac, af := d.labelSets()
	bc, bf := other.labelSets()
	return sameKeys(ac, bc) && sameKeys(af, bf)
}

func (d *BlockData) labelSets() (cells, faces map[string]struct{}) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cells = make(map[string]struct{}, len(d.cells))
	for _, v := range d.cells {
		cells[v.Label()] = struct{}{}
	}
	faces = make(map[string]struct{}, len(d.faces))
	for _, v := range d.faces {
		faces[v.Label()] = struct{}{}
	}
	return cells, faces
}

func sameKeys(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func (d *BlockData) String() string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("BlockData")
	if d.opts.stage != "" {
		fmt.Fprintf(&sb, "(%s)", d.opts.stage)
	}
	fmt.Fprintf(&sb, ": %d cell, %d face\n", len(d.cells), len(d.faces))
	for _, v := range d.cells {
		sb.WriteString("  ")
		sb.WriteString(v.String())
		sb.WriteByte('\n')
	}
	for _, v := range d.faces {
		sb.WriteString("  ")
		sb.WriteString(v.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Close drops every variable and cached pack. Storage is released for
// variables no other container holds.
func (d *BlockData) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.exchange != nil {
		if err := d.exchange.Bind(nil); err != nil {
			return translateError(err)
		}
	}
	for _, v := range d.cells {
		v.Drop(d.opts.resources)
	}
	for _, v := range d.faces {
		v.Drop(d.opts.resources)
	}
	d.cells, d.faces = nil, nil
	clear(d.cellIdx)
	clear(d.faceIdx)
	clear(d.pools)
	d.rebuildFlagIndex()
	d.ClearPackCaches()
	return nil
}
