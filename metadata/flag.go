package metadata

import (
	"fmt"
	"sync"
)

// Flag identifies a single capability tag.
type Flag uint32

// Built-in flags. User flags are allocated after userFlagStart.
const (
	None Flag = iota
	// Topology
	Cell
	Face
	Edge
	Node
	// Role
	Independent
	Derived
	// Lifetime
	OneCopy
	Sparse
	Restart
	// Exchange
	FillGhost
	WithFluxes
	// Shape
	Vector
	Tensor
	// Dependency resolution between packages
	Provides
	Requires
	Overridable
	// Physics hints
	Conserved
	Intensive

	userFlagStart
)

var builtinNames = [...]string{
	None:        "None",
	Cell:        "Cell",
	Face:        "Face",
	Edge:        "Edge",
	Node:        "Node",
	Independent: "Independent",
	Derived:     "Derived",
	OneCopy:     "OneCopy",
	Sparse:      "Sparse",
	Restart:     "Restart",
	FillGhost:   "FillGhost",
	WithFluxes:  "WithFluxes",
	Vector:      "Vector",
	Tensor:      "Tensor",
	Provides:    "Provides",
	Requires:    "Requires",
	Overridable: "Overridable",
	Conserved:   "Conserved",
	Intensive:   "Intensive",
}

type flagRegistry struct {
	mu     sync.RWMutex
	byName map[string]Flag
	names  []string
}

var registry = newFlagRegistry()

func newFlagRegistry() *flagRegistry {
	r := &flagRegistry{
		byName: make(map[string]Flag, len(builtinNames)),
		names:  make([]string, 0, len(builtinNames)),
	}
	for i, name := range builtinNames {
		r.byName[name] = Flag(i)
		r.names = append(r.names, name)
	}
	return r
}

// AddUserFlag registers a user flag and returns it. Registering the same
// name twice returns the flag allocated the first time.
func AddUserFlag(name string) Flag {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	if f, ok := registry.byName[name]; ok {
		return f
	}
	f := Flag(len(registry.names))
	registry.byName[name] = f
	registry.names = append(registry.names, name)
	return f
}

// FlagByName looks up a registered flag.
func FlagByName(name string) (Flag, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	f, ok := registry.byName[name]
	return f, ok
}

// IsUserFlag reports whether f was allocated by AddUserFlag.
func (f Flag) IsUserFlag() bool {
	return f >= userFlagStart
}

func (f Flag) String() string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	if int(f) < len(registry.names) {
		return registry.names[f]
	}
	return fmt.Sprintf("Flag(%d)", uint32(f))
}
