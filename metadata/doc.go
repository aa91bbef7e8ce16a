// Package metadata provides the capability-tag vocabulary attached to every
// field variable.
//
// A Metadata value is an immutable set of Flags plus a component shape. The
// container never interprets flag semantics beyond membership and superset
// tests; those are answered by a Roaring Bitmap so that selections over many
// user-defined flags stay cheap.
//
// # Flags
//
// Built-in flags cover topology (Cell, Face, Edge, Node), role (Independent,
// Derived), lifetime (OneCopy, Sparse, Restart) and exchange (FillGhost,
// WithFluxes). Applications register their own flags with AddUserFlag:
//
//	advected := metadata.AddUserFlag("Advected")
//	m := metadata.New([]metadata.Flag{metadata.Cell, metadata.FillGhost, advected},
//	    metadata.WithShape(3))
//	m.AllFlagsSet(metadata.FillGhost, advected) // true
package metadata
