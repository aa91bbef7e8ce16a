// Package meshdata provides the per-block field container of a
// block-structured adaptive mesh refinement code.
//
// A BlockData owns the field variables living on one mesh block for one
// stage of a time integrator. It offers three services on top of plain
// storage:
//
//   - a registry of cell- and face-centered variables, including sparse
//     variables that are allocated on demand and grouped into pools;
//   - packs: cached, index-addressable views over a selection of variables
//     chosen by name or by metadata flags;
//   - the control surface of the ghost-cell and flux-correction exchange
//     with neighboring blocks, as retryable steps reporting a TaskStatus.
//
// # Quick Start
//
//	shape, _ := mesh.NewIndexShape(16, 16, 1, 2)
//	block, _ := mesh.NewBlock(0, shape)
//
//	bd := meshdata.New(meshdata.WithBlock(block), meshdata.WithStage("base"))
//	_ = bd.Add("density", metadata.New([]metadata.Flag{metadata.Independent, metadata.FillGhost}))
//	_ = bd.AddSparse("dust", 3, metadata.New([]metadata.Flag{metadata.Sparse}))
//	_ = bd.AllocSparseID("dust", 3)
//
//	pack, _ := bd.PackVariablesByName([]string{"density", "dust"})
//	rho, _ := pack.Index("density")
//	pack.Set(rho.First, 0, 2, 2, 1.0)
//
// # Derived containers
//
// Multi-stage integrators keep one container per stage. DeriveByName,
// DeriveByFlags and Copy build them from a base container: OneCopy variables
// are shared, everything else gets fresh storage holding the same values.
//
// # Pack caching
//
// Packs are cached per selection key; asking twice for the same selection
// returns the same *Pack. Adding or removing a variable purges the packs it
// affects. Allocating or deallocating a sparse variable does not: callers
// that rely on flag or pool selections observing such changes call
// ClearPackCaches.
//
// # Boundary exchange
//
// With a transport configured (WithTransport), an exchange for one phase
// runs
//
//	bd.StartReceiving(ctx, meshdata.PhaseAll)
//	bd.SendBoundaryBuffers(ctx)
//	for st, _ := bd.ReceiveBoundaryBuffers(ctx); st == meshdata.Incomplete; ... // retry later
//	bd.SetBoundaries(ctx)
//	bd.ClearBoundary(ctx, meshdata.PhaseAll)
//
// Every step returns Complete, Incomplete (re-issue later) or Fail with an
// error. Steps issued out of order fail with ErrOutOfOrder.
//
// # Errors
//
// Registry errors wrap ErrNotFound, ErrDuplicateName, ErrInvalidOperation,
// ErrStaleReference or ErrUnsupported and name the offending label through
// *LabelError.
package meshdata
