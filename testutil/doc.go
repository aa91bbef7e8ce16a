// Package testutil provides fixtures for tests of mesh-block field data.
//
// It is intended for tests and benchmarks only.
//
// # Random Field Values
//
//	rng := testutil.NewRNG(seed)
//	rng.FillBuffer(v.Data(), -1, 1)
//
// # Blocks
//
//	shape := testutil.Shape(t, 8, 8, 1, 2)
//	blk := testutil.NewBlock(t, 0, shape)
//	row := testutil.Row(t, 2, shape) // two face neighbors along x1
//
// # Comparison
//
//	assert.InDelta(t, 0, testutil.MaxAbsDiff(a.Data(), b.Data()), 1e-12)
package testutil
