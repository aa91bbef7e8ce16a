package meshdata_test

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"github.com/hupe1980/meshdata"
	"github.com/hupe1980/meshdata/mesh"
	"github.com/hupe1980/meshdata/metadata"
	"github.com/hupe1980/meshdata/transport"
)

func newBlock(id int, nbs ...mesh.Neighbor) *mesh.Block {
	shape, err := mesh.NewIndexShape(8, 8, 1, 2)
	if err != nil {
		log.Fatal(err)
	}
	b, err := mesh.NewBlock(id, shape, mesh.WithNeighbors(nbs...))
	if err != nil {
		log.Fatal(err)
	}
	return b
}

// Example_registry demonstrates registering dense, vector and sparse variables.
func Example_registry() {
	b := newBlock(0)
	defer runtime.KeepAlive(b)

	bd := meshdata.New(meshdata.WithBlock(b), meshdata.WithStage("base"))

	if err := bd.Add("density", metadata.New([]metadata.Flag{metadata.Independent, metadata.FillGhost})); err != nil {
		log.Fatal(err)
	}
	velocity := metadata.New([]metadata.Flag{metadata.Independent, metadata.Vector}, metadata.WithShape(3))
	if err := bd.Add("velocity", velocity); err != nil {
		log.Fatal(err)
	}

	// Sparse members start unallocated.
	dust := metadata.New([]metadata.Flag{metadata.Sparse, metadata.Independent})
	for _, id := range []int{1, 4} {
		if err := bd.AddSparse("dust", id, dust); err != nil {
			log.Fatal(err)
		}
	}
	if err := bd.AllocSparseID("dust", 4); err != nil {
		log.Fatal(err)
	}

	fmt.Println(bd.Labels())
	fmt.Println(bd.IsAllocated("dust_1"), bd.IsAllocated("dust_4"))
	// Output:
	// [density velocity dust_1 dust_4]
	// false true
}

// Example_pack demonstrates packing variables for a single-index kernel.
func Example_pack() {
	b := newBlock(0)
	defer runtime.KeepAlive(b)

	bd := meshdata.New(meshdata.WithBlock(b))
	_ = bd.Add("density", metadata.New([]metadata.Flag{metadata.Independent}))
	_ = bd.Add("velocity", metadata.New([]metadata.Flag{metadata.Independent}, metadata.WithShape(3)))
	_ = bd.Add("pressure", metadata.New([]metadata.Flag{metadata.Derived}))

	pack, err := bd.PackVariablesByFlag([]metadata.Flag{metadata.Independent})
	if err != nil {
		log.Fatal(err)
	}

	// Zero every independent component in one loop.
	nk, nj, ni := pack.Extents()
	for c := 0; c < pack.Len(); c++ {
		for k := 0; k < nk; k++ {
			for j := 0; j < nj; j++ {
				for i := 0; i < ni; i++ {
					pack.Set(c, k, j, i, 0)
				}
			}
		}
	}

	vel, _ := pack.Index("velocity")
	fmt.Println(pack.Keys(), pack.Len())
	fmt.Println(vel.First, vel.Last)

	again, _ := bd.PackVariablesByFlag([]metadata.Flag{metadata.Independent})
	fmt.Println(again == pack)
	// Output:
	// [density velocity] 4
	// 1 3
	// true
}

// Example_exchange demonstrates one ghost-cell exchange between two blocks
// sharing an in-process transport.
func Example_exchange() {
	a := newBlock(0, mesh.Neighbor{BlockID: 1, Offset: [3]int{1, 0, 0}})
	b := newBlock(1, mesh.Neighbor{BlockID: 0, Offset: [3]int{-1, 0, 0}})
	defer runtime.KeepAlive(a)
	defer runtime.KeepAlive(b)

	hub := transport.NewHub(transport.DefaultConfig())
	ctx := context.Background()

	containers := make([]*meshdata.BlockData, 2)
	for i, blk := range []*mesh.Block{a, b} {
		bd := meshdata.New(meshdata.WithBlock(blk), meshdata.WithTransport(hub))
		if err := bd.Add("rho", metadata.New([]metadata.Flag{metadata.FillGhost})); err != nil {
			log.Fatal(err)
		}
		rho, _ := bd.Get("rho")
		rho.Data().Fill(float64(i + 1))
		containers[i] = bd
	}

	for _, bd := range containers {
		if _, err := bd.StartReceiving(ctx, meshdata.PhaseAll); err != nil {
			log.Fatal(err)
		}
	}
	for _, bd := range containers {
		if _, err := bd.SendBoundaryBuffers(ctx); err != nil {
			log.Fatal(err)
		}
	}
	for _, bd := range containers {
		st, err := bd.ReceiveAndSetBoundariesWithWait(ctx)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(st)
		if _, err := bd.ClearBoundary(ctx, meshdata.PhaseAll); err != nil {
			log.Fatal(err)
		}
	}

	// The upper x1 ghost cells of a now hold b's values.
	rho, _ := containers[0].Get("rho")
	fmt.Println(rho.Data().At(0, 0, 5, 10))
	// Output:
	// complete
	// complete
	// 2
}
