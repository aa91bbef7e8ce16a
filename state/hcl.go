package state

import (
	"fmt"
	"math/big"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/hupe1980/meshdata/metadata"
)

// hclFile is the top-level structure of a package declaration file:
//
//	package "hydro" {
//	  field "density" {
//	    flags = ["Independent", "FillGhost", "Conserved"]
//	  }
//	  field "velocity" {
//	    flags = ["Derived", "Vector"]
//	    shape = [3]
//	  }
//	  sparse_pool "dust" {
//	    flags = ["Sparse", "FillGhost"]
//	    ids   = [1, 2, 5]
//	  }
//	  params = {
//	    gamma = 1.4
//	    nspecies = 3
//	  }
//	  mutable = ["gamma"]
//	}
type hclFile struct {
	Packages []*hclPackage `hcl:"package,block"`
}

type hclPackage struct {
	Name    string      `hcl:"name,label"`
	Fields  []*hclField `hcl:"field,block"`
	Pools   []*hclPool  `hcl:"sparse_pool,block"`
	Params  cty.Value   `hcl:"params,optional"`
	Mutable []string    `hcl:"mutable,optional"`
}

type hclField struct {
	Label string   `hcl:"label,label"`
	Flags []string `hcl:"flags,optional"`
	Shape []int    `hcl:"shape,optional"`
}

type hclPool struct {
	Base  string   `hcl:"base,label"`
	Flags []string `hcl:"flags,optional"`
	Shape []int    `hcl:"shape,optional"`
	IDs   []int    `hcl:"ids"`
}

// LoadHCL parses package declarations from src. filename is used in
// diagnostics only. Flag names unknown to the metadata registry are
// registered as user flags.
func LoadHCL(filename string, src []byte) (*Packages, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var parsed hclFile
	diags = gohcl.DecodeBody(file.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	pkgs := NewPackages()
	for _, hp := range parsed.Packages {
		d, err := hp.descriptor()
		if err != nil {
			return nil, fmt.Errorf("%s: package %q: %w", filename, hp.Name, err)
		}
		if err := pkgs.Add(d); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
	}
	return pkgs, nil
}

func (hp *hclPackage) descriptor() (*Descriptor, error) {
	d := NewDescriptor(hp.Name)
	for _, f := range hp.Fields {
		if err := d.AddField(f.Label, buildMetadata(f.Flags, f.Shape)); err != nil {
			return nil, err
		}
	}
	for _, p := range hp.Pools {
		if err := d.AddSparsePool(p.Base, buildMetadata(p.Flags, p.Shape), p.IDs...); err != nil {
			return nil, err
		}
	}

	mutable := make(map[string]bool, len(hp.Mutable))
	for _, k := range hp.Mutable {
		mutable[k] = true
	}
	if !hp.Params.IsKnown() || hp.Params.IsNull() {
		return d, nil
	}
	if !hp.Params.Type().IsObjectType() && !hp.Params.Type().IsMapType() {
		return nil, fmt.Errorf("params must be an object, got %s", hp.Params.Type().FriendlyName())
	}
	for it := hp.Params.ElementIterator(); it.Next(); {
		k, v := it.Element()
		key := k.AsString()
		raw, err := ctyToParam(v)
		if err != nil {
			return nil, fmt.Errorf("param %q: %w", key, err)
		}
		if err := d.params.addRaw(key, raw, mutable[key]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func buildMetadata(names []string, shape []int) metadata.Metadata {
	flags := make([]metadata.Flag, 0, len(names))
	for _, n := range names {
		f, ok := metadata.FlagByName(n)
		if !ok {
			f = metadata.AddUserFlag(n)
		}
		flags = append(flags, f)
	}
	return metadata.New(flags, metadata.WithShape(shape...))
}

// ctyToParam converts a parameter value. Whole numbers become int, other
// numbers float64; homogeneous lists become []float64 or []string.
func ctyToParam(v cty.Value) (any, error) {
	if !v.IsKnown() || v.IsNull() {
		return nil, fmt.Errorf("value is null or unknown")
	}
	t := v.Type()
	switch {
	case t == cty.String:
		return v.AsString(), nil
	case t == cty.Bool:
		return v.True(), nil
	case t == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			if i, acc := bf.Int64(); acc == big.Exact {
				return int(i), nil
			}
		}
		f, _ := bf.Float64()
		return f, nil
	case t.IsTupleType() || t.IsListType():
		var (
			nums []float64
			strs []string
		)
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			switch {
			case ev.Type() == cty.Number && strs == nil:
				f, _ := ev.AsBigFloat().Float64()
				nums = append(nums, f)
			case ev.Type() == cty.String && nums == nil:
				strs = append(strs, ev.AsString())
			default:
				return nil, fmt.Errorf("lists must hold only numbers or only strings")
			}
		}
		if strs != nil {
			return strs, nil
		}
		if nums == nil {
			nums = []float64{}
		}
		return nums, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t.FriendlyName())
	}
}
