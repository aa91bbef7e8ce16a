package state

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	// ErrParamNotFound is returned when a parameter key is unknown.
	ErrParamNotFound = errors.New("parameter not found")

	// ErrParamExists is returned when a parameter key is added twice.
	ErrParamExists = errors.New("parameter already exists")

	// ErrParamType is returned when a parameter is read or updated with a
	// type other than the one it was added with.
	ErrParamType = errors.New("parameter type mismatch")

	// ErrParamImmutable is returned when an immutable parameter is updated
	// or requested for mutation.
	ErrParamImmutable = errors.New("parameter is immutable")
)

type param struct {
	value   any // always a pointer to the stored value
	mutable bool
}

// Params is a typed key/value store of package parameters.
//
// The zero value is ready to use. Typed access goes through the generic
// functions AddParam, Param, ParamOr, UpdateParam and MutableParam.
type Params struct {
	entries map[string]*param
}

func (p *Params) lookup(key string) (*param, error) {
	e, ok := p.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrParamNotFound, key)
	}
	return e, nil
}

// Has reports whether key is set.
func (p *Params) Has(key string) bool {
	_, ok := p.entries[key]
	return ok
}

// Keys returns the parameter keys in sorted order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Type returns the Go type name of the parameter stored under key.
func (p *Params) Type(key string) (string, error) {
	e, err := p.lookup(key)
	if err != nil {
		return "", err
	}
	t := fmt.Sprintf("%T", e.value)
	return t[1:], nil // strip the pointer
}

// IsMutable reports whether the parameter under key may be updated.
func (p *Params) IsMutable(key string) bool {
	e, ok := p.entries[key]
	return ok && e.mutable
}

// Len returns the number of parameters.
func (p *Params) Len() int { return len(p.entries) }

// AddParam stores value under key.
func AddParam[T any](p *Params, key string, value T, mutable bool) error {
	if p.entries == nil {
		p.entries = make(map[string]*param)
	}
	if _, ok := p.entries[key]; ok {
		return fmt.Errorf("%w: %q", ErrParamExists, key)
	}
	p.entries[key] = &param{value: &value, mutable: mutable}
	return nil
}

// Param returns the value stored under key.
func Param[T any](p *Params, key string) (T, error) {
	var zero T
	e, err := p.lookup(key)
	if err != nil {
		return zero, err
	}
	v, ok := e.value.(*T)
	if !ok {
		return zero, fmt.Errorf("%w: %q holds %T, requested %T", ErrParamType, key, e.value, &zero)
	}
	return *v, nil
}

// ParamOr returns the value under key, storing def as an immutable
// parameter first when key is unset.
func ParamOr[T any](p *Params, key string, def T) (T, error) {
	if !p.Has(key) {
		if err := AddParam(p, key, def, false); err != nil {
			return def, err
		}
	}
	return Param[T](p, key)
}

// UpdateParam replaces the value of a mutable parameter. The type must
// match the one it was added with.
func UpdateParam[T any](p *Params, key string, value T) error {
	ptr, err := MutableParam[T](p, key)
	if err != nil {
		return err
	}
	*ptr = value
	return nil
}

// MutableParam returns a pointer to the value of a mutable parameter.
func MutableParam[T any](p *Params, key string) (*T, error) {
	e, err := p.lookup(key)
	if err != nil {
		return nil, err
	}
	if !e.mutable {
		return nil, fmt.Errorf("%w: %q", ErrParamImmutable, key)
	}
	v, ok := e.value.(*T)
	if !ok {
		var zero T
		return nil, fmt.Errorf("%w: %q holds %T, requested %T", ErrParamType, key, e.value, &zero)
	}
	return v, nil
}

// addRaw stores an untyped value decoded from a configuration file. Only
// the types produced by the HCL loader are accepted.
func (p *Params) addRaw(key string, value any, mutable bool) error {
	switch v := value.(type) {
	case int:
		return AddParam(p, key, v, mutable)
	case float64:
		return AddParam(p, key, v, mutable)
	case string:
		return AddParam(p, key, v, mutable)
	case bool:
		return AddParam(p, key, v, mutable)
	case []float64:
		return AddParam(p, key, slices.Clone(v), mutable)
	case []string:
		return AddParam(p, key, slices.Clone(v), mutable)
	default:
		return fmt.Errorf("%w: %q has unsupported type %T", ErrParamType, key, value)
	}
}
