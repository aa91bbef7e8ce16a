package packcache

import (
	"strconv"
	"strings"
)

// KeyBuilder assembles a canonical cache key. Every part is length
// prefixed so that no two distinct part sequences produce the same key.
type KeyBuilder struct {
	b strings.Builder
}

// Section starts a named section such as "names" or "ids".
func (k *KeyBuilder) Section(name string) *KeyBuilder {
	k.b.WriteByte('|')
	k.b.WriteString(name)
	k.b.WriteByte(':')
	return k
}

// String appends s.
func (k *KeyBuilder) String(s string) *KeyBuilder {
	k.b.WriteString(strconv.Itoa(len(s)))
	k.b.WriteByte('#')
	k.b.WriteString(s)
	return k
}

// Int appends v.
func (k *KeyBuilder) Int(v int) *KeyBuilder {
	k.b.WriteString(strconv.Itoa(v))
	k.b.WriteByte(',')
	return k
}

// Bool appends v.
func (k *KeyBuilder) Bool(v bool) *KeyBuilder {
	if v {
		k.b.WriteByte('T')
	} else {
		k.b.WriteByte('F')
	}
	return k
}

// Key returns the assembled key.
func (k *KeyBuilder) Key() string {
	return k.b.String()
}
