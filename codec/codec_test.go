package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByName(t *testing.T) {
	for _, name := range []string{"json", "go-json"} {
		c, ok := ByName(name)
		require.True(t, ok, name)
		assert.Equal(t, name, c.Name())
	}
	_, ok := ByName("gob")
	assert.False(t, ok)
}

func TestCodecsAgree(t *testing.T) {
	m := newBenchManifest(3)

	for _, c := range []Codec{JSON{}, GoJSON{}} {
		t.Run(c.Name(), func(t *testing.T) {
			var got benchManifest
			require.NoError(t, c.Unmarshal(MustMarshal(c, m), &got))
			assert.Equal(t, m, got)
		})
	}

	var cross benchManifest
	require.NoError(t, JSON{}.Unmarshal(MustMarshal(GoJSON{}, m), &cross))
	assert.Equal(t, m, cross)
}

func TestMarshalIndent(t *testing.T) {
	out, err := GoJSON{}.MarshalIndent(map[string]int{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(out))
}

func TestMustMarshal_Panics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(nil, make(chan int)) })
}
