package compress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	data := bytes.Repeat([]byte("ghost zone "), 1000)

	for _, typ := range []Type{LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			enc, err := Encode(data, typ)
			require.NoError(t, err)
			assert.Less(t, len(enc), len(data)/2)

			dec, err := Decode(enc)
			require.NoError(t, err)
			assert.Equal(t, data, dec)
		})
	}
}

func TestEncode_None(t *testing.T) {
	data := []byte("small payload")
	enc, err := Encode(data, None)
	require.NoError(t, err)
	assert.Len(t, enc, headerSize+len(data))

	dec, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestEncode_Incompressible(t *testing.T) {
	data := []byte{0x01, 0x9f, 0x33, 0x42, 0xee}
	enc, err := Encode(data, LZ4)
	require.NoError(t, err)
	assert.Equal(t, byte(LZ4), enc[0])

	dec, err := Decode(enc)
	require.NoError(t, err)
	assert.Equal(t, data, dec)
}

func TestEncode_Empty(t *testing.T) {
	enc, err := Encode(nil, ZSTD)
	require.NoError(t, err)
	dec, err := Decode(enc)
	require.NoError(t, err)
	assert.Empty(t, dec)
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := Decode([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCorrupt)

	enc, err := Encode(bytes.Repeat([]byte("x"), 512), LZ4)
	require.NoError(t, err)
	_, err = Decode(enc[:len(enc)-1])
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseType(t *testing.T) {
	for in, want := range map[string]Type{"": None, "none": None, "LZ4": LZ4, " zstd ": ZSTD} {
		got, err := ParseType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseType("gzip")
	assert.Error(t, err)
}
