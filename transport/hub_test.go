package transport

import (
	"context"
	"testing"

	"github.com/hupe1980/meshdata/boundary"
	"github.com/hupe1980/meshdata/internal/compress"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var key = boundary.ChannelKey{Sender: 1, Receiver: 2, Label: "rho", Offset: [3]int{1, 0, 0}}

func TestHub_RoundTrip(t *testing.T) {
	for _, c := range []compress.Type{compress.None, compress.LZ4, compress.ZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			h := NewHub(Config{Compression: c})
			ctx := context.Background()

			payload := make([]float64, 256)
			for i := range payload {
				payload[i] = float64(i % 4)
			}
			require.NoError(t, h.Setup(ctx, []boundary.Channel{{Key: key, Size: len(payload)}}))

			// Sends may precede the posted receive.
			require.NoError(t, h.Send(ctx, boundary.Message{Key: key, Data: payload}))
			require.NoError(t, h.PostReceive(boundary.PhaseAll, key))

			got, ok, err := h.Poll(key)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, payload, got)

			_, ok, err = h.Poll(key)
			require.NoError(t, err)
			assert.False(t, ok)

			s := h.Stats()
			assert.Equal(t, uint64(1), s.Sent)
			assert.Equal(t, uint64(1), s.Received)
			if c != compress.None {
				assert.Less(t, s.Ratio(), 0.5)
			}
		})
	}
}

func TestHub_NotPosted(t *testing.T) {
	h := NewHub(DefaultConfig())
	_, _, err := h.Poll(key)
	assert.ErrorIs(t, err, boundary.ErrNotPosted)

	require.NoError(t, h.PostReceive(boundary.PhaseAll, key))
	require.NoError(t, h.Clear(boundary.PhaseAll, []boundary.ChannelKey{key}))
	_, _, err = h.Poll(key)
	assert.ErrorIs(t, err, boundary.ErrNotPosted)
}

func TestHub_SizeMismatch(t *testing.T) {
	h := NewHub(DefaultConfig())
	ctx := context.Background()
	require.NoError(t, h.Setup(ctx, []boundary.Channel{{Key: key, Size: 4}}))
	require.NoError(t, h.PostReceive(boundary.PhaseAll, key))
	require.NoError(t, h.Send(ctx, boundary.Message{Key: key, Data: []float64{1, 2}}))

	_, _, err := h.Poll(key)
	assert.ErrorIs(t, err, boundary.ErrMalformedMessage)

	err = h.Setup(ctx, []boundary.Channel{{Key: key, Size: 5}})
	assert.Error(t, err)
}

func TestHub_ClearKeepsQueued(t *testing.T) {
	h := NewHub(Config{MaxQueued: 1})
	ctx := context.Background()
	require.NoError(t, h.Send(ctx, boundary.Message{Key: key, Data: []float64{1}}))
	assert.Error(t, h.Send(ctx, boundary.Message{Key: key, Data: []float64{2}}))

	require.NoError(t, h.Clear(boundary.PhaseAll, []boundary.ChannelKey{key}))
	assert.Equal(t, 1, h.Pending())
}

func TestHub_Close(t *testing.T) {
	h := NewHub(DefaultConfig())
	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Send(context.Background(), boundary.Message{Key: key}), ErrClosed)
	_, _, err := h.Poll(key)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHub_SendBatch(t *testing.T) {
	h := NewHub(Config{Compression: compress.ZSTD})
	ctx := context.Background()

	var msgs []boundary.Message
	for i := 0; i < 8; i++ {
		k := key
		k.Receiver = i
		msgs = append(msgs, boundary.Message{Key: k, Data: []float64{float64(i), float64(i)}})
	}
	require.NoError(t, h.SendBatch(ctx, msgs))
	assert.Equal(t, 8, h.Pending())

	k := key
	k.Receiver = 5
	require.NoError(t, h.PostReceive(boundary.PhaseAll, k))
	got, ok, err := h.Poll(k)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{5, 5}, got)
}
