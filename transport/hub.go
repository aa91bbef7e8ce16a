// Package transport provides an in-process implementation of
// boundary.Transport. Blocks of one process share a Hub; each payload is
// serialized and optionally compressed exactly as it would be for the
// wire, so size checks and codecs are exercised end to end.
package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/meshdata/array"
	"github.com/hupe1980/meshdata/boundary"
	"github.com/hupe1980/meshdata/internal/compress"
	"golang.org/x/sync/errgroup"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("transport closed")

// Config configures a Hub.
type Config struct {
	// Compression applied to every payload.
	Compression compress.Type

	// MaxQueued bounds the messages buffered per channel; a sender that
	// would exceed it fails. If 0, unbounded.
	MaxQueued int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{Compression: compress.LZ4}
}

type mailbox struct {
	size   int // expected values; -1 until a receiver registers
	posted bool
	queue  [][]byte
}

// Hub is a set of mailboxes keyed by channel. It is safe for concurrent
// use by the controllers of many blocks.
type Hub struct {
	cfg Config

	mu     sync.Mutex
	boxes  map[boundary.ChannelKey]*mailbox
	closed bool

	sent     atomic.Uint64
	received atomic.Uint64
	rawBytes atomic.Uint64
	wireByte atomic.Uint64
}

// NewHub creates a hub.
func NewHub(cfg Config) *Hub {
	return &Hub{
		cfg:   cfg,
		boxes: make(map[boundary.ChannelKey]*mailbox),
	}
}

var (
	_ boundary.Transport   = (*Hub)(nil)
	_ boundary.BatchSender = (*Hub)(nil)
)

func (h *Hub) box(key boundary.ChannelKey) *mailbox {
	b, ok := h.boxes[key]
	if !ok {
		b = &mailbox{size: -1}
		h.boxes[key] = b
	}
	return b
}

// Setup registers receive channels. Registering a channel again with the
// same size is a no-op.
func (h *Hub) Setup(ctx context.Context, channels []boundary.Channel) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	for _, ch := range channels {
		b := h.box(ch.Key)
		if b.size >= 0 && b.size != ch.Size {
			return fmt.Errorf("channel %s registered with %d values, now %d", ch.Key, b.size, ch.Size)
		}
		b.size = ch.Size
	}
	return nil
}

// PostReceive opens the mailbox of key for polling.
func (h *Hub) PostReceive(_ boundary.Phase, key boundary.ChannelKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.box(key).posted = true
	return nil
}

func (h *Hub) encode(msg boundary.Message) ([]byte, int, error) {
	raw := array.AppendFloat64s(make([]byte, 0, 8*len(msg.Data)), msg.Data)
	wire, err := compress.Encode(raw, h.cfg.Compression)
	if err != nil {
		return nil, 0, fmt.Errorf("encode %s: %w", msg.Key, err)
	}
	return wire, len(raw), nil
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(key boundary.ChannelKey, wire []byte, raw int) error {
	if h.closed {
		return ErrClosed
	}
	b := h.box(key)
	if h.cfg.MaxQueued > 0 && len(b.queue) >= h.cfg.MaxQueued {
		return fmt.Errorf("channel %s: %d messages queued", key, len(b.queue))
	}
	b.queue = append(b.queue, wire)

	h.sent.Add(1)
	h.rawBytes.Add(uint64(raw))
	h.wireByte.Add(uint64(len(wire)))
	return nil
}

// Send encodes msg and queues it. Messages may arrive before the receive
// is posted.
func (h *Hub) Send(ctx context.Context, msg boundary.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wire, raw, err := h.encode(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	return h.enqueue(msg.Key, wire, raw)
}

// SendBatch encodes msgs in parallel and queues them in order. Nothing is
// queued if any encoding fails.
func (h *Hub) SendBatch(ctx context.Context, msgs []boundary.Message) error {
	wires := make([][]byte, len(msgs))
	raws := make([]int, len(msgs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, m := range msgs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			w, n, err := h.encode(m)
			if err != nil {
				return err
			}
			wires[i], raws[i] = w, n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, m := range msgs {
		if err := h.enqueue(m.Key, wires[i], raws[i]); err != nil {
			return err
		}
	}
	return nil
}

// Poll dequeues the oldest message of key.
func (h *Hub) Poll(key boundary.ChannelKey) ([]float64, bool, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, false, ErrClosed
	}
	b, ok := h.boxes[key]
	if !ok || !b.posted {
		h.mu.Unlock()
		return nil, false, fmt.Errorf("%s: %w", key, boundary.ErrNotPosted)
	}
	if len(b.queue) == 0 {
		h.mu.Unlock()
		return nil, false, nil
	}
	wire := b.queue[0]
	b.queue[0] = nil
	b.queue = b.queue[1:]
	size := b.size
	h.mu.Unlock()

	raw, err := compress.Decode(wire)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", boundary.ErrMalformedMessage, key, err)
	}
	data, err := array.Float64sFromBytes(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %w", boundary.ErrMalformedMessage, key, err)
	}
	if size >= 0 && len(data) != size {
		return nil, false, fmt.Errorf("%w: %s carries %d values, want %d", boundary.ErrMalformedMessage, key, len(data), size)
	}
	h.received.Add(1)
	return data, true, nil
}

// Clear closes the mailboxes of keys for polling. Queued messages are kept
// so that early sends for the next exchange are not lost.
func (h *Hub) Clear(_ boundary.Phase, keys []boundary.ChannelKey) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range keys {
		if b, ok := h.boxes[k]; ok {
			b.posted = false
		}
	}
	return nil
}

// Pending returns the number of queued messages across all channels.
func (h *Hub) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, b := range h.boxes {
		n += len(b.queue)
	}
	return n
}

// Close drops every mailbox. Further calls fail with ErrClosed.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.boxes = nil
	return nil
}

// Stats returns traffic counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Sent:      h.sent.Load(),
		Received:  h.received.Load(),
		RawBytes:  h.rawBytes.Load(),
		WireBytes: h.wireByte.Load(),
	}
}

// Stats contains hub traffic counters.
type Stats struct {
	Sent      uint64
	Received  uint64
	RawBytes  uint64
	WireBytes uint64
}

// Ratio returns wire bytes per raw byte (0 when nothing was sent).
func (s Stats) Ratio() float64 {
	if s.RawBytes == 0 {
		return 0
	}
	return float64(s.WireBytes) / float64(s.RawBytes)
}
