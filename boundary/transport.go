package boundary

import (
	"context"
	"fmt"
)

// ChannelKind distinguishes ghost-cell traffic from flux corrections.
type ChannelKind uint8

const (
	// KindCells carries ghost-cell data.
	KindCells ChannelKind = iota
	// KindFlux carries restricted fluxes across a coarse/fine face.
	KindFlux
)

func (k ChannelKind) String() string {
	if k == KindFlux {
		return "flux"
	}
	return "cells"
}

// ChannelKey identifies a one-directional exchange channel.
type ChannelKey struct {
	Sender   int
	Receiver int
	Label    string
	Kind     ChannelKind
	// Offset points from sender to receiver.
	Offset [3]int
}

func (k ChannelKey) String() string {
	return fmt.Sprintf("%d->%d/%s/%s%v", k.Sender, k.Receiver, k.Label, k.Kind, k.Offset)
}

// Channel is a receive channel and the number of values it carries.
type Channel struct {
	Key  ChannelKey
	Size int
}

// Message is one payload sent over a channel.
type Message struct {
	Key  ChannelKey
	Data []float64
}

// Transport moves payloads between blocks.
//
// Send must not block on the receiver. Poll returns (nil, false, nil) while
// the message is still in flight and ErrNotPosted if no receive was posted
// for the key.
type Transport interface {
	Setup(ctx context.Context, channels []Channel) error
	PostReceive(phase Phase, key ChannelKey) error
	Send(ctx context.Context, msg Message) error
	Poll(key ChannelKey) ([]float64, bool, error)
	Clear(phase Phase, keys []ChannelKey) error
}

// BatchSender is implemented by transports that can send many messages in
// one call, for example to encode them in parallel.
type BatchSender interface {
	SendBatch(ctx context.Context, msgs []Message) error
}

func sendAll(ctx context.Context, t Transport, msgs []Message) error {
	if bs, ok := t.(BatchSender); ok {
		return bs.SendBatch(ctx, msgs)
	}
	for _, m := range msgs {
		if err := t.Send(ctx, m); err != nil {
			return fmt.Errorf("send %s: %w", m.Key, err)
		}
	}
	return nil
}
