// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reconcile

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrTransportClosed = errors.New("transport closed")

	_ Transport = (*ChannelTransport)(nil)
)

//go:generate go run go.uber.org/mock/mockgen -package=${GOPACKAGE}mock -destination=${GOPACKAGE}mock/transport.go -mock_names=Transport=Transport . Transport

// Transport is an ordered, at least once message channel to a counterpart
// ledger.
type Transport interface {
	// Send blocks until [msg] is accepted for delivery or [ctx] is done.
	Send(ctx context.Context, msg []byte) error
	// Receive blocks until a message arrives or [ctx] is done.
	Receive(ctx context.Context) ([]byte, error)
}

// ChannelTransport is one end of an in-memory transport.
type ChannelTransport struct {
	out    chan<- []byte
	in     <-chan []byte
	closed chan struct{}
	once   *sync.Once
}

// NewChannelPair returns the two connected ends of an in-memory transport
// buffering up to [size] messages in each direction.
func NewChannelPair(size int) (*ChannelTransport, *ChannelTransport) {
	var (
		aToB   = make(chan []byte, size)
		bToA   = make(chan []byte, size)
		closed = make(chan struct{})
		once   = &sync.Once{}
	)
	a := &ChannelTransport{
		out:    aToB,
		in:     bToA,
		closed: closed,
		once:   once,
	}
	b := &ChannelTransport{
		out:    bToA,
		in:     aToB,
		closed: closed,
		once:   once,
	}
	return a, b
}

func (t *ChannelTransport) Send(ctx context.Context, msg []byte) error {
	select {
	case <-t.closed:
		return ErrTransportClosed
	default:
	}

	select {
	case t.out <- msg:
		return nil
	case <-t.closed:
		return ErrTransportClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns buffered messages before reporting a closed transport.
func (t *ChannelTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-t.in:
		return msg, nil
	default:
	}

	select {
	case msg := <-t.in:
		return msg, nil
	case <-t.closed:
		return nil, ErrTransportClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes both ends of the transport.
func (t *ChannelTransport) Close() {
	t.once.Do(func() {
		close(t.closed)
	})
}
