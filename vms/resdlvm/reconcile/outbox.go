// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reconcile

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/luxfi/ids"
)

// outbox numbers outbound messages and holds them until the transport
// accepts them. Messages are numbered within a session that is new for every
// outbox, so a counterpart can tell a restarted sender from a redelivery.
type outbox struct {
	session uint64

	// sendLock serializes flushes so messages leave in push order.
	sendLock sync.Mutex

	lock    sync.Mutex
	seq     uint64
	pending [][]byte
}

func newOutbox() *outbox {
	session := rand.Uint64()
	for session == 0 {
		session = rand.Uint64()
	}
	return &outbox{
		session: session,
	}
}

// push encodes [msg] under the next sequence number and queues it.
func (o *outbox) push(chainID ids.ID, msg Message) error {
	o.lock.Lock()
	defer o.lock.Unlock()

	b, err := Marshal(&Envelope{
		ChainID:  chainID,
		Session:  o.session,
		Sequence: o.seq + 1,
		Message:  msg,
	})
	if err != nil {
		return err
	}
	o.seq++
	o.pending = append(o.pending, b)
	return nil
}

// flush sends the queued messages in order. It stops at the first message
// the transport does not accept and keeps it for the next flush.
func (o *outbox) flush(ctx context.Context, transport Transport) error {
	o.sendLock.Lock()
	defer o.sendLock.Unlock()

	for {
		b, ok := o.next()
		if !ok {
			return nil
		}
		if err := transport.Send(ctx, b); err != nil {
			return err
		}
		o.pop()
	}
}

func (o *outbox) next() ([]byte, bool) {
	o.lock.Lock()
	defer o.lock.Unlock()

	if len(o.pending) == 0 {
		return nil, false
	}
	return o.pending[0], true
}

func (o *outbox) pop() {
	o.lock.Lock()
	defer o.lock.Unlock()

	o.pending[0] = nil
	o.pending = o.pending[1:]
}

func (o *outbox) len() int {
	o.lock.Lock()
	defer o.lock.Unlock()

	return len(o.pending)
}

// inbound tracks the messages applied from one counterpart.
type inbound struct {
	session  uint64
	sequence uint64
}

// applied reports whether [e] was already applied. A message of another
// session comes from a restarted counterpart and was not.
func (in *inbound) applied(e *Envelope) bool {
	return e.Session == in.session && e.Sequence <= in.sequence
}

func (in *inbound) record(e *Envelope) {
	in.session = e.Session
	in.sequence = e.Sequence
}
