// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package reconcile

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/queue"
)

var (
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrWrongChain        = errors.New("wrong chain")

	_ Message = (*UpdateMessage)(nil)
	_ Message = (*AckMessage)(nil)
	_ Message = (*RelocationMessage)(nil)
)

// Message is the payload of an Envelope.
type Message interface {
	fmt.Stringer
}

// Envelope carries a message between a secondary ledger on ChainID and the
// primary ledger. Every sender picks a new Session when it starts. Sequence
// numbers start at 1 and increase by one per message within a session, so
// redelivered messages can be recognised.
type Envelope struct {
	ChainID  ids.ID  `serialize:"true"`
	Session  uint64  `serialize:"true"`
	Sequence uint64  `serialize:"true"`
	Message  Message `serialize:"true"`
}

// UpdateMessage is sent by a secondary ledger to report a closed batch.
type UpdateMessage struct {
	BatchIndex      uint64   `serialize:"true"`
	NumNewLocks     uint64   `serialize:"true"`
	NetSupplyChange int64    `serialize:"true"`
	PendingLockIDs  []uint64 `serialize:"true"`
}

func newUpdateMessage(update *queue.Update) *UpdateMessage {
	return &UpdateMessage{
		BatchIndex:      update.BatchIndex,
		NumNewLocks:     update.NumNewLocks,
		NetSupplyChange: update.NetSupplyChange,
		PendingLockIDs:  update.PendingLockIDs,
	}
}

func (m *UpdateMessage) String() string {
	return fmt.Sprintf("update(batch=%d, newLocks=%d, supplyChange=%d)", m.BatchIndex, m.NumNewLocks, m.NetSupplyChange)
}

// AckMessage is the primary ledger's answer to an UpdateMessage.
type AckMessage struct {
	BatchIndex   uint64 `serialize:"true"`
	LastMintedID uint64 `serialize:"true"`
}

func (m *AckMessage) String() string {
	return fmt.Sprintf("ack(batch=%d, lastMintedID=%d)", m.BatchIndex, m.LastMintedID)
}

// RelocationMessage moves a lock between ledgers.
type RelocationMessage struct {
	Receiver ids.ShortID `serialize:"true"`
	LockID   uint64      `serialize:"true"`
	Lock     lock.Lock   `serialize:"true"`
}

func (m *RelocationMessage) String() string {
	return fmt.Sprintf("relocation(lock=%d, receiver=%s)", m.LockID, m.Receiver)
}

// Marshal encodes [e] with the current codec version.
func Marshal(e *Envelope) ([]byte, error) {
	return Codec.Marshal(CodecVersion, e)
}

// Parse decodes an envelope.
func Parse(b []byte) (*Envelope, error) {
	e := &Envelope{}
	if _, err := Codec.Unmarshal(b, e); err != nil {
		return nil, err
	}
	if e.Message == nil {
		return nil, fmt.Errorf("%w: empty envelope", ErrUnexpectedMessage)
	}
	return e, nil
}
