// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package lock defines reSDL lock records and the time dependent view of
// their weight.
package lock

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	"github.com/luxfi/resdl/utils/math"
)

var ErrInvalidLock = errors.New("invalid lock")

// Status is the unlock state of a lock at a point in time.
type Status uint8

const (
	// Active locks carry their full boost.
	Active Status = iota
	// Unlocking locks have a boost that decays linearly until expiry.
	Unlocking
	// Withdrawable locks carry no boost and their principal may be withdrawn.
	Withdrawable
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Unlocking:
		return "unlocking"
	case Withdrawable:
		return "withdrawable"
	default:
		return "unknown"
	}
}

// Lock is a time committed stake position. Times are unix seconds.
//
// Invariant: Expiry == 0 || Expiry >= StartTime + Duration/2
// Invariant: BoostAmount == 0 if Duration == 0 || Expiry != 0
type Lock struct {
	Amount      uint64 `serialize:"true" json:"amount"`
	BoostAmount uint64 `serialize:"true" json:"boostAmount"`
	StartTime   uint64 `serialize:"true" json:"startTime"`
	Duration    uint64 `serialize:"true" json:"duration"`
	Expiry      uint64 `serialize:"true" json:"expiry"`

	// DecayBoost is the boost held when the unlock was initiated. It is only
	// read while the lock is unlocking.
	DecayBoost uint64 `serialize:"true" json:"decayBoost"`
}

// Verify checks the structural invariants of the lock.
func (l Lock) Verify() error {
	switch {
	case l.Duration == 0 && l.BoostAmount != 0:
		return fmt.Errorf("%w: boost %d without a locking duration", ErrInvalidLock, l.BoostAmount)
	case l.Expiry != 0 && l.BoostAmount != 0:
		return fmt.Errorf("%w: boost %d while unlocking", ErrInvalidLock, l.BoostAmount)
	case l.Expiry != 0 && l.Expiry < l.StartTime+l.Duration/2:
		return fmt.Errorf("%w: expiry %d before half duration", ErrInvalidLock, l.Expiry)
	default:
		return nil
	}
}

// Status returns the unlock state of the lock at [now].
func (l Lock) Status(now uint64) Status {
	switch {
	case l.Duration == 0:
		return Withdrawable
	case l.Expiry == 0:
		return Active
	case now < l.Expiry:
		return Unlocking
	default:
		return Withdrawable
	}
}

// Boost returns the boost the lock contributes at [now].
func (l Lock) Boost(now uint64) uint64 {
	switch l.Status(now) {
	case Active:
		return l.BoostAmount
	case Unlocking:
		return l.decayedBoost(now)
	default:
		return 0
	}
}

// EffectiveBalance returns amount plus the boost applicable at [now].
func (l Lock) EffectiveBalance(now uint64) uint64 {
	return l.Amount + l.Boost(now)
}

// CommittedBalance is the weight recorded for the lock independent of time:
// the principal plus the boost it reports.
func (l Lock) CommittedBalance() uint64 {
	return l.Amount + l.BoostAmount
}

// decayedBoost scales DecayBoost by (Expiry - now) over the decay window
// (Expiry - StartTime - Duration/2).
func (l Lock) decayedBoost(now uint64) uint64 {
	halfDuration := l.Duration / 2
	if l.Expiry <= l.StartTime+halfDuration {
		return 0
	}
	window := l.Expiry - l.StartTime - halfDuration
	remaining := min(l.Expiry-now, window)
	boost, err := math.MulDiv(l.DecayBoost, remaining, window)
	if err != nil {
		// remaining <= window so the quotient never exceeds DecayBoost.
		return l.DecayBoost
	}
	return boost
}

// Owned pairs a lock with its id and owner.
type Owned struct {
	ID    uint64      `serialize:"true" json:"id"`
	Owner ids.ShortID `serialize:"true" json:"owner"`
	Lock  Lock        `serialize:"true" json:"lock"`
}

// QueuedNewLock is a lock requested on a secondary ledger that has not yet
// been assigned a permanent id.
type QueuedNewLock struct {
	Owner ids.ShortID `serialize:"true" json:"owner"`
	Lock  Lock        `serialize:"true" json:"lock"`
}

// QueuedLockUpdate is a full replacement snapshot of a lock waiting for the
// batch it was queued in to be acknowledged.
type QueuedLockUpdate struct {
	LockID           uint64 `serialize:"true" json:"lockId"`
	UpdateBatchIndex uint64 `serialize:"true" json:"updateBatchIndex"`
	Lock             Lock   `serialize:"true" json:"lock"`
}
