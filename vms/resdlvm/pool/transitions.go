// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"github.com/luxfi/resdl/utils/math"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
)

// newLock returns a fresh lock of [amount] committed for [duration] at [now].
func (p *Pool) newLock(amount, duration, now uint64) (lock.Lock, error) {
	if amount == 0 {
		return lock.Lock{}, ErrInvalidValue
	}
	return p.commit(amount, duration, now)
}

// stake adds [amount] to [current] with a commitment of [duration].
//
// Keeping the duration of a committed lock keeps its schedule and recomputes
// the boost of an active lock on the new principal. A longer duration starts
// a new commitment. A lock that is withdrawable may be recommitted for any
// duration.
func (p *Pool) stake(current lock.Lock, amount, duration, now uint64) (lock.Lock, error) {
	if amount == 0 {
		return lock.Lock{}, ErrInvalidValue
	}
	total, err := math.Add(current.Amount, amount)
	if err != nil {
		return lock.Lock{}, err
	}

	status := current.Status(now)
	switch {
	case status == lock.Withdrawable || duration > current.Duration:
		return p.commit(total, duration, now)
	case duration < current.Duration:
		return lock.Lock{}, ErrInvalidLockingDuration
	}

	updated := current
	updated.Amount = total
	if status == lock.Active {
		updated.BoostAmount, err = p.curve.Boost(total, duration)
		if err != nil {
			return lock.Lock{}, err
		}
	}
	return updated, nil
}

// extend recommits [current] for the longer [duration] starting at [now].
// An unlocking lock becomes active again.
func (p *Pool) extend(current lock.Lock, duration, now uint64) (lock.Lock, error) {
	if duration <= current.Duration {
		return lock.Lock{}, ErrInvalidLockingDuration
	}
	return p.commit(current.Amount, duration, now)
}

func (p *Pool) commit(amount, duration, now uint64) (lock.Lock, error) {
	boostAmount, err := p.curve.Boost(amount, duration)
	if err != nil {
		return lock.Lock{}, err
	}
	l := lock.Lock{
		Amount:      amount,
		BoostAmount: boostAmount,
		Duration:    duration,
	}
	if duration != 0 {
		l.StartTime = now
	}
	return l, nil
}

// initiateUnlock starts the decay of the boost of [current]. The lock expires
// half of its duration after [now]. Locks without a duration are always
// withdrawable and cannot be unlocked.
func initiateUnlock(current lock.Lock, now uint64) (lock.Lock, error) {
	halfDuration := current.Duration / 2
	switch {
	case current.Duration == 0:
		return lock.Lock{}, ErrNoLockingDuration
	case current.Expiry != 0:
		return lock.Lock{}, ErrUnlockAlreadyInitiated
	case now < current.StartTime+halfDuration:
		return lock.Lock{}, ErrHalfDurationNotElapsed
	}

	updated := current
	updated.Expiry = now + halfDuration
	updated.DecayBoost = current.BoostAmount
	updated.BoostAmount = 0
	return updated, nil
}

// withdraw takes [amount] of principal out of [current].
func withdraw(current lock.Lock, amount, now uint64) (lock.Lock, error) {
	if amount == 0 {
		return lock.Lock{}, ErrInvalidValue
	}
	switch current.Status(now) {
	case lock.Active:
		return lock.Lock{}, ErrUnlockNotInitiated
	case lock.Unlocking:
		return lock.Lock{}, ErrTotalDurationNotElapsed
	}
	if amount > current.Amount {
		return lock.Lock{}, ErrInsufficientBalance
	}

	updated := current
	updated.Amount -= amount
	return updated, nil
}
