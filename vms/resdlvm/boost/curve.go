// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package boost defines the curves that translate a locking commitment into
// additional reward weight.
package boost

import (
	"errors"
	"fmt"

	"github.com/luxfi/resdl/utils/math"
)

var (
	ErrMaxLockingDurationExceeded = errors.New("max locking duration exceeded")
	ErrMinLockingDurationNotMet   = errors.New("min locking duration not met")
	ErrInvalidCurve               = errors.New("invalid boost curve")

	_ Curve = (*Linear)(nil)
)

// Curve computes the boost granted to [amount] locked for [duration] seconds.
//
// Implementations must be deterministic, return 0 for a zero duration and be
// non-decreasing in duration for a fixed amount.
type Curve interface {
	Boost(amount, duration uint64) (uint64, error)
	MaxLockingDuration() uint64
}

// Linear grants MaxBoost times the amount when locked for MaxLockingDuration
// and scales linearly below that.
type Linear struct {
	MaxBoost    uint64 `json:"maxBoost"`
	MaxDuration uint64 `json:"maxLockingDuration"`
	MinDuration uint64 `json:"minLockingDuration"`
}

// NewLinear returns a verified linear curve.
func NewLinear(maxBoost, minDuration, maxDuration uint64) (*Linear, error) {
	l := &Linear{
		MaxBoost:    maxBoost,
		MaxDuration: maxDuration,
		MinDuration: minDuration,
	}
	return l, l.Verify()
}

func (l *Linear) Verify() error {
	switch {
	case l.MaxDuration == 0:
		return fmt.Errorf("%w: max locking duration is zero", ErrInvalidCurve)
	case l.MinDuration > l.MaxDuration:
		return fmt.Errorf("%w: min locking duration %d exceeds max %d", ErrInvalidCurve, l.MinDuration, l.MaxDuration)
	default:
		return nil
	}
}

func (l *Linear) MaxLockingDuration() uint64 {
	return l.MaxDuration
}

func (l *Linear) Boost(amount, duration uint64) (uint64, error) {
	if duration > l.MaxDuration {
		return 0, ErrMaxLockingDurationExceeded
	}
	if duration != 0 && duration < l.MinDuration {
		return 0, ErrMinLockingDurationNotMet
	}
	if duration == 0 || amount == 0 {
		return 0, nil
	}
	weighted, err := math.Mul(amount, l.MaxBoost)
	if err != nil {
		return 0, err
	}
	return math.MulDiv(weighted, duration, l.MaxDuration)
}
