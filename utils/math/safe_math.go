// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"errors"

	"github.com/holiman/uint256"
)

// Unsigned is a constraint that permits any unsigned integer type.
type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

var (
	ErrOverflow     = errors.New("overflow")
	ErrUnderflow    = errors.New("underflow")
	ErrDivideByZero = errors.New("divide by zero")
)

// MaxUint returns the maximum value of an unsigned integer of type T.
func MaxUint[T Unsigned]() T {
	return ^T(0)
}

// Add returns:
// 1) a + b
// 2) If there is overflow, an error
func Add[T Unsigned](a, b T) (T, error) {
	if a > MaxUint[T]()-b {
		return 0, ErrOverflow
	}
	return a + b, nil
}

// Sub returns:
// 1) a - b
// 2) If there is underflow, an error
func Sub[T Unsigned](a, b T) (T, error) {
	if a < b {
		return 0, ErrUnderflow
	}
	return a - b, nil
}

// Mul returns:
// 1) a * b
// 2) If there is overflow, an error
func Mul[T Unsigned](a, b T) (T, error) {
	if b != 0 && a > MaxUint[T]()/b {
		return 0, ErrOverflow
	}
	return a * b, nil
}

// MulDiv returns floor(a * b / d). The product is computed in 256 bits so
// only the final quotient has to fit in a uint64.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, ErrDivideByZero
	}
	product := new(uint256.Int).Mul(uint256.NewInt(a), uint256.NewInt(b))
	quotient := product.Div(product, uint256.NewInt(d))
	if !quotient.IsUint64() {
		return 0, ErrOverflow
	}
	return quotient.Uint64(), nil
}

// AddDelta applies a signed delta to an unsigned value.
func AddDelta(a uint64, delta int64) (uint64, error) {
	if delta >= 0 {
		return Add(a, uint64(delta))
	}
	return Sub(a, uint64(-delta))
}

// Delta returns b - a as a signed value.
func Delta(a, b uint64) (int64, error) {
	if b >= a {
		d := b - a
		if d > 1<<63-1 {
			return 0, ErrOverflow
		}
		return int64(d), nil
	}
	d := a - b
	if d > 1<<63 {
		return 0, ErrUnderflow
	}
	return -int64(d), nil
}

func AbsDiff[T Unsigned](a, b T) T {
	return max(a, b) - min(a, b)
}
