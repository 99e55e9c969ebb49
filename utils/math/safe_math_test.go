// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdd(t *testing.T) {
	require := require.New(t)

	sum, err := Add[uint64](math.MaxUint64-1, 1)
	require.NoError(err)
	require.Equal(uint64(math.MaxUint64), sum)

	_, err = Add[uint64](math.MaxUint64, 1)
	require.ErrorIs(err, ErrOverflow)
}

func TestSub(t *testing.T) {
	require := require.New(t)

	diff, err := Sub[uint64](10, 4)
	require.NoError(err)
	require.Equal(uint64(6), diff)

	_, err = Sub[uint64](4, 10)
	require.ErrorIs(err, ErrUnderflow)
}

func TestMulDiv(t *testing.T) {
	tests := []struct {
		name        string
		a, b, d     uint64
		expected    uint64
		expectedErr error
	}{
		{
			name:     "exact",
			a:        100,
			b:        4,
			d:        2,
			expected: 200,
		},
		{
			name:     "rounds down",
			a:        10,
			b:        1,
			d:        3,
			expected: 3,
		},
		{
			name:     "intermediate exceeds 64 bits",
			a:        math.MaxUint64,
			b:        math.MaxUint64,
			d:        math.MaxUint64,
			expected: math.MaxUint64,
		},
		{
			name:        "quotient overflows",
			a:           math.MaxUint64,
			b:           2,
			d:           1,
			expectedErr: ErrOverflow,
		},
		{
			name:        "zero divisor",
			a:           1,
			b:           1,
			d:           0,
			expectedErr: ErrDivideByZero,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			got, err := MulDiv(test.a, test.b, test.d)
			require.ErrorIs(err, test.expectedErr)
			require.Equal(test.expected, got)
		})
	}
}

func TestAddDelta(t *testing.T) {
	require := require.New(t)

	v, err := AddDelta(10, -4)
	require.NoError(err)
	require.Equal(uint64(6), v)

	v, err = AddDelta(10, 5)
	require.NoError(err)
	require.Equal(uint64(15), v)

	_, err = AddDelta(3, -4)
	require.ErrorIs(err, ErrUnderflow)
}

func TestDelta(t *testing.T) {
	require := require.New(t)

	d, err := Delta(10, 4)
	require.NoError(err)
	require.Equal(int64(-6), d)

	d, err = Delta(4, 10)
	require.NoError(err)
	require.Equal(int64(6), d)

	_, err = Delta(0, math.MaxUint64)
	require.ErrorIs(err, ErrOverflow)
}
