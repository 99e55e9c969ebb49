// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package lock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/resdl/utils/units"
)

const t0 = uint64(1_700_000_000)

func TestStatus(t *testing.T) {
	tests := []struct {
		name     string
		lock     Lock
		now      uint64
		expected Status
	}{
		{
			name:     "no duration is always withdrawable",
			lock:     Lock{Amount: 100},
			now:      t0,
			expected: Withdrawable,
		},
		{
			name:     "locked",
			lock:     Lock{Amount: 100, BoostAmount: 100, StartTime: t0, Duration: units.Year},
			now:      t0 + 2*units.Year,
			expected: Active,
		},
		{
			name:     "unlocking",
			lock:     Lock{Amount: 100, StartTime: t0, Duration: units.Year, Expiry: t0 + units.Year},
			now:      t0 + units.Year - 1,
			expected: Unlocking,
		},
		{
			name:     "expired",
			lock:     Lock{Amount: 100, StartTime: t0, Duration: units.Year, Expiry: t0 + units.Year},
			now:      t0 + units.Year,
			expected: Withdrawable,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.expected, test.lock.Status(test.now))
		})
	}
}

func TestEffectiveBalanceDecay(t *testing.T) {
	require := require.New(t)

	const (
		amount = 100 * units.SDL
		boost  = 100 * units.SDL
	)
	initiated := t0 + 200*units.Day
	l := Lock{
		Amount:     amount,
		StartTime:  t0,
		Duration:   units.Year,
		Expiry:     initiated + units.Year/2,
		DecayBoost: boost,
	}
	require.NoError(l.Verify())
	require.Equal(initiated+182*units.Day+12*units.Hour, l.Expiry)

	require.Equal(amount, l.EffectiveBalance(l.Expiry))
	require.Equal(amount, l.EffectiveBalance(l.Expiry+units.Day))

	previous := amount + boost
	for now := initiated; now < l.Expiry; now += units.Day {
		balance := l.EffectiveBalance(now)
		require.Greater(balance, amount)
		require.Less(balance, amount+boost)
		require.LessOrEqual(balance, previous)
		previous = balance
	}
}

func TestEffectiveBalanceActive(t *testing.T) {
	require := require.New(t)

	l := Lock{Amount: 100, BoostAmount: 50, StartTime: t0, Duration: units.Year}
	require.Equal(uint64(150), l.EffectiveBalance(t0+5*units.Year))
	require.Equal(uint64(150), l.CommittedBalance())

	unlocked := Lock{Amount: 100}
	require.Equal(uint64(100), unlocked.EffectiveBalance(t0))
}

func TestVerify(t *testing.T) {
	require := require.New(t)

	require.ErrorIs(Lock{Amount: 1, BoostAmount: 1}.Verify(), ErrInvalidLock)
	require.ErrorIs(Lock{Amount: 1, BoostAmount: 1, Duration: 10, Expiry: 20}.Verify(), ErrInvalidLock)
	require.ErrorIs(Lock{Amount: 1, StartTime: 100, Duration: 10, Expiry: 101}.Verify(), ErrInvalidLock)
	require.NoError(Lock{Amount: 1, StartTime: 100, Duration: 10, Expiry: 105}.Verify())
}

func TestStatusString(t *testing.T) {
	require := require.New(t)

	require.Equal("active", Active.String())
	require.Equal("unlocking", Unlocking.String())
	require.Equal("withdrawable", Withdrawable.String())
	require.Equal("unknown", Status(9).String())
}
