// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rewards

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

type testSource struct {
	balances map[ids.ShortID]uint64
}

func (s *testSource) EffectiveBalanceOf(account ids.ShortID) uint64 {
	return s.balances[account]
}

func (s *testSource) TotalEffectiveBalance() uint64 {
	var total uint64
	for _, balance := range s.balances {
		total += balance
	}
	return total
}

func (s *testSource) Accounts() []ids.ShortID {
	accounts := make([]ids.ShortID, 0, len(s.balances))
	for account, balance := range s.balances {
		if balance != 0 {
			accounts = append(accounts, account)
		}
	}
	return accounts
}

// set mimics a ledger: the hook observes the old balance before it changes.
func (s *testSource) set(hook Hook, account ids.ShortID, balance uint64) {
	hook.OnBalanceChange(account, s.balances[account])
	s.balances[account] = balance
}

func TestPoolDistribute(t *testing.T) {
	require := require.New(t)

	source := &testSource{balances: make(map[ids.ShortID]uint64)}
	pool := NewPool()
	pool.SetSource(source)

	require.ErrorIs(pool.Distribute(100), ErrNoEffectiveBalance)

	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	source.set(pool, alice, 300)
	source.set(pool, bob, 100)

	require.NoError(pool.Distribute(400))
	require.Equal(uint64(300), pool.Withdrawable(alice))
	require.Equal(uint64(100), pool.Withdrawable(bob))
	require.Equal(uint64(400), pool.Distributed())
}

func TestPoolBalanceChangeSettlesAtOldBalance(t *testing.T) {
	require := require.New(t)

	source := &testSource{balances: make(map[ids.ShortID]uint64)}
	pool := NewPool()
	pool.SetSource(source)

	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	source.set(pool, alice, 100)

	require.NoError(pool.Distribute(100))

	// move the whole balance to bob, alice keeps what accrued so far
	source.set(pool, alice, 0)
	source.set(pool, bob, 100)
	require.Equal(uint64(100), pool.Withdrawable(alice))
	require.Zero(pool.Withdrawable(bob))

	require.NoError(pool.Distribute(50))
	require.Equal(uint64(100), pool.Withdrawable(alice))
	require.Equal(uint64(50), pool.Withdrawable(bob))

	require.Equal(uint64(100), pool.Claim(alice))
	require.Zero(pool.Withdrawable(alice))
}

func TestPoolDistributeSettlesDecayingBalance(t *testing.T) {
	require := require.New(t)

	source := &testSource{balances: make(map[ids.ShortID]uint64)}
	pool := NewPool()
	pool.SetSource(source)

	alice := ids.GenerateTestShortID()
	bob := ids.GenerateTestShortID()
	source.set(pool, alice, 100)

	require.NoError(pool.Distribute(100))

	// an unlocking balance decays without notifying the hook
	source.balances[alice] = 50
	source.set(pool, bob, 50)
	require.Equal(uint64(100), pool.Withdrawable(alice))

	require.NoError(pool.Distribute(100))
	require.Equal(uint64(150), pool.Withdrawable(alice))
	require.Equal(uint64(50), pool.Withdrawable(bob))

	require.Equal(uint64(150), pool.Claim(alice))
	require.Zero(pool.Withdrawable(alice))
}

func TestPoolWithoutSource(t *testing.T) {
	require := require.New(t)

	pool := NewPool()
	require.ErrorIs(pool.Distribute(1), ErrNoBalanceSource)
	require.Zero(pool.Withdrawable(ids.GenerateTestShortID()))
}
