// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rewards defines the hook a ledger calls before effective balances
// change, and a reward-per-token pool that consumes it.
package rewards

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

var (
	ErrNoEffectiveBalance = errors.New("no effective balance to distribute to")
	ErrNoBalanceSource    = errors.New("no balance source")

	_ Hook = (*Pool)(nil)
	_ Hook = NoOp{}

	// precision of the reward per token accumulator
	precision = uint256.NewInt(1_000_000_000_000_000_000)
)

// Hook is notified before the effective balance of [account] changes from
// [oldEffectiveBalance]. Implementations must not call back into the ledger
// mutating entry points.
type Hook interface {
	OnBalanceChange(account ids.ShortID, oldEffectiveBalance uint64)
}

// NoOp ignores balance changes.
type NoOp struct{}

func (NoOp) OnBalanceChange(ids.ShortID, uint64) {}

// BalanceSource is the ledger view the pool distributes against.
type BalanceSource interface {
	EffectiveBalanceOf(account ids.ShortID) uint64
	TotalEffectiveBalance() uint64
	// Accounts returns every account holding an effective balance.
	Accounts() []ids.ShortID
}

// Pool distributes rewards pro rata to effective balances. Each account
// keeps a checkpoint of the accumulator so accrual before a balance change is
// settled at the old balance.
type Pool struct {
	mu sync.Mutex

	source         BalanceSource
	rewardPerToken *uint256.Int
	paid           map[ids.ShortID]*uint256.Int
	owed           map[ids.ShortID]uint64
	distributed    uint64
	claimed        uint64
}

func NewPool() *Pool {
	return &Pool{
		rewardPerToken: new(uint256.Int),
		paid:           make(map[ids.ShortID]*uint256.Int),
		owed:           make(map[ids.ShortID]uint64),
	}
}

// SetSource attaches the ledger the pool reads balances from.
func (p *Pool) SetSource(source BalanceSource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.source = source
}

// Distribute adds [amount] of rewards across the current total effective
// balance. Every account is settled at its balance at distribution time, so a
// balance that later decays without a balance change keeps what it earned.
func (p *Pool) Distribute(amount uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.source == nil {
		return ErrNoBalanceSource
	}
	total := p.source.TotalEffectiveBalance()
	if total == 0 {
		return ErrNoEffectiveBalance
	}
	increment := new(uint256.Int).Mul(uint256.NewInt(amount), precision)
	increment.Div(increment, uint256.NewInt(total))
	p.rewardPerToken.Add(p.rewardPerToken, increment)
	for _, account := range p.source.Accounts() {
		p.owed[account] = p.earned(account, p.source.EffectiveBalanceOf(account))
		p.paid[account] = p.rewardPerToken.Clone()
	}
	p.distributed += amount
	return nil
}

func (p *Pool) OnBalanceChange(account ids.ShortID, oldEffectiveBalance uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.owed[account] = p.earned(account, oldEffectiveBalance)
	p.paid[account] = p.rewardPerToken.Clone()
}

// Withdrawable returns the rewards [account] could claim now.
func (p *Pool) Withdrawable(account ids.ShortID) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.earned(account, p.balanceOf(account))
}

// Claim settles and returns the rewards owed to [account].
func (p *Pool) Claim(account ids.ShortID) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	amount := p.earned(account, p.balanceOf(account))
	delete(p.owed, account)
	p.paid[account] = p.rewardPerToken.Clone()
	p.claimed += amount
	return amount
}

// Distributed returns the total rewards ever distributed.
func (p *Pool) Distributed() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.distributed
}

func (p *Pool) balanceOf(account ids.ShortID) uint64 {
	if p.source == nil {
		return 0
	}
	return p.source.EffectiveBalanceOf(account)
}

func (p *Pool) earned(account ids.ShortID, balance uint64) uint64 {
	paid, ok := p.paid[account]
	if !ok {
		paid = new(uint256.Int)
	}
	accrued := new(uint256.Int).Sub(p.rewardPerToken, paid)
	accrued.Mul(accrued, uint256.NewInt(balance))
	accrued.Div(accrued, precision)
	return p.owed[account] + accrued.Uint64()
}
