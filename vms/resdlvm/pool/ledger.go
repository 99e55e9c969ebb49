// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"github.com/google/btree"
	"github.com/luxfi/ids"
	"github.com/luxfi/math/set"

	"github.com/luxfi/resdl/utils/math"
	"github.com/luxfi/resdl/utils/timer/mockable"
	"github.com/luxfi/resdl/vms/resdlvm/lock"
	"github.com/luxfi/resdl/vms/resdlvm/rewards"
)

const defaultTreeDegree = 2

var _ btree.LessFunc[*unlockingEntry] = (*unlockingEntry).Less

// unlockingEntry indexes a lock whose boost is decaying.
type unlockingEntry struct {
	id    uint64
	owner ids.ShortID
	lock  lock.Lock
}

// Less orders entries by expiry, then by lock id.
func (e *unlockingEntry) Less(than *unlockingEntry) bool {
	if e.lock.Expiry != than.lock.Expiry {
		return e.lock.Expiry < than.lock.Expiry
	}
	return e.id < than.id
}

type balances struct {
	staked      uint64
	activeBoost uint64
	// remote is weight held on behalf of counterpart ledgers.
	remote    uint64
	unlocking set.Set[uint64]
}

func (b *balances) empty() bool {
	return b.staked == 0 && b.activeBoost == 0 && b.remote == 0 && b.unlocking.Len() == 0
}

// Ledger keeps the stored aggregates of the locks held in a registry.
// Decaying boosts are not stored; they are derived from the unlocking index
// when read.
//
// Every mutation reports the pre-mutation effective balance of each affected
// account to the rewards hook before changing anything.
type Ledger struct {
	clock *mockable.Clock
	hook  rewards.Hook

	totalStaked      uint64
	totalActiveBoost uint64
	totalRemote      uint64

	accounts      map[ids.ShortID]*balances
	unlocking     *btree.BTreeG[*unlockingEntry]
	unlockingByID map[uint64]*unlockingEntry
}

func NewLedger(clock *mockable.Clock, hook rewards.Hook) *Ledger {
	if hook == nil {
		hook = rewards.NoOp{}
	}
	return &Ledger{
		clock:         clock,
		hook:          hook,
		accounts:      make(map[ids.ShortID]*balances),
		unlocking:     btree.NewG(defaultTreeDegree, (*unlockingEntry).Less),
		unlockingByID: make(map[uint64]*unlockingEntry),
	}
}

func (l *Ledger) TotalStaked() uint64 {
	return l.totalStaked
}

// TotalEffectiveBalance includes the boosts of unlocking locks decayed to the
// current time.
func (l *Ledger) TotalEffectiveBalance() uint64 {
	now := l.clock.Unix()
	total := l.totalStaked + l.totalActiveBoost + l.totalRemote
	l.unlocking.AscendGreaterOrEqual(&unlockingEntry{lock: lock.Lock{Expiry: now + 1}}, func(e *unlockingEntry) bool {
		total += e.lock.Boost(now)
		return true
	})
	return total
}

// TotalRemote is the weight booked on behalf of counterpart ledgers.
func (l *Ledger) TotalRemote() uint64 {
	return l.totalRemote
}

func (l *Ledger) Staked(account ids.ShortID) uint64 {
	if b, ok := l.accounts[account]; ok {
		return b.staked
	}
	return 0
}

func (l *Ledger) RemoteBalanceOf(account ids.ShortID) uint64 {
	if b, ok := l.accounts[account]; ok {
		return b.remote
	}
	return 0
}

func (l *Ledger) EffectiveBalanceOf(account ids.ShortID) uint64 {
	b, ok := l.accounts[account]
	if !ok {
		return 0
	}
	now := l.clock.Unix()
	balance := b.staked + b.activeBoost + b.remote
	for id := range b.unlocking {
		balance += l.unlockingByID[id].lock.Boost(now)
	}
	return balance
}

// Accounts returns the accounts holding any weight.
func (l *Ledger) Accounts() []ids.ShortID {
	accounts := make([]ids.ShortID, 0, len(l.accounts))
	for account := range l.accounts {
		accounts = append(accounts, account)
	}
	return accounts
}

// Add books a lock newly held by [owner].
func (l *Ledger) Add(owner ids.ShortID, id uint64, added lock.Lock) error {
	return l.replace(owner, id, nil, &added)
}

// Remove unbooks a lock that [owner] no longer holds.
func (l *Ledger) Remove(owner ids.ShortID, id uint64, removed lock.Lock) error {
	return l.replace(owner, id, &removed, nil)
}

// Update replaces the booked state of a lock held by [owner].
func (l *Ledger) Update(owner ids.ShortID, id uint64, before, after lock.Lock) error {
	return l.replace(owner, id, &before, &after)
}

// Move rebooks a lock from [from] to [to]. Both accounts are reported to the
// hook before either balance changes.
func (l *Ledger) Move(from, to ids.ShortID, id uint64, moved lock.Lock) error {
	if from == to {
		return nil
	}

	fromBalances := l.balancesOf(from)
	toBalances := l.balancesOf(to)
	staked, activeBoost := contribution(moved)

	fromStaked, err := math.Sub(fromBalances.staked, staked)
	if err != nil {
		return err
	}
	fromActiveBoost, err := math.Sub(fromBalances.activeBoost, activeBoost)
	if err != nil {
		return err
	}
	toStaked, err := math.Add(toBalances.staked, staked)
	if err != nil {
		return err
	}
	toActiveBoost, err := math.Add(toBalances.activeBoost, activeBoost)
	if err != nil {
		return err
	}

	l.hook.OnBalanceChange(from, l.EffectiveBalanceOf(from))
	l.hook.OnBalanceChange(to, l.EffectiveBalanceOf(to))

	fromBalances.staked, fromBalances.activeBoost = fromStaked, fromActiveBoost
	toBalances.staked, toBalances.activeBoost = toStaked, toActiveBoost
	if e, ok := l.unlockingByID[id]; ok {
		e.owner = to
		fromBalances.unlocking.Remove(id)
		toBalances.unlocking.Add(id)
	}
	l.store(from, fromBalances)
	l.store(to, toBalances)
	return nil
}

// Credit books [amount] of remote weight on [account].
func (l *Ledger) Credit(account ids.ShortID, amount uint64) error {
	b := l.balancesOf(account)
	remote, err := math.Add(b.remote, amount)
	if err != nil {
		return err
	}
	totalRemote, err := math.Add(l.totalRemote, amount)
	if err != nil {
		return err
	}

	l.hook.OnBalanceChange(account, l.EffectiveBalanceOf(account))
	b.remote = remote
	l.totalRemote = totalRemote
	l.store(account, b)
	return nil
}

// Debit unbooks [amount] of remote weight from [account].
func (l *Ledger) Debit(account ids.ShortID, amount uint64) error {
	b := l.balancesOf(account)
	if amount > b.remote {
		return ErrInsufficientBalance
	}

	l.hook.OnBalanceChange(account, l.EffectiveBalanceOf(account))
	b.remote -= amount
	l.totalRemote -= amount
	l.store(account, b)
	return nil
}

func (l *Ledger) replace(owner ids.ShortID, id uint64, before, after *lock.Lock) error {
	b := l.balancesOf(owner)
	var (
		staked           = b.staked
		activeBoost      = b.activeBoost
		totalStaked      = l.totalStaked
		totalActiveBoost = l.totalActiveBoost
		err              error
	)
	if before != nil {
		s, a := contribution(*before)
		if staked, err = math.Sub(staked, s); err != nil {
			return err
		}
		if activeBoost, err = math.Sub(activeBoost, a); err != nil {
			return err
		}
		if totalStaked, err = math.Sub(totalStaked, s); err != nil {
			return err
		}
		if totalActiveBoost, err = math.Sub(totalActiveBoost, a); err != nil {
			return err
		}
	}
	if after != nil {
		s, a := contribution(*after)
		if staked, err = math.Add(staked, s); err != nil {
			return err
		}
		if activeBoost, err = math.Add(activeBoost, a); err != nil {
			return err
		}
		if totalStaked, err = math.Add(totalStaked, s); err != nil {
			return err
		}
		if totalActiveBoost, err = math.Add(totalActiveBoost, a); err != nil {
			return err
		}
	}

	l.hook.OnBalanceChange(owner, l.EffectiveBalanceOf(owner))

	b.staked, b.activeBoost = staked, activeBoost
	l.totalStaked, l.totalActiveBoost = totalStaked, totalActiveBoost
	if e, ok := l.unlockingByID[id]; ok {
		l.unlocking.Delete(e)
		delete(l.unlockingByID, id)
		b.unlocking.Remove(id)
	}
	if after != nil && decays(*after) {
		e := &unlockingEntry{
			id:    id,
			owner: owner,
			lock:  *after,
		}
		l.unlocking.ReplaceOrInsert(e)
		l.unlockingByID[id] = e
		b.unlocking.Add(id)
	}
	l.store(owner, b)
	return nil
}

func (l *Ledger) balancesOf(account ids.ShortID) *balances {
	if b, ok := l.accounts[account]; ok {
		return b
	}
	return &balances{
		unlocking: make(set.Set[uint64]),
	}
}

func (l *Ledger) store(account ids.ShortID, b *balances) {
	if b.empty() {
		delete(l.accounts, account)
		return
	}
	l.accounts[account] = b
}

// contribution returns the stored weight of a lock: its principal and the
// boost it holds while active.
func contribution(l lock.Lock) (uint64, uint64) {
	if l.Expiry != 0 {
		return l.Amount, 0
	}
	return l.Amount, l.BoostAmount
}

func decays(l lock.Lock) bool {
	return l.Duration != 0 && l.Expiry != 0 && l.DecayBoost != 0
}
