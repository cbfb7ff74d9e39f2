package swap

import (
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceKey addresses one ledger entry
type BalanceKey struct {
	Owner common.Address
	Asset Asset
}

// Ledger tracks spendable balances per (owner, asset). Pure accounting:
// no I/O, no locking — the engine serializes access and persists changes.
// Balances are int64 base units and can never go negative.
type Ledger struct {
	balances map[BalanceKey]int64
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[BalanceKey]int64)}
}

// BalanceOf returns the spendable balance, 0 for unknown keys
func (l *Ledger) BalanceOf(owner common.Address, asset Asset) int64 {
	return l.balances[BalanceKey{owner, asset}]
}

// Credit increases a balance. Rejects non-positive amounts and int64 overflow.
func (l *Ledger) Credit(owner common.Address, asset Asset, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("credit %d: %w", amount, ErrInvalidAmount)
	}
	key := BalanceKey{owner, asset}
	current := l.balances[key]
	if current > math.MaxInt64-amount {
		return fmt.Errorf("credit %d to balance %d: %w", amount, current, ErrOverflow)
	}
	l.balances[key] = current + amount
	return nil
}

// Debit decreases a balance. Rejects non-positive amounts and underfunding.
func (l *Ledger) Debit(owner common.Address, asset Asset, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("debit %d: %w", amount, ErrInvalidAmount)
	}
	key := BalanceKey{owner, asset}
	current := l.balances[key]
	if current < amount {
		return fmt.Errorf("debit %d from balance %d: %w", amount, current, ErrInsufficientBalance)
	}
	l.balances[key] = current - amount
	return nil
}

// Set installs a balance directly. Used only when rehydrating from storage.
func (l *Ledger) Set(owner common.Address, asset Asset, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("balance %d: %w", amount, ErrInvalidAmount)
	}
	l.balances[BalanceKey{owner, asset}] = amount
	return nil
}

// TotalOf sums all balances of one asset across owners.
// Conservation checks and sweep accounting use this.
func (l *Ledger) TotalOf(asset Asset) int64 {
	var total int64
	for key, amount := range l.balances {
		if key.Asset == asset {
			total += amount
		}
	}
	return total
}

// Entries returns a snapshot copy of all non-zero balances
func (l *Ledger) Entries() map[BalanceKey]int64 {
	out := make(map[BalanceKey]int64, len(l.balances))
	for key, amount := range l.balances {
		if amount != 0 {
			out[key] = amount
		}
	}
	return out
}
