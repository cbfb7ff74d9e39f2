package swap

import "github.com/ethereum/go-ethereum/common"

// Store persists engine state. The engine stages every transition into one
// Mutation and expects Commit to land all of it or none of it, so a crash
// can never leave the durable image between two aggregates.

type Store interface {
	// Load rehydrates the full engine state at startup
	Load() (*Snapshot, error)
	// Commit applies one transition atomically
	Commit(mut *Mutation) error
}

// Snapshot is the engine state as read back from storage
type Snapshot struct {
	Balances map[BalanceKey]int64
	Orders   []*Order
	LastID   uint64
	Custody  map[Asset]int64
	Owner    *common.Address // nil when ownership was never transferred
}

// Mutation is the write set of one transition. All values are absolute
// (post-transition), never deltas, so replaying a commit is idempotent.
type Mutation struct {
	Balances map[BalanceKey]int64
	Orders   []*Order
	LastID   *uint64
	Custody  map[Asset]int64
	Owner    *common.Address
}

// NopStore discards writes and loads empty state. Used by tests that only
// exercise in-memory semantics.
type NopStore struct{}

func (NopStore) Load() (*Snapshot, error)   { return &Snapshot{}, nil }
func (NopStore) Commit(mut *Mutation) error { return nil }
