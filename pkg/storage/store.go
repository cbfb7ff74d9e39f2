package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tokenswap/swapd/pkg/swap"
)

// Store is the pebble-backed implementation of swap.Store. Every Commit
// lands as one synced batch, so the durable image always sits exactly on a
// transition boundary — balances, orders, custody, and the id counter move
// together or not at all.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) a pebble database at the given path
func Open(dbPath string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 12,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10,
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", dbPath, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Commit writes one engine transition atomically
func (s *Store) Commit(mut *swap.Mutation) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for key, amount := range mut.Balances {
		if err := batch.Set(balanceKey(key.Owner, key.Asset), encodeAmount(amount), nil); err != nil {
			return fmt.Errorf("stage balance: %w", err)
		}
	}
	for _, order := range mut.Orders {
		data, err := json.Marshal(order)
		if err != nil {
			return fmt.Errorf("marshal order %d: %w", order.ID, err)
		}
		if err := batch.Set(orderKey(order.ID), data, nil); err != nil {
			return fmt.Errorf("stage order %d: %w", order.ID, err)
		}
	}
	for asset, amount := range mut.Custody {
		if err := batch.Set(custodyKey(asset), encodeAmount(amount), nil); err != nil {
			return fmt.Errorf("stage custody: %w", err)
		}
	}
	if mut.LastID != nil {
		if err := batch.Set([]byte(keyLastID), encodeID(*mut.LastID), nil); err != nil {
			return fmt.Errorf("stage last id: %w", err)
		}
	}
	if mut.Owner != nil {
		if err := batch.Set([]byte(keyOwner), mut.Owner.Bytes(), nil); err != nil {
			return fmt.Errorf("stage owner: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Load reads the full engine state back for rehydration
func (s *Store) Load() (*swap.Snapshot, error) {
	snap := &swap.Snapshot{
		Balances: make(map[swap.BalanceKey]int64),
		Custody:  make(map[swap.Asset]int64),
	}

	if err := s.loadBalances(snap); err != nil {
		return nil, err
	}
	if err := s.loadOrders(snap); err != nil {
		return nil, err
	}
	if err := s.loadCustody(snap); err != nil {
		return nil, err
	}

	if data, closer, err := s.db.Get([]byte(keyLastID)); err == nil {
		id, derr := decodeID(data)
		closer.Close()
		if derr != nil {
			return nil, fmt.Errorf("load last id: %w", derr)
		}
		snap.LastID = id
	} else if err != pebble.ErrNotFound {
		return nil, fmt.Errorf("load last id: %w", err)
	}

	if data, closer, err := s.db.Get([]byte(keyOwner)); err == nil {
		owner := common.BytesToAddress(data)
		closer.Close()
		snap.Owner = &owner
	} else if err != pebble.ErrNotFound {
		return nil, fmt.Errorf("load owner: %w", err)
	}

	return snap, nil
}

func (s *Store) loadBalances(snap *swap.Snapshot) error {
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("balance iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		owner, asset, err := balanceKeyParse(iter.Key())
		if err != nil {
			return err
		}
		amount, err := decodeAmount(iter.Value())
		if err != nil {
			return fmt.Errorf("balance %s/%s: %w", owner.Hex(), asset, err)
		}
		if amount != 0 {
			snap.Balances[swap.BalanceKey{Owner: owner, Asset: asset}] = amount
		}
	}
	return iter.Error()
}

func (s *Store) loadOrders(snap *swap.Snapshot) error {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("order iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var order swap.Order
		if err := json.Unmarshal(iter.Value(), &order); err != nil {
			return fmt.Errorf("unmarshal order at %q: %w", iter.Key(), err)
		}
		snap.Orders = append(snap.Orders, &order)
	}
	return iter.Error()
}

func (s *Store) loadCustody(snap *swap.Snapshot) error {
	prefix := []byte(prefixCustody)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("custody iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		asset, err := custodyKeyParse(iter.Key())
		if err != nil {
			return err
		}
		amount, err := decodeAmount(iter.Value())
		if err != nil {
			return fmt.Errorf("custody %s: %w", asset, err)
		}
		if amount != 0 {
			snap.Custody[asset] = amount
		}
	}
	return iter.Error()
}
