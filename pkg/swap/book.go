package swap

import "fmt"

// Book is the order registry: ids are assigned once, strictly increasing,
// and records are kept forever for historical queries. Pure accounting —
// the engine serializes access and persists changes.
type Book struct {
	orders map[uint64]*Order
	lastID uint64
}

func NewBook() *Book {
	return &Book{orders: make(map[uint64]*Order)}
}

// LastID returns the most recently assigned order id (0 if none)
func (b *Book) LastID() uint64 { return b.lastID }

// Append assigns the next id to the order and registers it
func (b *Book) Append(o *Order) uint64 {
	b.lastID++
	o.ID = b.lastID
	b.orders[o.ID] = o
	return o.ID
}

// Get returns the order with the given id.
// Ids outside [1, lastID] fail ErrOrderNotFound.
func (b *Book) Get(id uint64) (*Order, error) {
	if id == 0 || id > b.lastID {
		return nil, fmt.Errorf("order %d: %w", id, ErrOrderNotFound)
	}
	o, ok := b.orders[id]
	if !ok {
		// lastID says it was assigned; a missing record means corrupted state
		return nil, fmt.Errorf("order %d missing from registry: %w", id, ErrOrderNotFound)
	}
	return o, nil
}

// Restore installs an order record as-is. Used only when rehydrating from storage.
func (b *Book) Restore(o *Order) {
	b.orders[o.ID] = o
	if o.ID > b.lastID {
		b.lastID = o.ID
	}
}

// SetLastID forces the id counter. Used only when rehydrating from storage;
// never lowers the counter below an id already seen.
func (b *Book) SetLastID(id uint64) {
	if id > b.lastID {
		b.lastID = id
	}
}

// ActiveEscrow sums AmountForSale of the given asset over active orders.
// This is the escrowed value excluded from spendable ledger balances.
func (b *Book) ActiveEscrow(asset Asset) int64 {
	var total int64
	for _, o := range b.orders {
		if o.Active() && o.AssetForSale == asset {
			total += o.AmountForSale
		}
	}
	return total
}

// List returns a snapshot of orders matching the filter, ascending by id.
// A nil filter selects everything.
func (b *Book) List(filter func(*Order) bool) []*Order {
	out := make([]*Order, 0, len(b.orders))
	for id := uint64(1); id <= b.lastID; id++ {
		o, ok := b.orders[id]
		if !ok {
			continue
		}
		if filter == nil || filter(o) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out
}
