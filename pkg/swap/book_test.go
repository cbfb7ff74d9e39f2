package swap

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func newActiveOrder(seller common.Address) *Order {
	return &Order{
		Seller:        seller,
		AssetForSale:  weth,
		AmountForSale: 10,
		AssetWanted:   usdc,
		AmountWanted:  5000,
		Status:        OrderActive,
	}
}

func TestBookAppendAssignsSequentialIDs(t *testing.T) {
	b := NewBook()

	for want := uint64(1); want <= 3; want++ {
		got := b.Append(newActiveOrder(alice))
		if got != want {
			t.Errorf("id = %d, want %d", got, want)
		}
	}
	if b.LastID() != 3 {
		t.Errorf("lastID = %d, want 3", b.LastID())
	}
}

func TestBookGetRange(t *testing.T) {
	b := NewBook()
	b.Append(newActiveOrder(alice))
	b.Append(newActiveOrder(bob))

	if _, err := b.Get(1); err != nil {
		t.Errorf("get 1: %v", err)
	}
	if _, err := b.Get(2); err != nil {
		t.Errorf("get 2: %v", err)
	}

	// Zero and beyond-last ids are not found
	if _, err := b.Get(0); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("get 0: err = %v, want ErrOrderNotFound", err)
	}
	if _, err := b.Get(3); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("get 3: err = %v, want ErrOrderNotFound", err)
	}
}

func TestBookRestoreKeepsCounter(t *testing.T) {
	b := NewBook()
	b.Restore(&Order{ID: 7, Status: OrderExecuted})
	b.Restore(&Order{ID: 3, Status: OrderActive})

	if b.LastID() != 7 {
		t.Errorf("lastID = %d, want 7", b.LastID())
	}
	// SetLastID never lowers the counter
	b.SetLastID(5)
	if b.LastID() != 7 {
		t.Errorf("lastID after SetLastID(5) = %d, want 7", b.LastID())
	}

	next := b.Append(newActiveOrder(alice))
	if next != 8 {
		t.Errorf("next id = %d, want 8", next)
	}
}

func TestBookActiveEscrow(t *testing.T) {
	b := NewBook()
	b.Append(newActiveOrder(alice)) // 10 WETH
	b.Append(newActiveOrder(bob))   // 10 WETH

	cancelled := newActiveOrder(alice)
	b.Append(cancelled)
	cancelled.Status = OrderCancelled

	other := newActiveOrder(bob)
	other.AssetForSale = usdc
	other.AmountForSale = 999
	b.Append(other)

	if got := b.ActiveEscrow(weth); got != 20 {
		t.Errorf("ActiveEscrow(weth) = %d, want 20", got)
	}
	if got := b.ActiveEscrow(usdc); got != 999 {
		t.Errorf("ActiveEscrow(usdc) = %d, want 999", got)
	}
}

func TestBookListFilterAndCopy(t *testing.T) {
	b := NewBook()
	b.Append(newActiveOrder(alice))
	second := newActiveOrder(bob)
	b.Append(second)
	second.Status = OrderExecuted

	active := b.List(func(o *Order) bool { return o.Active() })
	if len(active) != 1 || active[0].ID != 1 {
		t.Fatalf("active list = %+v, want order 1 only", active)
	}

	// Returned records are copies; mutating them must not leak into the book
	active[0].Status = OrderCancelled
	got, _ := b.Get(1)
	if got.Status != OrderActive {
		t.Errorf("book order mutated via List copy")
	}

	all := b.List(nil)
	if len(all) != 2 || all[0].ID != 1 || all[1].ID != 2 {
		t.Errorf("list order wrong: %+v", all)
	}
}
