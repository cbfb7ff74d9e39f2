package swap

import "github.com/ethereum/go-ethereum/common"

// OrderStatus represents the lifecycle state of an escrow order
type OrderStatus int8

const (
	OrderActive OrderStatus = iota
	OrderCancelled
	OrderExecuted
)

func (s OrderStatus) String() string {
	switch s {
	case OrderActive:
		return "active"
	case OrderCancelled:
		return "cancelled"
	case OrderExecuted:
		return "executed"
	default:
		return "unknown"
	}
}

// Order is a fixed-price escrow offer: while active, AmountForSale of
// AssetForSale is held by the engine, already debited from the seller.
// Orders are never deleted; terminal orders remain queryable.
type Order struct {
	ID            uint64         `json:"id"`
	Seller        common.Address `json:"seller"`
	AssetForSale  Asset          `json:"assetForSale"`
	AmountForSale int64          `json:"amountForSale"`
	AssetWanted   Asset          `json:"assetWanted"`
	AmountWanted  int64          `json:"amountWanted"`
	Status        OrderStatus    `json:"status"`
	CreatedAt     int64          `json:"createdAt"` // Unix milliseconds
	ClosedAt      int64          `json:"closedAt"`  // Unix milliseconds, 0 while active
}

// Active reports whether the order can still be cancelled or executed
func (o *Order) Active() bool { return o.Status == OrderActive }
