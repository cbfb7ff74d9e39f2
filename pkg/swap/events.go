package swap

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger-affecting notifications. Every committed transition emits exactly
// one event, stamped with a monotone sequence number, so observers can
// reconstruct state in commit order.

type EventType string

const (
	EvOrderCreated    EventType = "order_created"
	EvOrderCancelled  EventType = "order_cancelled"
	EvOrderExecuted   EventType = "order_executed"
	EvTokensDeposited EventType = "tokens_deposited"
	EvTokensWithdrawn EventType = "tokens_withdrawn"
	EvEmergencySweep  EventType = "emergency_sweep"
)

// Event is the envelope broadcast to subscribers
type Event struct {
	Seq       uint64    `json:"seq"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix milliseconds

	OrderCreated    *OrderCreated    `json:"orderCreated,omitempty"`
	OrderCancelled  *OrderCancelledEvent `json:"orderCancelled,omitempty"`
	OrderExecuted   *OrderExecutedEvent  `json:"orderExecuted,omitempty"`
	TokensDeposited *TokensDeposited `json:"tokensDeposited,omitempty"`
	TokensWithdrawn *TokensWithdrawn `json:"tokensWithdrawn,omitempty"`
	EmergencySweep  *EmergencySweep  `json:"emergencySweep,omitempty"`
}

type OrderCreated struct {
	OrderID       uint64         `json:"orderId"`
	Seller        common.Address `json:"seller"`
	AssetForSale  Asset          `json:"assetForSale"`
	AmountForSale int64          `json:"amountForSale"`
	AssetWanted   Asset          `json:"assetWanted"`
	AmountWanted  int64          `json:"amountWanted"`
}

type OrderCancelledEvent struct {
	OrderID uint64 `json:"orderId"`
}

type OrderExecutedEvent struct {
	OrderID uint64         `json:"orderId"`
	Buyer   common.Address `json:"buyer"`
}

type TokensDeposited struct {
	User   common.Address `json:"user"`
	Asset  Asset          `json:"asset"`
	Amount int64          `json:"amount"`
}

type TokensWithdrawn struct {
	User   common.Address `json:"user"`
	Asset  Asset          `json:"asset"`
	Amount int64          `json:"amount"`
}

type EmergencySweep struct {
	Asset  Asset          `json:"asset"`
	Amount int64          `json:"amount"`
	Owner  common.Address `json:"owner"`
}

// Feed fans committed events out to subscribers. The engine publishes from
// inside its critical section, so per-subscriber delivery order equals
// commit order. Slow subscribers lose events rather than stall the engine.
type Feed struct {
	mu   sync.Mutex
	seq  uint64
	subs []chan Event
}

func NewFeed() *Feed {
	return &Feed{}
}

// Subscribe registers a buffered event channel
func (f *Feed) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan Event, buffer)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	return ch
}

// Publish stamps the event with the next sequence number and delivers it.
// Returns the assigned sequence number.
func (f *Feed) Publish(ev Event) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	ev.Seq = f.seq
	for _, ch := range f.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full, drop for this subscriber
		}
	}
	return ev.Seq
}
