package swap

import (
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/tokenswap/swapd/pkg/util"
)

// Engine is the only writer of the ledger and the order book. One mutex
// covers every transition, so each operation is observed either fully
// applied or not started. Transitions are staged, committed to storage,
// and only then applied in memory — a storage failure leaves no trace.
//
// Gateway calls (deposit, withdraw, sweep) run outside the critical
// section; cancel and execute never touch the gateway at all.
type Engine struct {
	mu      sync.Mutex
	ledger  *Ledger
	book    *Book
	custody map[Asset]int64 // per-asset vault holding: net deposits - withdrawals - sweeps
	owner   common.Address

	store   Store
	gateway Gateway
	feed    *Feed
	clock   util.Clock
	log     *zap.SugaredLogger
}

// NewEngine rehydrates state from the store and wires collaborators.
// owner is the only identity allowed to sweep; it may be overridden by a
// persisted ownership transfer.
func NewEngine(store Store, gateway Gateway, owner common.Address, feed *Feed, logger *zap.SugaredLogger) (*Engine, error) {
	if store == nil {
		store = NopStore{}
	}
	if feed == nil {
		feed = NewFeed()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	snap, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load engine state: %w", err)
	}

	e := &Engine{
		ledger:  NewLedger(),
		book:    NewBook(),
		custody: make(map[Asset]int64),
		owner:   owner,
		store:   store,
		gateway: gateway,
		feed:    feed,
		clock:   util.RealClock{},
		log:     logger,
	}

	for key, amount := range snap.Balances {
		if err := e.ledger.Set(key.Owner, key.Asset, amount); err != nil {
			return nil, fmt.Errorf("restore balance %s/%s: %w", key.Owner.Hex(), key.Asset, err)
		}
	}
	for _, o := range snap.Orders {
		e.book.Restore(o)
	}
	e.book.SetLastID(snap.LastID)
	for asset, amount := range snap.Custody {
		e.custody[asset] = amount
	}
	if snap.Owner != nil {
		e.owner = *snap.Owner
	}

	logger.Infow("engine_ready",
		"orders", snap.LastID,
		"balances", len(snap.Balances),
		"owner", e.owner.Hex())
	return e, nil
}

// SetClock replaces the wall clock. Test hook.
func (e *Engine) SetClock(c util.Clock) { e.clock = c }

// Feed exposes the event feed for delivery adapters
func (e *Engine) Feed() *Feed { return e.feed }

// Owner returns the current sweep authority
func (e *Engine) Owner() common.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.owner
}

// ==============================
// Order operations
// ==============================

// CreateOrder escrows amountForSale of assetForSale from the seller and
// registers an active order at a fixed price. Preconditions run in spec
// order; the first failure wins and nothing mutates.
func (e *Engine) CreateOrder(seller common.Address, assetForSale Asset, amountForSale int64, assetWanted Asset, amountWanted int64) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seller == (common.Address{}) {
		return 0, fmt.Errorf("seller: %w", ErrInvalidIdentity)
	}
	if !assetForSale.Valid() || !assetWanted.Valid() {
		return 0, fmt.Errorf("create order: %w", ErrInvalidAsset)
	}
	if assetForSale == assetWanted {
		return 0, fmt.Errorf("create order %s/%s: %w", assetForSale, assetWanted, ErrSelfSwapNotAllowed)
	}
	if amountForSale <= 0 || amountWanted <= 0 {
		return 0, fmt.Errorf("create order: %w", ErrInvalidAmount)
	}
	sellerBal := e.ledger.BalanceOf(seller, assetForSale)
	if sellerBal < amountForSale {
		return 0, fmt.Errorf("escrow %d, balance %d: %w", amountForSale, sellerBal, ErrInsufficientBalance)
	}

	order := &Order{
		ID:            e.book.LastID() + 1,
		Seller:        seller,
		AssetForSale:  assetForSale,
		AmountForSale: amountForSale,
		AssetWanted:   assetWanted,
		AmountWanted:  amountWanted,
		Status:        OrderActive,
		CreatedAt:     e.clock.Now().UnixMilli(),
	}
	lastID := order.ID

	mut := &Mutation{
		Balances: map[BalanceKey]int64{
			{seller, assetForSale}: sellerBal - amountForSale,
		},
		Orders: []*Order{order},
		LastID: &lastID,
	}
	if err := e.store.Commit(mut); err != nil {
		return 0, fmt.Errorf("persist create order: %w", err)
	}

	// Commit landed; memory application cannot fail
	_ = e.ledger.Debit(seller, assetForSale, amountForSale)
	e.book.Append(order)

	e.publish(Event{Type: EvOrderCreated, OrderCreated: &OrderCreated{
		OrderID:       order.ID,
		Seller:        seller,
		AssetForSale:  assetForSale,
		AmountForSale: amountForSale,
		AssetWanted:   assetWanted,
		AmountWanted:  amountWanted,
	}})
	e.log.Infow("order_created",
		"order_id", order.ID,
		"seller", seller.Hex(),
		"sell", fmt.Sprintf("%d %s", amountForSale, assetForSale),
		"want", fmt.Sprintf("%d %s", amountWanted, assetWanted))
	return order.ID, nil
}

// CancelOrder deactivates a seller's own active order and returns the escrow
func (e *Engine) CancelOrder(caller common.Address, orderID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.book.Get(orderID)
	if err != nil {
		return err
	}
	if !order.Active() {
		return fmt.Errorf("cancel order %d (%s): %w", orderID, order.Status, ErrOrderInactive)
	}
	if caller != order.Seller {
		return fmt.Errorf("cancel order %d by %s: %w", orderID, caller.Hex(), ErrUnauthorized)
	}

	sellerBal := e.ledger.BalanceOf(order.Seller, order.AssetForSale)
	if sellerBal > math.MaxInt64-order.AmountForSale {
		return fmt.Errorf("return escrow %d: %w", order.AmountForSale, ErrOverflow)
	}

	closed := *order
	closed.Status = OrderCancelled
	closed.ClosedAt = e.clock.Now().UnixMilli()

	mut := &Mutation{
		Balances: map[BalanceKey]int64{
			{order.Seller, order.AssetForSale}: sellerBal + order.AmountForSale,
		},
		Orders: []*Order{&closed},
	}
	if err := e.store.Commit(mut); err != nil {
		return fmt.Errorf("persist cancel order: %w", err)
	}

	*order = closed
	_ = e.ledger.Credit(order.Seller, order.AssetForSale, order.AmountForSale)

	e.publish(Event{Type: EvOrderCancelled, OrderCancelled: &OrderCancelledEvent{OrderID: orderID}})
	e.log.Infow("order_cancelled", "order_id", orderID, "seller", order.Seller.Hex())
	return nil
}

// ExecuteOrder settles an active order against the caller at the fixed
// price: the caller pays AmountWanted of AssetWanted and receives the
// escrowed AmountForSale of AssetForSale. Settlement is ledger-internal;
// no custody moves.
func (e *Engine) ExecuteOrder(caller common.Address, orderID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.book.Get(orderID)
	if err != nil {
		return err
	}
	if !order.Active() {
		return fmt.Errorf("execute order %d (%s): %w", orderID, order.Status, ErrOrderInactive)
	}
	if caller == order.Seller {
		return fmt.Errorf("execute own order %d: %w", orderID, ErrUnauthorized)
	}
	buyerBal := e.ledger.BalanceOf(caller, order.AssetWanted)
	if buyerBal < order.AmountWanted {
		return fmt.Errorf("pay %d, balance %d: %w", order.AmountWanted, buyerBal, ErrInsufficientBalance)
	}

	// Three-way mutation staged up front so overflow rejects before anything moves.
	// Keys never collide: the order's two assets differ and caller != seller.
	buyerRecv := e.ledger.BalanceOf(caller, order.AssetForSale)
	if buyerRecv > math.MaxInt64-order.AmountForSale {
		return fmt.Errorf("deliver %d to buyer: %w", order.AmountForSale, ErrOverflow)
	}
	sellerRecv := e.ledger.BalanceOf(order.Seller, order.AssetWanted)
	if sellerRecv > math.MaxInt64-order.AmountWanted {
		return fmt.Errorf("pay %d to seller: %w", order.AmountWanted, ErrOverflow)
	}

	closed := *order
	closed.Status = OrderExecuted
	closed.ClosedAt = e.clock.Now().UnixMilli()

	mut := &Mutation{
		Balances: map[BalanceKey]int64{
			{caller, order.AssetWanted}:       buyerBal - order.AmountWanted,
			{caller, order.AssetForSale}:      buyerRecv + order.AmountForSale,
			{order.Seller, order.AssetWanted}: sellerRecv + order.AmountWanted,
		},
		Orders: []*Order{&closed},
	}
	if err := e.store.Commit(mut); err != nil {
		return fmt.Errorf("persist execute order: %w", err)
	}

	*order = closed
	_ = e.ledger.Debit(caller, order.AssetWanted, order.AmountWanted)
	_ = e.ledger.Credit(caller, order.AssetForSale, order.AmountForSale)
	_ = e.ledger.Credit(order.Seller, order.AssetWanted, order.AmountWanted)

	e.publish(Event{Type: EvOrderExecuted, OrderExecuted: &OrderExecutedEvent{OrderID: orderID, Buyer: caller}})
	e.log.Infow("order_executed", "order_id", orderID, "buyer", caller.Hex(), "seller", order.Seller.Hex())
	return nil
}

// ==============================
// Custody boundary
// ==============================

// Deposit pulls custody in through the gateway, then credits the ledger.
// The gateway runs before any state is touched: if it fails nothing happened,
// and if the credit is impossible the custody is pushed back out.
func (e *Engine) Deposit(user common.Address, asset Asset, amount int64) error {
	if user == (common.Address{}) {
		return fmt.Errorf("deposit: %w", ErrInvalidIdentity)
	}
	if !asset.Valid() {
		return fmt.Errorf("deposit: %w", ErrInvalidAsset)
	}
	if amount <= 0 {
		return fmt.Errorf("deposit %d: %w", amount, ErrInvalidAmount)
	}

	if err := e.gateway.TransferIn(user, asset, amount); err != nil {
		return fmt.Errorf("transfer in %d %s for %s: %w: %v", amount, asset, user.Hex(), ErrGatewayFailure, err)
	}

	e.mu.Lock()
	balance := e.ledger.BalanceOf(user, asset)
	held := e.custody[asset]
	if balance > math.MaxInt64-amount || held > math.MaxInt64-amount {
		e.mu.Unlock()
		// Custody already moved in; push it back before rejecting
		if rbErr := e.gateway.TransferOut(user, asset, amount); rbErr != nil {
			e.log.Errorw("deposit_refund_failed", "user", user.Hex(), "asset", asset, "amount", amount, "err", rbErr)
		}
		return fmt.Errorf("deposit %d %s: %w", amount, asset, ErrOverflow)
	}

	mut := &Mutation{
		Balances: map[BalanceKey]int64{{user, asset}: balance + amount},
		Custody:  map[Asset]int64{asset: held + amount},
	}
	if err := e.store.Commit(mut); err != nil {
		e.mu.Unlock()
		if rbErr := e.gateway.TransferOut(user, asset, amount); rbErr != nil {
			e.log.Errorw("deposit_refund_failed", "user", user.Hex(), "asset", asset, "amount", amount, "err", rbErr)
		}
		return fmt.Errorf("persist deposit: %w", err)
	}
	_ = e.ledger.Credit(user, asset, amount)
	e.custody[asset] = held + amount
	e.publish(Event{Type: EvTokensDeposited, TokensDeposited: &TokensDeposited{User: user, Asset: asset, Amount: amount}})
	e.mu.Unlock()

	e.log.Infow("tokens_deposited", "user", user.Hex(), "asset", asset, "amount", amount)
	return nil
}

// Withdraw debits the ledger first (failing fast when underfunded), then
// pushes custody out through the gateway. A gateway failure rolls the debit
// back before the error surfaces, so value is conserved either way.
func (e *Engine) Withdraw(user common.Address, asset Asset, amount int64) error {
	if user == (common.Address{}) {
		return fmt.Errorf("withdraw: %w", ErrInvalidIdentity)
	}
	if !asset.Valid() {
		return fmt.Errorf("withdraw: %w", ErrInvalidAsset)
	}
	if amount <= 0 {
		return fmt.Errorf("withdraw %d: %w", amount, ErrInvalidAmount)
	}

	e.mu.Lock()
	balance := e.ledger.BalanceOf(user, asset)
	if balance < amount {
		e.mu.Unlock()
		return fmt.Errorf("withdraw %d, balance %d: %w", amount, balance, ErrInsufficientBalance)
	}
	held := e.custody[asset]
	mut := &Mutation{
		Balances: map[BalanceKey]int64{{user, asset}: balance - amount},
		Custody:  map[Asset]int64{asset: held - amount},
	}
	if err := e.store.Commit(mut); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("persist withdraw: %w", err)
	}
	_ = e.ledger.Debit(user, asset, amount)
	e.custody[asset] = held - amount
	e.mu.Unlock()

	if err := e.gateway.TransferOut(user, asset, amount); err != nil {
		e.rollbackWithdraw(user, asset, amount)
		return fmt.Errorf("transfer out %d %s for %s: %w: %v", amount, asset, user.Hex(), ErrGatewayFailure, err)
	}

	e.mu.Lock()
	e.publish(Event{Type: EvTokensWithdrawn, TokensWithdrawn: &TokensWithdrawn{User: user, Asset: asset, Amount: amount}})
	e.mu.Unlock()
	e.log.Infow("tokens_withdrawn", "user", user.Hex(), "asset", asset, "amount", amount)
	return nil
}

// rollbackWithdraw restores a debited balance after the gateway refused the
// transfer. The balance was ours a moment ago, so the credit cannot overflow
// unless another deposit raced in between; that case is logged as critical
// because it means value is stranded in the vault.
func (e *Engine) rollbackWithdraw(user common.Address, asset Asset, amount int64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	balance := e.ledger.BalanceOf(user, asset)
	held := e.custody[asset]
	if balance > math.MaxInt64-amount || held > math.MaxInt64-amount {
		e.log.Errorw("withdraw_rollback_overflow", "user", user.Hex(), "asset", asset, "amount", amount)
		return
	}
	mut := &Mutation{
		Balances: map[BalanceKey]int64{{user, asset}: balance + amount},
		Custody:  map[Asset]int64{asset: held + amount},
	}
	if err := e.store.Commit(mut); err != nil {
		e.log.Errorw("withdraw_rollback_persist_failed", "user", user.Hex(), "asset", asset, "amount", amount, "err", err)
		return
	}
	_ = e.ledger.Credit(user, asset, amount)
	e.custody[asset] = held + amount
	e.log.Warnw("withdraw_rolled_back", "user", user.Hex(), "asset", asset, "amount", amount)
}

// ==============================
// Admin surface
// ==============================

// EmergencySweep moves the engine's entire custodial holding of asset to the
// owner, bypassing per-user accounting. Break-glass only: the ledger is left
// as-is, so the conservation invariant is intentionally broken afterwards.
func (e *Engine) EmergencySweep(caller common.Address, asset Asset) (int64, error) {
	if !asset.Valid() {
		return 0, fmt.Errorf("sweep: %w", ErrInvalidAsset)
	}

	e.mu.Lock()
	if e.owner == (common.Address{}) || caller != e.owner {
		e.mu.Unlock()
		return 0, fmt.Errorf("sweep by %s: %w", caller.Hex(), ErrUnauthorized)
	}
	total := e.custody[asset]
	if total <= 0 {
		e.mu.Unlock()
		return 0, nil
	}
	mut := &Mutation{Custody: map[Asset]int64{asset: 0}}
	if err := e.store.Commit(mut); err != nil {
		e.mu.Unlock()
		return 0, fmt.Errorf("persist sweep: %w", err)
	}
	e.custody[asset] = 0
	owner := e.owner
	e.mu.Unlock()

	if err := e.gateway.TransferOut(owner, asset, total); err != nil {
		// Restore the counter so a retry still sees the holding
		e.mu.Lock()
		restore := &Mutation{Custody: map[Asset]int64{asset: total}}
		if pErr := e.store.Commit(restore); pErr != nil {
			e.log.Errorw("sweep_restore_persist_failed", "asset", asset, "amount", total, "err", pErr)
		} else {
			e.custody[asset] = total
		}
		e.mu.Unlock()
		return 0, fmt.Errorf("sweep %d %s: %w: %v", total, asset, ErrGatewayFailure, err)
	}

	e.mu.Lock()
	e.publish(Event{Type: EvEmergencySweep, EmergencySweep: &EmergencySweep{Asset: asset, Amount: total, Owner: owner}})
	e.mu.Unlock()
	e.log.Warnw("emergency_sweep", "asset", asset, "amount", total, "owner", owner.Hex())
	return total, nil
}

// TransferOwnership hands the sweep authority to a new address.
// Current-owner only.
func (e *Engine) TransferOwnership(caller, newOwner common.Address) error {
	if newOwner == (common.Address{}) {
		return fmt.Errorf("transfer ownership: %w", ErrInvalidIdentity)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.owner == (common.Address{}) || caller != e.owner {
		return fmt.Errorf("transfer ownership by %s: %w", caller.Hex(), ErrUnauthorized)
	}
	mut := &Mutation{Owner: &newOwner}
	if err := e.store.Commit(mut); err != nil {
		return fmt.Errorf("persist ownership transfer: %w", err)
	}
	e.log.Infow("ownership_transferred", "from", e.owner.Hex(), "to", newOwner.Hex())
	e.owner = newOwner
	return nil
}

// ==============================
// Queries
// ==============================

// GetOrder returns a copy of the order record.
// Ids outside [1, lastId] fail ErrOrderNotFound.
func (e *Engine) GetOrder(orderID uint64) (Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	order, err := e.book.Get(orderID)
	if err != nil {
		return Order{}, err
	}
	return *order, nil
}

// BalanceOf returns the spendable ledger balance, 0 for unknown keys
func (e *Engine) BalanceOf(owner common.Address, asset Asset) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.BalanceOf(owner, asset)
}

// ListOrders returns order copies matching the filter, ascending by id
func (e *Engine) ListOrders(filter func(*Order) bool) []*Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.book.List(filter)
}

// CustodyOf returns the engine's vault holding of an asset
// (net deposits minus withdrawals minus sweeps)
func (e *Engine) CustodyOf(asset Asset) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.custody[asset]
}

// VerifyConservation checks that spendable balances plus active escrow equal
// the custodial holding for an asset. Holds at all times until an emergency
// sweep deliberately breaks it.
func (e *Engine) VerifyConservation(asset Asset) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	balances := e.ledger.TotalOf(asset)
	escrow := e.book.ActiveEscrow(asset)
	held := e.custody[asset]
	if balances+escrow != held {
		return fmt.Errorf("conservation violated for %s: balances %d + escrow %d != custody %d",
			asset, balances, escrow, held)
	}
	return nil
}

// publish emits an event while the caller holds the engine lock, keeping
// feed order identical to commit order
func (e *Engine) publish(ev Event) {
	ev.Timestamp = e.clock.Now().UnixMilli()
	e.feed.Publish(ev)
}
