package api

// Request/response types for REST endpoints and WebSocket messages.
//
// Mutating requests are signed commands: the client keccak-hashes the
// canonical JSON of the payload (request body minus the signature field)
// under the action's domain tag and signs with secp256k1. The server
// recovers the caller address and passes it to the engine as the
// authenticated identity.

// ==============================
// REST Request Types
// ==============================

// CreateOrderPayload is the signed portion of POST /api/v1/orders
type CreateOrderPayload struct {
	Seller        string `json:"seller"`
	AssetForSale  string `json:"assetForSale"`
	AmountForSale int64  `json:"amountForSale"`
	AssetWanted   string `json:"assetWanted"`
	AmountWanted  int64  `json:"amountWanted"`
}

type CreateOrderRequest struct {
	CreateOrderPayload
	Signature string `json:"signature"` // 0x-hex, 65 bytes
}

// OrderActionPayload is the signed portion of cancel/execute requests
type OrderActionPayload struct {
	Caller  string `json:"caller"`
	OrderID uint64 `json:"orderId"`
}

type OrderActionRequest struct {
	OrderActionPayload
	Signature string `json:"signature"`
}

// TransferPayload is the signed portion of deposit/withdraw requests
type TransferPayload struct {
	User   string `json:"user"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

type TransferRequest struct {
	TransferPayload
	Signature string `json:"signature"`
}

// SweepPayload is the signed portion of POST /api/v1/admin/sweep
type SweepPayload struct {
	Caller string `json:"caller"`
	Asset  string `json:"asset"`
}

type SweepRequest struct {
	SweepPayload
	Signature string `json:"signature"`
}

// OwnershipPayload is the signed portion of POST /api/v1/admin/owner
type OwnershipPayload struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

type OwnershipRequest struct {
	OwnershipPayload
	Signature string `json:"signature"`
}

// ==============================
// REST Response Types
// ==============================

// OrderInfo represents an order record (active or historical)
type OrderInfo struct {
	ID            uint64 `json:"id"`
	Seller        string `json:"seller"`
	AssetForSale  string `json:"assetForSale"`
	AmountForSale int64  `json:"amountForSale"`
	AssetWanted   string `json:"assetWanted"`
	AmountWanted  int64  `json:"amountWanted"`
	Status        string `json:"status"`
	CreatedAt     int64  `json:"createdAt"`
	ClosedAt      int64  `json:"closedAt,omitempty"`
}

// BalanceInfo represents one ledger entry
type BalanceInfo struct {
	Owner   string `json:"owner"`
	Asset   string `json:"asset"`
	Balance int64  `json:"balance"`
}

// CreateOrderResponse is returned from order creation
type CreateOrderResponse struct {
	Status  string `json:"status"` // "created"
	OrderID uint64 `json:"orderId"`
}

// ActionResponse is returned from cancel/execute/deposit/withdraw
type ActionResponse struct {
	Status string `json:"status"` // "ok"
}

// SweepResponse is returned from an emergency sweep
type SweepResponse struct {
	Status string `json:"status"`
	Asset  string `json:"asset"`
	Amount int64  `json:"amount"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to subscribe to channels
// Channels: "events", "orders", "account:0x..."
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}
