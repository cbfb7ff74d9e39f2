package swap

import "errors"

// Engine rejection reasons. Every operation validates fully before mutating,
// so any of these surfacing means no state changed (except ErrGatewayFailure
// on withdraw, where the ledger debit is rolled back before returning).
// Callers classify with errors.Is; the engine wraps these with context.
var (
	ErrInvalidIdentity     = errors.New("invalid identity")
	ErrInvalidAsset        = errors.New("invalid asset")
	ErrSelfSwapNotAllowed  = errors.New("order must swap two different assets")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderInactive       = errors.New("order already cancelled or executed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrOverflow            = errors.New("balance overflow")
	ErrGatewayFailure      = errors.New("asset gateway failure")
)
