package swap

import "github.com/ethereum/go-ethereum/common"

// Gateway moves real asset custody in and out of the engine's vault.
// It is only consulted at the deposit/withdraw boundary (and emergency
// sweep); order settlement never leaves the internal ledger.
//
// Implementations must be safe to call concurrently. The engine never
// holds its state lock across a gateway call, so a gateway that calls
// back into the engine cannot observe a half-applied transition.
type Gateway interface {
	TransferIn(user common.Address, asset Asset, amount int64) error
	TransferOut(user common.Address, asset Asset, amount int64) error
}
