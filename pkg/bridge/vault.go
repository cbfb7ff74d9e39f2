package bridge

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tokenswap/swapd/pkg/swap"
)

type holdingKey struct {
	user  common.Address
	asset swap.Asset
}

// Vault is the in-process asset gateway used by devnets and tests. It
// simulates external custody: users hold tokens outside the engine, and
// TransferIn/TransferOut move them between the user and the engine's vault.
// A production deployment replaces this with a chain bridge implementing
// the same swap.Gateway contract.
type Vault struct {
	mu       sync.Mutex
	external map[holdingKey]int64 // tokens still in the user's own custody
	vault    map[swap.Asset]int64 // tokens held for the engine

	// failOut, when set, makes the next TransferOut fail with this error.
	// Fault injection hook for withdraw-rollback tests.
	failOut error
}

func NewVault() *Vault {
	return &Vault{
		external: make(map[holdingKey]int64),
		vault:    make(map[swap.Asset]int64),
	}
}

// Fund mints external tokens into a user's custody (devnet faucet)
func (v *Vault) Fund(user common.Address, asset swap.Asset, amount int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.external[holdingKey{user, asset}] += amount
}

// FailNextTransferOut forces the next TransferOut to fail with err
func (v *Vault) FailNextTransferOut(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failOut = err
}

// TransferIn moves tokens from the user's custody into the vault
func (v *Vault) TransferIn(user common.Address, asset swap.Asset, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer in %d: amount must be positive", amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := holdingKey{user, asset}
	if v.external[key] < amount {
		return fmt.Errorf("user %s holds %d %s, needs %d", user.Hex(), v.external[key], asset, amount)
	}
	v.external[key] -= amount
	v.vault[asset] += amount
	return nil
}

// TransferOut moves tokens from the vault back to the user's custody
func (v *Vault) TransferOut(user common.Address, asset swap.Asset, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("transfer out %d: amount must be positive", amount)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.failOut != nil {
		err := v.failOut
		v.failOut = nil
		return err
	}
	if v.vault[asset] < amount {
		return fmt.Errorf("vault holds %d %s, needs %d", v.vault[asset], asset, amount)
	}
	v.vault[asset] -= amount
	v.external[holdingKey{user, asset}] += amount
	return nil
}

// ExternalBalanceOf returns the user's custody outside the engine
func (v *Vault) ExternalBalanceOf(user common.Address, asset swap.Asset) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.external[holdingKey{user, asset}]
}

// Holding returns the vault's custody of an asset
func (v *Vault) Holding(asset swap.Asset) int64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vault[asset]
}
