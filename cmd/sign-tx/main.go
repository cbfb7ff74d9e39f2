// sign-tx builds signed command bodies ready to POST to a node.
//
// Examples:
//
//	sign-tx -action create_order -sell USDC -sell-amount 500 -want WETH -want-amount 1
//	sign-tx -key $PRIVATE_KEY -action deposit -asset USDC -amount 1000
//	sign-tx -key $PRIVATE_KEY -action cancel_order -order-id 3
//
// Without -key a fresh keypair is generated and printed.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tokenswap/swapd/pkg/api"
	"github.com/tokenswap/swapd/pkg/crypto"
)

func main() {
	var (
		keyHex     = flag.String("key", os.Getenv("PRIVATE_KEY"), "private key hex (default: generate new)")
		action     = flag.String("action", "", "create_order | cancel_order | execute_order | deposit | withdraw | emergency_sweep | transfer_ownership")
		sell       = flag.String("sell", "", "asset offered (create_order)")
		sellAmount = flag.Int64("sell-amount", 0, "amount offered (create_order)")
		want       = flag.String("want", "", "asset wanted (create_order)")
		wantAmount = flag.Int64("want-amount", 0, "amount wanted (create_order)")
		orderID    = flag.Uint64("order-id", 0, "order id (cancel_order, execute_order)")
		asset      = flag.String("asset", "", "asset (deposit, withdraw, emergency_sweep)")
		amount     = flag.Int64("amount", 0, "amount (deposit, withdraw)")
		newOwner   = flag.String("new-owner", "", "new owner address (transfer_ownership)")
	)
	flag.Parse()

	var signer *crypto.Signer
	var err error
	if *keyHex != "" {
		signer, err = crypto.FromPrivateKeyHex(*keyHex)
	} else {
		signer, err = crypto.GenerateKey()
		if err == nil {
			fmt.Fprintf(os.Stderr, "Generated keypair\n")
			fmt.Fprintf(os.Stderr, "  Address:     %s\n", signer.Address().Hex())
			fmt.Fprintf(os.Stderr, "  Private key: %s (keep secret)\n\n", signer.PrivateKeyHex())
		}
	}
	if err != nil {
		fatal("key: %v", err)
	}
	addr := signer.Address().Hex()

	var payload interface{}
	var body func(sig string) interface{}

	switch *action {
	case crypto.ActionCreateOrder:
		p := api.CreateOrderPayload{
			Seller:        addr,
			AssetForSale:  *sell,
			AmountForSale: *sellAmount,
			AssetWanted:   *want,
			AmountWanted:  *wantAmount,
		}
		payload = p
		body = func(sig string) interface{} {
			return api.CreateOrderRequest{CreateOrderPayload: p, Signature: sig}
		}

	case crypto.ActionCancelOrder, crypto.ActionExecuteOrder:
		p := api.OrderActionPayload{Caller: addr, OrderID: *orderID}
		payload = p
		body = func(sig string) interface{} {
			return api.OrderActionRequest{OrderActionPayload: p, Signature: sig}
		}

	case crypto.ActionDeposit, crypto.ActionWithdraw:
		p := api.TransferPayload{User: addr, Asset: *asset, Amount: *amount}
		payload = p
		body = func(sig string) interface{} {
			return api.TransferRequest{TransferPayload: p, Signature: sig}
		}

	case crypto.ActionSweep:
		p := api.SweepPayload{Caller: addr, Asset: *asset}
		payload = p
		body = func(sig string) interface{} {
			return api.SweepRequest{SweepPayload: p, Signature: sig}
		}

	case crypto.ActionSetOwner:
		p := api.OwnershipPayload{Caller: addr, NewOwner: *newOwner}
		payload = p
		body = func(sig string) interface{} {
			return api.OwnershipRequest{OwnershipPayload: p, Signature: sig}
		}

	default:
		fatal("unknown -action %q (see -h)", *action)
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		fatal("marshal payload: %v", err)
	}
	sig, err := signer.SignCommand(*action, canonical)
	if err != nil {
		fatal("sign: %v", err)
	}

	out, err := json.MarshalIndent(body(fmt.Sprintf("0x%x", sig)), "", "  ")
	if err != nil {
		fatal("marshal request: %v", err)
	}

	fmt.Fprintf(os.Stderr, "POST %s to /api/v1/%s\n\n", *action, endpointFor(*action))
	fmt.Println(string(out))
}

func endpointFor(action string) string {
	switch action {
	case crypto.ActionCreateOrder:
		return "orders"
	case crypto.ActionCancelOrder:
		return "orders/cancel"
	case crypto.ActionExecuteOrder:
		return "orders/execute"
	case crypto.ActionDeposit:
		return "deposits"
	case crypto.ActionWithdraw:
		return "withdrawals"
	case crypto.ActionSweep:
		return "admin/sweep"
	case crypto.ActionSetOwner:
		return "admin/owner"
	}
	return ""
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "sign-tx: "+format+"\n", args...)
	os.Exit(1)
}
