package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tokenswap/swapd/pkg/api"
	"github.com/tokenswap/swapd/pkg/bridge"
	"github.com/tokenswap/swapd/pkg/crypto"
	"github.com/tokenswap/swapd/pkg/swap"
)

type testEnv struct {
	srv    *httptest.Server
	engine *swap.Engine
	vault  *bridge.Vault
	alice  *crypto.Signer
	bob    *crypto.Signer
	admin  *crypto.Signer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	alice, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	bob, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	admin, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	vault := bridge.NewVault()
	engine, err := swap.NewEngine(swap.NopStore{}, vault, admin.Address(), swap.NewFeed(), nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	srv := httptest.NewServer(api.NewServer(engine, nil).Handler(nil))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, engine: engine, vault: vault, alice: alice, bob: bob, admin: admin}
}

// sign produces the signature hex for a payload the way clients do
func sign(t *testing.T, signer *crypto.Signer, action string, payload interface{}) string {
	t.Helper()
	canonical, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	sig, err := signer.SignCommand(action, canonical)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return fmt.Sprintf("0x%x", sig)
}

func (env *testEnv) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(env.srv.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (env *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(env.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (env *testEnv) deposit(t *testing.T, signer *crypto.Signer, asset string, amount int64) {
	t.Helper()
	env.vault.Fund(signer.Address(), swap.Asset(asset), amount)
	p := api.TransferPayload{User: signer.Address().Hex(), Asset: asset, Amount: amount}
	resp := env.post(t, "/api/v1/deposits", api.TransferRequest{
		TransferPayload: p,
		Signature:       sign(t, signer, crypto.ActionDeposit, p),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deposit status = %d", resp.StatusCode)
	}
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, env.alice, "WETH", 10)
	env.deposit(t, env.bob, "USDC", 6000)

	// Create
	cp := api.CreateOrderPayload{
		Seller:        env.alice.Address().Hex(),
		AssetForSale:  "WETH",
		AmountForSale: 10,
		AssetWanted:   "USDC",
		AmountWanted:  5000,
	}
	resp := env.post(t, "/api/v1/orders", api.CreateOrderRequest{
		CreateOrderPayload: cp,
		Signature:          sign(t, env.alice, crypto.ActionCreateOrder, cp),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	var created api.CreateOrderResponse
	decode(t, resp, &created)
	if created.OrderID != 1 {
		t.Fatalf("orderId = %d, want 1", created.OrderID)
	}

	// Read back
	var order api.OrderInfo
	decode(t, env.get(t, "/api/v1/orders/1"), &order)
	if order.Status != "active" || order.Seller != env.alice.Address().Hex() {
		t.Errorf("order = %+v", order)
	}

	var active []api.OrderInfo
	decode(t, env.get(t, "/api/v1/orders?active=true"), &active)
	if len(active) != 1 {
		t.Errorf("active orders = %d, want 1", len(active))
	}

	// Execute as bob
	ep := api.OrderActionPayload{Caller: env.bob.Address().Hex(), OrderID: 1}
	resp = env.post(t, "/api/v1/orders/execute", api.OrderActionRequest{
		OrderActionPayload: ep,
		Signature:          sign(t, env.bob, crypto.ActionExecuteOrder, ep),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("execute status = %d", resp.StatusCode)
	}

	var balance api.BalanceInfo
	decode(t, env.get(t, "/api/v1/balances/"+env.bob.Address().Hex()+"/WETH"), &balance)
	if balance.Balance != 10 {
		t.Errorf("bob WETH = %d, want 10", balance.Balance)
	}
}

func TestSignatureBindsCaller(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, env.alice, "WETH", 10)

	// Bob signs a payload that claims to be alice
	cp := api.CreateOrderPayload{
		Seller:        env.alice.Address().Hex(),
		AssetForSale:  "WETH",
		AmountForSale: 10,
		AssetWanted:   "USDC",
		AmountWanted:  5000,
	}
	resp := env.post(t, "/api/v1/orders", api.CreateOrderRequest{
		CreateOrderPayload: cp,
		Signature:          sign(t, env.bob, crypto.ActionCreateOrder, cp),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("forged caller status = %d, want 403", resp.StatusCode)
	}
}

func TestSignatureBindsAction(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, env.alice, "WETH", 10)

	cp := api.CreateOrderPayload{
		Seller:        env.alice.Address().Hex(),
		AssetForSale:  "WETH",
		AmountForSale: 10,
		AssetWanted:   "USDC",
		AmountWanted:  5000,
	}
	resp := env.post(t, "/api/v1/orders", api.CreateOrderRequest{
		CreateOrderPayload: cp,
		Signature:          sign(t, env.alice, crypto.ActionDeposit, cp),
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong-action signature status = %d, want 403", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, env.alice, "WETH", 10)

	cp := api.CreateOrderPayload{
		Seller:        env.alice.Address().Hex(),
		AssetForSale:  "WETH",
		AmountForSale: 10,
		AssetWanted:   "USDC",
		AmountWanted:  5000,
	}
	resp := env.post(t, "/api/v1/orders", api.CreateOrderRequest{
		CreateOrderPayload: cp,
		Signature:          sign(t, env.alice, crypto.ActionCreateOrder, cp),
	})
	resp.Body.Close()

	cases := []struct {
		name   string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{
			name: "order not found",
			path: "/api/v1/orders/execute",
			body: func() interface{} {
				p := api.OrderActionPayload{Caller: env.bob.Address().Hex(), OrderID: 99}
				return api.OrderActionRequest{OrderActionPayload: p, Signature: sign(t, env.bob, crypto.ActionExecuteOrder, p)}
			}(),
			status: http.StatusNotFound,
			code:   "order_not_found",
		},
		{
			name: "cancel by stranger",
			path: "/api/v1/orders/cancel",
			body: func() interface{} {
				p := api.OrderActionPayload{Caller: env.bob.Address().Hex(), OrderID: 1}
				return api.OrderActionRequest{OrderActionPayload: p, Signature: sign(t, env.bob, crypto.ActionCancelOrder, p)}
			}(),
			status: http.StatusForbidden,
			code:   "unauthorized",
		},
		{
			name: "withdraw underfunded",
			path: "/api/v1/withdrawals",
			body: func() interface{} {
				p := api.TransferPayload{User: env.bob.Address().Hex(), Asset: "USDC", Amount: 100}
				return api.TransferRequest{TransferPayload: p, Signature: sign(t, env.bob, crypto.ActionWithdraw, p)}
			}(),
			status: http.StatusConflict,
			code:   "insufficient_balance",
		},
		{
			name: "deposit without external funds",
			path: "/api/v1/deposits",
			body: func() interface{} {
				p := api.TransferPayload{User: env.bob.Address().Hex(), Asset: "USDC", Amount: 100}
				return api.TransferRequest{TransferPayload: p, Signature: sign(t, env.bob, crypto.ActionDeposit, p)}
			}(),
			status: http.StatusBadGateway,
			code:   "gateway_failure",
		},
		{
			name: "self swap",
			path: "/api/v1/orders",
			body: func() interface{} {
				p := api.CreateOrderPayload{Seller: env.alice.Address().Hex(), AssetForSale: "WETH", AmountForSale: 1, AssetWanted: "WETH", AmountWanted: 1}
				return api.CreateOrderRequest{CreateOrderPayload: p, Signature: sign(t, env.alice, crypto.ActionCreateOrder, p)}
			}(),
			status: http.StatusBadRequest,
			code:   "self_swap_not_allowed",
		},
		{
			name: "sweep by non-owner",
			path: "/api/v1/admin/sweep",
			body: func() interface{} {
				p := api.SweepPayload{Caller: env.alice.Address().Hex(), Asset: "WETH"}
				return api.SweepRequest{SweepPayload: p, Signature: sign(t, env.alice, crypto.ActionSweep, p)}
			}(),
			status: http.StatusForbidden,
			code:   "unauthorized",
		},
	}

	for _, tc := range cases {
		resp := env.post(t, tc.path, tc.body)
		var errResp api.ErrorResponse
		decode(t, resp, &errResp)
		if resp.StatusCode != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.name, resp.StatusCode, tc.status)
		}
		if errResp.Error != tc.code {
			t.Errorf("%s: code = %q, want %q", tc.name, errResp.Error, tc.code)
		}
	}
}

func TestAdminSweepOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, env.alice, "USDC", 1000)

	p := api.SweepPayload{Caller: env.admin.Address().Hex(), Asset: "USDC"}
	resp := env.post(t, "/api/v1/admin/sweep", api.SweepRequest{
		SweepPayload: p,
		Signature:    sign(t, env.admin, crypto.ActionSweep, p),
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sweep status = %d", resp.StatusCode)
	}
	var swept api.SweepResponse
	decode(t, resp, &swept)
	if swept.Amount != 1000 {
		t.Errorf("swept = %d, want 1000", swept.Amount)
	}
	if got := env.vault.ExternalBalanceOf(env.admin.Address(), "USDC"); got != 1000 {
		t.Errorf("owner external = %d, want 1000", got)
	}
}

func TestMalformedRequests(t *testing.T) {
	env := newTestEnv(t)

	// Bad signature encoding
	p := api.TransferPayload{User: env.alice.Address().Hex(), Asset: "USDC", Amount: 1}
	resp := env.post(t, "/api/v1/deposits", api.TransferRequest{TransferPayload: p, Signature: "0xzz"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad signature status = %d, want 400", resp.StatusCode)
	}

	// Bad address in path
	resp = env.get(t, "/api/v1/balances/nonsense/USDC")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad address status = %d, want 400", resp.StatusCode)
	}

	// Health is open
	resp = env.get(t, "/health")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}
