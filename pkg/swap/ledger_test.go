package swap

import (
	"errors"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob   = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

const (
	usdc = Asset("USDC")
	weth = Asset("WETH")
)

func TestLedgerCreditDebit(t *testing.T) {
	l := NewLedger()

	if err := l.Credit(alice, usdc, 1000); err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if got := l.BalanceOf(alice, usdc); got != 1000 {
		t.Errorf("balance = %d, want 1000", got)
	}

	if err := l.Debit(alice, usdc, 400); err != nil {
		t.Fatalf("debit failed: %v", err)
	}
	if got := l.BalanceOf(alice, usdc); got != 600 {
		t.Errorf("balance = %d, want 600", got)
	}

	// Unknown keys read as zero
	if got := l.BalanceOf(bob, usdc); got != 0 {
		t.Errorf("unknown balance = %d, want 0", got)
	}
	if got := l.BalanceOf(alice, weth); got != 0 {
		t.Errorf("unknown asset balance = %d, want 0", got)
	}
}

func TestLedgerInvalidAmounts(t *testing.T) {
	l := NewLedger()

	for _, amount := range []int64{0, -1, -1000} {
		if err := l.Credit(alice, usdc, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("credit %d: err = %v, want ErrInvalidAmount", amount, err)
		}
		if err := l.Debit(alice, usdc, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Errorf("debit %d: err = %v, want ErrInvalidAmount", amount, err)
		}
	}
}

func TestLedgerDebitUnderfunded(t *testing.T) {
	l := NewLedger()
	_ = l.Credit(alice, usdc, 100)

	if err := l.Debit(alice, usdc, 101); !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("err = %v, want ErrInsufficientBalance", err)
	}
	// Failed debit must not change the balance
	if got := l.BalanceOf(alice, usdc); got != 100 {
		t.Errorf("balance after failed debit = %d, want 100", got)
	}
}

func TestLedgerCreditOverflow(t *testing.T) {
	l := NewLedger()
	_ = l.Credit(alice, usdc, math.MaxInt64)

	if err := l.Credit(alice, usdc, 1); !errors.Is(err, ErrOverflow) {
		t.Errorf("err = %v, want ErrOverflow", err)
	}
	if got := l.BalanceOf(alice, usdc); got != math.MaxInt64 {
		t.Errorf("balance after failed credit = %d, want MaxInt64", got)
	}
}

func TestLedgerTotalOf(t *testing.T) {
	l := NewLedger()
	_ = l.Credit(alice, usdc, 300)
	_ = l.Credit(bob, usdc, 700)
	_ = l.Credit(alice, weth, 50)

	if got := l.TotalOf(usdc); got != 1000 {
		t.Errorf("TotalOf(usdc) = %d, want 1000", got)
	}
	if got := l.TotalOf(weth); got != 50 {
		t.Errorf("TotalOf(weth) = %d, want 50", got)
	}
	if got := l.TotalOf(Asset("DAI")); got != 0 {
		t.Errorf("TotalOf(unknown) = %d, want 0", got)
	}
}

func TestLedgerSet(t *testing.T) {
	l := NewLedger()

	if err := l.Set(alice, usdc, 42); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := l.BalanceOf(alice, usdc); got != 42 {
		t.Errorf("balance = %d, want 42", got)
	}
	if err := l.Set(alice, usdc, -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("set negative: err = %v, want ErrInvalidAmount", err)
	}
}

func TestLedgerEntriesSkipsZero(t *testing.T) {
	l := NewLedger()
	_ = l.Credit(alice, usdc, 100)
	_ = l.Debit(alice, usdc, 100)
	_ = l.Credit(bob, weth, 5)

	entries := l.Entries()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if got := entries[BalanceKey{bob, weth}]; got != 5 {
		t.Errorf("entry = %d, want 5", got)
	}
}
