package crypto

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Command digests bind a signature to one action on one deployment.
// Digest = keccak256("swapd/v1:" || action || ":" || payload)
// where payload is the canonical JSON body of the request with the
// signature field removed.

const commandDomain = "swapd/v1:"

// Command actions. The action string is mixed into the signing digest, so a
// signature for one action can never authorize another.
const (
	ActionCreateOrder  = "create_order"
	ActionCancelOrder  = "cancel_order"
	ActionExecuteOrder = "execute_order"
	ActionDeposit      = "deposit"
	ActionWithdraw     = "withdraw"
	ActionSweep        = "emergency_sweep"
	ActionSetOwner     = "transfer_ownership"
)

// CommandHash returns the 32-byte signing digest for an engine command
func CommandHash(action string, payload []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(commandDomain))
	h.Write([]byte(action))
	h.Write([]byte{':'})
	h.Write(payload)
	return h.Sum(nil)
}

// EIP55 computes the checksummed hex address string from a 20-byte raw address
func EIP55(addr20 []byte) string {
	hexaddr := hex.EncodeToString(addr20) // lower
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(hexaddr))
	hash := h.Sum(nil)

	var out = make([]byte, 2+len(hexaddr))
	copy(out, []byte("0x"))
	for i, c := range []byte(hexaddr) {
		if c >= '0' && c <= '9' {
			out[2+i] = c
			continue
		}
		// each hex char maps to 4 bits; i>>1 picks the byte; even/odd decides high/low nibble
		hb := hash[i>>1]
		nibble := hb
		if i%2 == 0 {
			nibble = (hb >> 4) & 0x0f
		} else {
			nibble = hb & 0x0f
		}
		if nibble >= 8 {
			out[2+i] = byte(strings.ToUpper(string(c))[0])
		} else {
			out[2+i] = c
		}
	}
	return string(out)
}
