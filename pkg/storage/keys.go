package storage

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tokenswap/swapd/pkg/swap"
)

// Pebble key schema
// Design principles:
// 1. Prefix-based for range scans (all balances, all orders, all custody rows)
// 2. Zero-padded order ids for lexicographic = numeric ordering
// 3. Balance rows keyed owner-first so one account's holdings scan together

const (
	prefixBalance = "bal:"  // bal:{address}:{asset} -> 8-byte amount
	prefixOrder   = "ord:"  // ord:{id, 20 digits}   -> JSON order record
	prefixCustody = "cust:" // cust:{asset}          -> 8-byte vault holding
	keyLastID     = "meta:lastid"
	keyOwner      = "meta:owner"
)

func balanceKey(owner common.Address, asset swap.Asset) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, owner.Hex(), asset))
}

// balanceKeyParse is the inverse of balanceKey, used on iterator keys
func balanceKeyParse(key []byte) (common.Address, swap.Asset, error) {
	rest := strings.TrimPrefix(string(key), prefixBalance)
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return common.Address{}, "", fmt.Errorf("malformed balance key: %q", key)
	}
	addrHex, asset := rest[:idx], rest[idx+1:]
	if !common.IsHexAddress(addrHex) || asset == "" {
		return common.Address{}, "", fmt.Errorf("malformed balance key: %q", key)
	}
	return common.HexToAddress(addrHex), swap.Asset(asset), nil
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func custodyKey(asset swap.Asset) []byte {
	return []byte(fmt.Sprintf("%s%s", prefixCustody, asset))
}

func custodyKeyParse(key []byte) (swap.Asset, error) {
	asset := strings.TrimPrefix(string(key), prefixCustody)
	if asset == "" {
		return "", fmt.Errorf("malformed custody key: %q", key)
	}
	return swap.Asset(asset), nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// Amounts are non-negative int64, stored as 8-byte big-endian

func encodeAmount(v int64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return buf[:]
}

func decodeAmount(data []byte) (int64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("amount value must be 8 bytes, got %d", len(data))
	}
	v := int64(binary.BigEndian.Uint64(data))
	if v < 0 {
		return 0, fmt.Errorf("negative amount in store: %d", v)
	}
	return v, nil
}

func encodeID(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func decodeID(data []byte) (uint64, error) {
	if len(data) != 8 {
		return 0, fmt.Errorf("id value must be 8 bytes, got %d", len(data))
	}
	return binary.BigEndian.Uint64(data), nil
}
