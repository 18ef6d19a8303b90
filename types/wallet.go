package types

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
)

// WalletState is the balance snapshot a block's transactions are applied
// against. Keys are wallet addresses, values are balances.
type WalletState map[string]int64

// Clone returns an independent copy of the state.
func (ws WalletState) Clone() WalletState {
	cp := make(WalletState, len(ws))
	for addr, balance := range ws {
		cp[addr] = balance
	}
	return cp
}

// Equal reports whether two snapshots hold identical balances. Wallets
// with a zero balance are not distinguished from absent wallets.
func (ws WalletState) Equal(other WalletState) bool {
	for addr, balance := range ws {
		if other[addr] != balance {
			return false
		}
	}
	for addr, balance := range other {
		if ws[addr] != balance {
			return false
		}
	}
	return true
}

// Hash returns a deterministic digest of the snapshot.
func (ws WalletState) Hash() wbytes.HexBytes {
	addrs := make([]string, 0, len(ws))
	for addr, balance := range ws {
		if balance != 0 {
			addrs = append(addrs, addr)
		}
	}
	sort.Strings(addrs)

	h := sha256.New()
	buf := make([]byte, 8)
	for _, addr := range addrs {
		h.Write([]byte(addr))
		binary.BigEndian.PutUint64(buf, uint64(ws[addr]))
		h.Write(buf)
	}
	return h.Sum(nil)
}
