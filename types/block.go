package types

import (
	"crypto/sha256"
	"errors"
	"fmt"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
)

// HashSize is the size, in bytes, of an independent block hash.
const HashSize = sha256.Size

// Block is a single element of the weave. A block is immutable once
// produced: its independent hash identifies its full content, PrevHash
// links it to its predecessor, and HashChain records its ancestry from
// genesis (oldest first, excluding the block's own hash). Wallets is the
// balance snapshot after the block's transactions have been applied.
//
// Difficulty and RecallSeed are consensus fields; fork recovery carries
// them opaquely and leaves their interpretation to the validator.
type Block struct {
	Height     int64             `json:"height"`
	Timestamp  int64             `json:"timestamp"`
	Hash       wbytes.HexBytes   `json:"hash"`
	PrevHash   wbytes.HexBytes   `json:"prev_hash"`
	HashChain  []wbytes.HexBytes `json:"hash_chain"`
	Wallets    WalletState       `json:"wallets"`
	Txs        []Tx              `json:"txs"`
	Difficulty int64             `json:"difficulty"`
	RecallSeed wbytes.HexBytes   `json:"recall_seed"`
}

// ValidateBasic performs stateless structural checks. It does not verify
// proof of work, proof of access, or transaction legality; those belong to
// the chain validator.
func (b *Block) ValidateBasic() error {
	if b == nil {
		return errors.New("nil block")
	}

	if b.Height < 0 {
		return fmt.Errorf("negative height %d", b.Height)
	}

	if len(b.Hash) != HashSize {
		return fmt.Errorf("wrong hash size. Expected %d, got %d", HashSize, len(b.Hash))
	}

	if b.Height > 0 && len(b.PrevHash) != HashSize {
		return fmt.Errorf("wrong prev hash size. Expected %d, got %d", HashSize, len(b.PrevHash))
	}

	// The ancestry chain holds one entry per predecessor.
	if int64(len(b.HashChain)) != b.Height {
		return fmt.Errorf("hash chain length %d does not match height %d", len(b.HashChain), b.Height)
	}

	if b.Height > 0 && !b.HashChain[len(b.HashChain)-1].Equal(b.PrevHash) {
		return fmt.Errorf("hash chain tip %v does not match prev hash %v",
			b.HashChain[len(b.HashChain)-1], b.PrevHash)
	}

	if b.Difficulty <= 0 {
		return fmt.Errorf("non-positive difficulty %d", b.Difficulty)
	}

	for i, tx := range b.Txs {
		if err := tx.ValidateBasic(); err != nil {
			return fmt.Errorf("invalid tx (#%d): %w", i, err)
		}
	}

	return nil
}

// ExtendedChain returns the ancestry chain a successor of b must carry:
// b's own chain with b's hash appended. The result is a fresh slice.
func (b *Block) ExtendedChain() []wbytes.HexBytes {
	chain := make([]wbytes.HexBytes, 0, len(b.HashChain)+1)
	chain = append(chain, b.HashChain...)
	return append(chain, b.Hash)
}

// Equal reports whether two blocks denote the same block by identity:
// same independent hash and same height.
func (b *Block) Equal(other *Block) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.Height == other.Height && b.Hash.Equal(other.Hash)
}

func (b *Block) String() string {
	if b == nil {
		return "Block{nil}"
	}
	return fmt.Sprintf("Block{%d %v txs:%d}", b.Height, b.Hash.ShortString(), len(b.Txs))
}

// Tx is a single value transfer between two wallets.
type Tx struct {
	ID     wbytes.HexBytes `json:"id"`
	Owner  string          `json:"owner"`
	Target string          `json:"target"`
	Amount int64           `json:"amount"`
}

// ValidateBasic performs stateless structural checks on the transaction.
func (tx Tx) ValidateBasic() error {
	if len(tx.ID) == 0 {
		return errors.New("empty tx id")
	}
	if tx.Owner == "" {
		return errors.New("empty owner")
	}
	if tx.Target == "" {
		return errors.New("empty target")
	}
	if tx.Owner == tx.Target {
		return errors.New("owner and target are the same wallet")
	}
	if tx.Amount <= 0 {
		return fmt.Errorf("non-positive amount %d", tx.Amount)
	}
	return nil
}

func (tx Tx) String() string {
	return fmt.Sprintf("Tx{%v %s->%s %d}", tx.ID.ShortString(), tx.Owner, tx.Target, tx.Amount)
}
