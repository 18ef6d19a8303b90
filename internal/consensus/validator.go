package consensus

import (
	"errors"
	"fmt"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/libs/log"
	"github.com/weaveledger/weaveledger/types"
)

// Validator enforces the chain-level consensus rules: linkage, difficulty
// retargeting bounds, timestamp ordering, the proof-of-access recall check,
// and transaction legality against the predecessor's wallet state.
type Validator struct {
	logger log.Logger
}

// NewValidator returns a Validator.
func NewValidator(logger log.Logger) *Validator {
	return &Validator{logger: logger}
}

// ApplyTxs applies txs to ws in order and returns the resulting state. It
// fails on the first transaction that would overdraw its owner's wallet.
// ws itself is never mutated.
func (v *Validator) ApplyTxs(ws types.WalletState, txs []types.Tx) (types.WalletState, error) {
	out := ws.Clone()
	for i, tx := range txs {
		if err := tx.ValidateBasic(); err != nil {
			return nil, fmt.Errorf("invalid tx (#%d): %w", i, err)
		}
		balance, ok := out[tx.Owner]
		if !ok {
			return nil, fmt.Errorf("tx %v: unknown wallet %q", tx.ID.ShortString(), tx.Owner)
		}
		if balance < tx.Amount {
			return nil, fmt.Errorf("tx %v: wallet %q holds %d, needs %d",
				tx.ID.ShortString(), tx.Owner, balance, tx.Amount)
		}
		out[tx.Owner] -= tx.Amount
		out[tx.Target] += tx.Amount
	}
	return out, nil
}

// Validate checks candidate against its verified predecessor. chain is the
// ancestry the candidate must carry (prev's chain extended by prev's hash),
// ws is the wallet state after applying the candidate's transactions, and
// recall is the block prev's recall selection demands.
func (v *Validator) Validate(
	chain []wbytes.HexBytes,
	ws types.WalletState,
	candidate, prev, recall *types.Block,
) error {
	if candidate == nil || prev == nil || recall == nil {
		return errors.New("nil block")
	}
	if err := candidate.ValidateBasic(); err != nil {
		return fmt.Errorf("candidate.ValidateBasic failed: %w", err)
	}

	if candidate.Height != prev.Height+1 {
		return fmt.Errorf("expected height %d, got %d", prev.Height+1, candidate.Height)
	}
	if !candidate.PrevHash.Equal(prev.Hash) {
		return fmt.Errorf("prev hash %v does not link to %v",
			candidate.PrevHash.ShortString(), prev.Hash.ShortString())
	}

	if len(candidate.HashChain) != len(chain) {
		return fmt.Errorf("hash chain length %d does not match expected %d",
			len(candidate.HashChain), len(chain))
	}
	for i := range chain {
		if !candidate.HashChain[i].Equal(chain[i]) {
			return fmt.Errorf("hash chain diverges at position %d: %v != %v",
				i, candidate.HashChain[i].ShortString(), chain[i].ShortString())
		}
	}

	if candidate.Timestamp < prev.Timestamp {
		return fmt.Errorf("timestamp %d precedes predecessor's %d",
			candidate.Timestamp, prev.Timestamp)
	}

	// Retargeting may at most halve or double the difficulty per block.
	if candidate.Difficulty < prev.Difficulty/2 || candidate.Difficulty > prev.Difficulty*2 {
		return fmt.Errorf("difficulty %d outside retarget bounds of %d",
			candidate.Difficulty, prev.Difficulty)
	}

	expected := RecallHash(prev, prev.HashChain)
	if !recall.Hash.Equal(expected) {
		return fmt.Errorf("wrong recall block. Expected %v, got %v",
			expected.ShortString(), recall.Hash.ShortString())
	}
	if err := recall.ValidateBasic(); err != nil {
		return fmt.Errorf("recall.ValidateBasic failed: %w", err)
	}

	if want, got := ws.Hash(), candidate.Wallets.Hash(); !got.Equal(want) {
		return fmt.Errorf("wallet state hash %v at height %d, computed %v",
			got.ShortString(), candidate.Height, want.ShortString())
	}

	return nil
}
