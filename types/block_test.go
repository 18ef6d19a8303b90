package types

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
)

func testHash(s string) wbytes.HexBytes {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func validBlock() *Block {
	return &Block{
		Height:     2,
		Timestamp:  1000,
		Hash:       testHash("b2"),
		PrevHash:   testHash("b1"),
		HashChain:  []wbytes.HexBytes{testHash("b0"), testHash("b1")},
		Wallets:    WalletState{"alice": 10},
		Difficulty: 5,
		RecallSeed: testHash("seed"),
		Txs: []Tx{
			{ID: testHash("tx"), Owner: "alice", Target: "bob", Amount: 3},
		},
	}
}

func TestBlockValidateBasic(t *testing.T) {
	testCases := []struct {
		name      string
		mutate    func(*Block)
		expectErr bool
	}{
		{"valid block", func(b *Block) {}, false},
		{"negative height", func(b *Block) { b.Height = -1; b.HashChain = nil }, true},
		{"short hash", func(b *Block) { b.Hash = b.Hash[:10] }, true},
		{"missing prev hash", func(b *Block) { b.PrevHash = nil }, true},
		{"chain shorter than height", func(b *Block) { b.HashChain = b.HashChain[:1] }, true},
		{"chain tip not prev hash", func(b *Block) { b.HashChain[1] = testHash("other") }, true},
		{"zero difficulty", func(b *Block) { b.Difficulty = 0 }, true},
		{"invalid tx", func(b *Block) { b.Txs[0].Amount = 0 }, true},
		{"genesis", func(b *Block) {
			b.Height = 0
			b.PrevHash = nil
			b.HashChain = nil
			b.Txs = nil
		}, false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			b := validBlock()
			tc.mutate(b)
			err := b.ValidateBasic()
			if tc.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestBlockValidateBasicNil(t *testing.T) {
	var b *Block
	require.Error(t, b.ValidateBasic())
}

func TestBlockExtendedChain(t *testing.T) {
	b := validBlock()
	chain := b.ExtendedChain()

	require.Len(t, chain, 3)
	assert.True(t, chain[0].Equal(b.HashChain[0]))
	assert.True(t, chain[1].Equal(b.HashChain[1]))
	assert.True(t, chain[2].Equal(b.Hash))

	// the returned slice must not alias the block's chain
	chain[0] = testHash("clobber")
	assert.True(t, b.HashChain[0].Equal(testHash("b0")))
}

func TestBlockEqual(t *testing.T) {
	a := validBlock()
	b := validBlock()
	assert.True(t, a.Equal(b))

	b.Height = 3
	assert.False(t, a.Equal(b))

	b = validBlock()
	b.Hash = testHash("other")
	assert.False(t, a.Equal(b))

	var nilBlock *Block
	assert.False(t, a.Equal(nilBlock))
	assert.True(t, nilBlock.Equal(nil))
}

func TestTxValidateBasic(t *testing.T) {
	testCases := []struct {
		name      string
		tx        Tx
		expectErr bool
	}{
		{"valid", Tx{ID: testHash("t"), Owner: "a", Target: "b", Amount: 1}, false},
		{"empty id", Tx{Owner: "a", Target: "b", Amount: 1}, true},
		{"empty owner", Tx{ID: testHash("t"), Target: "b", Amount: 1}, true},
		{"empty target", Tx{ID: testHash("t"), Owner: "a", Amount: 1}, true},
		{"self transfer", Tx{ID: testHash("t"), Owner: "a", Target: "a", Amount: 1}, true},
		{"zero amount", Tx{ID: testHash("t"), Owner: "a", Target: "b", Amount: 0}, true},
		{"negative amount", Tx{ID: testHash("t"), Owner: "a", Target: "b", Amount: -5}, true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tx.ValidateBasic()
			if tc.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
