package store

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/types"
)

func makeHash(s string) wbytes.HexBytes {
	h := sha256.Sum256([]byte(s))
	return h[:]
}

func makeBlocks(n int, label string) []*types.Block {
	blocks := make([]*types.Block, 0, n)
	var prev *types.Block

	for i := 0; i < n; i++ {
		b := &types.Block{
			Height:     int64(i),
			Timestamp:  int64(1000 + i),
			Hash:       makeHash(fmt.Sprintf("%s-%d", label, i)),
			Wallets:    types.WalletState{"alice": 100},
			Difficulty: 10,
		}
		if prev != nil {
			b.PrevHash = prev.Hash
			b.HashChain = prev.ExtendedChain()
		}
		blocks = append(blocks, b)
		prev = b
	}

	return blocks
}

func TestBlockStoreEmpty(t *testing.T) {
	bs := NewBlockStore(dbm.NewMemDB())

	_, err := bs.ReadBlock(makeHash("nope"))
	require.ErrorIs(t, err, ErrNotFound)

	ok, err := bs.HasBlock(makeHash("nope"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = bs.Tip()
	require.ErrorIs(t, err, ErrNotFound)

	height, err := bs.Height()
	require.NoError(t, err)
	assert.EqualValues(t, -1, height)
}

func TestBlockStoreWriteRead(t *testing.T) {
	bs := NewBlockStore(dbm.NewMemDB())
	blocks := makeBlocks(5, "main")

	require.NoError(t, bs.WriteBlocks(blocks))

	for _, want := range blocks {
		got, err := bs.ReadBlock(want.Hash)
		require.NoError(t, err)
		assert.True(t, got.Equal(want))
		assert.EqualValues(t, want.Height, got.Height)
		assert.True(t, got.Wallets.Equal(want.Wallets))

		ok, err := bs.HasBlock(want.Hash)
		require.NoError(t, err)
		assert.True(t, ok)

		byHeight, err := bs.ReadBlockByHeight(want.Height)
		require.NoError(t, err)
		assert.True(t, byHeight.Equal(want))
	}

	tip, err := bs.Tip()
	require.NoError(t, err)
	assert.True(t, tip.Equal(blocks[4]))

	height, err := bs.Height()
	require.NoError(t, err)
	assert.EqualValues(t, 4, height)
}

func TestBlockStoreWriteEmpty(t *testing.T) {
	bs := NewBlockStore(dbm.NewMemDB())
	require.Error(t, bs.WriteBlocks(nil))
}

func TestBlockStoreSaveBlock(t *testing.T) {
	bs := NewBlockStore(dbm.NewMemDB())
	blocks := makeBlocks(2, "main")

	require.NoError(t, bs.SaveBlock(blocks[0]))
	require.NoError(t, bs.SaveBlock(blocks[1]))

	tip, err := bs.Tip()
	require.NoError(t, err)
	assert.True(t, tip.Equal(blocks[1]))
}

func TestBlockStoreReorgMovesTip(t *testing.T) {
	bs := NewBlockStore(dbm.NewMemDB())

	main := makeBlocks(4, "main")
	require.NoError(t, bs.WriteBlocks(main))

	// adopt a competing chain that reuses heights 2-3 and extends to 4
	fork := makeBlocks(5, "fork")[2:]
	require.NoError(t, bs.WriteBlocks(fork))

	tip, err := bs.Tip()
	require.NoError(t, err)
	assert.True(t, tip.Equal(fork[2]))

	height, err := bs.Height()
	require.NoError(t, err)
	assert.EqualValues(t, 4, height)

	// the height index now points at the adopted fork
	at2, err := bs.ReadBlockByHeight(2)
	require.NoError(t, err)
	assert.True(t, at2.Equal(fork[0]))

	// superseded blocks remain readable by hash
	old, err := bs.ReadBlock(main[2].Hash)
	require.NoError(t, err)
	assert.True(t, old.Equal(main[2]))
}
