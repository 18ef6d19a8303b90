package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/types"
)

// ErrNotFound is returned when a requested block is not in the store.
var ErrNotFound = errors.New("block not found")

/*
BlockStore is a simple low level store for blocks.

Blocks are addressed by their independent hash; a height index maps each
height to the hash canonical at that height, and a tip record names the
current chain head. A fork recovery commit rewrites the height index for
the adopted range and moves the tip, all in one atomic batch.
*/
type BlockStore struct {
	db dbm.DB
}

// NewBlockStore returns a new BlockStore with the given DB.
func NewBlockStore(db dbm.DB) *BlockStore {
	return &BlockStore{db: db}
}

// ReadBlock returns the block with the given independent hash, or
// ErrNotFound.
func (bs *BlockStore) ReadBlock(hash wbytes.HexBytes) (*types.Block, error) {
	bz, err := bs.db.Get(blockKey(hash))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, hash.ShortString())
	}

	block := new(types.Block)
	if err := json.Unmarshal(bz, block); err != nil {
		return nil, fmt.Errorf("decoding block %v: %w", hash.ShortString(), err)
	}
	return block, nil
}

// HasBlock reports whether the block with the given hash is stored.
func (bs *BlockStore) HasBlock(hash wbytes.HexBytes) (bool, error) {
	return bs.db.Has(blockKey(hash))
}

// ReadBlockByHeight returns the block canonical at the given height, or
// ErrNotFound.
func (bs *BlockStore) ReadBlockByHeight(height int64) (*types.Block, error) {
	bz, err := bs.db.Get(heightKey(height))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, fmt.Errorf("%w: height %d", ErrNotFound, height)
	}
	return bs.ReadBlock(bz)
}

// WriteBlocks persists the given blocks (oldest first), updates the height
// index, and moves the tip to the last block. The whole write is one
// atomic, synchronous commit.
func (bs *BlockStore) WriteBlocks(blocks []*types.Block) error {
	if len(blocks) == 0 {
		return errors.New("no blocks to write")
	}

	batch := bs.db.NewBatch()
	defer batch.Close()

	for _, block := range blocks {
		bz, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("encoding block %v: %w", block.Hash.ShortString(), err)
		}
		if err := batch.Set(blockKey(block.Hash), bz); err != nil {
			return err
		}
		if err := batch.Set(heightKey(block.Height), block.Hash); err != nil {
			return err
		}
	}

	tip := blocks[len(blocks)-1]
	if err := batch.Set(tipKey(), tip.Hash); err != nil {
		return err
	}

	return batch.WriteSync()
}

// SaveBlock persists a single block.
func (bs *BlockStore) SaveBlock(block *types.Block) error {
	return bs.WriteBlocks([]*types.Block{block})
}

// TipHash returns the hash of the current chain head, or nil for an empty
// store.
func (bs *BlockStore) TipHash() (wbytes.HexBytes, error) {
	bz, err := bs.db.Get(tipKey())
	if err != nil {
		return nil, err
	}
	return bz, nil
}

// Tip returns the current chain head block, or ErrNotFound for an empty
// store.
func (bs *BlockStore) Tip() (*types.Block, error) {
	hash, err := bs.TipHash()
	if err != nil {
		return nil, err
	}
	if len(hash) == 0 {
		return nil, fmt.Errorf("%w: empty store", ErrNotFound)
	}
	return bs.ReadBlock(hash)
}

// Height returns the height of the chain head, or -1 for an empty store.
func (bs *BlockStore) Height() (int64, error) {
	tip, err := bs.Tip()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return -1, nil
		}
		return -1, err
	}
	return tip.Height, nil
}

// Close closes the underlying database.
func (bs *BlockStore) Close() error {
	return bs.db.Close()
}

//---------------------------------- key layout

const (
	// prefixes must be unique across all keys in the database
	prefixBlock  = int64(0)
	prefixHeight = int64(1)
	prefixTip    = int64(2)
)

func blockKey(hash wbytes.HexBytes) []byte {
	key, err := orderedcode.Append(nil, prefixBlock, string(hash))
	if err != nil {
		panic(err)
	}
	return key
}

func heightKey(height int64) []byte {
	key, err := orderedcode.Append(nil, prefixHeight, height)
	if err != nil {
		panic(err)
	}
	return key
}

func tipKey() []byte {
	key, err := orderedcode.Append(nil, prefixTip)
	if err != nil {
		panic(err)
	}
	return key
}
