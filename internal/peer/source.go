package peer

import (
	"context"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/libs/log"
	"github.com/weaveledger/weaveledger/types"
)

// BlockReader is the read side of a block store.
type BlockReader interface {
	ReadBlock(hash wbytes.HexBytes) (*types.Block, error)
	HasBlock(hash wbytes.HexBytes) (bool, error)
}

var _ BlockSource = (*StoreSource)(nil)

// StoreSource serves blocks out of a local block store. It is the source a
// node exposes to its own peers, and lets one node's store stand in as
// another node's peer set during recovery.
type StoreSource struct {
	logger log.Logger
	reader BlockReader
}

// NewStoreSource returns a StoreSource reading from the given store.
func NewStoreSource(logger log.Logger, reader BlockReader) *StoreSource {
	return &StoreSource{
		logger: logger,
		reader: reader,
	}
}

// Block implements BlockSource. A block absent from the store yields a nil
// block and a nil error, mirroring a peer that has nothing to offer.
func (s *StoreSource) Block(ctx context.Context, peers Set, hash wbytes.HexBytes) (*types.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ok, err := s.reader.HasBlock(hash)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Debug("requested a block we do not have", "hash", hash.ShortString())
		return nil, nil
	}

	return s.reader.ReadBlock(hash)
}
