package consensus

import (
	"crypto/sha256"
	"encoding/binary"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/types"
)

// RecallHash selects the recall block for a successor of b: the ancestor
// whose content must be proven to extend the chain past b. The choice is
// derived from b's hash and recall seed, so every node selects the same
// ancestor. A genesis block with no ancestry recalls itself.
func RecallHash(b *types.Block, chain []wbytes.HexBytes) wbytes.HexBytes {
	if len(chain) == 0 {
		return b.Hash
	}

	h := sha256.New()
	h.Write(b.Hash)
	h.Write(b.RecallSeed)
	sum := h.Sum(nil)

	idx := binary.BigEndian.Uint64(sum[:8]) % uint64(len(chain))
	return chain[idx]
}
