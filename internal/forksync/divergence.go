package forksync

import (
	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/types"
)

// Divergence returns the suffix of target that the local chain does not
// share. Both chains are oldest first. The two chains are walked from
// genesis and every position where the hashes agree is dropped; the walk
// stops at the first mismatch or at the end of either chain.
//
// Identical chains yield an empty result. Chains with no common prefix
// yield the entire target chain.
func Divergence(local, target []wbytes.HexBytes) []wbytes.HexBytes {
	shared := 0
	for shared < len(local) && shared < len(target) {
		if !local[shared].Equal(target[shared]) {
			break
		}
		shared++
	}

	missing := make([]wbytes.HexBytes, len(target)-shared)
	copy(missing, target[shared:])
	return missing
}

// WorkList returns the ordered hashes a session must fetch and verify to
// walk from the divergence point up to and including the target block.
func WorkList(local []wbytes.HexBytes, target *types.Block) []wbytes.HexBytes {
	return append(Divergence(local, target.HashChain), target.Hash)
}
