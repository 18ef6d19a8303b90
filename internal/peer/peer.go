package peer

import (
	"context"
	"fmt"
	"strings"

	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/types"
)

// ID is a peer identifier.
type ID string

// Set is an immutable collection of peers. A recovery session fetches all
// of its blocks through one Set for the session's lifetime.
type Set struct {
	ids []ID
}

// NewSet returns a Set holding the given peers, duplicates removed,
// order preserved.
func NewSet(ids ...ID) Set {
	seen := make(map[ID]struct{}, len(ids))
	out := make([]ID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return Set{ids: out}
}

// Len returns the number of peers in the set.
func (s Set) Len() int { return len(s.ids) }

// IDs returns a copy of the peer identifiers.
func (s Set) IDs() []ID {
	out := make([]ID, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s Set) String() string {
	parts := make([]string, len(s.ids))
	for i, id := range s.ids {
		parts[i] = string(id)
	}
	return fmt.Sprintf("Set{%s}", strings.Join(parts, ","))
}

// BlockSource resolves a block hash to a full block via a peer set. The
// transport behind it is not this package's concern.
//
// Implementations return a nil block with a nil error when no peer could
// produce the block; an error indicates the fetch itself failed.
type BlockSource interface {
	Block(ctx context.Context, peers Set, hash wbytes.HexBytes) (*types.Block, error)
}
