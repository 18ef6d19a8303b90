package forksync

import (
	"context"
	"fmt"
	"time"

	"github.com/creachadair/taskgroup"

	"github.com/weaveledger/weaveledger/internal/peer"
	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/libs/log"
	"github.com/weaveledger/weaveledger/libs/service"
	"github.com/weaveledger/weaveledger/types"
)

// BlockStore is the session's view of local block persistence. WriteBlocks
// must commit all blocks atomically: a crash mid-write is the store's
// problem, a partially adopted chain is never this package's.
type BlockStore interface {
	ReadBlock(hash wbytes.HexBytes) (*types.Block, error)
	WriteBlocks(blocks []*types.Block) error
}

// ChainValidator is the consensus gate. Validate must check linkage,
// proof of work and access, transaction legality against the supplied
// wallet state, and any chain-level rules the implementation carries.
type ChainValidator interface {
	ApplyTxs(ws types.WalletState, txs []types.Tx) (types.WalletState, error)
	Validate(chain []wbytes.HexBytes, ws types.WalletState, candidate, prev, recall *types.Block) error
}

// RecallFunc selects the recall block a predecessor demands: given a block
// and its ancestry chain, it returns the hash of the block whose content
// must be proven to validate the successor. Deterministic; opaque here.
type RecallFunc func(b *types.Block, chain []wbytes.HexBytes) wbytes.HexBytes

// Event distinguishes the two terminal outcomes of a session.
type Event int8

const (
	// EventRecovered means the target chain was fully verified and adopted.
	EventRecovered Event = iota + 1
	// EventAborted means the session halted without adopting anything.
	EventAborted
)

func (e Event) String() string {
	switch e {
	case EventRecovered:
		return "Recovered"
	case EventAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("Event(%d)", e)
	}
}

// Result is the terminal outcome of a session, delivered exactly once on
// Session.Result. NewChain is set only for EventRecovered, Err only for
// EventAborted.
type Result struct {
	Event    Event
	NewChain []wbytes.HexBytes
	Err      error
}

var _ service.Service = (*Session)(nil)

// Session drives one fork recovery to a terminal state. It fetches the
// pending blocks from its peer set strictly in order, validates each
// against its verified predecessor and the recall block the predecessor
// selects, and adopts the target chain only when every block has passed.
//
// A Session is created per detected divergence, runs once, and is
// discarded. It is not reusable.
type Session struct {
	service.BaseService
	logger log.Logger

	cfg       Config
	peers     peer.Set
	target    *types.Block
	source    peer.BlockSource
	store     BlockStore
	validator ChainValidator
	recall    RecallFunc
	metrics   *Metrics

	// accumulated is newest first: accumulated[0] is the most recently
	// verified block. pending is oldest first. Both are owned exclusively
	// by the run goroutine; read them only after Wait returns.
	accumulated []*types.Block
	pending     []wbytes.HexBytes

	cancel   context.CancelFunc
	tasks    *taskgroup.Group
	resultCh chan Result
}

// NewSession returns an unstarted session that will fetch and verify the
// pending hashes (oldest first) until the accumulated chain reaches target.
func NewSession(
	logger log.Logger,
	cfg Config,
	peers peer.Set,
	target *types.Block,
	pending []wbytes.HexBytes,
	source peer.BlockSource,
	store BlockStore,
	validator ChainValidator,
	recall RecallFunc,
	metrics *Metrics,
) *Session {
	s := &Session{
		logger:    logger,
		cfg:       cfg,
		peers:     peers,
		target:    target,
		source:    source,
		store:     store,
		validator: validator,
		recall:    recall,
		metrics:   metrics,
		pending:   pending,
		resultCh:  make(chan Result, 1),
	}
	s.BaseService = *service.NewBaseService(logger, "ForkRecovery", s)
	return s
}

// OnStart spawns the recovery goroutine.
func (s *Session) OnStart(ctx context.Context) error {
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.tasks = taskgroup.New(nil)
	s.tasks.Go(func() error {
		s.run(rctx)
		return nil
	})

	return nil
}

// OnStop interrupts the recovery goroutine. The session still delivers its
// terminal (Aborted) result.
func (s *Session) OnStop() {
	s.cancel()
}

// Wait blocks until the recovery goroutine has fully exited.
func (s *Session) Wait() {
	s.BaseService.Wait()
	_ = s.tasks.Wait()
}

// Result returns the channel carrying the session's single terminal result.
func (s *Session) Result() <-chan Result {
	return s.resultCh
}

// Target returns the block the session is recovering onto.
func (s *Session) Target() *types.Block {
	return s.target
}

// Accumulated returns the verified blocks, newest first. Call only after
// the session has stopped.
func (s *Session) Accumulated() []*types.Block {
	out := make([]*types.Block, len(s.accumulated))
	copy(out, s.accumulated)
	return out
}

// run is the sequential fetch/validate loop. It terminates with exactly one
// result: Recovered once the accumulated head is the target and the chain
// has been persisted, Aborted on the first failure of any kind.
func (s *Session) run(ctx context.Context) {
	defer func() {
		if err := s.Stop(); err != nil && err != service.ErrAlreadyStopped {
			s.logger.Error("error stopping session", "err", err)
		}
	}()

	s.metrics.Recovering.Set(1)
	defer s.metrics.Recovering.Set(0)

	for {
		if head := s.head(); head != nil && head.Equal(s.target) {
			s.finish()
			return
		}

		if err := ctx.Err(); err != nil {
			s.abort(fmt.Errorf("%w: %v", ErrCanceled, err))
			return
		}

		// The termination check above already ran, so an empty work list
		// here means the target is unreachable.
		if len(s.pending) == 0 {
			s.abort(fmt.Errorf("%w: verified %d blocks without reaching %v",
				ErrChainExhausted, len(s.accumulated), s.target.Hash.ShortString()))
			return
		}

		if err := s.step(ctx); err != nil {
			s.abort(err)
			return
		}
	}
}

// step fetches and validates the next pending block. Both the first and
// every subsequent step share this code path; they differ only in how the
// predecessor is located.
func (s *Session) step(ctx context.Context) error {
	next := s.pending[0]

	nextB, err := s.fetchBlock(ctx, next)
	if err != nil {
		return err
	}
	if err := nextB.ValidateBasic(); err != nil {
		return fmt.Errorf("%w: block %v: %v", ErrMalformedBlock, next.ShortString(), err)
	}

	lookup := s.predecessorFromAccumulated
	if len(s.accumulated) == 0 {
		lookup = s.predecessorFromStorage
	}
	prev, err := lookup(nextB)
	if err != nil {
		return err
	}

	recallB, err := s.fetchBlock(ctx, s.recall(prev, prev.HashChain))
	if err != nil {
		return err
	}
	if err := recallB.ValidateBasic(); err != nil {
		return fmt.Errorf("%w: recall block %v: %v", ErrMalformedBlock, recallB.Hash.ShortString(), err)
	}

	wallets, err := s.validator.ApplyTxs(prev.Wallets, nextB.Txs)
	if err != nil {
		return fmt.Errorf("%w: applying txs at height %d: %v", ErrValidationRejected, nextB.Height, err)
	}

	if err := s.validator.Validate(prev.ExtendedChain(), wallets, nextB, prev, recallB); err != nil {
		return fmt.Errorf("%w: block %v at height %d: %v",
			ErrValidationRejected, nextB.Hash.ShortString(), nextB.Height, err)
	}

	s.accumulated = append([]*types.Block{nextB}, s.accumulated...)
	s.pending = s.pending[1:]

	s.metrics.BlocksVerified.Add(1)
	s.logger.Info("verified block",
		"height", nextB.Height,
		"hash", nextB.Hash.ShortString(),
		"remaining", len(s.pending))

	return nil
}

// predecessorFromStorage bridges the first step from persisted state: the
// predecessor sits at or before the divergence point, so it must already be
// canonical locally.
func (s *Session) predecessorFromStorage(next *types.Block) (*types.Block, error) {
	prev, err := s.store.ReadBlock(next.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("%w: predecessor %v not in local store: %v",
			ErrMissingBlock, next.PrevHash.ShortString(), err)
	}
	if err := prev.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("%w: stored predecessor %v: %v",
			ErrMalformedBlock, next.PrevHash.ShortString(), err)
	}
	return prev, nil
}

// predecessorFromAccumulated serves every later step from memory: the
// predecessor is the block verified by the previous step.
func (s *Session) predecessorFromAccumulated(*types.Block) (*types.Block, error) {
	return s.accumulated[0], nil
}

// fetchBlock resolves a hash through the peer set, retrying transient
// failures up to the configured attempt budget.
func (s *Session) fetchBlock(ctx context.Context, hash wbytes.HexBytes) (*types.Block, error) {
	var lastErr error

	for attempt := 1; ; attempt++ {
		fctx := ctx
		cancel := context.CancelFunc(func() {})
		if s.cfg.FetchTimeout > 0 {
			fctx, cancel = context.WithTimeout(ctx, s.cfg.FetchTimeout)
		}
		b, err := s.source.Block(fctx, s.peers, hash)
		cancel()

		switch {
		case err == nil && b != nil:
			s.metrics.BlocksFetched.Add(1)
			return b, nil
		case err == nil:
			lastErr = fmt.Errorf("%w: no peer produced %v", ErrMissingBlock, hash.ShortString())
		default:
			lastErr = fmt.Errorf("%w: fetching %v: %v", ErrMissingBlock, hash.ShortString(), err)
		}

		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCanceled, err)
		}
		if attempt >= s.cfg.FetchAttempts {
			return nil, lastErr
		}

		s.metrics.FetchRetries.Add(1)
		s.logger.Debug("retrying block fetch",
			"hash", hash.ShortString(),
			"attempt", attempt,
			"err", lastErr)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrCanceled, ctx.Err())
		case <-time.After(s.cfg.RetryBackoff):
		}
	}
}

// finish persists the accumulated chain as one atomic commit and reports
// the new canonical chain. The target block's self-reported ancestry is
// authoritative for the report.
func (s *Session) finish() {
	blocks := make([]*types.Block, len(s.accumulated))
	for i, b := range s.accumulated {
		blocks[len(blocks)-1-i] = b
	}

	if err := s.store.WriteBlocks(blocks); err != nil {
		s.abort(fmt.Errorf("%w: committing %d blocks: %v", ErrStorageFailure, len(blocks), err))
		return
	}

	s.metrics.Recoveries.Add(1)
	s.metrics.TipHeight.Set(float64(s.target.Height))
	s.logger.Info("fork recovered",
		"height", s.target.Height,
		"hash", s.target.Hash.ShortString(),
		"blocks", len(blocks))

	s.resultCh <- Result{Event: EventRecovered, NewChain: s.target.ExtendedChain()}
}

func (s *Session) abort(err error) {
	s.metrics.Aborts.Add(1)
	s.logger.Error("fork recovery aborted",
		"err", err,
		"verified", len(s.accumulated),
		"remaining", len(s.pending))

	s.resultCh <- Result{Event: EventAborted, Err: err}
}

func (s *Session) head() *types.Block {
	if len(s.accumulated) == 0 {
		return nil
	}
	return s.accumulated[0]
}
