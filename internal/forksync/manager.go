package forksync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/weaveledger/weaveledger/internal/peer"
	wbytes "github.com/weaveledger/weaveledger/libs/bytes"
	"github.com/weaveledger/weaveledger/libs/log"
	"github.com/weaveledger/weaveledger/libs/service"
	"github.com/weaveledger/weaveledger/types"
)

var _ service.Service = (*Manager)(nil)

// Manager owns fork recovery for one node. At most one session is live at a
// time: a divergence detected while a session is running supersedes it, so
// two sessions never race on the block store.
type Manager struct {
	service.BaseService
	logger log.Logger

	cfg       Config
	source    peer.BlockSource
	store     BlockStore
	validator ChainValidator
	recall    RecallFunc
	metrics   *Metrics

	mtx     sync.Mutex
	ctx     context.Context
	current *Session
}

// NewManager returns an unstarted manager. The collaborators are shared by
// every session the manager spawns.
func NewManager(
	logger log.Logger,
	cfg Config,
	source peer.BlockSource,
	store BlockStore,
	validator ChainValidator,
	recall RecallFunc,
	metrics *Metrics,
) (*Manager, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := &Manager{
		logger:    logger,
		cfg:       cfg,
		source:    source,
		store:     store,
		validator: validator,
		recall:    recall,
		metrics:   metrics,
	}
	m.BaseService = *service.NewBaseService(logger, "ForkRecoveryManager", m)
	return m, nil
}

// OnStart records the lifetime context under which sessions run.
func (m *Manager) OnStart(ctx context.Context) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.ctx = ctx
	return nil
}

// OnStop cancels the active session, if any, and waits it out.
func (m *Manager) OnStop() {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.stopSession(m.current)
	m.current = nil
}

// StartRecovery spawns a session recovering the node from localChain
// (oldest first) onto target. If the node already sits on target it returns
// ErrAlreadySynced and starts nothing. A previously started session is
// canceled and waited out first.
//
// The returned session delivers exactly one Result on Session.Result.
func (m *Manager) StartRecovery(
	peers peer.Set,
	target *types.Block,
	localChain []wbytes.HexBytes,
) (*Session, error) {
	if !m.IsRunning() {
		return nil, errors.New("fork recovery manager is not running")
	}
	if err := target.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("%w: target: %v", ErrMalformedBlock, err)
	}

	if n := len(localChain); n > 0 && localChain[n-1].Equal(target.Hash) {
		return nil, ErrAlreadySynced
	}

	pending := WorkList(localChain, target)

	s := NewSession(
		m.logger.With("target", target.Hash.ShortString()),
		m.cfg,
		peers,
		target,
		pending,
		m.source,
		m.store,
		m.validator,
		m.recall,
		m.metrics,
	)

	// The whole supersede-and-start sequence runs under the lock, so two
	// concurrent calls cannot both observe no active session and leave two
	// sessions writing to the store.
	m.mtx.Lock()
	defer m.mtx.Unlock()

	// Re-checked under the lock: OnStop may have run since the check above.
	if !m.IsRunning() {
		return nil, errors.New("fork recovery manager is not running")
	}

	if prev := m.current; prev != nil {
		m.logger.Info("superseding active recovery",
			"old_target", prev.Target().Hash.ShortString(),
			"new_target", target.Hash.ShortString())
		m.stopSession(prev)
		m.current = nil
	}

	m.logger.Info("starting fork recovery",
		"target_height", target.Height,
		"target_hash", target.Hash.ShortString(),
		"blocks_to_fetch", len(pending),
		"peers", peers.Len())

	if err := s.Start(m.ctx); err != nil {
		return nil, err
	}
	m.current = s

	return s, nil
}

// Current returns the most recently started session, or nil.
func (m *Manager) Current() *Session {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.current
}

// stopSession stops s and waits for its goroutine to exit, so a superseded
// session can no longer touch the store. Only sessions that were started
// are handed to it. It takes no lock; callers hold m.mtx where needed.
func (m *Manager) stopSession(s *Session) {
	if s == nil {
		return
	}
	if err := s.Stop(); err != nil && err != service.ErrAlreadyStopped {
		m.logger.Error("error stopping session", "err", err)
	}
	s.Wait()
}
