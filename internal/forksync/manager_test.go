package forksync

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveledger/weaveledger/internal/consensus"
	"github.com/weaveledger/weaveledger/internal/peer"
	"github.com/weaveledger/weaveledger/libs/log"
	"github.com/weaveledger/weaveledger/types"
)

func newTestManager(t *testing.T, source peer.BlockSource, bs BlockStore) *Manager {
	t.Helper()
	m, err := NewManager(
		log.TestingLogger(t),
		testConfig(),
		source,
		bs,
		consensus.NewValidator(log.NewNopLogger()),
		consensus.RecallHash,
		NopMetrics(),
	)
	require.NoError(t, err)
	return m
}

func TestManagerRecovery(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := makeTestChain(t, 5, "main")
	full := appendBlocks(t, local, 3, "main")
	target := full[7]

	bs := seedStore(t, local)
	src := newMapSource(full)

	m := newTestManager(t, src, bs)
	require.NoError(t, m.Start(ctx))

	s, err := m.StartRecovery(peer.NewSet("p1"), target, chainHashes(local))
	require.NoError(t, err)
	require.Same(t, s, m.Current())

	res := waitResult(t, s)
	require.Equal(t, EventRecovered, res.Event)

	tip, err := bs.Tip()
	require.NoError(t, err)
	assert.True(t, tip.Equal(target))

	require.NoError(t, m.Stop())
	m.Wait()
}

func TestManagerAlreadySynced(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := makeTestChain(t, 5, "main")
	target := local[4]

	bs := seedStore(t, local)
	m := newTestManager(t, newMapSource(local), bs)
	require.NoError(t, m.Start(ctx))

	s, err := m.StartRecovery(peer.NewSet("p1"), target, chainHashes(local))
	require.ErrorIs(t, err, ErrAlreadySynced)
	assert.Nil(t, s)
	assert.Nil(t, m.Current())

	require.NoError(t, m.Stop())
	m.Wait()
}

func TestManagerNotRunning(t *testing.T) {
	local := makeTestChain(t, 2, "main")
	target := local[1]

	m := newTestManager(t, newMapSource(local), seedStore(t, local[:1]))

	_, err := m.StartRecovery(peer.NewSet("p1"), target, chainHashes(local[:1]))
	require.Error(t, err)
}

func TestManagerRejectsMalformedTarget(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := makeTestChain(t, 2, "main")
	bad := *local[1]
	bad.Difficulty = 0

	m := newTestManager(t, newMapSource(local), seedStore(t, local[:1]))
	require.NoError(t, m.Start(ctx))

	_, err := m.StartRecovery(peer.NewSet("p1"), &bad, chainHashes(local[:1]))
	require.ErrorIs(t, err, ErrMalformedBlock)

	require.NoError(t, m.Stop())
	m.Wait()
}

func TestManagerSupersedesActiveSession(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	base := makeTestChain(t, 3, "main")
	local := appendBlocks(t, base, 1, "main")   // heights 0-3
	forkA := appendBlocks(t, local, 2, "a")     // stalls
	forkB := appendBlocks(t, local, 2, "b")     // wins

	bs := seedStore(t, local)
	inner := newMapSource(forkA, forkB)
	src := newGateSource(inner)
	src.gate(forkA[4].Hash)

	m := newTestManager(t, src, bs)
	require.NoError(t, m.Start(ctx))

	s1, err := m.StartRecovery(peer.NewSet("p1"), forkA[5], chainHashes(local))
	require.NoError(t, err)

	s2, err := m.StartRecovery(peer.NewSet("p1"), forkB[5], chainHashes(local))
	require.NoError(t, err)
	require.Same(t, s2, m.Current())

	// the first session was canceled before the second started fetching
	res1 := waitResult(t, s1)
	require.Equal(t, EventAborted, res1.Event)
	require.ErrorIs(t, res1.Err, ErrCanceled)

	res2 := waitResult(t, s2)
	require.Equal(t, EventRecovered, res2.Event)

	tip, err := bs.Tip()
	require.NoError(t, err)
	assert.True(t, tip.Equal(forkB[5]))

	require.NoError(t, m.Stop())
	m.Wait()
}

func TestManagerConcurrentStartRecovery(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const forks = 4

	local := makeTestChain(t, 4, "main")
	bs := seedStore(t, local)

	inner := newMapSource(local)
	src := newGateSource(inner)

	// every fork's first unique block is gated, so every session stalls in
	// its first fetch until it is superseded
	targets := make([]*types.Block, forks)
	for i := 0; i < forks; i++ {
		fork := appendBlocks(t, local, 2, fmt.Sprintf("fork-%d", i))
		targets[i] = fork[5]
		for _, b := range fork[4:] {
			inner.put(b)
		}
		src.gate(fork[4].Hash)
	}

	m := newTestManager(t, src, bs)
	require.NoError(t, m.Start(ctx))

	started := make(chan *Session, forks)
	errs := make(chan error, forks)
	for i := 0; i < forks; i++ {
		go func(target *types.Block) {
			s, err := m.StartRecovery(peer.NewSet("p1"), target, chainHashes(local))
			if err != nil {
				errs <- err
				return
			}
			started <- s
		}(targets[i])
	}

	sessions := make([]*Session, 0, forks)
	for i := 0; i < forks; i++ {
		select {
		case s := <-started:
			sessions = append(sessions, s)
		case err := <-errs:
			t.Fatalf("StartRecovery failed: %v", err)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for StartRecovery calls")
		}
	}

	// however the starts interleaved, exactly one session survives and
	// every superseded one was canceled before its successor began
	cur := m.Current()
	require.NotNil(t, cur)

	found := false
	for _, s := range sessions {
		if s == cur {
			found = true
			continue
		}
		res := waitResult(t, s)
		require.Equal(t, EventAborted, res.Event)
		require.ErrorIs(t, res.Err, ErrCanceled)
	}
	require.True(t, found)

	require.NoError(t, m.Stop())
	m.Wait()

	res := waitResult(t, cur)
	require.Equal(t, EventAborted, res.Event)
	require.ErrorIs(t, res.Err, ErrCanceled)
}

func TestManagerStopCancelsSession(t *testing.T) {
	defer leaktest.CheckTimeout(t, time.Second)()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := makeTestChain(t, 5, "main")
	full := appendBlocks(t, local, 1, "main")
	target := full[5]

	bs := seedStore(t, local)
	src := newGateSource(newMapSource(full))
	src.gate(target.Hash)

	m := newTestManager(t, src, bs)
	require.NoError(t, m.Start(ctx))

	s, err := m.StartRecovery(peer.NewSet("p1"), target, chainHashes(local))
	require.NoError(t, err)

	require.NoError(t, m.Stop())
	m.Wait()

	res := waitResult(t, s)
	require.Equal(t, EventAborted, res.Event)
	require.ErrorIs(t, res.Err, ErrCanceled)
	assert.Nil(t, m.Current())
}
