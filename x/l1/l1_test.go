package l1

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/derive/derivetest"
)

type mockFetcher struct {
	mu       sync.Mutex
	calls    map[uint64]int
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	fail     uint64
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{calls: make(map[uint64]int)}
}

func (m *mockFetcher) BlockByNumber(ctx context.Context, number uint64) (BlockInfo, error) {
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		seen := m.maxSeen.Load()
		if n <= seen || m.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	m.mu.Lock()
	m.calls[number]++
	m.mu.Unlock()

	time.Sleep(time.Millisecond)
	if err := ctx.Err(); err != nil {
		return BlockInfo{}, err
	}
	if m.fail != 0 && number == m.fail {
		return BlockInfo{}, fmt.Errorf("%w: %d", ErrBlockNotFound, number)
	}
	return BlockInfo{Hash: derivetest.L1Hash(number), Number: number, Timestamp: 1_700_000_000 + 12*number}, nil
}

func (m *mockFetcher) BlockByHash(context.Context, common.Hash) (BlockInfo, error) {
	return BlockInfo{}, errors.New("not implemented")
}

func TestFetchOrigins_Order(t *testing.T) {
	t.Parallel()

	f := newMockFetcher()
	numbers := []uint64{9, 3, 7, 1, 5, 2, 8, 4, 6}
	infos, err := FetchOrigins(context.Background(), f, numbers, 3)
	require.NoError(t, err)
	require.Len(t, infos, len(numbers))
	for i, n := range numbers {
		assert.Equal(t, n, infos[i].Number)
		assert.Equal(t, derivetest.L1Hash(n), infos[i].Hash)
	}
	assert.LessOrEqual(t, f.maxSeen.Load(), int32(3))
}

func TestFetchOrigins_Error(t *testing.T) {
	t.Parallel()

	f := newMockFetcher()
	f.fail = 4
	_, err := FetchOrigins(context.Background(), f, []uint64{1, 2, 3, 4, 5}, 2)
	require.ErrorIs(t, err, ErrBlockNotFound)
}

func TestFillBlockOrigins(t *testing.T) {
	t.Parallel()

	chain := derivetest.NewChain(t, rand.New(rand.NewSource(5)))
	blocks := chain.RandomBlocks(12, 0, 0)
	want := make([]common.Hash, len(blocks))
	for i, b := range blocks {
		want[i] = b.L1Origin.Hash
		b.L1Origin.Hash = common.Hash{}
	}
	blocks[0].L1Origin.Hash = want[0]

	f := newMockFetcher()
	require.NoError(t, FillBlockOrigins(context.Background(), f, blocks, 4))
	for i, b := range blocks {
		assert.Equal(t, want[i], b.L1Origin.Hash, "block %d", i)
	}
	for n, calls := range f.calls {
		assert.Equal(t, 1, calls, "origin %d fetched once", n)
	}
}

func TestFillBatchOrigins(t *testing.T) {
	t.Parallel()

	batches := []*derive.SingularBatch{
		{EpochNum: 10},
		{EpochNum: 10},
		{EpochNum: 11, EpochHash: common.HexToHash("0x11")},
		{EpochNum: 12},
	}
	f := newMockFetcher()
	require.NoError(t, FillBatchOrigins(context.Background(), f, batches, 2))
	assert.Equal(t, derivetest.L1Hash(10), batches[0].EpochHash)
	assert.Equal(t, derivetest.L1Hash(10), batches[1].EpochHash)
	assert.Equal(t, common.HexToHash("0x11"), batches[2].EpochHash)
	assert.Equal(t, derivetest.L1Hash(12), batches[3].EpochHash)
	assert.Equal(t, map[uint64]int{10: 1, 12: 1}, f.calls)
}

type mockHeaders struct {
	headers map[uint64]*types.Header
	closed  bool
}

func (m *mockHeaders) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	h, ok := m.headers[number.Uint64()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return h, nil
}

func (m *mockHeaders) HeaderByHash(_ context.Context, hash common.Hash) (*types.Header, error) {
	for _, h := range m.headers {
		if h.Hash() == hash {
			return h, nil
		}
	}
	return nil, ethereum.NotFound
}

func (m *mockHeaders) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (m *mockHeaders) Close() {
	m.closed = true
}

func TestClient(t *testing.T) {
	t.Parallel()

	header := &types.Header{Number: big.NewInt(77), Time: 1_234, Difficulty: big.NewInt(0)}
	src := &mockHeaders{headers: map[uint64]*types.Header{77: header}}
	c := newClient(src, DefaultConfig(), zerolog.Nop())

	info, err := c.BlockByNumber(context.Background(), 77)
	require.NoError(t, err)
	assert.Equal(t, BlockInfo{Hash: header.Hash(), Number: 77, Timestamp: 1_234}, info)
	assert.Equal(t, derive.L1BlockRef{Hash: header.Hash(), Number: 77, Timestamp: 1_234}, info.Ref())

	byHash, err := c.BlockByHash(context.Background(), header.Hash())
	require.NoError(t, err)
	assert.Equal(t, info, byHash)

	_, err = c.BlockByNumber(context.Background(), 78)
	require.ErrorIs(t, err, ErrBlockNotFound)

	c.Close()
	assert.True(t, src.closed)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.False(t, cfg.Enabled())

	cfg.FetchParallelism = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.RequestTimeout = -time.Second
	require.Error(t, cfg.Validate())

	_, err := Dial(context.Background(), DefaultConfig(), zerolog.Nop())
	require.Error(t, err)
}
