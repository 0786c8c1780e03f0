package l1

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/compose-network/batcher/x/derive"
)

// ErrBlockNotFound is returned when the node does not know the block.
var ErrBlockNotFound = errors.New("l1 block not found")

// BlockInfo is the L1 block metadata the codec consumes.
type BlockInfo struct {
	Hash      common.Hash `json:"hash"`
	Number    uint64      `json:"number"`
	Timestamp uint64      `json:"timestamp"`
}

// Ref converts the info into a derive.L1BlockRef.
func (b BlockInfo) Ref() derive.L1BlockRef {
	return derive.L1BlockRef{Hash: b.Hash, Number: b.Number, Timestamp: b.Timestamp}
}

// ID returns the block id.
func (b BlockInfo) ID() derive.BlockID {
	return derive.BlockID{Hash: b.Hash, Number: b.Number}
}

// Fetcher looks up L1 blocks.
type Fetcher interface {
	BlockByNumber(ctx context.Context, number uint64) (BlockInfo, error)
	BlockByHash(ctx context.Context, hash common.Hash) (BlockInfo, error)
}

// headerSource is the part of ethclient.Client the Client uses.
type headerSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	HeaderByHash(ctx context.Context, hash common.Hash) (*types.Header, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// Client is a Fetcher backed by an Ethereum JSON-RPC node.
type Client struct {
	src headerSource
	cfg Config
	log zerolog.Logger
}

// Dial connects to cfg.RPCEndpoint and, when cfg.ChainID is set, checks the
// node serves that chain.
func Dial(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("l1 RPC endpoint is required")
	}
	ec, err := ethclient.DialContext(ctx, cfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to L1: %w", err)
	}
	c := newClient(ec, cfg, log)
	if cfg.ChainID != 0 {
		id, err := ec.ChainID(ctx)
		if err != nil {
			ec.Close()
			return nil, fmt.Errorf("failed to query L1 chain id: %w", err)
		}
		if id.Uint64() != cfg.ChainID {
			ec.Close()
			return nil, fmt.Errorf("L1 chain id mismatch: configured %d, node reports %s", cfg.ChainID, id)
		}
	}
	c.log.Info().
		Str("rpc_endpoint", cfg.RPCEndpoint).
		Uint64("chain_id", cfg.ChainID).
		Int("fetch_parallelism", cfg.FetchParallelism).
		Msg("L1 client connected")
	return c, nil
}

func newClient(src headerSource, cfg Config, log zerolog.Logger) *Client {
	return &Client{
		src: src,
		cfg: cfg,
		log: log.With().Str("component", "l1-client").Logger(),
	}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.cfg.RequestTimeout)
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (BlockInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	h, err := c.src.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return BlockInfo{}, c.wrap(err, fmt.Sprintf("block %d", number))
	}
	return infoFromHeader(h), nil
}

func (c *Client) BlockByHash(ctx context.Context, hash common.Hash) (BlockInfo, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	h, err := c.src.HeaderByHash(ctx, hash)
	if err != nil {
		return BlockInfo{}, c.wrap(err, "block "+hash.TerminalString())
	}
	return infoFromHeader(h), nil
}

func (c *Client) wrap(err error, what string) error {
	if errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("%w: %s", ErrBlockNotFound, what)
	}
	c.log.Warn().Err(err).Str("block", what).Msg("L1 header request failed")
	return fmt.Errorf("fetching %s: %w", what, err)
}

func (c *Client) Close() {
	c.src.Close()
}

func infoFromHeader(h *types.Header) BlockInfo {
	return BlockInfo{
		Hash:      h.Hash(),
		Number:    h.Number.Uint64(),
		Timestamp: h.Time,
	}
}
