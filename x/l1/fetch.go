package l1

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/compose-network/batcher/x/derive"
)

// FetchOrigins looks up the given L1 blocks with at most parallelism requests
// in flight. Results are in the order of numbers.
func FetchOrigins(ctx context.Context, f Fetcher, numbers []uint64, parallelism int) ([]BlockInfo, error) {
	if parallelism < 1 {
		parallelism = 1
	}
	out := make([]BlockInfo, len(numbers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i, n := range numbers {
		g.Go(func() error {
			info, err := f.BlockByNumber(gctx, n)
			if err != nil {
				return err
			}
			if info.Number != n {
				return fmt.Errorf("asked for L1 block %d, got %d", n, info.Number)
			}
			out[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// missingOrigins returns the distinct origin numbers, in first-seen order,
// whose hash is unknown.
func missingOrigins(origins []derive.BlockID) []uint64 {
	seen := make(map[uint64]struct{})
	var numbers []uint64
	for _, o := range origins {
		if o.Hash != (common.Hash{}) {
			continue
		}
		if _, ok := seen[o.Number]; ok {
			continue
		}
		seen[o.Number] = struct{}{}
		numbers = append(numbers, o.Number)
	}
	return numbers
}

func fetchHashes(ctx context.Context, f Fetcher, origins []derive.BlockID, parallelism int) (map[uint64]common.Hash, error) {
	numbers := missingOrigins(origins)
	if len(numbers) == 0 {
		return nil, nil
	}
	infos, err := FetchOrigins(ctx, f, numbers, parallelism)
	if err != nil {
		return nil, err
	}
	hashes := make(map[uint64]common.Hash, len(infos))
	for _, info := range infos {
		hashes[info.Number] = info.Hash
	}
	return hashes, nil
}

// FillBlockOrigins sets the L1 origin hash of every block that lacks one.
func FillBlockOrigins(ctx context.Context, f Fetcher, blocks []*derive.L2Block, parallelism int) error {
	origins := make([]derive.BlockID, len(blocks))
	for i, b := range blocks {
		origins[i] = b.L1Origin
	}
	hashes, err := fetchHashes(ctx, f, origins, parallelism)
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if h, ok := hashes[b.L1Origin.Number]; ok && b.L1Origin.Hash == (common.Hash{}) {
			b.L1Origin.Hash = h
		}
	}
	return nil
}

// FillBatchOrigins sets the epoch hash of every batch that lacks one. Span
// batches only carry the origin numbers, so derived batches need this before
// they can be matched against L1.
func FillBatchOrigins(ctx context.Context, f Fetcher, batches []*derive.SingularBatch, parallelism int) error {
	origins := make([]derive.BlockID, len(batches))
	for i, b := range batches {
		origins[i] = b.Epoch()
	}
	hashes, err := fetchHashes(ctx, f, origins, parallelism)
	if err != nil {
		return err
	}
	for _, b := range batches {
		if h, ok := hashes[b.EpochNum]; ok && b.EpochHash == (common.Hash{}) {
			b.EpochHash = h
		}
	}
	return nil
}
