package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/compose-network/batcher/batcher-app/config"
	"github.com/compose-network/batcher/metrics"
	"github.com/compose-network/batcher/x/channel"
	codechttp "github.com/compose-network/batcher/x/channel/http"
	"github.com/compose-network/batcher/x/derive"
	"github.com/compose-network/batcher/x/inbox"
	"github.com/compose-network/batcher/x/l1"
)

func newEncodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Batch L2 blocks into submissions",
		Long: "Reads a JSON object {\"blocks\": [...], \"first_batch_index\": n} and writes the " +
			"submissions, and the blobs they reference, as JSON.",
		RunE: runEncode,
	}
	cmd.Flags().String("in", "-", "input file, - for stdin")
	cmd.Flags().String("out", "-", "output file, - for stdout")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Derive L2 blocks from submissions",
		Long: "Reads the output of encode, with an optional \"l1_block\" object naming the " +
			"including L1 block, and writes the derived blocks as JSON.",
		RunE: runDecode,
	}
	cmd.Flags().String("in", "-", "input file, - for stdin")
	cmd.Flags().String("out", "-", "output file, - for stdout")
	return cmd
}

func runEncode(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	var req codechttp.EncodeRequest
	if err := readJSON(cmd, &req); err != nil {
		return err
	}

	deps, closeDeps, err := buildDeps(cmd.Context(), cfg, logger.Logger, nil)
	if err != nil {
		return err
	}
	defer closeDeps()

	resp, err := codechttp.Encode(cmd.Context(), deps, logger.Module("encode"), req)
	if err != nil {
		return err
	}
	logger.Info().
		Int("blocks", len(req.Blocks)).
		Int("submissions", len(resp.Submissions)).
		Int("blob_txs", len(resp.BlobTxs)).
		Msg("Encoded blocks")
	return writeJSON(cmd, resp)
}

func runDecode(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	var req codechttp.DecodeRequest
	if err := readJSON(cmd, &req); err != nil {
		return err
	}

	deps, closeDeps, err := buildDeps(cmd.Context(), cfg, logger.Logger, nil)
	if err != nil {
		return err
	}
	defer closeDeps()

	resp, decodeErr := codechttp.Decode(cmd.Context(), deps, logger.Module("decode"), req)
	if resp == nil {
		return decodeErr
	}
	logger.Info().
		Int("submissions", len(req.Submissions)).
		Int("blocks", len(resp.Blocks)).
		Int("pending_channels", resp.PendingChannels).
		Int("errors", len(resp.Errors)).
		Msg("Decoded submissions")
	// the derived blocks are written even when some channels failed
	if err := writeJSON(cmd, resp); err != nil {
		return err
	}
	return decodeErr
}

// buildDeps opens the object store and the L1 client the configuration asks
// for. The returned func releases them. Metrics are registered on reg when it
// is not nil.
func buildDeps(
	ctx context.Context,
	cfg *config.Config,
	logger zerolog.Logger,
	reg prometheus.Registerer,
) (codechttp.Deps, func(), error) {
	deps := codechttp.Deps{
		ChainID:          cfg.ChainIDBig(),
		Channel:          cfg.Channel,
		Derive:           cfg.Derive,
		Inbox:            cfg.Inbox,
		InboxAddress:     cfg.InboxAddr(),
		FetchParallelism: cfg.L1.FetchParallelism,
	}
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Inbox.DAType == inbox.DATypeObjectStore || cfg.Inbox.StorePath != "" {
		store, err := inbox.NewLevelDBStore(cfg.Inbox.StorePath)
		if err != nil {
			return deps, nil, err
		}
		deps.Store = store
		closers = append(closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn().Err(err).Msg("Failed to close object store")
			}
		})
	}

	if cfg.L1.Enabled() {
		client, err := l1.Dial(ctx, cfg.L1, logger)
		if err != nil {
			closeAll()
			return deps, nil, err
		}
		deps.L1 = client
		closers = append(closers, client.Close)
	}

	if reg != nil {
		deps.WriteMetrics = channel.NewMetrics(metrics.NewComponentRegistryWith(reg, cfg.Metrics.Namespace, "channel"))
		deps.ReadMetrics = derive.NewMetrics(metrics.NewComponentRegistryWith(reg, cfg.Metrics.Namespace, "derive"))
	}
	return deps, closeAll, nil
}

func readJSON(cmd *cobra.Command, v any) error {
	path, _ := cmd.Flags().GetString("in")
	var r io.Reader = cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("failed to parse input: %w", err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	path, _ := cmd.Flags().GetString("out")
	var w io.Writer = cmd.OutOrStdout()
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
