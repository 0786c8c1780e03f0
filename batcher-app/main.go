package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/compose-network/batcher/batcher-app/config"
	"github.com/compose-network/batcher/log"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:           "dacodec",
		Short:         "DA channel and frame codec",
		Long:          "dacodec packs L2 blocks into compressed channels, cuts them into frames for calldata or blobs, and derives the blocks back.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run:   runVersion,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		RunE:  runConfig,
	}
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	initCommands()
	return rootCmd.Execute()
}

func initCommands() {
	rootCmd.AddCommand(versionCmd, configCmd, newEncodeCmd(), newDecodeCmd(), newServeCmd())

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (defaults and environment only when empty)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "enable pretty logging")
	rootCmd.PersistentFlags().Uint64("chain-id", 0, "L2 chain id")
	rootCmd.PersistentFlags().String("l1-rpc", "", "L1 RPC endpoint used to fill in L1 origin hashes")
}

// loadConfig loads the config file and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid flags: %w", err)
	}
	// logs go to stderr so JSON output on stdout stays clean
	logger := log.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Pretty)
	return cfg, logger, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if f := flags.Lookup("log-pretty"); f != nil && f.Changed {
		cfg.Log.Pretty, _ = flags.GetBool("log-pretty")
	}
	if f := flags.Lookup("chain-id"); f != nil && f.Changed {
		cfg.ChainID, _ = flags.GetUint64("chain-id")
	}
	if f := flags.Lookup("l1-rpc"); f != nil && f.Changed {
		cfg.L1.RPCEndpoint, _ = flags.GetString("l1-rpc")
	}
	if f := flags.Lookup("listen-addr"); f != nil && f.Changed {
		cfg.API.ListenAddr, _ = flags.GetString("listen-addr")
	}
	if f := flags.Lookup("metrics"); f != nil && f.Changed {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
	}
}

func runVersion(*cobra.Command, []string) {
	fmt.Printf("dacodec\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
	fmt.Printf("Go Version: %s\n", runtime.Version())
	fmt.Printf("OS/Arch:    %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return cfg.Dump(cmd.OutOrStdout())
}
