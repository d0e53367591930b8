package main

import (
	"context"
	"fmt"
	"os"

	"github.com/Veraticus/txnflow/internal/cli"
	"github.com/Veraticus/txnflow/internal/common"
	"github.com/Veraticus/txnflow/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	version = "dev"
	v       = viper.New()
	cfg     *config.Config
	logger  = zap.NewNop()
	rootCmd = &cobra.Command{
		Use:   "txnflow",
		Short: "🔁 Streaming transaction pattern detection pipeline",
		Long: `txnflow streams a bulk transaction dataset through an object store in
fixed-size chunks, ingests the chunks into a relational store, detects
customer and merchant patterns, and uploads the detections in batches.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
		SilenceErrors:     true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/txnflow/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")

	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.encoding", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(produceCmd())
	rootCmd.AddCommand(consumeCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(resetCmd())
	rootCmd.AddCommand(monitorCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	handler := cli.NewInterruptHandler(os.Stderr, "Interrupt received, finishing the current step...")
	ctx, cancel := handler.HandleInterrupts(context.Background())

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	_ = logger.Sync()

	if err != nil {
		fmt.Fprintln(os.Stderr, cli.FormatError(err.Error()))
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(v, cfgFile)
	if err != nil {
		return common.NewUserError("failed to load configuration", err)
	}

	l, err := common.NewLogger(loaded.LogOptions())
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	cfg = loaded
	logger = l
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "txnflow %s\n", version)
		},
	}
}
