package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Veraticus/txnflow/internal/cli"
	"github.com/Veraticus/txnflow/internal/monitor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func monitorCmd() *cobra.Command {
	var (
		continuous bool
		asJSON     bool
		interval   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Show pipeline statistics",
		Long: `Monitor prints transaction totals, the producer checkpoint, detections per
pattern, pending uploads, the most recent detections and the number of chunk
objects waiting in the object store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if interval <= 0 {
				interval = cfg.Pipeline.MonitorPollInterval
			}
			out := cmd.OutOrStdout()
			loc := cfg.DisplayLocation()

			for {
				snap, err := monitor.Collect(ctx, a.store, a.objects, a.monitorOptions())
				if err != nil {
					if !continuous {
						return err
					}
					logger.Warn("failed to collect statistics", zap.Error(err))
				} else {
					if continuous && !asJSON {
						fmt.Fprint(out, "\033[H\033[2J")
					}
					if asJSON {
						enc := json.NewEncoder(out)
						enc.SetIndent("", "  ")
						if err := enc.Encode(snap); err != nil {
							return err
						}
					} else {
						fmt.Fprintln(out, cli.RenderDashboard(snap, loc))
					}
				}

				if !continuous {
					return nil
				}
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&continuous, "continuous", "c", false, "refresh until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "refresh interval (default pipeline.monitor_poll_interval)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the snapshot as JSON")
	return cmd
}
