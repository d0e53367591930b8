package main

import (
	"context"
	"fmt"

	"github.com/Veraticus/txnflow/internal/cli"
	"github.com/Veraticus/txnflow/internal/consumer"
	"github.com/Veraticus/txnflow/internal/monitor"
	"github.com/Veraticus/txnflow/internal/producer"
	"github.com/Veraticus/txnflow/internal/source"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bootstrap and run the producer and the consumer",
		Long: `Run applies migrations, loads the dataset and the customer importance
table, then runs the producer and the consumer side by side until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), true, true)
		},
	}
}

func produceCmd() *cobra.Command {
	var showProgress bool
	cmd := &cobra.Command{
		Use:   "produce",
		Short: "Stream the dataset into the object store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := loadProducer(cmd.Context(), a)
			if err != nil {
				return err
			}

			if showProgress {
				cp, err := a.store.GetCheckpoint(cmd.Context())
				if err != nil {
					return err
				}
				bar := cli.NewRowProgress(cmd.ErrOrStderr(), p.Total(), cp.NextRow)
				p.OnChunk = func(c producer.Chunk) { _ = bar.Set(c.Range.End) }
				defer func() { _ = bar.Finish() }()
			}

			if err := p.Run(cmd.Context()); err != nil {
				return err
			}
			if p.State() == producer.StateDone {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("All %d rows produced", p.Total())))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showProgress, "progress", true, "show a progress bar")
	return cmd
}

func consumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Ingest chunks, detect patterns and upload detections",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), false, true)
		},
	}
}

func loadProducer(ctx context.Context, a *app) (*producer.ChunkProducer, error) {
	src, err := source.New(ctx, a.cfg.Dataset, a.logger)
	if err != nil {
		return nil, err
	}
	p := a.newProducer()
	if err := p.Load(ctx, src); err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	return p, nil
}

// runPipeline supervises the selected workers and the optional status
// server. A failing worker cancels the others.
func runPipeline(ctx context.Context, withProducer, withConsumer bool) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var (
		p *producer.ChunkProducer
		c *consumer.ChunkConsumer
	)
	if withProducer {
		if p, err = loadProducer(ctx, a); err != nil {
			return err
		}
	}
	if withConsumer {
		c = a.newConsumer()
	}

	g, gctx := errgroup.WithContext(ctx)
	if p != nil {
		g.Go(func() error { return p.Run(gctx) })
	}
	if c != nil {
		g.Go(func() error { return c.Run(gctx) })
	}

	status := func() map[string]string {
		workers := make(map[string]string)
		if p != nil {
			workers["producer"] = string(p.State())
		}
		if c != nil {
			workers["consumer"] = string(c.Stage())
		}
		return workers
	}
	if srv := a.statusServer(monitor.StatusFunc(status)); srv != nil {
		g.Go(func() error { return srv.Run(gctx) })
	}

	logger.Info("pipeline started",
		zap.Bool("producer", p != nil),
		zap.Bool("consumer", c != nil),
		zap.Bool("status_server", a.cfg.Metrics.Enabled))

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("pipeline stopped")
	return nil
}
