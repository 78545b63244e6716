package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/spikeline/config"
	"github.com/mohammad-safakhou/spikeline/internal/queue/streams"
	"github.com/mohammad-safakhou/spikeline/internal/server"
	"github.com/mohammad-safakhou/spikeline/internal/telemetry"
	"github.com/mohammad-safakhou/spikeline/internal/worker"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var schedule sessionFlags
	var withSchedule bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume pipeline jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if !cfg.Storage.Redis.Enabled() {
				return fmt.Errorf("storage.redis must be configured for the worker")
			}
			logger := newLogger("[WORKER] ")

			ctx, cancel := signalContext()
			defer cancel()

			rdb := streams.NewClient(cfg.Storage.Redis)
			if err := rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			defer rdb.Close()

			if err := streams.EnsureGroup(ctx, rdb, worker.StreamJobs, worker.Group); err != nil {
				return err
			}

			st := openCatalog(ctx, cfg, logger)
			if st != nil {
				defer st.DB.Close()
			}

			consumerName := fmt.Sprintf("worker-%s", uuid.NewString()[:8])
			consumer := streams.NewConsumer(rdb, worker.Group, consumerName)
			processor := worker.NewProcessor(logger, cfg, st, telemetry.New(), consumer)

			if withSchedule && cfg.Pipeline.Schedule != "" {
				payload := worker.JobPayload{
					Day:     schedule.day,
					Tower:   schedule.tower,
					Probe:   schedule.probe,
					Recs:    schedule.recs,
					Grouped: len(schedule.recs) > 1,
				}
				sched, err := worker.NewScheduler(logger, cfg.Pipeline.Schedule, streams.NewPublisher(rdb), payload)
				if err != nil {
					return err
				}
				go func() {
					if err := sched.Start(ctx); err != nil {
						logger.Printf("error: scheduler exited: %v", err)
					}
				}()
			}

			return processor.Start(ctx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().BoolVar(&withSchedule, "schedule", false, "also run the cron scheduler from pipeline.schedule")
	cmd.Flags().StringVarP(&schedule.day, "day", "d", "", "scheduled session day")
	cmd.Flags().StringSliceVarP(&schedule.recs, "recs", "r", nil, "scheduled session recordings")
	cmd.Flags().StringVarP(&schedule.tower, "tower", "t", "", "scheduled session tower")
	cmd.Flags().IntVar(&schedule.probe, "np", 1, "scheduled session probe number")
	return cmd
}

func enqueueCMD() *cobra.Command {
	var flags sessionFlags
	var stages []string
	var recording string

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Publish a session job to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(flags.cfgPath)
			if !cfg.Storage.Redis.Enabled() {
				return fmt.Errorf("storage.redis must be configured to enqueue")
			}

			ctx, cancel := signalContext()
			defer cancel()

			rdb := streams.NewClient(cfg.Storage.Redis)
			defer rdb.Close()

			id, err := worker.Enqueue(ctx, streams.NewPublisher(rdb), worker.JobPayload{
				Day:       flags.day,
				Tower:     flags.tower,
				Probe:     flags.probe,
				Recs:      flags.recs,
				Grouped:   len(flags.recs) > 1,
				Stages:    stages,
				Recording: recording,
			})
			if err != nil {
				return err
			}
			fmt.Printf("enqueued %s\n", id)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVarP(&stages, "stages", "s", nil, "stages to run (default: all)")
	cmd.Flags().StringVar(&recording, "recording", "", "restrict per-recording stages to one recording")
	return cmd
}

func opsCMD() *cobra.Command {
	var cfgPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "ops",
		Short: "Serve health, metrics, and run summaries",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			logger := newLogger("[OPS] ")

			ctx, cancel := signalContext()
			defer cancel()

			st := openCatalog(ctx, cfg, logger)
			if st != nil {
				defer st.DB.Close()
			}

			if addr == "" {
				addr = fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort)
			}
			return server.NewOps(logger, telemetry.New(), st).Run(ctx, addr)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :<telemetry.metrics_port>)")
	return cmd
}
