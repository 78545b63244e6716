package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/spikeline/config"
	"github.com/mohammad-safakhou/spikeline/internal/layout"
	"github.com/mohammad-safakhou/spikeline/internal/pipeline"
	"github.com/mohammad-safakhou/spikeline/internal/stitch"
	"github.com/mohammad-safakhou/spikeline/internal/store"
	"github.com/mohammad-safakhou/spikeline/internal/telemetry"
)

// sessionFlags are the flags identifying one session.
type sessionFlags struct {
	cfgPath string
	day     string
	recs    []string
	tower   string
	probe   int
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().StringVarP(&f.day, "day", "d", "", "recording day (YYMMDD)")
	cmd.Flags().StringSliceVarP(&f.recs, "recs", "r", nil, "recording numbers (e.g. 007,009)")
	cmd.Flags().StringVarP(&f.tower, "tower", "t", "", "recording setup name")
	cmd.Flags().IntVar(&f.probe, "np", 1, "probe number")
	cmd.MarkFlagRequired("day")
	cmd.MarkFlagRequired("recs")
	cmd.MarkFlagRequired("tower")
}

func (f *sessionFlags) session(cfg *config.Config) layout.Session {
	return layout.Session{
		Root:    cfg.Storage.File.OutputRoot,
		Day:     f.day,
		Tower:   f.tower,
		Probe:   f.probe,
		Recs:    f.recs,
		Grouped: len(f.recs) > 1,
	}
}

// openCatalog connects to Postgres; a connection failure degrades to a
// catalog-less run rather than blocking the science.
func openCatalog(ctx context.Context, cfg *config.Config, logger *log.Logger) *store.Store {
	st, err := store.Open(ctx, cfg.Storage.Postgres)
	if err != nil {
		logger.Printf("warn: catalog unavailable (%v); running without checkpoints", err)
		return nil
	}
	return st
}

func runCMD() *cobra.Command {
	var flags sessionFlags
	var stages []string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run pipeline stages for one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(flags.cfgPath)
			logger := newLogger("[PIPELINE] ")

			parsed, err := pipeline.ParseStages(stages)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			st := openCatalog(ctx, cfg, logger)
			if st != nil {
				defer st.DB.Close()
			}

			p := pipeline.New(cfg, flags.session(cfg), logger, st, telemetry.New())
			return p.Run(ctx, parsed)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVarP(&stages, "stages", "s", nil, "stages to run (default: all)")
	return cmd
}

func stitchCMD() *cobra.Command {
	var flags sessionFlags
	var scopeName string

	cmd := &cobra.Command{
		Use:   "stitch",
		Short: "Match neurons across a session's recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(flags.cfgPath)
			logger := newLogger("[STITCH] ")

			scope, err := stitch.ParseScope(scopeName)
			if err != nil {
				return err
			}
			if len(flags.recs) < 2 {
				return fmt.Errorf("stitching needs at least two recordings")
			}

			ctx, cancel := signalContext()
			defer cancel()

			st := openCatalog(ctx, cfg, logger)
			if st != nil {
				defer st.DB.Close()
			}

			p := pipeline.New(cfg, flags.session(cfg), logger, st, telemetry.New())
			return p.Stitch(ctx, scope)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&scopeName, "scope", string(stitch.ScopeAll), "cluster scope: All, Good, or Isolated")
	return cmd
}

func migrateCMD() *cobra.Command {
	var cfgPath string
	var direction string
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run catalog database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			dsn, err := store.BuildDSN(cfg.Storage.Postgres)
			if err != nil {
				return err
			}
			return store.Migrate(dsn, direction, steps)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is ./config)")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	return cmd
}
