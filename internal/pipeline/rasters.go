package pipeline

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/spikeline/internal/artifact"
	"github.com/mohammad-safakhou/spikeline/internal/raster"
	"github.com/mohammad-safakhou/spikeline/internal/store"
	"github.com/mohammad-safakhou/spikeline/internal/trials"
)

// RastersForRecording builds the trial-aligned raster containers for every
// cluster of one recording.
func (p *Pipeline) RastersForRecording(ctx context.Context, rec string) error {
	sp, assignments, err := p.loadSorterOutput()
	if err != nil {
		return err
	}
	ss, err := artifact.ReadSpikeStream(p.Session.SpikeStreamDir(rec))
	if err != nil {
		return fmt.Errorf("read spike stream: %w", err)
	}

	recTrials, err := trials.Load(p.Session.TrialsFile(), rec)
	if err != nil {
		if os.IsNotExist(err) {
			// No trial store: every raster comes out empty, the pipeline
			// continues.
			p.Logger.Printf("warn: no trial store at %s; emitting empty rasters", p.Session.TrialsFile())
			recTrials = nil
		} else {
			return fmt.Errorf("load trials: %w", err)
		}
	}

	builder := raster.Builder{}
	if len(p.Cfg.Raster.TimeWindow) == 2 {
		w := [2]float64{float64(p.Cfg.Raster.TimeWindow[0]), float64(p.Cfg.Raster.TimeWindow[1])}
		builder.WindowOverride = &w
	}

	// Spike times per cluster, once.
	timesByCluster := make(map[int64][]float64)
	for i, c := range ss.ClusterIDs {
		timesByCluster[c] = append(timesByCluster[c], ss.SpikeTimes[i])
	}

	inputFP := artifact.Fingerprint(p.Session.SpikeStreamDir(rec)+"/meta.json", p.Session.TrialsFile())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Cfg.Pipeline.Workers)

	for _, id := range sp.ClusterIDs {
		id := id
		g.Go(func() error {
			start := time.Now()
			outPath := p.Session.RasterFile(rec, id)

			if p.skipCompleted(gctx, StageRasters, rec, id, inputFP) {
				p.observeCluster(StageRasters, start, "skipped")
				return nil
			}

			neighbors := make(map[int64][]float64)
			if a, ok := assignments[id]; ok {
				for nbID, nb := range assignments {
					if nbID != id && nb.Best == a.Best {
						neighbors[nbID] = timesByCluster[nbID]
					}
				}
			}

			r := builder.BuildWithNeighbors(id, timesByCluster[id], neighbors, recTrials)
			if err := artifact.WriteRaster(outPath, r); err != nil {
				p.Logger.Printf("error: recording %s cluster %d: %v; skipping cluster", rec, id, err)
				p.checkpoint(gctx, StageRasters, rec, id, store.CheckpointStatusFailed, inputFP, err)
				p.observeCluster(StageRasters, start, "failed")
				return nil
			}
			p.Logger.Printf("saved %s", outPath)
			p.checkpoint(gctx, StageRasters, rec, id, store.CheckpointStatusCompleted, inputFP, nil)
			p.observeCluster(StageRasters, start, "processed")
			return nil
		})
	}
	return g.Wait()
}
