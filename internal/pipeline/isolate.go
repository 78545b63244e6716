package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/spikeline/internal/artifact"
	"github.com/mohammad-safakhou/spikeline/internal/channels"
	"github.com/mohammad-safakhou/spikeline/internal/isolation"
	"github.com/mohammad-safakhou/spikeline/internal/sorter"
	"github.com/mohammad-safakhou/spikeline/internal/store"
)

// IsolationForRecording scores every cluster of one recording and writes the
// per-cluster isolation containers.
func (p *Pipeline) IsolationForRecording(ctx context.Context, rec string) error {
	sp, assignments, err := p.loadSorterOutput()
	if err != nil {
		return err
	}
	ss, err := artifact.ReadSpikeStream(p.Session.SpikeStreamDir(rec))
	if err != nil {
		return fmt.Errorf("read spike stream: %w", err)
	}

	scorer := isolation.Scorer{WindowSec: p.Cfg.Isolation.WindowSec}
	inputFP := artifact.Fingerprint(p.Session.SpikeStreamDir(rec) + "/meta.json")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Cfg.Pipeline.Workers)

	for _, id := range sp.ClusterIDs {
		id := id
		g.Go(func() error {
			start := time.Now()
			outPath := p.Session.IsolationFile(rec, id)

			if p.skipCompleted(gctx, StageIsolation, rec, id, inputFP) {
				p.observeCluster(StageIsolation, start, "skipped")
				return nil
			}

			res := scorer.Score(p.isolationInput(sp, assignments, ss, id))
			if err := artifact.WriteIsolation(outPath, res); err != nil {
				p.Logger.Printf("error: recording %s cluster %d: %v; skipping cluster", rec, id, err)
				p.checkpoint(gctx, StageIsolation, rec, id, store.CheckpointStatusFailed, inputFP, err)
				p.observeCluster(StageIsolation, start, "failed")
				return nil
			}
			p.Logger.Printf("saved %s", outPath)
			p.checkpoint(gctx, StageIsolation, rec, id, store.CheckpointStatusCompleted, inputFP, nil)
			p.observeCluster(StageIsolation, start, "processed")
			return nil
		})
	}
	return g.Wait()
}

// isolationInput assembles one cluster's scorer input from the sorter output
// and the recording's reprojected spike stream.
func (p *Pipeline) isolationInput(sp *sorter.Output, assignments map[int64]channels.Assignment, ss *artifact.SpikeStream, id int64) isolation.ClusterInput {
	in := isolation.ClusterInput{ClusterID: id}

	var idx []int
	for i, c := range ss.ClusterIDs {
		if c == id {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return in
	}

	in.Times = takeFloat64(ss.SpikeTimes, idx)
	in.ScalingAmps = takeFloat64(ss.TempScalingAmps, idx)

	a, ok := assignments[id]
	if !ok {
		return in
	}
	in.BestChannel = a.Best
	in.WorstChannel = a.Worst
	in.BestWaveform = templateColumn(sp, id, a.Best)
	in.WorstWaveform = templateColumn(sp, id, a.Worst)
	in.PC = pcColumn(sp, ss, idx, id, a.Best)
	in.PCNoise = pcColumn(sp, ss, idx, id, a.Worst)

	var nbIDs []int64
	for nbID, nb := range assignments {
		if nbID != id && nb.Best == a.Best {
			nbIDs = append(nbIDs, nbID)
		}
	}
	sort.Slice(nbIDs, func(i, j int) bool { return nbIDs[i] < nbIDs[j] })
	for _, nbID := range nbIDs {
		var nbIdx []int
		for i, c := range ss.ClusterIDs {
			if c == nbID {
				nbIdx = append(nbIdx, i)
			}
		}
		in.Neighbors = append(in.Neighbors, isolation.Neighbor{
			ClusterID: nbID,
			Good:      sp.LabelOf(nbID) == sorter.LabelGood,
			Times:     takeFloat64(ss.SpikeTimes, nbIdx),
			PC:        pcColumn(sp, ss, nbIdx, nbID, a.Best),
		})
	}
	return in
}

// templateColumn extracts one channel of a cluster's template waveform.
func templateColumn(sp *sorter.Output, id int64, channel int) []float64 {
	tmpl := int(id)
	if sp.Templates == nil || tmpl < 0 || tmpl >= sp.Templates.Shape[0] {
		return nil
	}
	if channel < 0 || channel >= sp.Templates.Shape[2] {
		return nil
	}
	n := sp.Templates.Shape[1]
	out := make([]float64, n)
	for t := 0; t < n; t++ {
		out[t] = sp.Templates.At3(tmpl, t, channel)
	}
	return out
}

// pcColumn extracts the 3-vector PC projections of the selected spikes on a
// probe channel, resolved through the cluster's local-channel table. Spikes
// whose table lacks the channel contribute zero vectors.
func pcColumn(sp *sorter.Output, ss *artifact.SpikeStream, idx []int, id int64, channel int) [][]float64 {
	out := make([][]float64, len(idx))
	local := -1
	tmpl := int(id)
	if sp.PCFeatInd != nil && tmpl >= 0 && tmpl < sp.PCFeatInd.Shape[0] {
		for li, gc := range sp.PCFeatInd.Row2(tmpl) {
			if int(gc) == channel {
				local = li
				break
			}
		}
	}
	for i, j := range idx {
		vec := make([]float64, 3)
		if local >= 0 && ss.PCFeat != nil && j < ss.PCFeat.Shape[0] && local < ss.PCFeat.Shape[2] {
			for k := 0; k < 3 && k < ss.PCFeat.Shape[1]; k++ {
				vec[k] = ss.PCFeat.At3(j, k, local)
			}
		}
		out[i] = vec
	}
	return out
}

// skipCompleted consults the catalog for an up-to-date artifact checkpoint.
func (p *Pipeline) skipCompleted(ctx context.Context, stage Stage, rec string, id int64, fingerprint string) bool {
	if p.Store == nil || p.sessionID == "" {
		return false
	}
	ok, err := p.Store.CompletedFingerprint(ctx, p.sessionID, string(stage), rec, id, fingerprint)
	if err != nil {
		p.Logger.Printf("warn: checkpoint lookup %s/%s/%d: %v", stage, rec, id, err)
		return false
	}
	return ok
}

func (p *Pipeline) checkpoint(ctx context.Context, stage Stage, rec string, id int64, status, fingerprint string, cause error) {
	if p.Store == nil || p.sessionID == "" {
		return
	}
	cp := store.Checkpoint{
		SessionID:   p.sessionID,
		Stage:       string(stage),
		RecordingID: rec,
		ClusterID:   id,
		Status:      status,
		Fingerprint: fingerprint,
	}
	if cause != nil {
		cp.Error = cause.Error()
	}
	if err := p.Store.UpsertCheckpoint(ctx, cp); err != nil {
		p.Logger.Printf("warn: upsert checkpoint %s/%s/%d: %v", stage, rec, id, err)
	}
}
