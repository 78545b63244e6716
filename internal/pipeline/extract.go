package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/mohammad-safakhou/spikeline/internal/artifact"
	"github.com/mohammad-safakhou/spikeline/internal/channels"
	"github.com/mohammad-safakhou/spikeline/internal/narray"
	"github.com/mohammad-safakhou/spikeline/internal/reproject"
	"github.com/mohammad-safakhou/spikeline/internal/sorter"
	"github.com/mohammad-safakhou/spikeline/internal/store"
	"github.com/mohammad-safakhou/spikeline/internal/timing"
)

// Extract runs the timebase reprojection and writes the per-recording
// spike-stream containers.
func (p *Pipeline) Extract(ctx context.Context) error {
	sp, assignments, err := p.loadSorterOutput()
	if err != nil {
		return err
	}

	recs, err := p.loadTimingGroup()
	if err != nil {
		return err
	}

	parts := reproject.Split(sp.SpikeTimesSec, recs, p.Logger)

	cluInfo, ksCluInfo := clusterTables(sp, assignments)

	for _, part := range parts {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if part.Err != nil {
			if p.Metrics != nil {
				p.Metrics.RecordingsFailed.WithLabelValues(string(StageExtract)).Inc()
			}
			continue
		}

		ss := &artifact.SpikeStream{
			SpikeTimes:      part.Times,
			ClusterIDs:      takeInt64(sp.Clusters, part.Indices),
			Templates:       sp.Templates,
			CluInfo:         cluInfo,
			KsCluInfo:       ksCluInfo,
			TempScalingAmps: takeFloat64(sp.ScalingAmps, part.Indices),
			AuxOnly:         part.AuxOnly,
		}
		if sp.PCFeat != nil {
			ss.PCFeat = slicePCRows(sp.PCFeat, part.Indices)
		}

		dir := p.Session.SpikeStreamDir(part.RecordingID)
		if err := artifact.WriteSpikeStream(dir, ss); err != nil {
			p.Logger.Printf("error: recording %s: write spike stream: %v; skipping recording", part.RecordingID, err)
			continue
		}
		p.Logger.Printf("saved %s (%d spikes)", dir, len(ss.SpikeTimes))

		p.registerArtifact(ctx, store.Artifact{
			SessionID:   p.sessionID,
			RecordingID: part.RecordingID,
			ClusterID:   -1,
			Kind:        "spike_stream",
			Path:        dir,
			Fingerprint: artifact.Fingerprint(p.Session.TimingFile(part.RecordingID)),
		})
	}
	return nil
}

// loadTimingGroup loads every recording's timing metadata. In grouped mode a
// missing file is fatal for the whole group: without the duration the
// concatenated stream cannot be split.
func (p *Pipeline) loadTimingGroup() ([]reproject.Recording, error) {
	recs := make([]reproject.Recording, 0, len(p.Session.Recs))
	for _, rec := range p.Session.Recs {
		meta, err := timing.Load(p.Session.TimingFile(rec))
		if err != nil {
			if p.Session.Grouped {
				return nil, fmt.Errorf("recording %s: %w", rec, err)
			}
			p.Logger.Printf("error: recording %s: %v; skipping recording", rec, err)
			continue
		}
		recs = append(recs, reproject.Recording{ID: rec, Meta: meta})
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no recording has usable timing metadata")
	}
	return recs, nil
}

// clusterTables builds the (cluster_id, best_channel) table and its
// good-labelled subset.
func clusterTables(sp *sorter.Output, assignments map[int64]channels.Assignment) ([][2]int64, [][2]int64) {
	ids := make([]int64, 0, len(assignments))
	for id := range assignments {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var cluInfo, ksCluInfo [][2]int64
	for _, id := range ids {
		row := [2]int64{id, int64(assignments[id].Best)}
		cluInfo = append(cluInfo, row)
		if sp.LabelOf(id) == sorter.LabelGood {
			ksCluInfo = append(ksCluInfo, row)
		}
	}
	return cluInfo, ksCluInfo
}

func (p *Pipeline) registerArtifact(ctx context.Context, a store.Artifact) {
	if p.Store == nil || p.sessionID == "" {
		return
	}
	if err := p.Store.RegisterArtifact(ctx, a); err != nil {
		p.Logger.Printf("warn: register artifact %s: %v", a.Path, err)
	}
}

func takeInt64(src []int64, idx []int) []int64 {
	out := make([]int64, len(idx))
	for i, j := range idx {
		out[i] = src[j]
	}
	return out
}

func takeFloat64(src []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = src[j]
	}
	return out
}

// slicePCRows selects spike rows from a [n][k][c] feature array.
func slicePCRows(pc *narray.Dense, idx []int) *narray.Dense {
	stride := pc.Shape[1] * pc.Shape[2]
	out := narray.NewDense(len(idx), pc.Shape[1], pc.Shape[2])
	for i, j := range idx {
		copy(out.Data[i*stride:(i+1)*stride], pc.Data[j*stride:(j+1)*stride])
	}
	return out
}
