package pipeline

import (
	"context"
	"fmt"
	"math"

	"github.com/mohammad-safakhou/spikeline/internal/artifact"
	"github.com/mohammad-safakhou/spikeline/internal/layout"
	"github.com/mohammad-safakhou/spikeline/internal/probe"
	"github.com/mohammad-safakhou/spikeline/internal/raster"
	"github.com/mohammad-safakhou/spikeline/internal/stitch"
)

// Stitch matches clusters across the session's recordings and persists the
// stitch table.
func (p *Pipeline) Stitch(ctx context.Context, scope stitch.Scope) error {
	if len(p.Session.Recs) < 2 {
		p.Logger.Printf("warn: stitching needs at least two recordings, got %d", len(p.Session.Recs))
	}

	// Missing probe geometry is a session-level failure.
	geom, err := probe.LoadGeometry(p.Session.GeometryFile(p.Session.Recs[0]))
	if err != nil {
		return fmt.Errorf("probe geometry: %w", err)
	}

	src, err := newArtifactSource(p.Session, scope, p.rateWindow(), p.Cfg.Raster.Smoothing)
	if err != nil {
		return err
	}

	st := &stitch.Stitcher{
		Recordings:    p.Session.Recs,
		Geometry:      geom,
		Source:        src,
		FrThreshold:   p.Cfg.Stitching.FrCorrThreshold,
		WfThreshold:   p.Cfg.Stitching.WfCorrThreshold,
		ChannelRange:  p.Cfg.Stitching.ChannelRange,
		MinRecordings: p.Cfg.Stitching.MinRecordings,
		Logger:        p.Logger,
	}
	table, err := st.Run()
	if err != nil {
		return err
	}

	out := p.Session.StitchFile()
	if err := artifact.WriteStitch(out, p.Session.Day, p.Session.Tower, p.Session.Probe, table); err != nil {
		return fmt.Errorf("write stitch table: %w", err)
	}
	p.Logger.Printf("saved %s (%d rows)", out, len(table.Rows))

	if p.Metrics != nil {
		p.Metrics.StitchRows.Set(float64(len(table.Rows)))
	}
	if p.Store != nil && p.sessionID != "" {
		if _, err := p.Store.SaveStitchTable(ctx, p.sessionID, string(scope), table); err != nil {
			p.Logger.Printf("warn: save stitch table: %v", err)
		}
	}
	return nil
}

func (p *Pipeline) rateWindow() [2]float64 {
	if len(p.Cfg.Raster.TimeWindow) == 2 {
		return [2]float64{float64(p.Cfg.Raster.TimeWindow[0]), float64(p.Cfg.Raster.TimeWindow[1])}
	}
	return [2]float64{-300, 500}
}

// artifactSource feeds the stitcher from the persisted containers.
type artifactSource struct {
	session   layout.Session
	members   [][]stitch.Member
	window    [2]float64
	smoothing float64
	wfLen     int
}

func newArtifactSource(sess layout.Session, scope stitch.Scope, window [2]float64, smoothing float64) (*artifactSource, error) {
	src := &artifactSource{
		session:   sess,
		window:    window,
		smoothing: smoothing,
		wfLen:     61,
	}
	for _, rec := range sess.Recs {
		ss, err := artifact.ReadSpikeStream(sess.SpikeStreamDir(rec))
		if err != nil {
			return nil, fmt.Errorf("recording %s: read spike stream: %w", rec, err)
		}

		inTable := make(map[int64]bool, len(ss.CluInfo))
		for _, row := range ss.CluInfo {
			inTable[row[0]] = true
		}

		var scoped [][2]int64
		switch scope {
		case stitch.ScopeAll:
			scoped = ss.CluInfo
		case stitch.ScopeGood:
			scoped = ss.KsCluInfo
		case stitch.ScopeIsolated:
			if ss.IsoCluInfo == nil {
				return nil, fmt.Errorf("recording %s: no isolated-unit table; run iso-units first", rec)
			}
			scoped = ss.IsoCluInfo
		default:
			return nil, fmt.Errorf("unknown cluster scope %q", scope)
		}

		var ms []stitch.Member
		for _, row := range scoped {
			// Contract violation: a scoped cluster must exist in the cluster
			// table.
			if !inTable[row[0]] {
				return nil, fmt.Errorf("recording %s: cluster %d selected by scope %s is absent from the cluster table", rec, row[0]+1, scope)
			}
			ms = append(ms, stitch.Member{ClusterID: row[0], Channel: int(row[1])})
		}
		src.members = append(src.members, ms)

		if ss.Templates != nil && len(ss.Templates.Shape) == 3 {
			src.wfLen = ss.Templates.Shape[1]
		}
	}
	return src, nil
}

func (s *artifactSource) Clusters(recIndex int) []stitch.Member {
	return s.members[recIndex]
}

func (s *artifactSource) Waveform(recIndex int, clusterID int64) []float64 {
	// A missing or broken artifact yields a NaN vector, which cannot win the
	// correlation argmax.
	res, err := artifact.ReadIsolation(s.session.IsolationFile(s.session.Recs[recIndex], clusterID))
	if err != nil || len(res.BestWaveform) == 0 {
		return nanVec(s.wfLen)
	}
	return res.BestWaveform
}

func (s *artifactSource) RateCurve(recIndex int, clusterID int64) []float64 {
	length := int(s.window[1]-s.window[0]) + 1
	r, err := artifact.ReadRaster(s.session.RasterFile(s.session.Recs[recIndex], clusterID))
	if err != nil {
		return nanVec(length)
	}
	_, sorted := raster.SortByRT(r.RT, r.Slices)
	return raster.Rate(sorted, s.window, s.smoothing)
}

func nanVec(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
