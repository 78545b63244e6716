package artifact

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mohammad-safakhou/spikeline/internal/isolation"
	"github.com/mohammad-safakhou/spikeline/internal/nanjson"
	"github.com/mohammad-safakhou/spikeline/internal/raster"
	"github.com/mohammad-safakhou/spikeline/internal/stitch"
)

// IsolationDoc is the persisted form of an isolation record.
type IsolationDoc struct {
	Format        string             `json:"format"`
	ClusterID     int64              `json:"cluster_id"` // 1-indexed on disk
	BestChannel   int                `json:"best_channel"`
	WorstChannel  int                `json:"worst_channel"`
	BestWaveform  []float64          `json:"best_waveform,omitempty"`
	WorstWaveform []float64          `json:"worst_waveform,omitempty"`
	Neighbors     []IsolationNeighbor `json:"neighbors,omitempty"`
	Frames        []IsolationFrame   `json:"frames"`
}

// IsolationNeighbor records a same-channel neighbor and its quality flag.
type IsolationNeighbor struct {
	ClusterID int64 `json:"cluster_id"` // 1-indexed on disk
	Good      bool  `json:"good"`
}

// IsolationFrame is one persisted time-window record.
type IsolationFrame struct {
	WindowIndex int             `json:"window_index"`
	Start       float64         `json:"start_sec"`
	End         float64         `json:"end_sec"`
	Signal      [][]float64     `json:"signal,omitempty"`
	Noise       [][]float64     `json:"noise,omitempty"`
	MeanSignal  []nanjson.Float `json:"mean_signal,omitempty"`
	MeanNoise   []nanjson.Float `json:"mean_noise,omitempty"`
	StdNoise    []nanjson.Float `json:"std_noise,omitempty"`
	Score       nanjson.Float   `json:"score"`
	Isolated    bool            `json:"isolated"`

	NeighborSignals map[string][][]float64 `json:"neighbor_signals,omitempty"`
}

// WriteIsolation persists an isolation result.
func WriteIsolation(path string, res *isolation.Result) error {
	doc := IsolationDoc{
		Format:        spikeStreamFormat,
		ClusterID:     res.ClusterID + 1,
		BestChannel:   res.BestChannel,
		WorstChannel:  res.WorstChannel,
		BestWaveform:  res.BestWaveform,
		WorstWaveform: res.WorstWaveform,
	}
	for _, nb := range res.Neighbors {
		doc.Neighbors = append(doc.Neighbors, IsolationNeighbor{ClusterID: nb.ClusterID + 1, Good: nb.Good})
	}
	for _, f := range res.Frames {
		frame := IsolationFrame{
			WindowIndex: f.WindowIndex,
			Start:       f.Start,
			End:         f.End,
			Signal:      f.Signal,
			Noise:       f.Noise,
			MeanSignal:  nanjson.FromSlice(f.MeanSignal),
			MeanNoise:   nanjson.FromSlice(f.MeanNoise),
			StdNoise:    nanjson.FromSlice(f.StdNoise),
			Score:       nanjson.Float(f.Score),
			Isolated:    f.Verdict == isolation.Isolated,
		}
		if len(f.NeighborSignals) > 0 {
			frame.NeighborSignals = make(map[string][][]float64, len(f.NeighborSignals))
			for id, pcs := range f.NeighborSignals {
				frame.NeighborSignals[fmt.Sprintf("%d", id+1)] = pcs
			}
		}
		doc.Frames = append(doc.Frames, frame)
	}
	return writeJSON(path, doc)
}

// ReadIsolation loads an isolation result (ids re-0-indexed).
func ReadIsolation(path string) (*isolation.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc IsolationDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("isolation doc %s: %w", path, err)
	}

	res := &isolation.Result{
		ClusterID:     doc.ClusterID - 1,
		BestChannel:   doc.BestChannel,
		WorstChannel:  doc.WorstChannel,
		BestWaveform:  doc.BestWaveform,
		WorstWaveform: doc.WorstWaveform,
	}
	for _, nb := range doc.Neighbors {
		res.Neighbors = append(res.Neighbors, isolation.Neighbor{ClusterID: nb.ClusterID - 1, Good: nb.Good})
	}
	for _, f := range doc.Frames {
		verdict := isolation.NotIsolated
		if f.Isolated {
			verdict = isolation.Isolated
		}
		res.Frames = append(res.Frames, isolation.Frame{
			WindowIndex: f.WindowIndex,
			Start:       f.Start,
			End:         f.End,
			Signal:      f.Signal,
			Noise:       f.Noise,
			MeanSignal:  nanjson.ToSlice(f.MeanSignal),
			MeanNoise:   nanjson.ToSlice(f.MeanNoise),
			StdNoise:    nanjson.ToSlice(f.StdNoise),
			Score:       float64(f.Score),
			Verdict:     verdict,
		})
	}
	return res, nil
}

// RasterDoc is the persisted form of a raster record.
type RasterDoc struct {
	Format    string             `json:"format"`
	ClusterID int64              `json:"cluster_id"` // 1-indexed on disk
	Slices    []raster.TrialSlice `json:"slices"`
	RT        []nanjson.Float    `json:"rt_ms"`
	Neighbors []int64            `json:"neighbors,omitempty"` // 1-indexed on disk
	NeighborRasters []RasterDoc  `json:"neighbor_rasters,omitempty"`
}

func rasterToDoc(r *raster.Raster) RasterDoc {
	doc := RasterDoc{
		Format:    spikeStreamFormat,
		ClusterID: r.ClusterID + 1,
		Slices:    r.Slices,
		RT:        nanjson.FromSlice(r.RT),
	}
	for _, n := range r.Neighbors {
		doc.Neighbors = append(doc.Neighbors, n+1)
	}
	for _, nr := range r.NeighborRasters {
		doc.NeighborRasters = append(doc.NeighborRasters, rasterToDoc(nr))
	}
	return doc
}

func docToRaster(doc RasterDoc) *raster.Raster {
	r := &raster.Raster{
		ClusterID: doc.ClusterID - 1,
		Slices:    doc.Slices,
		RT:        nanjson.ToSlice(doc.RT),
	}
	for _, n := range doc.Neighbors {
		r.Neighbors = append(r.Neighbors, n-1)
	}
	for _, nd := range doc.NeighborRasters {
		r.NeighborRasters = append(r.NeighborRasters, docToRaster(nd))
	}
	return r
}

// WriteRaster persists a raster record.
func WriteRaster(path string, r *raster.Raster) error {
	return writeJSON(path, rasterToDoc(r))
}

// ReadRaster loads a raster record (ids re-0-indexed).
func ReadRaster(path string) (*raster.Raster, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc RasterDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("raster doc %s: %w", path, err)
	}
	return docToRaster(doc), nil
}

// StitchDoc is the session-level stitch export. Rows carry 1-indexed
// cluster ids with 0 marking a not-found slot.
type StitchDoc struct {
	Format     string    `json:"format"`
	Day        string    `json:"day"`
	Tower      string    `json:"tower"`
	Probe      int       `json:"probe"`
	Recordings []string  `json:"recordings"`
	Rows       [][]int64 `json:"stitch_table"`
}

// WriteStitch persists the stitch table export.
func WriteStitch(path string, day, tower string, probeNum int, table *stitch.Table) error {
	doc := StitchDoc{
		Format:     spikeStreamFormat,
		Day:        day,
		Tower:      tower,
		Probe:      probeNum,
		Recordings: table.Recordings,
	}
	for _, row := range table.Rows {
		persisted := make([]int64, len(row))
		for i, v := range row {
			if v == stitch.NotFound {
				persisted[i] = 0
			} else {
				persisted[i] = v + 1
			}
		}
		doc.Rows = append(doc.Rows, persisted)
	}
	return writeJSON(path, doc)
}
