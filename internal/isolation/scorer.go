// Package isolation scores per-cluster signal/noise discriminability in the
// principal-component subspace over fixed-length time windows, and derives
// the isolated-unit subset from curated verdicts.
package isolation

import (
	"math"
)

// Verdict is the per-frame isolation decision. The scorer always emits
// NotIsolated; an external curation step flips frame 0 to Isolated.
type Verdict int

const (
	NotIsolated Verdict = iota
	Isolated
)

// Neighbor identifies a cluster sharing the scored cluster's best channel.
type Neighbor struct {
	ClusterID int64
	Good      bool // carries the good quality label
	Times     []float64
	PC        [][]float64 // per-spike 3-vectors on the shared channel
}

// Frame is one (cluster, time-window) record.
type Frame struct {
	WindowIndex int
	Start, End  float64

	Signal [][]float64 // per-spike scaled 3-vectors on the best channel
	Noise  [][]float64 // same on the worst channel

	MeanSignal []float64
	MeanNoise  []float64
	StdNoise   []float64 // sample std (ddof = 1)
	Score      float64   // NaN when the window is empty or degenerate
	Verdict    Verdict

	NeighborSignals map[int64][][]float64 // neighbor PCs restricted to the window
}

// Result is a cluster's full isolation record.
type Result struct {
	ClusterID     int64
	BestChannel   int
	WorstChannel  int
	BestWaveform  []float64
	WorstWaveform []float64
	Neighbors     []Neighbor
	Frames        []Frame
}

// ClusterInput is everything the scorer needs for one cluster.
type ClusterInput struct {
	ClusterID     int64
	Times         []float64   // reprojected spike times, behavioral seconds
	PC            [][]float64 // per-spike 3-vectors on the best channel, unscaled
	PCNoise       [][]float64 // per-spike 3-vectors on the worst channel, unscaled
	ScalingAmps   []float64
	BestChannel   int
	WorstChannel  int
	BestWaveform  []float64
	WorstWaveform []float64
	Neighbors     []Neighbor
}

// Scorer slices a cluster's spikes into windows and scores each one.
type Scorer struct {
	WindowSec float64
}

// Score computes the full isolation record for one cluster. A cluster with
// no spikes yields a single empty frame.
func (s Scorer) Score(in ClusterInput) *Result {
	res := &Result{
		ClusterID:     in.ClusterID,
		BestChannel:   in.BestChannel,
		WorstChannel:  in.WorstChannel,
		BestWaveform:  in.BestWaveform,
		WorstWaveform: in.WorstWaveform,
		Neighbors:     in.Neighbors,
	}

	if len(in.Times) == 0 {
		res.Frames = []Frame{emptyFrame(0, 0, s.WindowSec)}
		return res
	}

	signal := scalePC(in.PC, in.ScalingAmps)
	noise := scalePC(in.PCNoise, in.ScalingAmps)

	maxT := in.Times[0]
	for _, t := range in.Times {
		if t > maxT {
			maxT = t
		}
	}
	nWin := int(math.Ceil(maxT / s.WindowSec))
	if nWin < 1 {
		nWin = 1
	}

	res.Frames = make([]Frame, 0, nWin)
	for w := 0; w < nWin; w++ {
		start := float64(w) * s.WindowSec
		end := start + s.WindowSec

		var idx []int
		for i, t := range in.Times {
			if t >= start && t <= end {
				idx = append(idx, i)
			}
		}

		frame := emptyFrame(w, start, end-start)
		if len(idx) > 0 {
			frame.Signal = take(signal, idx)
			frame.Noise = take(noise, idx)
			frame.MeanSignal = meanVec(frame.Signal)
			frame.MeanNoise = meanVec(frame.Noise)
			frame.StdNoise = stdVec(frame.Noise, frame.MeanNoise)
			if sd := frame.StdNoise[0]; sd > 0 && !math.IsNaN(sd) {
				frame.Score = math.Abs(frame.MeanSignal[0]-frame.MeanNoise[0]) / sd
			}
		}

		if len(in.Neighbors) > 0 {
			frame.NeighborSignals = make(map[int64][][]float64, len(in.Neighbors))
			for _, nb := range in.Neighbors {
				var sel [][]float64
				for i, t := range nb.Times {
					if t >= start && t <= end && i < len(nb.PC) {
						sel = append(sel, nb.PC[i])
					}
				}
				frame.NeighborSignals[nb.ClusterID] = sel
			}
		}

		res.Frames = append(res.Frames, frame)
	}
	return res
}

func emptyFrame(w int, start, width float64) Frame {
	return Frame{
		WindowIndex: w,
		Start:       start,
		End:         start + width,
		Score:       math.NaN(),
		Verdict:     NotIsolated,
	}
}

// scalePC multiplies each spike's PC vector by its scaling amplitude.
func scalePC(pc [][]float64, amps []float64) [][]float64 {
	out := make([][]float64, len(pc))
	for i, row := range pc {
		amp := 1.0
		if i < len(amps) {
			amp = amps[i]
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = v * amp
		}
		out[i] = scaled
	}
	return out
}

func take(rows [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = rows[j]
	}
	return out
}

func meanVec(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	dim := len(rows[0])
	out := make([]float64, dim)
	for _, r := range rows {
		for j := 0; j < dim && j < len(r); j++ {
			out[j] += r[j]
		}
	}
	for j := range out {
		out[j] /= float64(len(rows))
	}
	return out
}

// stdVec is the sample standard deviation (ddof = 1); NaN with fewer than
// two observations.
func stdVec(rows [][]float64, mean []float64) []float64 {
	dim := len(mean)
	out := make([]float64, dim)
	if len(rows) < 2 {
		for j := range out {
			out[j] = math.NaN()
		}
		return out
	}
	for _, r := range rows {
		for j := 0; j < dim && j < len(r); j++ {
			d := r[j] - mean[j]
			out[j] += d * d
		}
	}
	for j := range out {
		out[j] = math.Sqrt(out[j] / float64(len(rows)-1))
	}
	return out
}
