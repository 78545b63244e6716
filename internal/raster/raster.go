// Package raster builds trial-aligned spike rasters grouped by task type,
// with the primary/fallback alignment-event policy and per-trial reaction
// times, plus the Gaussian-smoothed peri-event rate curves the stitcher
// correlates.
package raster

import (
	"math"
	"sort"

	"github.com/mohammad-safakhou/spikeline/internal/trials"
)

// TrialSlice is one trial's aligned spikes, in ms relative to the event.
type TrialSlice struct {
	Tag        string    `json:"tag"`
	TrialIndex int       `json:"trial_index"`
	Spikes     []float64 `json:"spikes_ms"`
}

// Raster is the per-cluster trial-aligned record: the slices for all task
// types in the fixed concatenation order, the aligned reaction-time vector,
// and raster records for every neighbor cluster sharing the best channel.
type Raster struct {
	ClusterID int64
	Slices    []TrialSlice
	RT        []float64 // NaN = undefined; aligned with Slices
	Neighbors []int64
	NeighborRasters []*Raster
}

// Builder aligns spike streams to behavioral events.
type Builder struct {
	// WindowOverride replaces the default [-300, 500] ms window; task types
	// with their own window (Reach) keep it.
	WindowOverride *[2]float64
}

var defaultWindow = [2]float64{-300, 500}

// Build produces the cluster's own raster record.
func (b Builder) Build(clusterID int64, spikeTimesSec []float64, trs []trials.Trial) *Raster {
	return b.build(clusterID, spikeTimesSec, trs, false)
}

// BuildWithNeighbors produces the cluster's raster plus neighbor rasters for
// every cluster sharing its best channel. Neighbor rasters swap the CO
// primary/fallback pair, matching the historical asymmetry.
func (b Builder) BuildWithNeighbors(clusterID int64, spikeTimesSec []float64, neighbors map[int64][]float64, trs []trials.Trial) *Raster {
	r := b.build(clusterID, spikeTimesSec, trs, false)
	for id := range neighbors {
		r.Neighbors = append(r.Neighbors, id)
	}
	sort.Slice(r.Neighbors, func(i, j int) bool { return r.Neighbors[i] < r.Neighbors[j] })
	for _, id := range r.Neighbors {
		r.NeighborRasters = append(r.NeighborRasters, b.build(id, neighbors[id], trs, true))
	}
	return r
}

func (b Builder) build(clusterID int64, spikeTimesSec []float64, trs []trials.Trial, swapCO bool) *Raster {
	r := &Raster{ClusterID: clusterID}
	grouped := trials.ByTag(trs)

	for _, tag := range trials.TaskOrder {
		spec := trials.Spec(tag)
		tagTrials := grouped[tag]
		if len(tagTrials) == 0 {
			continue
		}

		primary, fallback := spec.Primary, spec.Fallback
		if swapCO && tag == trials.TagCO {
			primary, fallback = fallback, primary
		}
		window := b.windowFor(spec)

		event := primary
		usedFallback := false
		if !anyHasEvent(tagTrials, primary) && fallback != "" {
			event = fallback
			usedFallback = true
		}

		slices := alignAll(tagTrials, event, spikeTimesSec, window, tag)
		rt := reactionTimes(tagTrials, spec, usedFallback)

		// The Touch task's saccade markers are often absent; realign to the
		// touch onset and derive RT from trial start/end instead.
		if tag == trials.TagTouch && allNaN(rt) {
			slices = alignAll(tagTrials, "StartOn", spikeTimesSec, window, tag)
			rt = touchFallbackRT(tagTrials)
		}

		r.Slices = append(r.Slices, slices...)
		r.RT = append(r.RT, rt...)
	}
	return r
}

func (b Builder) windowFor(spec trials.TaskSpec) [2]float64 {
	if b.WindowOverride != nil && spec.Window == defaultWindow {
		return *b.WindowOverride
	}
	return spec.Window
}

func anyHasEvent(ts []trials.Trial, event string) bool {
	if event == "" {
		return false
	}
	for _, t := range ts {
		if _, ok := t.Event(event); ok {
			return true
		}
	}
	return false
}

// alignAll slices spikes per trial around the event. A trial missing the
// event yields an empty slice, never an error.
func alignAll(ts []trials.Trial, event string, spikeTimesSec []float64, window [2]float64, tag trials.Tag) []TrialSlice {
	out := make([]TrialSlice, len(ts))
	for i, tr := range ts {
		out[i] = TrialSlice{Tag: tag.String(), TrialIndex: tr.Index, Spikes: []float64{}}
		eventMS, ok := tr.Event(event)
		if !ok {
			continue
		}
		for _, sec := range spikeTimesSec {
			ms := sec * 1000
			if ms >= eventMS+window[0] && ms <= eventMS+window[1] {
				out[i].Spikes = append(out[i].Spikes, ms-eventMS)
			}
		}
	}
	return out
}

// reactionTimes computes numerator - denominator per trial, NaN when either
// event is missing or the task defines no reaction time.
func reactionTimes(ts []trials.Trial, spec trials.TaskSpec, usedFallback bool) []float64 {
	num, den := spec.RTNumerator, spec.RTDenominator
	if usedFallback && spec.RTFallbackNumerator != "" {
		num, den = spec.RTFallbackNumerator, spec.RTFallbackDenominator
	}

	out := make([]float64, len(ts))
	for i, tr := range ts {
		out[i] = math.NaN()
		if num == "" || den == "" {
			continue
		}
		n, okN := tr.Event(num)
		d, okD := tr.Event(den)
		if okN && okD {
			out[i] = n - d
		}
	}
	return out
}

// touchFallbackRT is the Touch-only re-run: RT = StartOn - End.
func touchFallbackRT(ts []trials.Trial) []float64 {
	out := make([]float64, len(ts))
	for i, tr := range ts {
		out[i] = math.NaN()
		s, okS := tr.Event("StartOn")
		e, okE := tr.Event("End")
		if okS && okE {
			out[i] = s - e
		}
	}
	return out
}

func allNaN(v []float64) bool {
	for _, x := range v {
		if !math.IsNaN(x) {
			return false
		}
	}
	return true
}
