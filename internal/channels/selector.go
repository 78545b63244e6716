// Package channels picks, for every cluster, a best (signal) and worst
// (noise reference) channel from the cluster's template energy and its
// per-spike principal-component coverage.
package channels

import (
	"github.com/mohammad-safakhou/spikeline/internal/sorter"
)

// Assignment is the per-cluster channel choice, expressed as probe channel
// indices (rows of the channel map).
type Assignment struct {
	ClusterID int64
	Best      int
	Worst     int
}

// Selector holds the scoring knobs.
type Selector struct {
	Alpha         float64 // weight of normalized energy vs normalized coverage
	CoverageMin   float64 // best-channel coverage guard
	CoverageFloor float64 // worst-channel coverage guard
}

// DefaultSelector returns the production parameters: energy-only scoring
// with a 0.5 best-channel coverage guard and a 0.1 noise floor.
func DefaultSelector() Selector {
	return Selector{Alpha: 1.0, CoverageMin: 0.5, CoverageFloor: 0.1}
}

// Select computes channel assignments for every cluster in the sorter
// output. Clusters with zero spikes are omitted.
func (s Selector) Select(out *sorter.Output) map[int64]Assignment {
	spikesByCluster := make(map[int64][]int)
	for i, c := range out.Clusters {
		spikesByCluster[c] = append(spikesByCluster[c], i)
	}

	assignments := make(map[int64]Assignment, len(out.ClusterIDs))
	for _, id := range out.ClusterIDs {
		spikes := spikesByCluster[id]
		if len(spikes) == 0 {
			continue
		}
		tmpl := int(id)
		if tmpl < 0 || tmpl >= out.Templates.Shape[0] || tmpl >= out.PCFeatInd.Shape[0] {
			continue
		}

		localChans := out.PCFeatInd.Row2(tmpl)
		energy := templateEnergy(out, tmpl, localChans)
		coverage := pcCoverage(out, spikes, len(localChans))

		bestLocal, worstLocal := s.pick(energy, coverage)
		assignments[id] = Assignment{
			ClusterID: id,
			Best:      int(localChans[bestLocal]),
			Worst:     int(localChans[worstLocal]),
		}
	}
	return assignments
}

// templateEnergy computes sum-of-squares template energy per local channel.
func templateEnergy(out *sorter.Output, tmpl int, localChans []int64) []float64 {
	nSamples := out.Templates.Shape[1]
	nChans := out.Templates.Shape[2]
	energy := make([]float64, len(localChans))
	for li, gc := range localChans {
		c := int(gc)
		if c < 0 || c >= nChans {
			continue
		}
		var e float64
		for t := 0; t < nSamples; t++ {
			v := out.Templates.At3(tmpl, t, c)
			e += v * v
		}
		energy[li] = e
	}
	return energy
}

// pcCoverage computes, per local channel, the fraction of spikes whose PC
// column is not identically zero.
func pcCoverage(out *sorter.Output, spikes []int, nLocal int) []float64 {
	coverage := make([]float64, nLocal)
	if out.PCFeat == nil {
		return coverage
	}
	nComp := out.PCFeat.Shape[1]
	width := out.PCFeat.Shape[2]
	if nLocal > width {
		nLocal = width
	}
	for c := 0; c < nLocal; c++ {
		nonZero := 0
		for _, s := range spikes {
			for k := 0; k < nComp; k++ {
				if out.PCFeat.At3(s, k, c) != 0 {
					nonZero++
					break
				}
			}
		}
		coverage[c] = float64(nonZero) / float64(len(spikes))
	}
	return coverage
}

// pick applies the combined score and the coverage guards, returning local
// channel indices.
func (s Selector) pick(energy, coverage []float64) (best, worst int) {
	n := len(energy)
	if n == 0 {
		return 0, 0
	}

	maxE := maxOf(energy)
	if maxE <= 0 {
		maxE = 1
	}
	maxCov := maxOf(coverage)
	if maxCov <= 0 {
		maxCov = 1
	}

	score := make([]float64, n)
	for i := range score {
		score[i] = s.Alpha*(energy[i]/maxE) + (1-s.Alpha)*(coverage[i]/maxCov)
	}

	best = argmax(score, nil)
	if coverage[best] < s.CoverageMin {
		eligible := func(i int) bool { return coverage[i] >= s.CoverageMin }
		if anyIndex(n, eligible) {
			best = argmax(score, eligible)
		}
	}

	worst = argmin(energy, nil)
	if coverage[worst] < s.CoverageFloor {
		eligible := func(i int) bool { return coverage[i] >= s.CoverageFloor && energy[i] > 0 }
		if anyIndex(n, eligible) {
			worst = argmin(energy, eligible)
		}
	}
	return best, worst
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func anyIndex(n int, ok func(int) bool) bool {
	for i := 0; i < n; i++ {
		if ok(i) {
			return true
		}
	}
	return false
}

func argmax(v []float64, ok func(int) bool) int {
	idx := -1
	for i, x := range v {
		if ok != nil && !ok(i) {
			continue
		}
		if idx < 0 || x > v[idx] {
			idx = i
		}
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func argmin(v []float64, ok func(int) bool) int {
	idx := -1
	for i, x := range v {
		if ok != nil && !ok(i) {
			continue
		}
		if idx < 0 || x < v[idx] {
			idx = i
		}
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}
