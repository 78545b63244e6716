package channels

import (
	"testing"

	"github.com/mohammad-safakhou/spikeline/internal/narray"
	"github.com/mohammad-safakhou/spikeline/internal/sorter"
)

func TestPickEnergyOnly(t *testing.T) {
	s := DefaultSelector()
	energy := []float64{1, 9, 4}
	coverage := []float64{1, 1, 1}

	best, worst := s.pick(energy, coverage)
	if best != 1 {
		t.Fatalf("best = %d, want 1", best)
	}
	if worst != 0 {
		t.Fatalf("worst = %d, want 0", worst)
	}
}

func TestPickBestCoverageGuard(t *testing.T) {
	s := DefaultSelector()
	energy := []float64{1, 9, 8}
	coverage := []float64{0.9, 0.2, 0.8} // top-energy channel has weak coverage

	best, _ := s.pick(energy, coverage)
	if best != 2 {
		t.Fatalf("best = %d, want 2 (restricted to coverage >= 0.5)", best)
	}
}

func TestPickBestGuardFallsBackWhenNoEligible(t *testing.T) {
	s := DefaultSelector()
	energy := []float64{1, 9}
	coverage := []float64{0.1, 0.2} // nothing reaches 0.5

	best, _ := s.pick(energy, coverage)
	if best != 1 {
		t.Fatalf("best = %d, want original argmax 1", best)
	}
}

func TestPickWorstGuards(t *testing.T) {
	s := DefaultSelector()
	energy := []float64{5, 0.5, 2}
	coverage := []float64{1, 0.05, 0.5} // min-energy channel below the floor

	_, worst := s.pick(energy, coverage)
	if worst != 2 {
		t.Fatalf("worst = %d, want 2", worst)
	}
}

func TestPickWorstRequiresPositiveEnergy(t *testing.T) {
	s := DefaultSelector()
	energy := []float64{5, 0, 2}
	coverage := []float64{1, 0.05, 0.5}

	_, worst := s.pick(energy, coverage)
	if worst != 2 {
		t.Fatalf("worst = %d, want 2 (zero-energy channel ineligible)", worst)
	}
}

func TestPickCoverageWeighting(t *testing.T) {
	s := Selector{Alpha: 0.5, CoverageMin: 0.5, CoverageFloor: 0.1}
	energy := []float64{10, 8}
	coverage := []float64{0.5, 1.0}

	// Scores: 0.5*1 + 0.5*0.5 = 0.75 vs 0.5*0.8 + 0.5*1 = 0.9.
	best, _ := s.pick(energy, coverage)
	if best != 1 {
		t.Fatalf("best = %d, want 1", best)
	}
}

// buildOutput assembles a two-cluster sorter output: cluster 0 with spikes,
// cluster 1 with none.
func buildOutput() *sorter.Output {
	// 2 templates x 2 samples x 4 channels
	temps := narray.NewDense(2, 2, 4)
	// cluster 0 template: energy 8 on chan 1, 2 on chan 0, 0.02 on chan 2
	temps.Set3(0, 0, 1, 2)
	temps.Set3(0, 1, 1, 2)
	temps.Set3(0, 0, 0, 1)
	temps.Set3(0, 1, 0, 1)
	temps.Set3(0, 0, 2, 0.1)
	temps.Set3(0, 1, 2, 0.1)

	// 3 spikes x 3 comps x 3 local channels, all non-zero on all channels
	pc := narray.NewDense(3, 3, 3)
	for s := 0; s < 3; s++ {
		for k := 0; k < 3; k++ {
			for c := 0; c < 3; c++ {
				pc.Set3(s, k, c, 1)
			}
		}
	}

	ind := &narray.IntDense{Shape: []int{2, 3}, Data: []int64{0, 1, 2, 0, 1, 2}}

	return &sorter.Output{
		Clusters:    []int64{0, 0, 0},
		ClusterIDs:  []int64{0, 1},
		Labels:      []sorter.Label{sorter.LabelGood, sorter.LabelMUA},
		Templates:   temps,
		PCFeat:      pc,
		PCFeatInd:   ind,
		ChanMap:     []int64{0, 1, 2, 3},
		ScalingAmps: []float64{1, 1, 1},
	}
}

func TestSelectOmitsZeroSpikeClusters(t *testing.T) {
	out := buildOutput()
	got := DefaultSelector().Select(out)

	if _, ok := got[1]; ok {
		t.Fatalf("cluster 1 has no spikes and must be omitted")
	}
	a, ok := got[0]
	if !ok {
		t.Fatalf("cluster 0 missing from assignments")
	}
	if a.Best != 1 {
		t.Fatalf("best channel = %d, want 1", a.Best)
	}
	if a.Worst != 2 {
		t.Fatalf("worst channel = %d, want 2", a.Worst)
	}
}
