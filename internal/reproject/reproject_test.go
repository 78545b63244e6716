package reproject

import (
	"log"
	"math"
	"os"
	"testing"

	"github.com/mohammad-safakhou/spikeline/internal/timing"
)

func identityRec(id string, samples int64) Recording {
	return Recording{
		ID: id,
		Meta: timing.Metadata{
			DurationSamples: samples,
			SampleRate:      30000,
			ProbeToAux:      []float64{0, 1},
			AuxToBehavioral: []float64{0, 1},
		},
	}
}

// Single synthetic recording, two clusters, identity reprojection.
func TestSingleIdentity(t *testing.T) {
	rec := identityRec("001", 30000)

	var times []float64
	for s := 300; s <= 29700; s += 300 {
		times = append(times, float64(s)/30000)
	}
	times = append(times, 450.0/30000, 1200.0/30000, 3000.0/30000)

	part := Single(times, rec, nil)
	if part.Err != nil {
		t.Fatalf("unexpected err: %v", part.Err)
	}
	if len(part.Times) != len(times) {
		t.Fatalf("len = %d, want %d", len(part.Times), len(times))
	}
	if part.Times[0] != 0.01 {
		t.Fatalf("first time = %v, want 0.01", part.Times[0])
	}
	if part.Times[98] != 0.99 {
		t.Fatalf("last cluster-1 time = %v, want 0.99", part.Times[98])
	}
	if part.Times[99] != 0.015 || part.Times[101] != 0.10 {
		t.Fatalf("cluster-2 times = %v %v", part.Times[99], part.Times[101])
	}
}

// Grouped two-recording split with a spike at the exact boundary.
func TestGroupedSplitBoundary(t *testing.T) {
	recs := []Recording{
		identityRec("A", 30000*30),
		identityRec("B", 30000*60),
	}
	times := []float64{0.5, 1.2, 29.999, 30.0, 30.001, 45.0, 89.9}

	parts := Split(times, recs, nil)
	if len(parts) != 2 {
		t.Fatalf("parts = %d", len(parts))
	}

	a, b := parts[0], parts[1]
	if len(a.Times) != 4 {
		t.Fatalf("recording A spikes = %v", a.Times)
	}
	// The spike at exactly 30.0 s is assigned to A by the upper-inclusive rule.
	if a.Times[3] != 30.0 {
		t.Fatalf("boundary spike went to %v", a.Times)
	}
	if len(b.Times) != 3 {
		t.Fatalf("recording B spikes = %v", b.Times)
	}
	if math.Abs(b.Times[0]-0.001) > 1e-9 {
		t.Fatalf("B first = %v, want 0.001", b.Times[0])
	}
	if b.Times[1] != 15.0 || math.Abs(b.Times[2]-59.9) > 1e-9 {
		t.Fatalf("B times = %v", b.Times)
	}
}

func TestFirstWindowIncludesZero(t *testing.T) {
	part := Single([]float64{0, 0.5}, identityRec("001", 30000*10), nil)
	if len(part.Times) != 2 || part.Times[0] != 0 {
		t.Fatalf("spike at t=0 must land in the first window, got %v", part.Times)
	}
}

// Reprojection linearity against a float64 reference.
func TestAffineLinearity(t *testing.T) {
	rec := Recording{
		ID: "007",
		Meta: timing.Metadata{
			DurationSamples: 30000 * 100,
			SampleRate:      30000,
			ProbeToAux:      []float64{0.003, 1.000012},
			AuxToBehavioral: []float64{-1.25, 0.999987},
		},
	}
	times := []float64{0.1, 7.5, 42.42, 99.999}

	part := Single(times, rec, nil)
	for i, u := range times {
		want := -1.25 + 0.999987*(0.003+1.000012*u)
		if part.Times[i] != want {
			t.Fatalf("time[%d] = %v, want %v", i, part.Times[i], want)
		}
	}
}

// Partition completeness: the union of selected indices equals the in-range
// input set with no overlap.
func TestPartitionCompleteness(t *testing.T) {
	recs := []Recording{
		identityRec("A", 30000*10),
		identityRec("B", 30000*10),
		identityRec("C", 30000*10),
	}
	times := []float64{0.001, 5, 10, 10.000001, 15, 20, 25, 29.9999}

	parts := Split(times, recs, nil)
	seen := make(map[int]int)
	for _, p := range parts {
		for _, idx := range p.Indices {
			seen[idx]++
		}
	}
	if len(seen) != len(times) {
		t.Fatalf("selected %d of %d spikes", len(seen), len(times))
	}
	for idx, n := range seen {
		if n != 1 {
			t.Fatalf("spike %d selected %d times", idx, n)
		}
	}
}

func TestMissingSecondStageIsSoftFailure(t *testing.T) {
	rec := Recording{
		ID: "003",
		Meta: timing.Metadata{
			DurationSamples: 30000 * 10,
			SampleRate:      30000,
			ProbeToAux:      []float64{1, 2},
		},
	}
	logger := log.New(os.Stderr, "[TEST] ", 0)

	part := Single([]float64{1.0}, rec, logger)
	if part.Err != nil {
		t.Fatalf("missing second stage must not be an error: %v", part.Err)
	}
	if !part.AuxOnly {
		t.Fatalf("expected AuxOnly partition")
	}
	if part.Times[0] != 3.0 { // 1 + 2*1, auxiliary clock
		t.Fatalf("aux time = %v, want 3.0", part.Times[0])
	}
}

func TestMissingFirstStageSkipsRecording(t *testing.T) {
	recs := []Recording{
		{
			ID: "bad",
			Meta: timing.Metadata{
				DurationSamples: 30000 * 10,
				SampleRate:      30000,
			},
		},
		identityRec("good", 30000*10),
	}
	times := []float64{5.0, 15.0}

	parts := Split(times, recs, nil)
	if parts[0].Err == nil {
		t.Fatalf("expected error for recording without probe_to_aux model")
	}
	if len(parts[0].Indices) != 0 {
		t.Fatalf("bad recording must emit no spikes")
	}
	// The offset still advances: 15 s lands in the second recording at 5 s.
	if len(parts[1].Times) != 1 || parts[1].Times[0] != 5.0 {
		t.Fatalf("good recording times = %v", parts[1].Times)
	}
}

func TestInputOrderPreserved(t *testing.T) {
	rec := identityRec("001", 30000*10)
	times := []float64{3, 1, 2} // not sorted; order must carry through
	part := Single(times, rec, nil)
	want := []float64{3, 1, 2}
	for i, v := range want {
		if part.Times[i] != v {
			t.Fatalf("times = %v, want input order preserved", part.Times)
		}
	}
}
