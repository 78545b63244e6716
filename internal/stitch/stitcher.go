// Package stitch matches the same neuron across recordings of one session by
// correlating template waveforms and peri-event rate curves within an
// electrode neighborhood.
package stitch

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/mohammad-safakhou/spikeline/internal/probe"
)

// NotFound marks an empty slot in a stitch row.
const NotFound int64 = -1

// Scope selects which clusters participate in stitching.
type Scope string

const (
	ScopeAll      Scope = "All"
	ScopeGood     Scope = "Good"
	ScopeIsolated Scope = "Isolated"
)

// ParseScope validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeAll, ScopeGood, ScopeIsolated:
		return Scope(s), nil
	}
	return "", fmt.Errorf("cluster scope must be All, Good, or Isolated, got %q", s)
}

// Member is one in-scope cluster and its best channel (probe channel index).
type Member struct {
	ClusterID int64
	Channel   int
}

// Source provides per-recording cluster data to the stitcher. A missing
// waveform or rate curve is reported as a NaN vector, which can never win
// the correlation argmax.
type Source interface {
	Clusters(recIndex int) []Member
	Waveform(recIndex int, clusterID int64) []float64
	RateCurve(recIndex int, clusterID int64) []float64
}

// Row is one tracked neuron: element k is its cluster id in recording k, or
// NotFound.
type Row []int64

// Found counts the non-empty slots.
func (r Row) Found() int {
	n := 0
	for _, v := range r {
		if v != NotFound {
			n++
		}
	}
	return n
}

// Table is the ordered stitch output.
type Table struct {
	Recordings []string
	Rows       []Row
}

// Stitcher is the explicit stitching context: recordings, geometry, and
// thresholds, with all helpers as methods.
type Stitcher struct {
	Recordings    []string
	Geometry      *probe.Geometry
	Source        Source
	FrThreshold   float64
	WfThreshold   float64
	ChannelRange  int
	MinRecordings int
	Logger        *log.Logger
}

type candidate struct {
	id   int64
	wf   []float64
	rate []float64
}

// Run executes the stitching algorithm and returns the deduplicated,
// count-filtered table.
func (s *Stitcher) Run() (*Table, error) {
	if len(s.Recordings) == 0 {
		return nil, fmt.Errorf("stitcher needs at least one recording")
	}
	if s.Source == nil {
		return nil, fmt.Errorf("stitcher source is required")
	}

	nRecs := len(s.Recordings)
	members := make([][]Member, nRecs)
	for r := 0; r < nRecs; r++ {
		members[r] = s.Source.Clusters(r)
	}

	channels := candidateChannels(members)

	var rows []Row
	for _, ch := range channels {
		neighborhood := s.neighborhoodSet(ch)

		// Clusters within the neighborhood, per recording.
		nearby := make([][]candidate, nRecs)
		for r := 0; r < nRecs; r++ {
			for _, m := range members[r] {
				if !neighborhood[m.Channel] {
					continue
				}
				nearby[r] = append(nearby[r], candidate{
					id:   m.ClusterID,
					wf:   s.Source.Waveform(r, m.ClusterID),
					rate: s.Source.RateCurve(r, m.ClusterID),
				})
			}
		}

		for r := 0; r < nRecs; r++ {
			for _, m := range members[r] {
				if m.Channel != ch {
					continue
				}
				rows = append(rows, s.matchRow(r, m.ClusterID, nearby))
			}
		}
	}

	rows = dedupRows(rows)
	filtered := rows[:0]
	for _, row := range rows {
		if row.Found() >= s.MinRecordings {
			filtered = append(filtered, row)
		}
	}
	if s.Logger != nil {
		s.Logger.Printf("stitching complete: %d neurons across %d recordings", len(filtered), nRecs)
	}
	return &Table{Recordings: append([]string(nil), s.Recordings...), Rows: filtered}, nil
}

// matchRow builds the candidate row for cluster q in recording r by scanning
// every other recording's neighborhood clusters.
func (s *Stitcher) matchRow(r int, q int64, nearby [][]candidate) Row {
	row := make(Row, len(s.Recordings))
	for i := range row {
		row[i] = NotFound
	}
	row[r] = q

	qRate := s.Source.RateCurve(r, q)
	qWf := s.Source.Waveform(r, q)

	for other := range s.Recordings {
		if other == r || len(nearby[other]) == 0 {
			continue
		}
		best := -1
		bestFr := math.Inf(-1)
		wfAtBest := math.NaN()
		for i, c := range nearby[other] {
			fr := PearsonPairwise(qRate, c.rate)
			if math.IsNaN(fr) {
				fr = math.Inf(-1)
			}
			if fr > bestFr || best < 0 {
				best = i
				bestFr = fr
				wfAtBest = PearsonPairwise(qWf, c.wf)
			}
		}
		if best >= 0 && bestFr >= s.FrThreshold && wfAtBest >= s.WfThreshold {
			row[other] = nearby[other][best].id
		}
	}
	return row
}

func (s *Stitcher) neighborhoodSet(channel int) map[int]bool {
	set := make(map[int]bool)
	if s.Geometry == nil {
		set[channel] = true
		return set
	}
	for _, c := range s.Geometry.Neighborhood(channel, s.ChannelRange) {
		set[c] = true
	}
	return set
}

// candidateChannels is the sorted union of best channels across recordings.
func candidateChannels(members [][]Member) []int {
	seen := make(map[int]bool)
	var out []int
	for _, ms := range members {
		for _, m := range ms {
			if !seen[m.Channel] {
				seen[m.Channel] = true
				out = append(out, m.Channel)
			}
		}
	}
	sort.Ints(out)
	return out
}

// dedupRows keeps the first representative of each equivalence class
// (rows equal element-wise after the empty-slot substitution).
func dedupRows(rows []Row) []Row {
	seen := make(map[string]bool, len(rows))
	out := rows[:0]
	for _, row := range rows {
		key := ""
		for _, v := range row {
			if v == NotFound {
				key += "0,"
			} else {
				key += fmt.Sprintf("%d,", v)
			}
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

// PearsonPairwise computes the Pearson correlation of two vectors truncated
// to their common length, skipping index pairs where either value is NaN.
// Fewer than two valid pairs or zero variance yields NaN.
func PearsonPairwise(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sx, sy float64
	count := 0
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		sx += a[i]
		sy += b[i]
		count++
	}
	if count < 2 {
		return math.NaN()
	}
	mx := sx / float64(count)
	my := sy / float64(count)

	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		if math.IsNaN(a[i]) || math.IsNaN(b[i]) {
			continue
		}
		dx := a[i] - mx
		dy := b[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return math.NaN()
	}
	return sxy / math.Sqrt(sxx*syy)
}
