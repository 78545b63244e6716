package isolation

import "sort"

// IsIsolated reports the cluster-level verdict: by convention curation sets
// it on frame 0.
func IsIsolated(res *Result) bool {
	return len(res.Frames) > 0 && res.Frames[0].Verdict == Isolated
}

// IsolatedSet is the set of isolated cluster ids.
type IsolatedSet map[int64]bool

// SelectIsolated collects the clusters whose frame-0 verdict is Isolated.
func SelectIsolated(results []*Result) IsolatedSet {
	set := make(IsolatedSet)
	for _, r := range results {
		if IsIsolated(r) {
			set[r.ClusterID] = true
		}
	}
	return set
}

// IDs returns the member ids in ascending order.
func (s IsolatedSet) IDs() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// FilterStream restricts a reprojected spike stream to isolated clusters,
// preserving order.
func (s IsolatedSet) FilterStream(times []float64, clusters []int64) (isoTimes []float64, isoClusters []int64) {
	for i, c := range clusters {
		if s[c] {
			isoTimes = append(isoTimes, times[i])
			isoClusters = append(isoClusters, c)
		}
	}
	return isoTimes, isoClusters
}

// FilterClusterTable restricts (cluster_id, best_channel) rows to isolated
// clusters.
func (s IsolatedSet) FilterClusterTable(rows [][2]int64) [][2]int64 {
	var out [][2]int64
	for _, row := range rows {
		if s[row[0]] {
			out = append(out, row)
		}
	}
	return out
}
