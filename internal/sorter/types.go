// Package sorter reads the upstream spike-sorting engine's output directory:
// spike times, cluster assignments, templates, principal-component features,
// scaling amplitudes, the channel map, and cluster quality labels.
package sorter

import "github.com/mohammad-safakhou/spikeline/internal/narray"

// Label is a cluster quality label assigned by the sorter or by curation.
type Label int

const (
	LabelNoise Label = iota
	LabelMUA
	LabelGood
	LabelUnsorted
)

func (l Label) String() string {
	switch l {
	case LabelNoise:
		return "noise"
	case LabelMUA:
		return "mua"
	case LabelGood:
		return "good"
	case LabelUnsorted:
		return "unsorted"
	}
	return "unsorted"
}

// ParseLabel maps a label string from the cluster group file. Unknown labels
// map to unsorted.
func ParseLabel(s string) Label {
	switch s {
	case "noise":
		return LabelNoise
	case "mua":
		return LabelMUA
	case "good":
		return LabelGood
	case "unsorted":
		return LabelUnsorted
	}
	return LabelUnsorted
}

// Output holds everything loaded from one sorter output directory.
// All cluster and channel indices are 0-indexed.
type Output struct {
	SpikeSamples   []int64   // raw spike times in probe-clock samples
	SpikeTimesSec  []float64 // SpikeSamples / SampleRate
	SpikeTemplates []int64   // template assignment per spike
	Clusters       []int64   // cluster assignment per spike
	ScalingAmps    []float64 // per-spike template scaling amplitude

	ClusterIDs []int64 // distinct cluster ids from the label file
	Labels     []Label // aligned with ClusterIDs

	Templates *narray.Dense    // [nTemplates][nSamples][nChannels]
	PCFeat    *narray.Dense    // [nSpikes][3][nLocalChannels]
	PCFeatInd *narray.IntDense // [nTemplates][nLocalChannels]

	ChanMap    []int64 // global channel identity per probe channel index
	XCoords    []float64
	YCoords    []float64
	SampleRate float64
}

// LabelOf returns the quality label for a cluster id, defaulting to unsorted
// for clusters absent from the label file.
func (o *Output) LabelOf(clusterID int64) Label {
	for i, id := range o.ClusterIDs {
		if id == clusterID {
			return o.Labels[i]
		}
	}
	return LabelUnsorted
}

// GoodClusterIDs returns the ids labelled good.
func (o *Output) GoodClusterIDs() []int64 {
	var out []int64
	for i, id := range o.ClusterIDs {
		if o.Labels[i] == LabelGood {
			out = append(out, id)
		}
	}
	return out
}
