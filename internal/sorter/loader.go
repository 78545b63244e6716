package sorter

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mohammad-safakhou/spikeline/internal/narray"
)

// LoadOptions controls optional parts of a directory load.
type LoadOptions struct {
	ExcludeNoise bool // drop spikes assigned to noise-labelled clusters
	LoadPCs      bool // load pc_features / pc_feature_ind
}

// DefaultLoadOptions loads PCs and keeps noise clusters; the channel
// selector and isolation scorer want the full spike set.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{ExcludeNoise: false, LoadPCs: true}
}

// Load reads a sorter output directory into an Output.
func Load(dir string, opts LoadOptions) (*Output, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("sorter output directory: %w", err)
	}

	params, err := ReadParams(filepath.Join(dir, "params.py"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("params.py: %w", err)
		}
		params = map[string]string{}
	}
	sampleRate := SampleRateFromParams(params)

	spikeSamples, err := narray.ReadNpyInt(filepath.Join(dir, "spike_times.npy"))
	if err != nil {
		return nil, fmt.Errorf("spike_times.npy: %w", err)
	}
	spikeTemplates, err := narray.ReadNpyInt(filepath.Join(dir, "spike_templates.npy"))
	if err != nil {
		return nil, fmt.Errorf("spike_templates.npy: %w", err)
	}

	// Manual curation may have rewritten cluster assignments; fall back to
	// template assignments when the file is absent.
	var clusters []int64
	if clu, err := narray.ReadNpyInt(filepath.Join(dir, "spike_clusters.npy")); err == nil {
		clusters = clu.Data
	} else if os.IsNotExist(err) {
		clusters = append([]int64(nil), spikeTemplates.Data...)
	} else {
		return nil, fmt.Errorf("spike_clusters.npy: %w", err)
	}

	amps, err := narray.ReadNpy(filepath.Join(dir, "amplitudes.npy"))
	if err != nil {
		return nil, fmt.Errorf("amplitudes.npy: %w", err)
	}

	templates, err := narray.ReadNpy(filepath.Join(dir, "templates.npy"))
	if err != nil {
		return nil, fmt.Errorf("templates.npy: %w", err)
	}
	if len(templates.Shape) != 3 {
		return nil, fmt.Errorf("templates.npy: want rank 3, got shape %v", templates.Shape)
	}

	chanMap, err := narray.ReadNpyInt(filepath.Join(dir, "channel_map.npy"))
	if err != nil {
		return nil, fmt.Errorf("channel_map.npy: %w", err)
	}

	var xcoords, ycoords []float64
	if pos, err := narray.ReadNpy(filepath.Join(dir, "channel_positions.npy")); err == nil && len(pos.Shape) == 2 && pos.Shape[1] >= 2 {
		n := pos.Shape[0]
		xcoords = make([]float64, n)
		ycoords = make([]float64, n)
		for i := 0; i < n; i++ {
			xcoords[i] = pos.At2(i, 0)
			ycoords[i] = pos.At2(i, 1)
		}
	}

	out := &Output{
		SpikeSamples:   spikeSamples.Data,
		SpikeTemplates: spikeTemplates.Data,
		Clusters:       clusters,
		ScalingAmps:    amps.Data,
		Templates:      templates,
		ChanMap:        chanMap.Data,
		XCoords:        xcoords,
		YCoords:        ycoords,
		SampleRate:     sampleRate,
	}

	out.SpikeTimesSec = make([]float64, len(out.SpikeSamples))
	for i, s := range out.SpikeSamples {
		out.SpikeTimesSec[i] = float64(s) / sampleRate
	}

	if opts.LoadPCs {
		pc, err := narray.ReadNpy(filepath.Join(dir, "pc_features.npy"))
		if err != nil {
			return nil, fmt.Errorf("pc_features.npy: %w", err)
		}
		if len(pc.Shape) != 3 {
			return nil, fmt.Errorf("pc_features.npy: want rank 3, got shape %v", pc.Shape)
		}
		ind, err := narray.ReadNpyInt(filepath.Join(dir, "pc_feature_ind.npy"))
		if err != nil {
			return nil, fmt.Errorf("pc_feature_ind.npy: %w", err)
		}
		if len(ind.Shape) != 2 {
			return nil, fmt.Errorf("pc_feature_ind.npy: want rank 2, got shape %v", ind.Shape)
		}
		out.PCFeat = pc
		out.PCFeatInd = ind
	}

	if err := loadLabels(dir, out); err != nil {
		return nil, err
	}

	if opts.ExcludeNoise {
		excludeNoise(out)
	}
	return out, nil
}

func loadLabels(dir string, out *Output) error {
	for _, name := range ClusterGroupFiles {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		ids, labels, err := ReadClusterGroups(path)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		out.ClusterIDs = ids
		out.Labels = labels
		return nil
	}

	// No label file: every observed cluster is unsorted.
	seen := make(map[int64]bool)
	for _, c := range out.Clusters {
		if !seen[c] {
			seen[c] = true
			out.ClusterIDs = append(out.ClusterIDs, c)
		}
	}
	sort.Slice(out.ClusterIDs, func(i, j int) bool { return out.ClusterIDs[i] < out.ClusterIDs[j] })
	out.Labels = make([]Label, len(out.ClusterIDs))
	for i := range out.Labels {
		out.Labels[i] = LabelUnsorted
	}
	return nil
}

func excludeNoise(out *Output) {
	noise := make(map[int64]bool)
	for i, id := range out.ClusterIDs {
		if out.Labels[i] == LabelNoise {
			noise[id] = true
		}
	}
	if len(noise) == 0 {
		return
	}

	keep := make([]int, 0, len(out.Clusters))
	for i, c := range out.Clusters {
		if !noise[c] {
			keep = append(keep, i)
		}
	}

	filterInt64 := func(src []int64) []int64 {
		dst := make([]int64, len(keep))
		for i, j := range keep {
			dst[i] = src[j]
		}
		return dst
	}
	filterFloat64 := func(src []float64) []float64 {
		dst := make([]float64, len(keep))
		for i, j := range keep {
			dst[i] = src[j]
		}
		return dst
	}

	out.SpikeSamples = filterInt64(out.SpikeSamples)
	out.SpikeTimesSec = filterFloat64(out.SpikeTimesSec)
	out.SpikeTemplates = filterInt64(out.SpikeTemplates)
	out.Clusters = filterInt64(out.Clusters)
	out.ScalingAmps = filterFloat64(out.ScalingAmps)

	if out.PCFeat != nil {
		stride := out.PCFeat.Shape[1] * out.PCFeat.Shape[2]
		data := make([]float64, len(keep)*stride)
		for i, j := range keep {
			copy(data[i*stride:(i+1)*stride], out.PCFeat.Data[j*stride:(j+1)*stride])
		}
		out.PCFeat = &narray.Dense{
			Shape: []int{len(keep), out.PCFeat.Shape[1], out.PCFeat.Shape[2]},
			Data:  data,
		}
	}

	ids := out.ClusterIDs[:0]
	labels := out.Labels[:0]
	for i, id := range out.ClusterIDs {
		if !noise[id] {
			ids = append(ids, id)
			labels = append(labels, out.Labels[i])
		}
	}
	out.ClusterIDs = ids
	out.Labels = labels
}
