// Package artifact reads and writes the persisted pipeline containers: the
// per-recording spike-stream directory, the per-cluster isolation and raster
// documents, and the session stitch export.
//
// Containers keep the compatibility conventions: cluster ids are 1-indexed
// on disk and 0-indexed in memory; channels are 0-indexed everywhere. The
// conversion happens here and nowhere else.
package artifact

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mohammad-safakhou/spikeline/internal/narray"
)

// SpikeStream is the per-recording drift-corrected spike container.
type SpikeStream struct {
	SpikeTimes      []float64 // behavioral-clock seconds
	ClusterIDs      []int64   // 0-indexed in memory
	Templates       *narray.Dense
	CluInfo         [][2]int64 // (cluster_id, best_channel), 0-indexed in memory
	KsCluInfo       [][2]int64 // rows with the good label
	PCFeat          *narray.Dense
	TempScalingAmps []float64
	AuxOnly         bool // times are auxiliary clock (second-stage model missing)

	IsoSpikeTimes []float64
	IsoClusterIDs []int64
	IsoCluInfo    [][2]int64
}

type spikeStreamMeta struct {
	Format        string `json:"format"`
	TemplateShape []int  `json:"template_shape,omitempty"`
	PCFeatShape   []int  `json:"pc_feat_shape,omitempty"`
	AuxOnly       bool   `json:"aux_only,omitempty"`
	HasIsolated   bool   `json:"has_isolated,omitempty"`
}

const spikeStreamFormat = "spikeline_v1"

// WriteSpikeStream writes the container into dir, staging through a temp
// directory so a concurrent reader never sees a partial container.
func WriteSpikeStream(dir string, ss *SpikeStream) error {
	tmp := dir + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return err
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return err
	}

	if err := writeSpikeStreamInto(tmp, ss); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	return os.Rename(tmp, dir)
}

func writeSpikeStreamInto(dir string, ss *SpikeStream) error {
	if err := narray.WriteNpy(filepath.Join(dir, "spike_times.npy"), ss.SpikeTimes); err != nil {
		return err
	}
	if err := narray.WriteNpyInt(filepath.Join(dir, "cluster_ids.npy"), toPersistedIDs(ss.ClusterIDs)); err != nil {
		return err
	}
	if err := narray.WriteNpy(filepath.Join(dir, "temp_scaling_amps.npy"), ss.TempScalingAmps); err != nil {
		return err
	}
	if err := writeCluInfo(filepath.Join(dir, "clu_info.npy"), ss.CluInfo); err != nil {
		return err
	}
	if err := writeCluInfo(filepath.Join(dir, "ks_clu_info.npy"), ss.KsCluInfo); err != nil {
		return err
	}

	meta := spikeStreamMeta{Format: spikeStreamFormat, AuxOnly: ss.AuxOnly}
	if ss.Templates != nil {
		meta.TemplateShape = ss.Templates.Shape
		if err := narray.WriteNpyShaped(filepath.Join(dir, "templates.npy"), ss.Templates.Shape, ss.Templates.Data); err != nil {
			return err
		}
	}
	if ss.PCFeat != nil {
		meta.PCFeatShape = ss.PCFeat.Shape
		if err := narray.WriteNpyShaped(filepath.Join(dir, "pc_feat.npy"), ss.PCFeat.Shape, ss.PCFeat.Data); err != nil {
			return err
		}
	}

	if ss.IsoClusterIDs != nil {
		meta.HasIsolated = true
		if err := writeIsolatedInto(dir, ss); err != nil {
			return err
		}
	}

	return writeJSON(filepath.Join(dir, "meta.json"), meta)
}

func writeIsolatedInto(dir string, ss *SpikeStream) error {
	if err := narray.WriteNpy(filepath.Join(dir, "iso_spike_times.npy"), ss.IsoSpikeTimes); err != nil {
		return err
	}
	if err := narray.WriteNpyInt(filepath.Join(dir, "iso_cluster_ids.npy"), toPersistedIDs(ss.IsoClusterIDs)); err != nil {
		return err
	}
	return writeCluInfo(filepath.Join(dir, "iso_clu_info.npy"), ss.IsoCluInfo)
}

// AppendIsolated adds the isolated-subset fields to an existing container.
// This is the container's second and final mutation.
func AppendIsolated(dir string, isoTimes []float64, isoClusters []int64, isoCluInfo [][2]int64) error {
	meta, err := readMeta(dir)
	if err != nil {
		return err
	}
	ss := &SpikeStream{
		IsoSpikeTimes: isoTimes,
		IsoClusterIDs: isoClusters,
		IsoCluInfo:    isoCluInfo,
	}
	if ss.IsoSpikeTimes == nil {
		ss.IsoSpikeTimes = []float64{}
	}
	if ss.IsoClusterIDs == nil {
		ss.IsoClusterIDs = []int64{}
	}
	if err := writeIsolatedInto(dir, ss); err != nil {
		return err
	}
	meta.HasIsolated = true
	return writeJSON(filepath.Join(dir, "meta.json"), meta)
}

// ReadSpikeStream loads a container back into memory (ids re-0-indexed).
func ReadSpikeStream(dir string) (*SpikeStream, error) {
	meta, err := readMeta(dir)
	if err != nil {
		return nil, err
	}

	times, err := narray.ReadNpy(filepath.Join(dir, "spike_times.npy"))
	if err != nil {
		return nil, err
	}
	ids, err := narray.ReadNpyInt(filepath.Join(dir, "cluster_ids.npy"))
	if err != nil {
		return nil, err
	}
	amps, err := narray.ReadNpy(filepath.Join(dir, "temp_scaling_amps.npy"))
	if err != nil {
		return nil, err
	}
	cluInfo, err := readCluInfo(filepath.Join(dir, "clu_info.npy"))
	if err != nil {
		return nil, err
	}
	ksCluInfo, err := readCluInfo(filepath.Join(dir, "ks_clu_info.npy"))
	if err != nil {
		return nil, err
	}

	ss := &SpikeStream{
		SpikeTimes:      times.Data,
		ClusterIDs:      fromPersistedIDs(ids.Data),
		TempScalingAmps: amps.Data,
		CluInfo:         cluInfo,
		KsCluInfo:       ksCluInfo,
		AuxOnly:         meta.AuxOnly,
	}

	if len(meta.TemplateShape) > 0 {
		t, err := narray.ReadNpy(filepath.Join(dir, "templates.npy"))
		if err != nil {
			return nil, err
		}
		ss.Templates = t
	}
	if len(meta.PCFeatShape) > 0 {
		pc, err := narray.ReadNpy(filepath.Join(dir, "pc_feat.npy"))
		if err != nil {
			return nil, err
		}
		ss.PCFeat = pc
	}
	if meta.HasIsolated {
		isoT, err := narray.ReadNpy(filepath.Join(dir, "iso_spike_times.npy"))
		if err != nil {
			return nil, err
		}
		isoC, err := narray.ReadNpyInt(filepath.Join(dir, "iso_cluster_ids.npy"))
		if err != nil {
			return nil, err
		}
		isoInfo, err := readCluInfo(filepath.Join(dir, "iso_clu_info.npy"))
		if err != nil {
			return nil, err
		}
		ss.IsoSpikeTimes = isoT.Data
		ss.IsoClusterIDs = fromPersistedIDs(isoC.Data)
		ss.IsoCluInfo = isoInfo
	}
	return ss, nil
}

func readMeta(dir string) (spikeStreamMeta, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return spikeStreamMeta{}, err
	}
	var meta spikeStreamMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return spikeStreamMeta{}, fmt.Errorf("spike stream meta: %w", err)
	}
	if meta.Format != spikeStreamFormat {
		return spikeStreamMeta{}, fmt.Errorf("spike stream format %q not supported", meta.Format)
	}
	return meta, nil
}

// writeCluInfo persists (cluster_id, channel) rows with 1-indexed ids and
// 0-indexed channels.
func writeCluInfo(path string, rows [][2]int64) error {
	flat := make([]int64, 0, len(rows)*2)
	for _, r := range rows {
		flat = append(flat, r[0]+1, r[1])
	}
	return narray.WriteNpyIntShaped(path, []int{len(rows), 2}, flat)
}

func readCluInfo(path string) ([][2]int64, error) {
	d, err := narray.ReadNpyInt(path)
	if err != nil {
		return nil, err
	}
	if len(d.Shape) != 2 || d.Shape[1] != 2 {
		return nil, fmt.Errorf("%s: want shape [n 2], got %v", path, d.Shape)
	}
	rows := make([][2]int64, d.Shape[0])
	for i := range rows {
		rows[i] = [2]int64{d.At2(i, 0) - 1, d.At2(i, 1)}
	}
	return rows, nil
}

func toPersistedIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = v + 1
	}
	return out
}

func fromPersistedIDs(ids []int64) []int64 {
	out := make([]int64, len(ids))
	for i, v := range ids {
		out[i] = v - 1
	}
	return out
}

// writeJSON writes a document atomically via a temp file.
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
