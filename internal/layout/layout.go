// Package layout centralizes the session data-tree path conventions so the
// stages never hardcode path construction.
//
// A session tree looks like:
//
//	{root}/{day}/trials.jsonl
//	{root}/{day}/sorter/{tower}.{probe}.{recname}/        sorter output
//	{root}/{day}/{rec}/rec{rec}.{tower}.{probe}.timing.json
//	{root}/{day}/{rec}/rec{rec}.{tower}.{probe}.probe_geometry.json
//	{root}/{day}/{rec}/rec{rec}.{tower}.{probe}.{gflag}.spikes/    container
//	{root}/{day}/{rec}/sortsave/rec{rec}.{tower}.{probe}.{clu}.{gflag}.isolation.json
//	{root}/{day}/{rec}/sortsave/rec{rec}.{tower}.{probe}.{clu}.{gflag}.raster.json
//	{root}/{day}/stitch_{day}_{recs}.json
package layout

import (
	"fmt"
	"path/filepath"
	"strings"
)

// GroupFlag renders the grouped/non-grouped path component.
func GroupFlag(grouped bool) string {
	if grouped {
		return "Grouped"
	}
	return "NotGrouped"
}

// RecName joins recording ids for group-level paths.
func RecName(recs []string, grouped bool) string {
	if !grouped && len(recs) > 0 {
		return recs[0]
	}
	return strings.Join(recs, "_")
}

// Session identifies one recorded session on one probe.
type Session struct {
	Root    string
	Day     string
	Tower   string
	Probe   int
	Recs    []string
	Grouped bool
}

// DayDir is the session's day directory.
func (s Session) DayDir() string { return filepath.Join(s.Root, s.Day) }

// RecDir is one recording's directory.
func (s Session) RecDir(rec string) string { return filepath.Join(s.Root, s.Day, rec) }

// TrialsFile is the day-level behavioral trial store.
func (s Session) TrialsFile() string { return filepath.Join(s.DayDir(), "trials.jsonl") }

// SorterDir is the sorter output directory for the recording group.
func (s Session) SorterDir() string {
	name := fmt.Sprintf("%s.%d.%s", s.Tower, s.Probe, RecName(s.Recs, s.Grouped))
	return filepath.Join(s.DayDir(), "sorter", name)
}

// TimingFile is a recording's timing metadata.
func (s Session) TimingFile(rec string) string {
	return filepath.Join(s.RecDir(rec), fmt.Sprintf("rec%s.%s.%d.timing.json", rec, s.Tower, s.Probe))
}

// GeometryFile is a recording's probe geometry table.
func (s Session) GeometryFile(rec string) string {
	return filepath.Join(s.RecDir(rec), fmt.Sprintf("rec%s.%s.%d.probe_geometry.json", rec, s.Tower, s.Probe))
}

// SpikeStreamDir is a recording's persisted spike-stream container.
func (s Session) SpikeStreamDir(rec string) string {
	return filepath.Join(s.RecDir(rec),
		fmt.Sprintf("rec%s.%s.%d.%s.spikes", rec, s.Tower, s.Probe, GroupFlag(s.Grouped)))
}

// IsolationFile is the per-(recording, cluster) isolation container.
func (s Session) IsolationFile(rec string, clusterID int64) string {
	return filepath.Join(s.RecDir(rec), "sortsave",
		fmt.Sprintf("rec%s.%s.%d.%d.%s.isolation.json", rec, s.Tower, s.Probe, clusterID+1, GroupFlag(s.Grouped)))
}

// RasterFile is the per-(recording, cluster) raster container.
func (s Session) RasterFile(rec string, clusterID int64) string {
	return filepath.Join(s.RecDir(rec), "sortsave",
		fmt.Sprintf("rec%s.%s.%d.%d.%s.raster.json", rec, s.Tower, s.Probe, clusterID+1, GroupFlag(s.Grouped)))
}

// StitchFile is the session-level stitch table export.
func (s Session) StitchFile() string {
	return filepath.Join(s.DayDir(),
		fmt.Sprintf("stitch_%s_%s.json", s.Day, strings.Join(s.Recs, "_")))
}
