// Package probe models the silicon-probe geometry: which electrode each
// acquisition channel sits on, and electrode-distance neighborhoods.
package probe

import (
	"encoding/json"
	"fmt"
	"os"
)

// ChannelSite describes one acquisition channel's physical site.
type ChannelSite struct {
	Channel   int64   `json:"channel"`
	Electrode int64   `json:"electrode"`
	Depth     float64 `json:"depth"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// Geometry is the per-probe site table, indexed by probe channel index.
type Geometry struct {
	Sites []ChannelSite `json:"channels"`
}

// LoadGeometry reads a probe geometry JSON file.
func LoadGeometry(path string) (*Geometry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var g Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("probe geometry %s: %w", path, err)
	}
	return &g, nil
}

// ElectrodeOf returns the electrode index for a probe channel index, or
// false when the channel is outside the table.
func (g *Geometry) ElectrodeOf(channel int) (int64, bool) {
	if channel < 0 || channel >= len(g.Sites) {
		return 0, false
	}
	return g.Sites[channel].Electrode, true
}

// Neighborhood returns the probe channel indices whose electrode lies within
// +-radius of the given channel's electrode. The channel itself is included.
// An unknown channel maps to a neighborhood of just itself, so stitching can
// still compare exact-channel candidates without geometry.
func (g *Geometry) Neighborhood(channel, radius int) []int {
	center, ok := g.ElectrodeOf(channel)
	if !ok {
		return []int{channel}
	}
	var out []int
	for i, site := range g.Sites {
		d := site.Electrode - center
		if d < 0 {
			d = -d
		}
		if d <= int64(radius) {
			out = append(out, i)
		}
	}
	return out
}
