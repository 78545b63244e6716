// Package timing loads per-recording timing metadata: probe-clock duration,
// sampling rate, and the two affine clock corrections.
package timing

import (
	"encoding/json"
	"fmt"
	"os"
)

// Affine is an (intercept, slope) pair mapping one clock into another.
type Affine struct {
	Intercept float64
	Slope     float64
}

// Apply maps t through the affine model.
func (a Affine) Apply(t float64) float64 { return a.Intercept + a.Slope*t }

// Identity is the no-op correction.
var Identity = Affine{Intercept: 0, Slope: 1}

// Metadata is one recording's timing record.
type Metadata struct {
	DurationSamples int64     `json:"duration_samples"`
	SampleRate      float64   `json:"sample_rate"`
	ProbeToAux      []float64 `json:"probe_to_aux_weights"`
	AuxToBehavioral []float64 `json:"aux_to_behavioral_weights,omitempty"`
}

// DurationSec is the probe-clock duration in seconds.
func (m Metadata) DurationSec() float64 {
	return float64(m.DurationSamples) / m.SampleRate
}

// ProbeToAuxAffine returns the first-stage correction. Both weights are
// required; a missing model is a missing-input failure for the recording.
func (m Metadata) ProbeToAuxAffine() (Affine, error) {
	if len(m.ProbeToAux) != 2 {
		return Affine{}, fmt.Errorf("probe_to_aux_weights: want [intercept, slope], got %v", m.ProbeToAux)
	}
	return Affine{Intercept: m.ProbeToAux[0], Slope: m.ProbeToAux[1]}, nil
}

// AuxToBehavioralAffine returns the second-stage correction and whether it is
// present. Absence is schema drift, not an error: the caller falls back to
// auxiliary-clock output.
func (m Metadata) AuxToBehavioralAffine() (Affine, bool) {
	if len(m.AuxToBehavioral) != 2 {
		return Affine{}, false
	}
	return Affine{Intercept: m.AuxToBehavioral[0], Slope: m.AuxToBehavioral[1]}, true
}

// Validate checks the fields every consumer depends on.
func (m Metadata) Validate() error {
	if m.DurationSamples <= 0 {
		return fmt.Errorf("duration_samples must be > 0, got %d", m.DurationSamples)
	}
	if m.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be > 0, got %v", m.SampleRate)
	}
	return nil
}

// Load reads a timing metadata JSON file.
func Load(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return Metadata{}, fmt.Errorf("timing metadata %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return Metadata{}, fmt.Errorf("timing metadata %s: %w", path, err)
	}
	return m, nil
}
