// Package reproject maps raw probe-clock spike times through the two-stage
// affine drift correction into the behavioral clock, splitting concatenated
// recording groups back into their member recordings.
package reproject

import (
	"fmt"
	"log"

	"github.com/mohammad-safakhou/spikeline/internal/timing"
)

// Recording pairs a recording identifier with its timing metadata.
type Recording struct {
	ID   string
	Meta timing.Metadata
}

// Partition is one recording's share of a reprojected spike stream. Indices
// point into the input stream and preserve input order; Times are the
// corrected spike times aligned with Indices.
type Partition struct {
	RecordingID string
	Indices     []int
	Times       []float64
	AuxOnly     bool  // second-stage model missing; times are auxiliary clock
	Err         error // first-stage model missing; partition is empty
}

// Split reprojects a probe-clock spike stream (seconds) across an ordered
// recording group. Window k covers (theta, theta+duration]; the first window
// additionally includes t = 0, so a spike at an exact recording boundary
// belongs to the earlier recording.
//
// A recording with a broken first-stage model yields an empty partition with
// Err set and the group offset still advances; a missing second-stage model
// is a soft failure (warning, auxiliary-clock output).
func Split(timesSec []float64, recs []Recording, logger *log.Logger) []Partition {
	parts := make([]Partition, 0, len(recs))
	theta := 0.0

	for k, rec := range recs {
		dur := rec.Meta.DurationSec()
		part := Partition{RecordingID: rec.ID}

		probeToAux, err := rec.Meta.ProbeToAuxAffine()
		if err != nil {
			part.Err = fmt.Errorf("recording %s: %w", rec.ID, err)
			if logger != nil {
				logger.Printf("error: %v; skipping recording", part.Err)
			}
			theta += dur
			parts = append(parts, part)
			continue
		}

		auxToBehavioral, haveSecond := rec.Meta.AuxToBehavioralAffine()
		if !haveSecond {
			part.AuxOnly = true
			if logger != nil {
				logger.Printf("warn: recording %s missing aux_to_behavioral_weights; emitting auxiliary-clock times", rec.ID)
			}
		}

		upper := theta + dur
		for i, t := range timesSec {
			inWindow := t > theta && t <= upper
			if k == 0 && t == 0 {
				inWindow = true
			}
			if !inWindow {
				continue
			}
			u := t - theta
			v := probeToAux.Apply(u)
			if haveSecond {
				v = auxToBehavioral.Apply(v)
			}
			part.Indices = append(part.Indices, i)
			part.Times = append(part.Times, v)
		}

		theta += dur
		parts = append(parts, part)
	}
	return parts
}

// Single reprojects a non-grouped recording: the one-iteration special case
// with a zero offset.
func Single(timesSec []float64, rec Recording, logger *log.Logger) Partition {
	return Split(timesSec, []Recording{rec}, logger)[0]
}
