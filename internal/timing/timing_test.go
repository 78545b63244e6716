package timing

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timing.json")
	body := `{
  "duration_samples": 900000,
  "sample_rate": 30000,
  "probe_to_aux_weights": [0.001, 1.00001],
  "aux_to_behavioral_weights": [-0.5, 0.99999]
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.DurationSec() != 30 {
		t.Fatalf("duration sec = %v", m.DurationSec())
	}
	a, err := m.ProbeToAuxAffine()
	if err != nil {
		t.Fatalf("ProbeToAuxAffine: %v", err)
	}
	if a.Apply(0) != 0.001 {
		t.Fatalf("affine intercept = %v", a.Apply(0))
	}
	b, ok := m.AuxToBehavioralAffine()
	if !ok || b.Slope != 0.99999 {
		t.Fatalf("aux_to_behavioral = %+v %v", b, ok)
	}
}

func TestLoadMissingSecondStage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timing.json")
	body := `{"duration_samples": 30000, "sample_rate": 30000, "probe_to_aux_weights": [0, 1]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := m.AuxToBehavioralAffine(); ok {
		t.Fatalf("expected absent second-stage model")
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timing.json")
	if err := os.WriteFile(path, []byte(`{"duration_samples": 0, "sample_rate": 30000}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
}
