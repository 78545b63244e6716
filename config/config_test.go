package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  postgres:
    url: postgres://localhost/spikeline?sslmode=disable
  file:
    data_root: /tmp/data
`)
	cfg := LoadConfig(path)

	if cfg.Isolation.WindowSec != 100 {
		t.Fatalf("isolation.window_sec default = %v", cfg.Isolation.WindowSec)
	}
	if cfg.Stitching.FrCorrThreshold != 0.85 || cfg.Stitching.WfCorrThreshold != 0.85 {
		t.Fatalf("stitching threshold defaults = %+v", cfg.Stitching)
	}
	if cfg.Stitching.MinRecordings != 2 || cfg.Stitching.ChannelRange != 10 {
		t.Fatalf("stitching defaults = %+v", cfg.Stitching)
	}
	if cfg.Raster.Smoothing != 10 {
		t.Fatalf("raster.smoothing default = %v", cfg.Raster.Smoothing)
	}
	if cfg.Pipeline.Workers != 8 {
		t.Fatalf("pipeline.workers default = %v", cfg.Pipeline.Workers)
	}
	if cfg.Storage.File.OutputRoot != "/tmp/data" {
		t.Fatalf("output_root should default to data_root, got %q", cfg.Storage.File.OutputRoot)
	}
	if cfg.Curation.LRatioThreshold != 0.2 {
		t.Fatalf("curation.l_ratio_threshold default = %v", cfg.Curation.LRatioThreshold)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  postgres:
    host: db
    port: "5432"
    dbname: spikes
  file:
    data_root: /data
    output_root: /out
isolation:
  window_sec: 50
stitching:
  fr_corr_threshold: 0.9
  min_recordings: 3
raster:
  time_window: [-400, 400]
  smoothing: 25
`)
	cfg := LoadConfig(path)

	if cfg.Isolation.WindowSec != 50 {
		t.Fatalf("isolation.window_sec = %v", cfg.Isolation.WindowSec)
	}
	if cfg.Stitching.FrCorrThreshold != 0.9 || cfg.Stitching.MinRecordings != 3 {
		t.Fatalf("stitching = %+v", cfg.Stitching)
	}
	if len(cfg.Raster.TimeWindow) != 2 || cfg.Raster.TimeWindow[0] != -400 {
		t.Fatalf("raster.time_window = %v", cfg.Raster.TimeWindow)
	}
	if cfg.Storage.File.OutputRoot != "/out" {
		t.Fatalf("output_root = %q", cfg.Storage.File.OutputRoot)
	}
}

func TestRedisConfigValidate(t *testing.T) {
	r := RedisConfig{}
	if r.Enabled() {
		t.Fatalf("empty redis config should be disabled")
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("disabled redis config should validate: %v", err)
	}
	r.Host = "localhost"
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error for host without port")
	}
	r.Port = "6379"
	if err := r.Validate(); err != nil {
		t.Fatalf("valid redis config: %v", err)
	}
}
