// Package pipeline orchestrates the post-sorting stages: spike extraction
// with drift correction, isolation scoring, trial-aligned rasters, isolated
// unit selection, and cross-recording stitching.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/spikeline/config"
	"github.com/mohammad-safakhou/spikeline/internal/channels"
	"github.com/mohammad-safakhou/spikeline/internal/layout"
	"github.com/mohammad-safakhou/spikeline/internal/sorter"
	"github.com/mohammad-safakhou/spikeline/internal/stitch"
	"github.com/mohammad-safakhou/spikeline/internal/store"
	"github.com/mohammad-safakhou/spikeline/internal/telemetry"
)

// Stage names, in execution order.
type Stage string

const (
	StageExtract   Stage = "extract"
	StageIsolation Stage = "isolation"
	StageRasters   Stage = "rasters"
	StageIsoUnits  Stage = "iso-units"
	StageStitch    Stage = "stitch"
)

// AllStages is the default stage sequence.
var AllStages = []Stage{StageExtract, StageIsolation, StageRasters, StageIsoUnits, StageStitch}

// ParseStages validates a stage-name list, defaulting to all stages.
func ParseStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return AllStages, nil
	}
	want := make(map[Stage]bool, len(names))
	for _, n := range names {
		s := Stage(n)
		switch s {
		case StageExtract, StageIsolation, StageRasters, StageIsoUnits, StageStitch:
			want[s] = true
		default:
			return nil, fmt.Errorf("unknown stage %q", n)
		}
	}
	var out []Stage
	for _, s := range AllStages {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Pipeline drives all stages for one session.
type Pipeline struct {
	Cfg     *config.Config
	Session layout.Session
	Logger  *log.Logger
	Store   *store.Store // optional
	Metrics *telemetry.Telemetry // optional

	sessionID string
}

// New assembles a pipeline. Store and metrics are optional.
func New(cfg *config.Config, sess layout.Session, logger *log.Logger, st *store.Store, metrics *telemetry.Telemetry) *Pipeline {
	return &Pipeline{Cfg: cfg, Session: sess, Logger: logger, Store: st, Metrics: metrics}
}

// Run executes the selected stages in order.
func (p *Pipeline) Run(ctx context.Context, stages []Stage) error {
	if len(stages) == 0 {
		stages = AllStages
	}
	p.Logger.Printf("=== spikeline pipeline ===")
	p.Logger.Printf("day %s | tower %s | probe %d | grouped %v | recordings %v",
		p.Session.Day, p.Session.Tower, p.Session.Probe, p.Session.Grouped, p.Session.Recs)

	for _, stage := range stages {
		runID, err := p.beginRun(ctx, stage)
		if err != nil {
			return err
		}
		start := time.Now()
		p.Logger.Printf("--- stage %s ---", stage)
		stageErr := p.runStage(ctx, stage)
		p.finishRun(ctx, runID, stageErr)
		if stageErr != nil {
			return fmt.Errorf("stage %s: %w", stage, stageErr)
		}
		p.Logger.Printf("--- stage %s complete (%s) ---", stage, time.Since(start).Round(time.Millisecond))
	}
	p.Logger.Printf("=== pipeline complete ===")
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, stage Stage) error {
	switch stage {
	case StageExtract:
		return p.Extract(ctx)
	case StageIsolation:
		return p.eachRecording(ctx, stage, p.IsolationForRecording)
	case StageRasters:
		return p.eachRecording(ctx, stage, p.RastersForRecording)
	case StageIsoUnits:
		return p.eachRecording(ctx, stage, p.IsoUnitsForRecording)
	case StageStitch:
		return p.Stitch(ctx, stitch.ScopeAll)
	}
	return fmt.Errorf("unknown stage %q", stage)
}

// eachRecording applies a per-recording stage, containing failures to the
// affected recording.
func (p *Pipeline) eachRecording(ctx context.Context, stage Stage, fn func(context.Context, string) error) error {
	for _, rec := range p.Session.Recs {
		if err := fn(ctx, rec); err != nil {
			p.Logger.Printf("error: recording %s %s failed: %v; continuing with next recording", rec, stage, err)
			if p.Metrics != nil {
				p.Metrics.RecordingsFailed.WithLabelValues(string(stage)).Inc()
			}
		}
	}
	return nil
}

func (p *Pipeline) beginRun(ctx context.Context, stage Stage) (string, error) {
	if p.Store == nil {
		return "", nil
	}
	if p.sessionID == "" {
		id, err := p.Store.EnsureSession(ctx, p.Session.Day, p.Session.Tower, p.Session.Probe, p.Session.Recs)
		if err != nil {
			return "", err
		}
		p.sessionID = id
	}
	return p.Store.CreateRun(ctx, p.sessionID, string(stage), p.Cfg.Curation)
}

func (p *Pipeline) finishRun(ctx context.Context, runID string, stageErr error) {
	if p.Store == nil || runID == "" {
		return
	}
	status := store.RunStatusCompleted
	var msg *string
	if stageErr != nil {
		status = store.RunStatusFailed
		s := stageErr.Error()
		msg = &s
	}
	if err := p.Store.FinishRun(ctx, runID, status, msg); err != nil {
		p.Logger.Printf("warn: finish run %s: %v", runID, err)
	}
}

// loadSorterOutput loads the session's sorter directory and the per-cluster
// channel assignments derived from it.
func (p *Pipeline) loadSorterOutput() (*sorter.Output, map[int64]channels.Assignment, error) {
	sp, err := sorter.Load(p.Session.SorterDir(), sorter.DefaultLoadOptions())
	if err != nil {
		return nil, nil, fmt.Errorf("load sorter output: %w", err)
	}
	assignments := channels.DefaultSelector().Select(sp)
	return sp, assignments, nil
}

// observeCluster records per-cluster stage metrics.
func (p *Pipeline) observeCluster(stage Stage, start time.Time, outcome string) {
	if p.Metrics == nil {
		return
	}
	switch outcome {
	case "processed":
		p.Metrics.ClustersProcessed.WithLabelValues(string(stage)).Inc()
	case "skipped":
		p.Metrics.ClustersSkipped.WithLabelValues(string(stage)).Inc()
	case "failed":
		p.Metrics.ClustersFailed.WithLabelValues(string(stage)).Inc()
	}
	p.Metrics.ClusterDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
