// Package worker consumes pipeline jobs from the redis-streams queue and
// executes them, claiming idempotency and checkpointing through the catalog.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/spikeline/config"
	"github.com/mohammad-safakhou/spikeline/internal/layout"
	"github.com/mohammad-safakhou/spikeline/internal/pipeline"
	"github.com/mohammad-safakhou/spikeline/internal/queue/streams"
	"github.com/mohammad-safakhou/spikeline/internal/store"
	"github.com/mohammad-safakhou/spikeline/internal/telemetry"
)

const (
	// StreamJobs is the pipeline work stream.
	StreamJobs = "spikeline.jobs"
	// EventSessionRun requests a (partial) pipeline run for one session.
	EventSessionRun = "session.run"
	// Group is the worker consumer-group name.
	Group = "spikeline-workers"
)

// JobPayload mirrors the JSON payload published to the jobs stream.
type JobPayload struct {
	Day       string   `json:"day"`
	Tower     string   `json:"tower"`
	Probe     int      `json:"probe"`
	Recs      []string `json:"recs"`
	Grouped   bool     `json:"grouped"`
	Stages    []string `json:"stages,omitempty"`
	Recording string   `json:"recording,omitempty"` // restrict per-recording stages
}

// Enqueue publishes a session job.
func Enqueue(ctx context.Context, pub *streams.Publisher, payload JobPayload) (string, error) {
	return pub.PublishRaw(ctx, StreamJobs, EventSessionRun, "v1", payload)
}

// Processor drives job execution from the stream.
type Processor struct {
	logger   *log.Logger
	cfg      *config.Config
	store    *store.Store // optional
	metrics  *telemetry.Telemetry
	consumer *streams.Consumer
}

// NewProcessor constructs a Processor.
func NewProcessor(logger *log.Logger, cfg *config.Config, st *store.Store, metrics *telemetry.Telemetry, cons *streams.Consumer) *Processor {
	return &Processor{logger: logger, cfg: cfg, store: st, metrics: metrics, consumer: cons}
}

// Start blocks, continuously processing jobs until the context is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	p.logger.Printf("worker starting; consuming stream %s", StreamJobs)
	for {
		select {
		case <-ctx.Done():
			p.logger.Printf("worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		msgs, err := p.consumer.Read(ctx, StreamJobs, streams.WithBlock(5*time.Second), streams.WithCount(4))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Printf("error reading stream: %v", err)
			time.Sleep(time.Second)
			continue
		}

		for _, msg := range msgs {
			if err := p.handle(ctx, msg); err != nil {
				p.logger.Printf("error handling job %s: %v", msg.ID, err)
			}
			if err := p.consumer.Ack(ctx, StreamJobs, msg.ID); err != nil {
				p.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
			}
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg streams.Message) error {
	if msg.Envelope.EventType != EventSessionRun {
		p.logger.Printf("skip event %s — unknown type %s", msg.Envelope.EventID, msg.Envelope.EventType)
		return nil
	}

	if p.store != nil {
		claimed, err := p.store.ClaimIdempotency(ctx, msg.Envelope.EventType, msg.Envelope.EventID)
		if err != nil {
			return fmt.Errorf("claim idempotency: %w", err)
		}
		if !claimed {
			p.logger.Printf("skip event %s — already processed", msg.Envelope.EventID)
			return nil
		}
	}

	var payload JobPayload
	if err := json.Unmarshal(msg.Envelope.Data, &payload); err != nil {
		return fmt.Errorf("unmarshal job payload: %w", err)
	}
	if payload.Day == "" || len(payload.Recs) == 0 {
		return fmt.Errorf("job %s missing day/recs", msg.Envelope.EventID)
	}

	sess := layout.Session{
		Root:    p.cfg.Storage.File.OutputRoot,
		Day:     payload.Day,
		Tower:   payload.Tower,
		Probe:   payload.Probe,
		Recs:    payload.Recs,
		Grouped: payload.Grouped,
	}
	stages, err := pipeline.ParseStages(payload.Stages)
	if err != nil {
		return err
	}

	pl := pipeline.New(p.cfg, sess, p.logger, p.store, p.metrics)
	if payload.Recording != "" {
		return p.runRecording(ctx, pl, stages, payload.Recording)
	}
	return pl.Run(ctx, stages)
}

// runRecording executes only the per-recording stages for one recording.
func (p *Processor) runRecording(ctx context.Context, pl *pipeline.Pipeline, stages []pipeline.Stage, rec string) error {
	for _, stage := range stages {
		var err error
		switch stage {
		case pipeline.StageIsolation:
			err = pl.IsolationForRecording(ctx, rec)
		case pipeline.StageRasters:
			err = pl.RastersForRecording(ctx, rec)
		case pipeline.StageIsoUnits:
			err = pl.IsoUnitsForRecording(ctx, rec)
		default:
			p.logger.Printf("warn: stage %s is session-wide; ignoring recording restriction", stage)
			continue
		}
		if err != nil {
			return fmt.Errorf("stage %s recording %s: %w", stage, rec, err)
		}
	}
	return nil
}
