package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"

	"github.com/mohammad-safakhou/spikeline/internal/queue/streams"
)

// Scheduler republishes a session job on a cron schedule, so freshly synced
// recordings get picked up without manual runs.
type Scheduler struct {
	logger  *log.Logger
	expr    *cronexpr.Expression
	pub     *streams.Publisher
	payload JobPayload
}

// NewScheduler parses the cron expression and builds a scheduler.
func NewScheduler(logger *log.Logger, schedule string, pub *streams.Publisher, payload JobPayload) (*Scheduler, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("pipeline.schedule %q: %w", schedule, err)
	}
	return &Scheduler{logger: logger, expr: expr, pub: pub, payload: payload}, nil
}

// Start blocks, publishing one job at each cron fire time until the context
// is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	for {
		next := s.expr.Next(time.Now())
		if next.IsZero() {
			return fmt.Errorf("schedule has no future fire times")
		}
		s.logger.Printf("next scheduled run at %s", next.Format(time.RFC3339))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(next)):
		}

		id, err := Enqueue(ctx, s.pub, s.payload)
		if err != nil {
			s.logger.Printf("error: scheduled enqueue failed: %v", err)
			continue
		}
		s.logger.Printf("scheduled run enqueued as %s", id)
	}
}
