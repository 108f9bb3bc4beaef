// Package scheduler runs background maintenance jobs — snapshot
// threshold sweeps and DLQ backlog reporting — on robfig/cron/v3
// schedules, the cron library already present in the example pack's
// automation-service dependency surface.
package scheduler

import (
	"context"

	"reactor/internal/resilience"
	"reactor/internal/rlog"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a cron.Cron with the logging and shutdown
// conventions the rest of the runtime follows.
type Scheduler struct {
	cron *cron.Cron
	log  rlog.Logger
}

// New constructs a Scheduler using cron's standard 5-field parser.
func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  rlog.Named("scheduler"),
	}
}

// AddSnapshotSweep registers a job that runs check at the given cron
// spec; check is expected to compare each tracked stream's event count
// against eventstore.SnapshotThreshold and trigger SaveSnapshot calls
// where due. The scheduler itself is agnostic to which streams exist.
func (s *Scheduler) AddSnapshotSweep(spec string, check func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		if err := check(context.Background()); err != nil {
			s.log.Error().Err(err).Msg("snapshot sweep failed")
		}
	})
	return err
}

// AddDLQReport registers a job that periodically logs the current DLQ
// backlog size per source, so operators notice growth without needing
// the (deliberately out-of-scope) reprocessing tool.
func (s *Scheduler) AddDLQReport(spec string, sink resilience.Sink) error {
	_, err := s.cron.AddFunc(spec, func() {
		for _, source := range []string{"event_store", "event_bus"} {
			entries, err := sink.List(source)
			if err != nil {
				s.log.Error().Err(err).Str("source", source).Msg("dlq list failed")
				continue
			}
			if len(entries) > 0 {
				s.log.Warn().Str("source", source).Int("backlog", len(entries)).Msg("dlq backlog")
			}
		}
	})
	return err
}

// Start begins running scheduled jobs in their own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop stops the scheduler and blocks until any running job completes.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
