package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/meteomancer/weatheroracle/internal/pipeline"
	"github.com/meteomancer/weatheroracle/internal/store"
)

// schedulerQueries is the subset of store.Queries the scheduler needs.
type schedulerQueries interface {
	ListLocations(ctx context.Context) ([]store.Location, error)
}

// Scheduler periodically recomputes the forecast for every stored
// location so cache entries stay warm across their hourly epochs. Each
// refresh bypasses the cache read and writes the fresh consensus back.
type Scheduler struct {
	pipeline *pipeline.Pipeline
	queries  schedulerQueries
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger

	// refreshJob is swappable in tests.
	refreshJob func()
}

func NewScheduler(p *pipeline.Pipeline, queries schedulerQueries, interval time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		pipeline: p,
		queries:  queries,
		interval: interval,
		stop:     make(chan struct{}),
		logger:   logger,
	}
	s.refreshJob = s.runRefreshJobs
	return s
}

// Start launches the refresh loop. A non-positive interval means the
// scheduler is disabled and Start does nothing.
func (s *Scheduler) Start() {
	if s.interval <= 0 {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.logger.Info("scheduler: refreshing cached forecasts")
				s.refreshJob()
			case <-s.stop:
				s.logger.Info("scheduler: stopping")
				return
			}
		}
	}()
}

// Stop signals the loop and blocks until an in-flight refresh cycle
// finishes, so shutdown never races a running job.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// runRefreshJobs recomputes every stored location once, concurrently.
// Individual failures are logged and skipped; one stale entry must not
// stall the rest of the cycle.
func (s *Scheduler) runRefreshJobs() {
	ctx := context.Background()
	locations, err := s.queries.ListLocations(ctx)
	if err != nil {
		s.logger.Error("scheduler: failed to list locations", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, loc := range locations {
		wg.Add(1)
		go func(loc store.Location) {
			defer wg.Done()
			_, err := s.pipeline.Forecast(ctx, pipeline.Request{Query: loc.Name, NoCache: true})
			if err != nil {
				s.logger.Warn("scheduler: refresh failed", "location", loc.Name, "error", err)
				return
			}
			s.logger.Debug("scheduler: refreshed forecast", "location", loc.Name)
		}(loc)
	}
	wg.Wait()
	s.logger.Info("scheduler: refresh cycle completed", "locations", len(locations))
}
