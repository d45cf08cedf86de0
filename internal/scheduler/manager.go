// Package scheduler supervises the background jobs: the territorial contest
// and the stale visit sweep.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/wnt/turfpoints/internal/config"
	"github.com/wnt/turfpoints/internal/contest"
	"github.com/wnt/turfpoints/internal/logger"
	"github.com/wnt/turfpoints/internal/visits"
	"golang.org/x/sync/errgroup"
)

// Manager owns the cron schedule and the lifecycle of all background jobs.
type Manager struct {
	config  config.Config
	contest *contest.Scheduler
	visits  *visits.Service
	cron    *cron.Cron
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	eg      *errgroup.Group
	mutex   sync.Mutex
	stopped bool
}

// NewManager creates a new scheduler manager
func NewManager(cfg config.Config, contestSched *contest.Scheduler, visitSvc *visits.Service, log zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	eg, egCtx := errgroup.WithContext(ctx)

	return &Manager{
		config:  cfg,
		contest: contestSched,
		visits:  visitSvc,
		cron:    cron.New(),
		logger:  logger.WithComponent(log, "scheduler"),
		ctx:     egCtx,
		cancel:  cancel,
		eg:      eg,
	}
}

// Start registers the cron entries and kicks off an immediate contest run so
// a restart never has to wait a full interval.
func (m *Manager) Start() error {
	m.logger.Info().
		Dur("contest_interval", m.config.ContestInterval).
		Dur("sweep_interval", m.config.SweepInterval).
		Msg("Starting scheduler")

	if _, err := m.cron.AddFunc(everySpec(m.config.ContestInterval), m.runContest); err != nil {
		return fmt.Errorf("failed to schedule contest job: %w", err)
	}
	if _, err := m.cron.AddFunc(everySpec(m.config.SweepInterval), m.runSweep); err != nil {
		return fmt.Errorf("failed to schedule sweep job: %w", err)
	}

	m.eg.Go(func() error {
		m.runContest()
		return nil
	})

	m.cron.Start()
	m.logger.Info().Msg("Scheduler started successfully")
	return nil
}

// Stop gracefully shuts down the scheduler, waiting for in-flight jobs.
func (m *Manager) Stop() error {
	m.mutex.Lock()
	if m.stopped {
		m.mutex.Unlock()
		return nil
	}
	m.stopped = true
	m.mutex.Unlock()

	m.logger.Info().Msg("Stopping scheduler...")

	cronCtx := m.cron.Stop()
	m.cancel()

	done := make(chan error, 1)
	go func() {
		<-cronCtx.Done()
		done <- m.eg.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && err != context.Canceled {
			m.logger.Error().Err(err).Msg("Error during scheduler shutdown")
		}
	case <-time.After(30 * time.Second):
		m.logger.Warn().Msg("Scheduler shutdown timed out")
	}

	m.logger.Info().Msg("Scheduler stopped")
	return nil
}

func (m *Manager) runContest() {
	if m.ctx.Err() != nil {
		return
	}
	if err := m.contest.RunOnce(m.ctx); err != nil {
		m.logger.Error().Err(err).Msg("Contest run failed")
	}
}

func (m *Manager) runSweep() {
	if m.ctx.Err() != nil {
		return
	}
	closed, err := m.visits.CloseStale(m.ctx, time.Now().UTC())
	if err != nil {
		m.logger.Error().Err(err).Msg("Stale visit sweep failed")
		return
	}
	if closed > 0 {
		m.logger.Info().Int64("closed", closed).Msg("Closed stale visits")
	}
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}
