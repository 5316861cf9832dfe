package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/fuomag9/notionsocial/internal/oauth"
	"github.com/fuomag9/notionsocial/internal/store"
)

// PurgeStatesSchedule runs the expired state cleanup every ten minutes.
const PurgeStatesSchedule = "*/10 * * * *"

// jobTimeout bounds a single run of any job.
const jobTimeout = time.Minute

// Scheduler manages background jobs
type Scheduler struct {
	cron   *cron.Cron
	states store.StateStore
	now    func() time.Time
	log    zerolog.Logger
}

// NewScheduler creates a new job scheduler
func NewScheduler(states store.StateStore, log zerolog.Logger) *Scheduler {
	log = log.With().Str("component", "jobs").Logger()
	adapter := cronLogger{log}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		states: states,
		now:    time.Now,
		log:    log,
	}
}

// Start registers the jobs and starts the scheduler
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(PurgeStatesSchedule, s.purgeStates); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Job scheduler started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Job scheduler stopped")
}

func (s *Scheduler) purgeStates() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	// failures are logged by the cleanup itself
	_, _ = oauth.PurgeExpiredStates(ctx, s.states, s.now(), s.log)
}

// cronLogger routes cron's own messages through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
