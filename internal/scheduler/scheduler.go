// Package scheduler drives the periodic sync-and-alert cycle: every tick it
// lists alert-eligible users, fans out over a worker pool, syncs today's
// readings per linked account, and evaluates thresholds. One user's failure
// never aborts the batch.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vitalsync/vitalsync/internal/alert"
	"github.com/vitalsync/vitalsync/internal/metric"
	"github.com/vitalsync/vitalsync/internal/normalize"
	"github.com/vitalsync/vitalsync/internal/provider"
	"github.com/vitalsync/vitalsync/internal/store"
)

// dailyFamily is the sync_state metric family the cycle advances.
const dailyFamily = "daily"

// Syncer runs one sync_day pass.
type Syncer interface {
	SyncDay(ctx context.Context, cred provider.Credential, date metric.Date, opts normalize.Options) (*normalize.Result, error)
}

// Evaluator runs one threshold evaluation.
type Evaluator interface {
	EvaluateUser(ctx context.Context, user store.User) (*alert.Decision, error)
}

// Directory is the slice of the store the scheduler needs.
type Directory interface {
	UsersWithThresholds(ctx context.Context) ([]store.User, error)
	AccountsForUser(ctx context.Context, userID string) ([]provider.Credential, error)
	FlagReauth(ctx context.Context, userID, prov string) error
	MarkSynced(ctx context.Context, userID, prov, family, cursor string, at time.Time) error
	RecordSyncError(ctx context.Context, userID, prov, family string) error
}

// DayResolver maps a timezone hint to the current local date.
type DayResolver interface {
	Today(tz string) metric.Date
}

// Result tracks the outcome for a single user in one cycle.
type Result struct {
	UserID        string
	RowsSynced    int
	AccountsOK    int
	AccountsSkip  int
	AlertsFired   int
	Suppressed    int
	Success       bool
	Error         string
	Duration      time.Duration
}

// Summary returns a human-readable summary.
func (r *Result) Summary() string {
	status := "ok"
	if !r.Success {
		status = "FAILED"
	}
	return fmt.Sprintf("user=%s rows=%d fired=%d suppressed=%d status=%s dur=%s",
		r.UserID, r.RowsSynced, r.AlertsFired, r.Suppressed, status,
		r.Duration.Round(time.Millisecond))
}

// BatchResult tracks the outcome of one full cycle.
type BatchResult struct {
	UsersFound  int
	Processed   int
	Succeeded   int
	Failed      int
	AlertsFired int
	Duration    time.Duration
	Errors      []string
	Results     []Result
}

// Summary returns a human-readable summary.
func (r *BatchResult) Summary() string {
	return fmt.Sprintf("found=%d processed=%d succeeded=%d failed=%d fired=%d dur=%s",
		r.UsersFound, r.Processed, r.Succeeded, r.Failed, r.AlertsFired,
		r.Duration.Round(time.Second))
}

// Scheduler owns the cycle loop.
type Scheduler struct {
	directory Directory
	syncer    Syncer
	evaluator Evaluator
	days      DayResolver
	interval  time.Duration
	workers   int
	logger    *slog.Logger

	// running guards against overlapping cycles when one runs longer than
	// the interval: the tick is skipped, never queued.
	running sync.Mutex
}

// New creates a Scheduler.
func New(directory Directory, syncer Syncer, evaluator Evaluator, days DayResolver, interval time.Duration, workers int, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 300 * time.Second
	}
	if workers < 1 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		directory: directory,
		syncer:    syncer,
		evaluator: evaluator,
		days:      days,
		interval:  interval,
		workers:   workers,
		logger:    logger,
	}
}

// Run executes cycles at the configured interval until ctx is cancelled.
// The first cycle starts immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Scheduler started", "interval", s.interval, "workers", s.workers)

	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.TryLock() {
		s.logger.Warn("Previous cycle still running, skipping tick")
		return
	}
	defer s.running.Unlock()
	s.RunCycle(ctx)
}

// RunCycle runs one full cycle synchronously and returns its result.
func (s *Scheduler) RunCycle(ctx context.Context) BatchResult {
	start := time.Now()
	var batch BatchResult

	users, err := s.directory.UsersWithThresholds(ctx)
	if err != nil {
		batch.Errors = append(batch.Errors, err.Error())
		batch.Duration = time.Since(start)
		s.logger.Error("Listing alert-eligible users failed", "error", err)
		return batch
	}
	batch.UsersFound = len(users)
	if len(users) == 0 {
		batch.Duration = time.Since(start)
		return batch
	}

	workers := s.workers
	if workers > len(users) {
		workers = len(users)
	}

	ch := make(chan store.User, len(users))
	for _, u := range users {
		ch <- u
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range ch {
				r := s.processUser(ctx, user)

				mu.Lock()
				batch.Results = append(batch.Results, r)
				batch.Processed++
				batch.AlertsFired += r.AlertsFired
				if r.Success {
					batch.Succeeded++
				} else {
					batch.Failed++
					batch.Errors = append(batch.Errors,
						fmt.Sprintf("user %s: %s", r.UserID, r.Error))
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	batch.Duration = time.Since(start)
	s.logger.Info("Cycle complete", "summary", batch.Summary())
	return batch
}

// processUser syncs today's readings for each linked account, then
// evaluates thresholds. Provider failures are contained per account: an
// expired token flags the account and moves on, a rate limit defers to the
// next tick, and the evaluation still runs on whatever data is stored.
func (s *Scheduler) processUser(ctx context.Context, user store.User) Result {
	start := time.Now()
	r := Result{UserID: user.ID}

	accounts, err := s.directory.AccountsForUser(ctx, user.ID)
	if err != nil {
		r.Error = err.Error()
		r.Duration = time.Since(start)
		return r
	}

	for _, cred := range accounts {
		today := s.days.Today(cred.TimezoneHint)
		res, err := s.syncer.SyncDay(ctx, cred, today, normalize.Options{Fallback: true})
		if err != nil {
			s.handleSyncError(ctx, cred, err)
			r.AccountsSkip++
			continue
		}
		r.AccountsOK++
		r.RowsSynced += res.RowsPersisted
		if err := s.directory.MarkSynced(ctx, cred.UserID, cred.Provider, dailyFamily, today.String(), time.Now()); err != nil {
			s.logger.Error("Recording sync cursor failed",
				"user_id", cred.UserID, "provider", cred.Provider, "error", err)
		}
	}

	decision, err := s.evaluator.EvaluateUser(ctx, user)
	if err != nil {
		r.Error = err.Error()
		r.Duration = time.Since(start)
		return r
	}
	if decision.High.Outcome == alert.OutcomeFired {
		r.AlertsFired++
	}
	if decision.Low.Outcome == alert.OutcomeFired {
		r.AlertsFired++
	}
	if decision.High.Outcome == alert.OutcomeSuppressed {
		r.Suppressed++
	}
	if decision.Low.Outcome == alert.OutcomeSuppressed {
		r.Suppressed++
	}

	r.Success = true
	r.Duration = time.Since(start)
	return r
}

func (s *Scheduler) handleSyncError(ctx context.Context, cred provider.Credential, err error) {
	var rateErr *provider.RateLimitedError
	switch {
	case errors.Is(err, provider.ErrUnauthorized):
		s.logger.Warn("Provider token rejected, flagging account",
			"user_id", cred.UserID, "provider", cred.Provider)
		if ferr := s.directory.FlagReauth(ctx, cred.UserID, cred.Provider); ferr != nil {
			s.logger.Error("Flagging account for reauth failed",
				"user_id", cred.UserID, "provider", cred.Provider, "error", ferr)
		}
	case errors.As(err, &rateErr):
		s.logger.Warn("Provider rate limited, deferring to next cycle",
			"user_id", cred.UserID, "provider", cred.Provider,
			"retry_after", rateErr.RetryAfter)
	default:
		s.logger.Error("Account sync failed",
			"user_id", cred.UserID, "provider", cred.Provider, "error", err)
	}
	if serr := s.directory.RecordSyncError(ctx, cred.UserID, cred.Provider, dailyFamily); serr != nil {
		s.logger.Error("Recording sync error failed",
			"user_id", cred.UserID, "provider", cred.Provider, "error", serr)
	}
}
