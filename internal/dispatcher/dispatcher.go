// Package dispatcher fires refresh batches on cron schedules: a full refresh of every
// stored keyword and a retry pass over the retry queue.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/serp-rank-tracker/internal/refresh"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// Job names used in logs and skip accounting.
const (
	JobRefresh = "refresh"
	JobRetry   = "retry"
)

// Refresher runs one batch over the given keyword ids.
type Refresher interface {
	RefreshIDs(ctx context.Context, ids []string, settings tracker.Settings) ([]refresh.Result, error)
}

// Config holds the cron expressions. An empty expression disables that job.
type Config struct {
	RefreshCron string
	RetryCron   string
}

// Dispatcher schedules refresh jobs. At most one batch runs at a time; a tick that
// fires while another batch is in flight is skipped.
type Dispatcher struct {
	refresher Refresher
	store     tracker.KeywordStore
	retry     tracker.RetryQueue
	settings  func() tracker.Settings
	cron      *cron.Cron
	logger    *zap.Logger

	running atomic.Bool
	wg      sync.WaitGroup
	ctx     context.Context
}

// ErrBusy is returned by Trigger when another batch is already running.
var ErrBusy = errors.New("refresh batch already running")

// New validates the schedules and builds a Dispatcher. The retry job requires a queue.
func New(
	cfg Config,
	refresher Refresher,
	store tracker.KeywordStore,
	retry tracker.RetryQueue,
	settings func() tracker.Settings,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if refresher == nil || store == nil || settings == nil {
		return nil, errors.New("dispatcher: refresher, store and settings are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("dispatcher")

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cl := cronLogger{logger.Sugar()}
	d := &Dispatcher{
		refresher: refresher,
		store:     store,
		retry:     retry,
		settings:  settings,
		cron:      cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cl)), cron.WithLogger(cl)),
		logger:    logger,
		ctx:       context.Background(),
	}

	if cfg.RefreshCron != "" {
		if _, err := d.cron.AddFunc(cfg.RefreshCron, func() { d.tick(JobRefresh) }); err != nil {
			return nil, fmt.Errorf("parse refresh cron %q: %w", cfg.RefreshCron, err)
		}
	}
	if cfg.RetryCron != "" {
		if retry == nil {
			return nil, errors.New("dispatcher: retry cron configured without a retry queue")
		}
		if _, err := d.cron.AddFunc(cfg.RetryCron, func() { d.tick(JobRetry) }); err != nil {
			return nil, fmt.Errorf("parse retry cron %q: %w", cfg.RetryCron, err)
		}
	}
	return d, nil
}

// Entries reports how many schedules are registered.
func (d *Dispatcher) Entries() int {
	return len(d.cron.Entries())
}

// Run starts the schedules and blocks until ctx finishes. Batches started by the
// schedule observe ctx, and Run waits for them before returning.
func (d *Dispatcher) Run(ctx context.Context) {
	d.ctx = ctx
	d.cron.Start()
	d.logger.Info("dispatcher started", zap.Int("schedules", d.Entries()))
	<-ctx.Done()
	stopped := d.cron.Stop()
	<-stopped.Done()
	d.wg.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) tick(job string) {
	d.wg.Add(1)
	defer d.wg.Done()
	if _, err := d.Trigger(d.ctx, job); err != nil {
		if errors.Is(err, ErrBusy) {
			d.logger.Info("skipping scheduled run", zap.String("job", job), zap.Error(err))
			return
		}
		d.logger.Error("scheduled run failed", zap.String("job", job), zap.Error(err))
	}
}

// Trigger runs job now on the caller's goroutine and returns the batch summary.
func (d *Dispatcher) Trigger(ctx context.Context, job string) (refresh.Summary, error) {
	if !d.running.CompareAndSwap(false, true) {
		return refresh.Summary{}, ErrBusy
	}
	defer d.running.Store(false)

	ids, err := d.ids(ctx, job)
	if err != nil {
		return refresh.Summary{}, err
	}
	if len(ids) == 0 {
		d.logger.Debug("nothing to refresh", zap.String("job", job))
		return refresh.Summary{}, nil
	}

	results, err := d.refresher.RefreshIDs(ctx, ids, d.settings())
	summary := refresh.Summarize(results)
	if err != nil {
		return summary, fmt.Errorf("%s job: %w", job, err)
	}
	d.logger.Info("scheduled run finished",
		zap.String("job", job),
		zap.Int("total", summary.Total),
		zap.Int("found", summary.Found),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (d *Dispatcher) ids(ctx context.Context, job string) ([]string, error) {
	switch job {
	case JobRefresh:
		ids, err := d.store.ListIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list keyword ids: %w", err)
		}
		return ids, nil
	case JobRetry:
		if d.retry == nil {
			return nil, nil
		}
		entries, err := d.retry.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("list retry queue: %w", err)
		}
		return tracker.RetryIDs(entries), nil
	default:
		return nil, fmt.Errorf("unknown job %q", job)
	}
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
