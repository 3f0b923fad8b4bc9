// Package refresh implements the keyword refresh orchestrator: it groups a batch of
// keywords by resolved provider, runs each group in parallel or paced serially, merges
// outcomes into history, and keeps the retry queue in step.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/serp-rank-tracker/internal/clock/system"
	"github.com/JakeFAU/serp-rank-tracker/internal/id/uuid"
	"github.com/JakeFAU/serp-rank-tracker/internal/metrics"
	"github.com/JakeFAU/serp-rank-tracker/internal/policy/ratelimit"
	"github.com/JakeFAU/serp-rank-tracker/internal/position"
	"github.com/JakeFAU/serp-rank-tracker/internal/provider"
	"github.com/JakeFAU/serp-rank-tracker/internal/tracker"
)

// Deps bundles the collaborators the orchestrator drives.
type Deps struct {
	Registry  *provider.Registry
	Transport tracker.Transport
	Store     tracker.KeywordStore
	// Retry is optional; without it queue membership is not tracked.
	Retry   tracker.RetryQueue
	Limiter *ratelimit.Limiter
	Clock   tracker.Clock
	Sleeper tracker.Sleeper
	IDs     tracker.IDGenerator
}

// Config tunes parallel execution.
type Config struct {
	// Concurrency caps in-flight requests per parallel provider id. Zero means unbounded.
	Concurrency map[string]int
}

// Result is the per-keyword product of a batch.
type Result struct {
	Keyword tracker.KeywordRecord
	Outcome tracker.Outcome
	// PersistErr is set when the merged record could not be written back.
	PersistErr error
}

// Orchestrator runs refresh batches.
type Orchestrator struct {
	registry  *provider.Registry
	transport tracker.Transport
	store     tracker.KeywordStore
	retry     tracker.RetryQueue
	limiter   *ratelimit.Limiter
	clock     tracker.Clock
	sleeper   tracker.Sleeper
	ids       tracker.IDGenerator
	cfg       Config
	logger    *zap.Logger
}

// New constructs an Orchestrator. Clock, Sleeper and IDs default to real implementations.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if deps.Registry == nil {
		return nil, errors.New("refresh: registry is required")
	}
	if deps.Transport == nil {
		return nil, errors.New("refresh: transport is required")
	}
	if deps.Store == nil {
		return nil, errors.New("refresh: keyword store is required")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.Sleeper == nil {
		deps.Sleeper = system.NewSleeper()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		registry:  deps.Registry,
		transport: deps.Transport,
		store:     deps.Store,
		retry:     deps.Retry,
		limiter:   deps.Limiter,
		clock:     deps.Clock,
		sleeper:   deps.Sleeper,
		ids:       deps.IDs,
		cfg:       cfg,
		logger:    logger.Named("refresh"),
	}, nil
}

// RefreshIDs loads the keywords and refreshes them as one batch. Ids the store does not
// know are skipped and dropped from the retry queue.
func (o *Orchestrator) RefreshIDs(ctx context.Context, ids []string, settings tracker.Settings) ([]Result, error) {
	if len(ids) == 0 {
		return []Result{}, nil
	}
	records, err := o.store.Load(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load keywords: %w", err)
	}
	if missing := missingIDs(ids, records); len(missing) > 0 {
		o.logger.Warn("keyword ids not found",
			zap.Strings("keyword_ids", missing),
			zap.Int("requested", len(ids)),
			zap.Int("loaded", len(records)),
		)
		o.pruneRetryQueue(ctx, missing)
	}
	return o.RefreshBatch(ctx, records, settings)
}

func missingIDs(ids []string, records []tracker.KeywordRecord) []string {
	loaded := make(map[string]struct{}, len(records))
	for _, kw := range records {
		loaded[kw.ID] = struct{}{}
	}
	var missing []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := loaded[id]; ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		missing = append(missing, id)
	}
	return missing
}

func (o *Orchestrator) pruneRetryQueue(ctx context.Context, ids []string) {
	if o.retry == nil {
		return
	}
	for _, id := range ids {
		if err := o.retry.Remove(ctx, id); err != nil {
			o.logger.Warn("retry queue remove failed", zap.String("keyword_id", id), zap.Error(err))
			continue
		}
		metrics.ObserveRetryQueueOp("remove")
	}
}

// group is the set of input positions routed to one provider, in input order. A group
// with err set was refused by the resolver and is never sent.
type group struct {
	providerID string
	indexes    []int
	err        error
}

type groupKey struct {
	providerID string
	refused    bool
}

func (o *Orchestrator) group(records []tracker.KeywordRecord, settings tracker.Settings) ([]group, []string) {
	resolved := make([]string, len(records))
	var groups []group
	pos := make(map[groupKey]int)
	for i, kw := range records {
		id, err := o.registry.Resolve(kw, settings)
		resolved[i] = id
		key := groupKey{providerID: id, refused: err != nil}
		g, ok := pos[key]
		if !ok {
			g = len(groups)
			pos[key] = g
			groups = append(groups, group{providerID: id, err: err})
		}
		groups[g].indexes = append(groups[g].indexes, i)
	}
	return groups, resolved
}

// batch is the mutable state of one RefreshBatch call. Every goroutine writes only
// the slots for its own group's indexes.
type batch struct {
	id        string
	records   []tracker.KeywordRecord
	settings  tracker.Settings
	results   []Result
	attempted []bool
	logger    *zap.Logger
}

// RefreshBatch refreshes records and returns one Result per input, in input order.
// Per-keyword failures live in the results; the only error returned is cancellation,
// in which case keywords the batch did not finish are returned unchanged.
func (o *Orchestrator) RefreshBatch(ctx context.Context, records []tracker.KeywordRecord, settings tracker.Settings) ([]Result, error) {
	if len(records) == 0 {
		return []Result{}, nil
	}
	start := time.Now()
	metrics.IncActiveBatches()
	defer metrics.DecActiveBatches()

	b := &batch{
		id:        o.newBatchID(),
		records:   records,
		settings:  settings,
		results:   make([]Result, len(records)),
		attempted: make([]bool, len(records)),
	}
	b.logger = o.logger.With(zap.String("batch_id", b.id))

	groups, resolved := o.group(records, settings)
	b.logger.Info("refresh batch started",
		zap.Int("keywords", len(records)),
		zap.Int("groups", len(groups)),
	)

	ids := make([]string, len(records))
	for i, kw := range records {
		ids[i] = kw.ID
	}
	if err := o.store.SetUpdating(ctx, ids, true); err != nil {
		b.logger.Warn("mark keywords updating failed", zap.Error(err))
	}

	var wg sync.WaitGroup
	for _, g := range groups {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.runGroup(ctx, b, g)
		}()
	}
	wg.Wait()

	var untouched []string
	for i, kw := range records {
		if b.attempted[i] {
			continue
		}
		b.results[i] = Result{Keyword: kw.Clone(), Outcome: canceledOutcome(kw.ID, resolved[i])}
		metrics.ObserveOutcome(resolved[i], string(tracker.KindCanceled))
		untouched = append(untouched, kw.ID)
	}
	if len(untouched) > 0 {
		if err := o.store.SetUpdating(context.WithoutCancel(ctx), untouched, false); err != nil {
			b.logger.Warn("clear updating flag failed", zap.Error(err))
		}
	}

	summary := Summarize(b.results)
	fields := []zap.Field{
		zap.Duration("duration", time.Since(start)),
		zap.Int("found", summary.Found),
		zap.Int("not_found", summary.NotFound),
		zap.Int("failed", summary.Failed),
		zap.Int("canceled", summary.Canceled),
		zap.Int("persist_failures", summary.PersistFailures),
	}
	if err := ctx.Err(); err != nil {
		metrics.ObserveBatch("canceled")
		b.logger.Warn("refresh batch canceled", fields...)
		return b.results, fmt.Errorf("%w: %w", tracker.ErrCanceled, err)
	}
	metrics.ObserveBatch("completed")
	b.logger.Info("refresh batch finished", fields...)
	return b.results, nil
}

func (o *Orchestrator) newBatchID() string {
	id, err := o.ids.NewID()
	if err != nil {
		o.logger.Warn("generate batch id failed", zap.Error(err))
		return "unknown"
	}
	return id
}

func (o *Orchestrator) runGroup(ctx context.Context, b *batch, g group) {
	if ctx.Err() != nil {
		return
	}
	logger := b.logger.With(zap.String("provider", g.providerID))
	if g.err != nil {
		logger.Error("provider cannot serve keywords without an engine override",
			zap.Int("keywords", len(g.indexes)), zap.Error(g.err))
		for _, idx := range g.indexes {
			outcome := failure(b.records[idx].ID, g.providerID, tracker.KindConfiguration, "", g.err)
			o.finalize(context.WithoutCancel(ctx), b, idx, outcome, logger)
		}
		return
	}
	adapter, ok := o.registry.Lookup(g.providerID)
	if !ok {
		logger.Error("no adapter registered for provider", zap.Int("keywords", len(g.indexes)))
		for _, idx := range g.indexes {
			outcome := failure(b.records[idx].ID, g.providerID, tracker.KindConfiguration, "",
				fmt.Errorf("%w: %q", tracker.ErrUnknownProvider, g.providerID))
			o.finalize(context.WithoutCancel(ctx), b, idx, outcome, logger)
		}
		return
	}
	if adapter.Parallel() {
		o.runParallel(ctx, b, g, adapter, logger)
		return
	}
	o.runSerial(ctx, b, g, adapter, logger)
}

// runSerial paces requests by the effective delay and observes cancellation before
// each keyword. A dispatched request always completes and is recorded.
func (o *Orchestrator) runSerial(ctx context.Context, b *batch, g group, adapter provider.Adapter, logger *zap.Logger) {
	delay := provider.EffectiveDelay(adapter, b.settings.Delay)
	reqCtx := context.WithoutCancel(ctx)
	for n, idx := range g.indexes {
		if ctx.Err() != nil {
			return
		}
		if n > 0 && delay > 0 {
			if err := o.sleeper.Sleep(ctx, delay); err != nil {
				return
			}
			metrics.ObservePacingDelay(adapter.ID(), delay)
		}
		outcome := o.invoke(reqCtx, b.settings, adapter, b.records[idx], logger)
		o.finalize(reqCtx, b, idx, outcome, logger)
	}
}

// runParallel fans the group out and joins. Dispatched requests finish even if the
// batch is canceled, but their results are then discarded.
func (o *Orchestrator) runParallel(ctx context.Context, b *batch, g group, adapter provider.Adapter, logger *zap.Logger) {
	outcomes := make([]tracker.Outcome, len(g.indexes))
	dispatched := make([]bool, len(g.indexes))
	reqCtx := context.WithoutCancel(ctx)

	var eg errgroup.Group
	if limit := o.cfg.Concurrency[adapter.ID()]; limit > 0 {
		eg.SetLimit(limit)
	}
	for i, idx := range g.indexes {
		if ctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := o.limiter.Wait(ctx, adapter.ID()); err != nil {
				return err
			}
			dispatched[i] = true
			outcomes[i] = o.invoke(reqCtx, b.settings, adapter, b.records[idx], logger)
			return nil
		})
	}
	err := eg.Wait()

	if ctx.Err() != nil {
		logger.Info("discarding parallel results for canceled batch", zap.Int("keywords", len(g.indexes)))
		return
	}
	if err != nil {
		logger.Warn("some requests were not dispatched", zap.Error(err))
	}
	for i, idx := range g.indexes {
		if dispatched[i] {
			o.finalize(reqCtx, b, idx, outcomes[i], logger)
		}
	}
}

// invoke performs one provider call and extracts the tracked domain's rank.
func (o *Orchestrator) invoke(
	ctx context.Context,
	settings tracker.Settings,
	adapter provider.Adapter,
	kw tracker.KeywordRecord,
	logger *zap.Logger,
) tracker.Outcome {
	id := adapter.ID()
	req, ok := adapter.BuildRequest(kw, settings)
	if !ok {
		return failure(kw.ID, id, tracker.KindConfiguration, "",
			fmt.Errorf("%w: malformed credentials for %s", tracker.ErrInvalidRequest, id))
	}
	if req.Body == "" {
		req.Body = adapter.BodyType()
	}
	logger.Debug("provider request",
		zap.String("keyword_id", kw.ID),
		zap.String("url", provider.MaskCredentials(req.URL, settings.Credentials)),
	)

	start := time.Now()
	body, err := o.transport.Do(ctx, req)
	metrics.ObserveProviderRequest(id, time.Since(start))
	if err != nil {
		if !errors.Is(err, tracker.ErrTransport) {
			err = fmt.Errorf("%w: %w", tracker.ErrTransport, err)
		}
		masked := &maskedError{msg: provider.MaskCredentials(err.Error(), settings.Credentials), cause: err}
		return failure(kw.ID, id, tracker.KindTransport, "", masked)
	}

	items, perr := adapter.ParseResponse(body)
	if perr != nil {
		return failure(kw.ID, id, tracker.KindProvider, perr.Code,
			fmt.Errorf("%w: %s", tracker.ErrProviderReported, perr.Message))
	}

	outcome := tracker.Outcome{KeywordID: kw.ID, Provider: id, Results: items}
	if match, found := position.Extract(items, kw.Domain); found {
		outcome.Rank = match.Rank
		outcome.URL = match.URL
	}
	return outcome
}

// finalize merges, updates the retry queue and persists one outcome.
func (o *Orchestrator) finalize(ctx context.Context, b *batch, idx int, outcome tracker.Outcome, logger *zap.Logger) {
	kw := b.records[idx]
	now := o.clock.Now()
	if b.settings.Location != nil {
		now = now.In(b.settings.Location)
	}
	merged := tracker.Merge(kw, outcome, now)
	o.updateRetryQueue(ctx, kw.ID, outcome, b.settings, now, logger)

	var persistErr error
	if err := o.store.Update(ctx, kw.ID, tracker.UpdateFor(merged)); err != nil {
		persistErr = fmt.Errorf("persist keyword %s: %w", kw.ID, err)
		logger.Error("persist keyword failed", zap.String("keyword_id", kw.ID), zap.Error(err))
	}

	o.observe(outcome, logger)
	b.results[idx] = Result{Keyword: merged, Outcome: outcome, PersistErr: persistErr}
	b.attempted[idx] = true
}

func (o *Orchestrator) updateRetryQueue(
	ctx context.Context,
	keywordID string,
	outcome tracker.Outcome,
	settings tracker.Settings,
	now time.Time,
	logger *zap.Logger,
) {
	if o.retry == nil {
		return
	}
	if outcome.Err == nil {
		if err := o.retry.Remove(ctx, keywordID); err != nil {
			logger.Warn("retry queue remove failed", zap.String("keyword_id", keywordID), zap.Error(err))
			return
		}
		metrics.ObserveRetryQueueOp("remove")
		return
	}
	if !settings.RetryOnFailure || !retriable(outcome.Err) {
		return
	}
	entry := tracker.RetryEntry{KeywordID: keywordID, Reason: outcome.Err.Error(), EnqueuedAt: now.UTC()}
	if err := o.retry.Add(ctx, entry); err != nil {
		logger.Warn("retry queue add failed", zap.String("keyword_id", keywordID), zap.Error(err))
		return
	}
	metrics.ObserveRetryQueueOp("add")
}

func (o *Orchestrator) observe(outcome tracker.Outcome, logger *zap.Logger) {
	status := outcomeStatus(outcome)
	metrics.ObserveOutcome(outcome.Provider, status)

	if outcome.Err == nil {
		logger.Info("keyword refreshed",
			zap.String("keyword_id", outcome.KeywordID),
			zap.Int("rank", outcome.Rank),
			zap.Int("results", len(outcome.Results)),
		)
		return
	}
	fields := []zap.Field{
		zap.String("keyword_id", outcome.KeywordID),
		zap.String("kind", status),
		zap.Error(outcome.Err),
	}
	var oe *tracker.OutcomeError
	if errors.As(outcome.Err, &oe) && oe.Code != "" {
		fields = append(fields, zap.String("code", oe.Code))
	}
	logger.Warn("keyword refresh failed", fields...)
}

func outcomeStatus(outcome tracker.Outcome) string {
	switch {
	case outcome.Err != nil:
		if kind := tracker.KindOf(outcome.Err); kind != "" {
			return string(kind)
		}
		return "error"
	case outcome.Rank > 0:
		return "found"
	default:
		return "not_found"
	}
}

func retriable(err error) bool {
	var oe *tracker.OutcomeError
	if errors.As(err, &oe) {
		return oe.Retriable()
	}
	return true
}

func failure(keywordID, providerID string, kind tracker.ErrorKind, code string, err error) tracker.Outcome {
	return tracker.Outcome{
		KeywordID: keywordID,
		Provider:  providerID,
		Err: &tracker.OutcomeError{
			Kind:     kind,
			Provider: providerID,
			Code:     code,
			Err:      err,
		},
	}
}

func canceledOutcome(keywordID, providerID string) tracker.Outcome {
	return failure(keywordID, providerID, tracker.KindCanceled, "", tracker.ErrCanceled)
}

// maskedError reports a credential-free message while unwrapping to the original.
type maskedError struct {
	msg   string
	cause error
}

func (e *maskedError) Error() string { return e.msg }

func (e *maskedError) Unwrap() error { return e.cause }
