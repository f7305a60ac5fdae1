package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/logger"
	"github.com/roach88/bylines/internal/predicate"
	"github.com/roach88/bylines/internal/resolve"
	"github.com/roach88/bylines/internal/skipmark"
)

// DefaultRecordsPerBatch is the page size of batched runs.
const DefaultRecordsPerBatch = 250

// Store is everything a run reads and writes. *store.Store implements it.
type Store interface {
	resolve.Directory
	resolve.TermStore
	skipmark.MetaStore
	RefreshStore

	CountMatching(ctx context.Context, pred *predicate.Predicate) (int, error)
	PageMatching(ctx context.Context, pred *predicate.Predicate, limit int, afterID ir.RecordID) ([]ir.ContentRecord, error)
	AttachTerm(ctx context.Context, recordID ir.RecordID, termID int64) (bool, error)
	ReleaseTransientCaches(ctx context.Context) error
}

// Params are the per-run constraints.
type Params struct {
	RecordTypes    []string
	RecordStatuses []string

	// Batched pages through matches RecordsPerBatch at a time. When false
	// every match is fetched in a single pass.
	Batched         bool
	RecordsPerBatch int

	// ExplicitIDs restricts the run to these records and overrides the range.
	ExplicitIDs []ir.RecordID

	// AboveID and BelowID are exclusive id bounds.
	AboveID *int64
	BelowID *int64
}

// Summary reports what a run did.
type Summary struct {
	RunID       string `json:"run_id"`
	Total       int    `json:"total"`
	Processed   int    `json:"processed"`
	Affected    int    `json:"affected"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Pages       int    `json:"pages"`
	Throttles   int    `json:"throttles"`
	Refreshed   int    `json:"refreshed"`
	Interrupted bool   `json:"interrupted"`
}

// Driver runs backfills against a store.
//
// A Driver holds configuration only; every Run gets its own resolution
// cache, throttle and counters. Runs on one Driver must not overlap.
type Driver struct {
	store      Store
	taxonomy   string
	slugPrefix string
	skipKey    string

	throttleEvery int
	throttlePause time.Duration

	logger  logger.Logger
	sleeper Sleeper
	runIDs  RunIDGenerator
	now     Clock

	onState func(State)
}

// Option configures a Driver.
type Option func(*Driver)

// WithTaxonomy sets the taxonomy author terms live in. Default: "author".
func WithTaxonomy(taxonomy string) Option {
	return func(d *Driver) {
		d.taxonomy = taxonomy
	}
}

// WithSlugPrefix sets the term slug prefix. Default: "cap-".
func WithSlugPrefix(prefix string) Option {
	return func(d *Driver) {
		d.slugPrefix = prefix
	}
}

// WithSkipMetaKey sets the metadata key of skip markers.
func WithSkipMetaKey(key string) Option {
	return func(d *Driver) {
		d.skipKey = key
	}
}

// WithThrottle sets the pause cadence. Default: 1s every 500 records.
func WithThrottle(every int, pause time.Duration) Option {
	return func(d *Driver) {
		d.throttleEvery = every
		d.throttlePause = pause
	}
}

func WithLogger(l logger.Logger) Option {
	return func(d *Driver) {
		d.logger = l
	}
}

func WithSleeper(s Sleeper) Option {
	return func(d *Driver) {
		d.sleeper = s
	}
}

func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(d *Driver) {
		d.runIDs = g
	}
}

// WithClock sets the timestamp source of skip markers.
func WithClock(now Clock) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// WithStateObserver registers a callback invoked on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(d *Driver) {
		d.onState = fn
	}
}

// New creates a Driver over s.
func New(s Store, opts ...Option) *Driver {
	d := &Driver{
		store:         s,
		taxonomy:      "author",
		slugPrefix:    "cap-",
		skipKey:       skipmark.DefaultKey,
		throttleEvery: DefaultThrottleEvery,
		throttlePause: DefaultThrottlePause,
		logger:        logger.NewNoopLogger(),
		sleeper:       RealSleeper{},
		runIDs:        UUIDv7Generator{},
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// run is the state of one Run call.
type run struct {
	*Driver
	log     logger.Logger
	cache   *resolve.Cache
	markers *skipmark.Markers
	summary Summary
}

// Run executes one backfill.
//
// The returned Summary is valid even when err is non-nil. err is a
// *RuntimeError: IsConfigError when params were rejected, IsInterrupted when
// ctx was cancelled, or a store error when counting or paging failed.
// Per-record failures are not errors; they are logged and counted.
func (d *Driver) Run(ctx context.Context, params Params) (Summary, error) {
	r := &run{Driver: d}
	r.summary.RunID = d.runIDs.Generate()
	r.log = d.logger.With(zap.String("run_id", r.summary.RunID))
	r.transition(StateStart)

	pred, limit, err := d.prepare(params)
	if err != nil {
		r.log.Error("invalid run parameters", zap.Error(err))
		return r.summary, NewConfigError(r.summary.RunID, err)
	}

	r.markers, err = skipmark.New(d.store, d.skipKey, skipmark.Clock(d.now))
	if err != nil {
		return r.summary, NewConfigError(r.summary.RunID, err)
	}

	r.cache = resolve.New(d.store, d.store, d.taxonomy, d.slugPrefix, resolve.WithLogger(r.log))
	defer r.cache.Close()

	runErr := r.loop(ctx, pred, limit)

	// Relations written before an interrupt still need fresh counts.
	refresher := NewRefresher(d.store, d.taxonomy, d.slugPrefix, WithRefreshLogger(r.log))
	r.summary.Refreshed = refresher.Refresh(context.WithoutCancel(ctx), r.touched())

	stats := r.cache.Stats()
	r.transition(StateDone)
	r.log.Info("run finished",
		zap.Int("total", r.summary.Total),
		zap.Int("processed", r.summary.Processed),
		zap.Int("affected", r.summary.Affected),
		zap.Int("skipped", r.summary.Skipped),
		zap.Int("failed", r.summary.Failed),
		zap.Int("pages", r.summary.Pages),
		zap.Int("throttles", r.summary.Throttles),
		zap.Int("refreshed", r.summary.Refreshed),
		zap.Bool("interrupted", r.summary.Interrupted),
		zap.Int("author_lookups", stats.AuthorLookups),
		zap.Int("terms_created", stats.TermsCreated),
	)

	return r.summary, runErr
}

// Validate reports whether Run would reject params under opts, without a
// store. The error is the *RuntimeError Run would return, minus the run id.
func Validate(params Params, opts ...Option) error {
	if _, _, err := New(nil, opts...).prepare(params); err != nil {
		return NewConfigError("", err)
	}
	return nil
}

// prepare validates params and returns the predicate and page limit.
func (d *Driver) prepare(params Params) (*predicate.Predicate, int, error) {
	pred, err := predicate.Build(predicate.Params{
		Taxonomy:       d.taxonomy,
		RecordTypes:    params.RecordTypes,
		RecordStatuses: params.RecordStatuses,
		ExplicitIDs:    params.ExplicitIDs,
		AboveID:        params.AboveID,
		BelowID:        params.BelowID,
		SkipMetaKey:    d.skipKey,
	})
	if err != nil {
		return nil, 0, err
	}

	if !params.Batched {
		return pred, 0, nil
	}

	limit := params.RecordsPerBatch
	if limit == 0 {
		limit = DefaultRecordsPerBatch
	}
	if limit < 0 {
		return nil, 0, errors.New("records per batch must be positive")
	}
	return pred, limit, nil
}

func (r *run) loop(ctx context.Context, pred *predicate.Predicate, limit int) error {
	r.transition(StateCounting)
	total, err := r.store.CountMatching(ctx, pred)
	if err != nil {
		if ctx.Err() != nil {
			return r.interrupt(ctx)
		}
		r.log.Error("count failed", zap.Error(err))
		return NewStoreError(r.summary.RunID, "count", err)
	}
	r.summary.Total = total
	r.log.Info("run started", zap.Int("total", total), zap.Int("page_size", limit))

	if total == 0 {
		return nil
	}

	throttle := NewThrottle(r.throttleEvery, r.throttlePause)
	defer func() { r.summary.Throttles = throttle.Fired() }()

	var after ir.RecordID
	for {
		r.transition(StatePaging)
		page, err := r.store.PageMatching(ctx, pred, limit, after)
		if err != nil {
			if ctx.Err() != nil {
				return r.interrupt(ctx)
			}
			r.log.Error("page failed", zap.Int64("after_id", after), zap.Error(err))
			return NewStoreError(r.summary.RunID, "page", err)
		}
		if len(page) == 0 {
			// Fewer matches than counted: records changed under the run.
			return nil
		}
		r.summary.Pages++

		for _, rec := range page {
			if ctx.Err() != nil {
				return r.interrupt(ctx)
			}

			r.process(context.WithoutCancel(ctx), rec)
			after = rec.ID
			r.summary.Processed++

			r.transition(StateThrottleCheck)
			if r.summary.Processed >= total {
				return nil
			}
			if throttle.Due(r.summary.Processed) {
				if err := r.pause(ctx, throttle); err != nil {
					return r.interrupt(ctx)
				}
			}
		}

		if limit == 0 {
			return nil
		}
	}
}

// process resolves one record and writes its relation. Failures are logged
// and counted; they never stop the run.
func (r *run) process(ctx context.Context, rec ir.ContentRecord) {
	log := r.log.With(zap.Int64("record_id", rec.ID), zap.Int64("author_ref", rec.AuthorRef))
	log.Debug("processing record")

	r.transition(StateResolving)
	author, err := r.cache.ResolveAuthor(ctx, rec.AuthorRef)
	switch {
	case errors.Is(err, ir.ErrNotFound):
		if _, err := r.markers.Mark(ctx, rec.ID, skipmark.ReasonAuthorNotFound); err != nil {
			log.Warn("author not found and skip marker failed", zap.Error(err))
			r.summary.Failed++
			return
		}
		log.Warn("author not found, record skipped", zap.String("reason", skipmark.ReasonAuthorNotFound))
		r.summary.Skipped++
		return
	case err != nil:
		log.Warn("author lookup failed", zap.Error(err))
		r.summary.Failed++
		return
	}

	term, err := r.cache.ResolveTerm(ctx, author)
	if err != nil {
		log.Warn("term resolution failed", zap.Error(err))
		r.summary.Failed++
		return
	}

	r.transition(StateWriting)
	inserted, err := r.store.AttachTerm(ctx, rec.ID, term.ID)
	if err != nil {
		log.Warn("attach failed", zap.Int64("term_id", term.ID), zap.Error(err))
		r.summary.Failed++
		return
	}
	if !inserted {
		log.Info("relation already present", zap.Int64("term_id", term.ID))
		return
	}

	r.summary.Affected++
	log.Info("relation attached", zap.Int64("term_id", term.ID), zap.String("term", term.Slug))
}

func (r *run) pause(ctx context.Context, throttle *Throttle) error {
	d := throttle.Pause()
	r.log.Debug("throttling", zap.Int("processed", r.summary.Processed), zap.Duration("pause", d))

	if err := r.sleeper.Sleep(ctx, d); err != nil {
		return err
	}

	if err := r.store.ReleaseTransientCaches(ctx); err != nil {
		r.log.Warn("release caches failed", zap.Error(err))
	}
	return nil
}

func (r *run) interrupt(ctx context.Context) error {
	r.summary.Interrupted = true
	cause := context.Cause(ctx)
	r.log.Warn("run interrupted", zap.Int("processed", r.summary.Processed), zap.Error(cause))
	return NewInterruptedError(r.summary.RunID, r.summary.Processed, r.summary.Total, cause)
}

// touched pairs every resolved author with its term.
func (r *run) touched() []AuthorTerm {
	authors := r.cache.Authors()
	out := make([]AuthorTerm, 0, len(authors))
	for _, a := range authors {
		if term, ok := r.cache.Term(a.ID); ok {
			out = append(out, AuthorTerm{Author: a, Term: term})
		}
	}
	return out
}

func (r *run) transition(s State) {
	if r.onState != nil {
		r.onState(s)
	}
}
