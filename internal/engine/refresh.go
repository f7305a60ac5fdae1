package engine

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/logger"
)

// RefreshStore is what the term refresher reads and writes.
type RefreshStore interface {
	Authors(ctx context.Context) ([]ir.Author, error)
	TermByAuthor(ctx context.Context, taxonomy string, authorID int64) (ir.Term, error)
	TermBySlug(ctx context.Context, taxonomy, slug string) (ir.Term, error)
	RefreshTermStats(ctx context.Context, termID int64, description string) (ir.Term, error)
}

// AuthorTerm pairs an author with the term representing it.
type AuthorTerm struct {
	Author ir.Author
	Term   ir.Term
}

// RefreshResult reports a RefreshAll pass.
type RefreshResult struct {
	Authors   int `json:"authors"`
	Refreshed int `json:"refreshed"`
	Missing   int `json:"missing"` // authors without a term
	Failed    int `json:"failed"`
}

// Refresher recomputes term record counts from the relation store and
// rewrites term descriptions from the current author data.
//
// Refreshing is idempotent; failures are logged and never returned.
type Refresher struct {
	store      RefreshStore
	taxonomy   string
	slugPrefix string
	logger     logger.Logger
}

type RefreshOption func(*Refresher)

func WithRefreshLogger(l logger.Logger) RefreshOption {
	return func(r *Refresher) {
		r.logger = l
	}
}

// NewRefresher creates a refresher for terms of taxonomy.
func NewRefresher(s RefreshStore, taxonomy, slugPrefix string, opts ...RefreshOption) *Refresher {
	r := &Refresher{
		store:      s,
		taxonomy:   taxonomy,
		slugPrefix: slugPrefix,
		logger:     logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh updates the terms of the given authors and returns how many were
// refreshed.
func (r *Refresher) Refresh(ctx context.Context, pairs []AuthorTerm) int {
	refreshed := 0
	for _, p := range pairs {
		if r.refreshOne(ctx, p) {
			refreshed++
		}
	}
	return refreshed
}

func (r *Refresher) refreshOne(ctx context.Context, p AuthorTerm) bool {
	term, err := r.store.RefreshTermStats(ctx, p.Term.ID, ir.TermDescription(p.Author))
	if err != nil {
		r.logger.Warn("term refresh failed",
			zap.Int64("author_id", p.Author.ID),
			zap.Int64("term_id", p.Term.ID),
			zap.Error(err),
		)
		return false
	}

	r.logger.Debug("term refreshed",
		zap.Int64("term_id", term.ID),
		zap.Int64("record_count", term.RecordCount),
	)
	return true
}

// RefreshAll refreshes the term of every author in the directory that has
// one. Only a failure to list authors is returned as an error.
func (r *Refresher) RefreshAll(ctx context.Context) (RefreshResult, error) {
	authors, err := r.store.Authors(ctx)
	if err != nil {
		return RefreshResult{}, err
	}

	result := RefreshResult{Authors: len(authors)}
	for _, a := range authors {
		term, err := r.authorTerm(ctx, a)
		switch {
		case errors.Is(err, ir.ErrNotFound):
			result.Missing++
			continue
		case err != nil:
			r.logger.Warn("term lookup failed", zap.Int64("author_id", a.ID), zap.Error(err))
			result.Failed++
			continue
		}

		if r.refreshOne(ctx, AuthorTerm{Author: a, Term: term}) {
			result.Refreshed++
		} else {
			result.Failed++
		}
	}

	r.logger.Info("terms refreshed",
		zap.Int("authors", result.Authors),
		zap.Int("refreshed", result.Refreshed),
		zap.Int("missing", result.Missing),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// authorTerm finds the term owned by a. Terms created before owners were
// recorded are matched by the author's slug as long as nobody owns them.
func (r *Refresher) authorTerm(ctx context.Context, a ir.Author) (ir.Term, error) {
	term, err := r.store.TermByAuthor(ctx, r.taxonomy, a.ID)
	if !errors.Is(err, ir.ErrNotFound) {
		return term, err
	}

	term, err = r.store.TermBySlug(ctx, r.taxonomy, ir.AuthorSlug(r.slugPrefix, a))
	if err != nil {
		return ir.Term{}, err
	}
	if term.AuthorID != 0 {
		return ir.Term{}, ir.ErrNotFound
	}
	return term, nil
}
