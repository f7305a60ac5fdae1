// Package resolve memoizes author and term resolution for a single run.
//
// A Cache is created at the start of a run and closed at its end; it is never
// shared between runs. Every distinct author reference costs at most one
// directory lookup, negative results included, and every resolved author at
// most one term create-or-fetch.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/logger"
)

// ErrClosed is returned by a Cache after Close.
var ErrClosed = errors.New("resolution cache closed")

// Directory looks up authors. It returns ir.ErrNotFound for unknown ids.
type Directory interface {
	LookupAuthor(ctx context.Context, id int64) (ir.Author, error)
}

// TermStore creates or fetches a term. EnsureTerm must be create-if-absent:
// two calls for the same taxonomy and author yield the same term, and
// distinct authors never share one.
type TermStore interface {
	EnsureTerm(ctx context.Context, spec ir.TermSpec) (ir.Term, bool, error)
}

// Stats counts cache activity.
type Stats struct {
	AuthorLookups int // directory calls
	AuthorHits    int // answered from memory, negatives included
	NegativeHits  int // memoized not-found answers
	TermLookups   int // term store calls
	TermHits      int
	TermsCreated  int
}

type authorEntry struct {
	author ir.Author
	found  bool
}

// Cache is the per-run resolution cache. It is safe for concurrent use.
type Cache struct {
	dir        Directory
	terms      TermStore
	taxonomy   string
	slugPrefix string
	logger     logger.Logger

	sf singleflight.Group

	mu      sync.Mutex
	authors map[int64]authorEntry
	byTerm  map[int64]ir.Term // author id -> term
	order   []int64           // found authors, first-resolution order
	stats   Stats
	closed  bool
}

type Option func(*Cache)

// WithLogger sets the logger used for debug traces.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New returns an empty cache resolving terms under taxonomy with slugs
// prefixed by slugPrefix.
func New(dir Directory, terms TermStore, taxonomy, slugPrefix string, opts ...Option) *Cache {
	c := &Cache{
		dir:        dir,
		terms:      terms,
		taxonomy:   taxonomy,
		slugPrefix: slugPrefix,
		logger:     logger.NewNoopLogger(),
		authors:    make(map[int64]authorEntry),
		byTerm:     make(map[int64]ir.Term),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ResolveAuthor returns the author with id ref, or ir.ErrNotFound.
// Not-found answers are remembered; other errors are not, so a later call
// retries the directory.
func (c *Cache) ResolveAuthor(ctx context.Context, ref int64) (ir.Author, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ir.Author{}, ErrClosed
	}
	if entry, ok := c.authors[ref]; ok {
		c.stats.AuthorHits++
		if !entry.found {
			c.stats.NegativeHits++
		}
		c.mu.Unlock()
		return entryResult(entry)
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("author:"+strconv.FormatInt(ref, 10), func() (interface{}, error) {
		// A flight that finished between the check above and Do has already
		// stored its answer.
		c.mu.Lock()
		if entry, ok := c.authors[ref]; ok {
			c.mu.Unlock()
			return entry, nil
		}
		c.stats.AuthorLookups++
		c.mu.Unlock()

		author, err := c.dir.LookupAuthor(ctx, ref)
		switch {
		case errors.Is(err, ir.ErrNotFound):
			return c.remember(ref, authorEntry{}), nil
		case err != nil:
			return nil, err
		}
		return c.remember(ref, authorEntry{author: author, found: true}), nil
	})
	if err != nil {
		return ir.Author{}, fmt.Errorf("resolve author %d: %w", ref, err)
	}

	return entryResult(v.(authorEntry))
}

func (c *Cache) remember(ref int64, entry authorEntry) authorEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return entry
	}
	c.authors[ref] = entry
	if entry.found {
		c.order = append(c.order, ref)
	}
	c.logger.Debug("author resolved", zap.Int64("author_ref", ref), zap.Bool("found", entry.found))
	return entry
}

func entryResult(entry authorEntry) (ir.Author, error) {
	if !entry.found {
		return ir.Author{}, ir.ErrNotFound
	}
	return entry.author, nil
}

// ResolveTerm returns the term representing author, creating it in the term
// store on first use.
func (c *Cache) ResolveTerm(ctx context.Context, author ir.Author) (ir.Term, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ir.Term{}, ErrClosed
	}
	if term, ok := c.byTerm[author.ID]; ok {
		c.stats.TermHits++
		c.mu.Unlock()
		return term, nil
	}
	c.mu.Unlock()

	v, err, _ := c.sf.Do("term:"+strconv.FormatInt(author.ID, 10), func() (interface{}, error) {
		c.mu.Lock()
		if term, ok := c.byTerm[author.ID]; ok {
			c.mu.Unlock()
			return term, nil
		}
		c.stats.TermLookups++
		c.mu.Unlock()

		spec := ir.NewTermSpec(c.taxonomy, c.slugPrefix, author)
		term, created, err := c.terms.EnsureTerm(ctx, spec)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if created {
			c.stats.TermsCreated++
		}
		if !c.closed {
			c.byTerm[author.ID] = term
		}
		c.logger.Debug("term resolved",
			zap.Int64("author_id", author.ID),
			zap.Int64("term_id", term.ID),
			zap.String("slug", term.Slug),
			zap.Bool("created", created),
		)
		return term, nil
	})
	if err != nil {
		return ir.Term{}, fmt.Errorf("resolve term for author %d: %w", author.ID, err)
	}

	return v.(ir.Term), nil
}

// Authors returns every found author in first-resolution order.
func (c *Cache) Authors() []ir.Author {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]ir.Author, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.authors[id].author)
	}
	return out
}

// Term returns the memoized term of an author, if resolved.
func (c *Cache) Term(authorID int64) (ir.Term, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	term, ok := c.byTerm[authorID]
	return term, ok
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close drops every memoized entry. Stats stay readable.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.authors = nil
	c.byTerm = nil
	c.order = nil
}
