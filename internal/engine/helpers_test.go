package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/logger"
	"github.com/roach88/bylines/internal/predicate"
	"github.com/roach88/bylines/internal/store"
	"github.com/roach88/bylines/internal/testutil"
)

const testRunID = "run-test"

var testEpoch = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)

// faultStore wraps the real store, counting calls and injecting failures.
type faultStore struct {
	*store.Store

	counts   int
	lookups  int
	ensures  int
	attaches int
	releases int

	lookupErr    map[int64]error // by author id
	attachErr    map[int64]error // by record id
	beforeAttach func(recordID ir.RecordID)
}

func (f *faultStore) CountMatching(ctx context.Context, pred *predicate.Predicate) (int, error) {
	f.counts++
	return f.Store.CountMatching(ctx, pred)
}

func (f *faultStore) LookupAuthor(ctx context.Context, id int64) (ir.Author, error) {
	f.lookups++
	if err := f.lookupErr[id]; err != nil {
		return ir.Author{}, err
	}
	return f.Store.LookupAuthor(ctx, id)
}

func (f *faultStore) EnsureTerm(ctx context.Context, spec ir.TermSpec) (ir.Term, bool, error) {
	f.ensures++
	return f.Store.EnsureTerm(ctx, spec)
}

func (f *faultStore) AttachTerm(ctx context.Context, recordID ir.RecordID, termID int64) (bool, error) {
	f.attaches++
	if f.beforeAttach != nil {
		f.beforeAttach(recordID)
	}
	if err := f.attachErr[recordID]; err != nil {
		return false, err
	}
	return f.Store.AttachTerm(ctx, recordID, termID)
}

func (f *faultStore) ReleaseTransientCaches(ctx context.Context) error {
	f.releases++
	return f.Store.ReleaseTransientCaches(ctx)
}

func newFaultStore(t *testing.T) *faultStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return &faultStore{Store: s}
}

type harness struct {
	store   *faultStore
	sleeper *testutil.RecordingSleeper
	logs    logger.Logs
	states  []State
	driver  *Driver
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:   newFaultStore(t),
		sleeper: &testutil.RecordingSleeper{},
	}
	log, logs := logger.NewObserverLogger("debug")
	h.logs = logs

	base := []Option{
		WithTaxonomy("authors"),
		WithLogger(log),
		WithSleeper(h.sleeper),
		WithRunIDGenerator(testutil.NewFixedRunIDGenerator(testRunID)),
		WithClock(testutil.NewDeterministicClock(testEpoch, time.Second).Now),
		WithStateObserver(func(s State) { h.states = append(h.states, s) }),
	}
	h.driver = New(h.store, append(base, opts...)...)
	return h
}

func (h *harness) addAuthors(t *testing.T, authors ...ir.Author) {
	t.Helper()
	for _, a := range authors {
		require.NoError(t, h.store.PutAuthor(context.Background(), a))
	}
}

func (h *harness) addPosts(t *testing.T, author int64, ids ...ir.RecordID) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, h.store.PutRecord(context.Background(), ir.ContentRecord{
			ID: id, AuthorRef: author, Type: "post", Status: "publish",
		}))
	}
}

// addPostRange seeds ids from..to in one transaction.
func (h *harness) addPostRange(t *testing.T, author int64, from, to ir.RecordID) {
	t.Helper()
	tx, err := h.store.DB().Begin()
	require.NoError(t, err)
	stmt, err := tx.Prepare(`INSERT INTO records (id, author_ref, type, status) VALUES (?, ?, 'post', 'publish')`)
	require.NoError(t, err)
	for id := from; id <= to; id++ {
		_, err := stmt.Exec(id, author)
		require.NoError(t, err)
	}
	require.NoError(t, stmt.Close())
	require.NoError(t, tx.Commit())
}

func (h *harness) matching(t *testing.T) int {
	t.Helper()
	pred, err := predicate.Build(predicate.Params{
		Taxonomy:       h.driver.taxonomy,
		RecordTypes:    []string{"post"},
		RecordStatuses: []string{"publish"},
		SkipMetaKey:    h.driver.skipKey,
	})
	require.NoError(t, err)
	n, err := h.store.Store.CountMatching(context.Background(), pred)
	require.NoError(t, err)
	return n
}

func (h *harness) relatedRecords(t *testing.T) []ir.RecordID {
	t.Helper()
	relations, err := h.store.Relations(context.Background(), h.driver.taxonomy)
	require.NoError(t, err)
	ids := make([]ir.RecordID, 0, len(relations))
	for _, r := range relations {
		ids = append(ids, r.RecordID)
	}
	return ids
}

func (h *harness) markers(t *testing.T) []ir.SkipMarker {
	t.Helper()
	markers, err := h.store.RecordsWithMeta(context.Background(), h.driver.skipKey)
	require.NoError(t, err)
	return markers
}

func posts() Params {
	return Params{RecordTypes: []string{"post"}, RecordStatuses: []string{"publish"}}
}

func batched(size int) Params {
	p := posts()
	p.Batched = true
	p.RecordsPerBatch = size
	return p
}

func int64p(v int64) *int64 {
	return &v
}
