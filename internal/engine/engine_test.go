package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/predicate"
	"github.com/roach88/bylines/internal/skipmark"
)

var (
	u1 = ir.Author{ID: 1, Login: "ursula", DisplayName: "Ursula K", Email: "ursula@example.com"}
	u3 = ir.Author{ID: 3, Login: "ted"}
)

func TestRun_EndToEndThreeRecords(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2) // P1, P2 -> U1
	h.addPosts(t, 2, 3)    // P3 -> U2, which does not exist

	summary, err := h.driver.Run(ctx, posts())
	require.NoError(t, err)

	assert.Equal(t, Summary{
		RunID:     testRunID,
		Total:     3,
		Processed: 3,
		Affected:  2,
		Skipped:   1,
		Pages:     1,
		Refreshed: 1,
	}, summary)

	terms, err := h.store.TermsByTaxonomy(ctx, "authors")
	require.NoError(t, err)
	require.Len(t, terms, 1, "one term for U1")
	term := terms[0]
	assert.Equal(t, "cap-ursula", term.Slug)
	assert.Equal(t, "Ursula K", term.Name)
	assert.Equal(t, int64(2), term.RecordCount)
	assert.Equal(t, "Ursula K ursula 1 ursula@example.com", term.Description)
	assert.Equal(t, 1, h.store.ensures)

	relations, err := h.store.Relations(ctx, "authors")
	require.NoError(t, err)
	assert.Equal(t, []ir.Relation{{RecordID: 1, TermID: term.ID}, {RecordID: 2, TermID: term.ID}}, relations)

	assert.Equal(t, []ir.SkipMarker{{RecordID: 3, Reason: skipmark.ReasonAuthorNotFound, CreatedAt: testEpoch}}, h.markers(t))

	warnings := h.logs.FilterMessage("author not found, record skipped").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, zapcore.WarnLevel, warnings[0].Level)
	assert.Equal(t, int64(3), warnings[0].ContextMap()["record_id"])
}

func TestRun_OneTermPerAuthorWhenSlugsCollide(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t,
		ir.Author{ID: 1, Login: "李雷"},
		ir.Author{ID: 2, Login: "王芳"},
		ir.Author{ID: 3, Login: "jane.doe"},
		ir.Author{ID: 4, Login: "jane-doe"},
	)
	for id := int64(1); id <= 4; id++ {
		h.addPosts(t, id, id)
	}

	summary, err := h.driver.Run(ctx, posts())
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Affected)
	assert.Equal(t, 4, summary.Refreshed)

	terms, err := h.store.TermsByTaxonomy(ctx, "authors")
	require.NoError(t, err)
	require.Len(t, terms, 4)

	byAuthor := map[int64]ir.Term{}
	for _, term := range terms {
		assert.Equal(t, int64(1), term.RecordCount, "term %q", term.Slug)
		byAuthor[term.AuthorID] = term
	}
	assert.Equal(t, "cap-1", byAuthor[1].Slug)
	assert.Equal(t, "cap-2", byAuthor[2].Slug)
	assert.Equal(t, "cap-jane-doe", byAuthor[3].Slug)
	assert.Equal(t, "cap-jane-doe-4", byAuthor[4].Slug)
	assert.Equal(t, "王芳 2", byAuthor[2].Description)
	assert.Equal(t, "jane-doe 4", byAuthor[4].Description)

	relations, err := h.store.Relations(ctx, "authors")
	require.NoError(t, err)
	require.Len(t, relations, 4)
	for _, rel := range relations {
		assert.Equal(t, byAuthor[rel.RecordID].ID, rel.TermID, "record %d", rel.RecordID)
	}

	result, err := NewRefresher(h.store, "authors", "cap-").RefreshAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, RefreshResult{Authors: 4, Refreshed: 4}, result)
}

func TestRun_Idempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3)
	h.addPosts(t, 99, 4)

	first, err := h.driver.Run(ctx, posts())
	require.NoError(t, err)
	assert.Equal(t, 3, first.Affected)
	attaches := h.store.attaches

	second, err := h.driver.Run(ctx, posts())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Total)
	assert.Equal(t, 0, second.Affected)
	assert.Equal(t, 0, second.Skipped)
	assert.Equal(t, attaches, h.store.attaches, "second run must not write")
	assert.Len(t, h.markers(t), 1, "no duplicate marker")
}

func TestRun_ReentrantExplicitIDs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 10, 20, 30)

	ab := posts()
	ab.ExplicitIDs = []ir.RecordID{10, 20}
	summary, err := h.driver.Run(ctx, ab)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Affected)

	bc := posts()
	bc.ExplicitIDs = []ir.RecordID{20, 30}
	summary, err = h.driver.Run(ctx, bc)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total, "20 is already related")
	assert.Equal(t, 1, summary.Affected)

	assert.Equal(t, []ir.RecordID{10, 20, 30}, h.relatedRecords(t))
}

func TestRun_ExplicitIDsOverrideRange(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3)

	p := posts()
	p.ExplicitIDs = []ir.RecordID{1}
	p.AboveID = int64p(5)
	p.BelowID = int64p(2) // inverted, ignored

	summary, err := h.driver.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Affected)
	assert.Equal(t, []ir.RecordID{1}, h.relatedRecords(t))
}

func TestRun_IDRange(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3, 4, 5)

	p := posts()
	p.AboveID = int64p(1)
	p.BelowID = int64p(5)

	summary, err := h.driver.Run(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, []ir.RecordID{2, 3, 4}, h.relatedRecords(t))
}

func TestRun_CacheCorrectness(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPostRange(t, 1, 1, 1000)

	summary, err := h.driver.Run(context.Background(), batched(250))
	require.NoError(t, err)

	assert.Equal(t, 1000, summary.Affected)
	assert.Equal(t, 4, summary.Pages)
	assert.Equal(t, 1, h.store.lookups, "one directory lookup")
	assert.Equal(t, 1, h.store.ensures, "one term create-or-fetch")
}

func TestRun_InvalidRange(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 6, 7, 8)

	p := posts()
	p.AboveID = int64p(10)
	p.BelowID = int64p(5)

	summary, err := h.driver.Run(context.Background(), p)
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.True(t, predicate.IsInvalidRange(err))

	assert.Equal(t, 0, h.store.counts, "no I/O before validation")
	assert.Equal(t, 0, summary.Processed)
	assert.Empty(t, h.relatedRecords(t))
	assert.Empty(t, h.markers(t))
	assert.Equal(t, []State{StateStart}, h.states)
}

func TestValidate(t *testing.T) {
	inverted := posts()
	inverted.AboveID = int64p(10)
	inverted.BelowID = int64p(5)

	err := Validate(inverted, WithTaxonomy("authors"))
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.True(t, predicate.IsInvalidRange(err))

	negative := batched(-1)
	assert.True(t, IsConfigError(Validate(negative)))

	assert.True(t, IsConfigError(Validate(posts(), WithTaxonomy(""))))

	assert.NoError(t, Validate(posts()))
	assert.NoError(t, Validate(batched(10), WithTaxonomy("authors")))
}

func TestRun_ConfigErrors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		params Params
		target error
	}{
		{"no record types", Params{RecordStatuses: []string{"publish"}}, predicate.ErrNoRecordTypes},
		{"no record statuses", Params{RecordTypes: []string{"post"}}, predicate.ErrNoRecordStatuses},
		{"negative batch size", Params{RecordTypes: []string{"post"}, RecordStatuses: []string{"publish"}, Batched: true, RecordsPerBatch: -1}, nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.driver.Run(context.Background(), tc.params)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			if tc.target != nil {
				assert.ErrorIs(t, err, tc.target)
			}
			assert.Equal(t, 0, h.store.counts)
		})
	}
}

func TestRun_ThrottleBoundary(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPostRange(t, 1, 1, 1001)

	summary, err := h.driver.Run(context.Background(), posts())
	require.NoError(t, err)

	assert.Equal(t, 1001, summary.Processed)
	assert.Equal(t, 1, summary.Pages)
	assert.Equal(t, 2, summary.Throttles)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, h.sleeper.Pauses())
	assert.Equal(t, 2, h.store.releases)
}

func TestRun_NoThrottleOnFinalRecord(t *testing.T) {
	h := newHarness(t, WithThrottle(2, 5*time.Millisecond))
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3, 4)

	summary, err := h.driver.Run(context.Background(), posts())
	require.NoError(t, err)

	// Pauses after record 2 only; the run stops at record 4 before checking.
	assert.Equal(t, 1, summary.Throttles)
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, h.sleeper.Pauses())
}

func TestRun_SkippedRecordsCountTowardThrottle(t *testing.T) {
	h := newHarness(t, WithThrottle(2, time.Second))
	h.addPosts(t, 42, 1, 2, 3)

	summary, err := h.driver.Run(context.Background(), posts())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, 1, summary.Throttles)
	assert.Equal(t, 1, h.store.lookups, "negative lookups are memoized")
}

func TestRun_BatchedPaging(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3, 4, 5, 6, 7)

	summary, err := h.driver.Run(context.Background(), batched(3))
	require.NoError(t, err)

	assert.Equal(t, 7, summary.Affected)
	assert.Equal(t, 3, summary.Pages)
	assert.Equal(t, []ir.RecordID{1, 2, 3, 4, 5, 6, 7}, h.relatedRecords(t))
}

func TestRun_DefaultBatchSize(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPostRange(t, 1, 1, 251)

	summary, err := h.driver.Run(context.Background(), batched(0))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pages)
	assert.Equal(t, 251, summary.Affected)
}

func TestRun_StopsAtInitialTotal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3)

	added := false
	h.store.beforeAttach = func(ir.RecordID) {
		if !added {
			added = true
			require.NoError(t, h.store.PutRecord(ctx, ir.ContentRecord{ID: 100, AuthorRef: 1, Type: "post", Status: "publish"}))
		}
	}

	summary, err := h.driver.Run(ctx, batched(2))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Processed)
	assert.Equal(t, []ir.RecordID{1, 2, 3}, h.relatedRecords(t))
	assert.Equal(t, 1, h.matching(t), "record 100 is left for the next run")
}

func TestRun_FewerRecordsThanCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3, 4)

	h.store.beforeAttach = func(id ir.RecordID) {
		if id == 1 {
			require.NoError(t, h.store.DeleteRecord(ctx, 3))
			require.NoError(t, h.store.DeleteRecord(ctx, 4))
		}
	}

	summary, err := h.driver.Run(ctx, batched(2))
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 2, summary.Affected)
}

func TestRun_TransientLookupFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t, u1, u3)
	h.addPosts(t, 1, 1)
	h.addPosts(t, 3, 2)
	h.store.lookupErr = map[int64]error{3: errors.New("directory timeout")}

	summary, err := h.driver.Run(ctx, posts())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Affected)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Skipped)
	assert.Empty(t, h.markers(t), "transient failures leave no marker")
	assert.Equal(t, 1, h.matching(t), "record 2 stays matching")
	assert.Equal(t, 1, h.logs.FilterMessage("author lookup failed").Len())

	h.store.lookupErr = nil
	summary, err = h.driver.Run(ctx, posts())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Affected)
}

func TestRun_AttachFailureIsTransient(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3)
	h.store.attachErr = map[int64]error{2: errors.New("database is locked")}

	summary, err := h.driver.Run(context.Background(), posts())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Affected)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Processed)
	assert.Empty(t, h.markers(t))
	assert.Equal(t, []ir.RecordID{1, 3}, h.relatedRecords(t))
	assert.Equal(t, 1, h.logs.FilterMessage("attach failed").Len())
}

func TestRun_ExistingRelationIsNotCounted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2)

	// A concurrent run attaches record 1 between our page read and our write.
	h.store.beforeAttach = func(id ir.RecordID) {
		if id == 1 {
			term, err := h.store.TermBySlug(ctx, "authors", "cap-ursula")
			require.NoError(t, err)
			_, err = h.store.Store.AttachTerm(ctx, 1, term.ID)
			require.NoError(t, err)
		}
	}

	summary, err := h.driver.Run(ctx, posts())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Affected)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 1, h.logs.FilterMessage("relation already present").Len())
	assert.Equal(t, []ir.RecordID{1, 2}, h.relatedRecords(t))
}

func TestRun_AuthorRefZeroNeverMatches(t *testing.T) {
	h := newHarness(t)
	h.addPosts(t, 0, 1, 2)

	summary, err := h.driver.Run(context.Background(), posts())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Empty(t, h.markers(t))
	assert.Equal(t, []State{StateStart, StateCounting, StateDone}, h.states)
}

func TestRun_SkipMarkersAreHonoredUntilCleared(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addPosts(t, 2, 1)

	summary, err := h.driver.Run(ctx, posts())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)

	summary, err = h.driver.Run(ctx, posts())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)

	// The author shows up later and the marker is cleared out of band.
	h.addAuthors(t, ir.Author{ID: 2, Login: "late"})
	_, err = h.store.DeleteMeta(ctx, h.driver.skipKey)
	require.NoError(t, err)

	summary, err = h.driver.Run(ctx, posts())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Affected)
}

func TestRun_CoverageProperty(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.addAuthors(t, u1, u3)
	h.addPosts(t, 1, 1, 2)
	h.addPosts(t, 3, 3)
	h.addPosts(t, 9, 4)
	h.store.attachErr = map[int64]error{2: errors.New("io")}

	before := h.matching(t)
	summary, err := h.driver.Run(ctx, posts())
	require.NoError(t, err)
	require.Equal(t, before, summary.Processed)

	related := map[ir.RecordID]bool{}
	for _, id := range h.relatedRecords(t) {
		related[id] = true
	}
	marked := map[ir.RecordID]bool{}
	for _, m := range h.markers(t) {
		marked[m.RecordID] = true
	}

	for id := ir.RecordID(1); id <= 4; id++ {
		assert.True(t, related[id] || marked[id] || id == 2, "record %d disappeared", id)
	}
	assert.Equal(t, 1, h.matching(t), "the failed record still matches")
}

func TestRun_CancelledBetweenRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3)
	h.store.beforeAttach = func(id ir.RecordID) {
		if id == 2 {
			cancel()
		}
	}

	summary, err := h.driver.Run(ctx, posts())
	require.Error(t, err)
	assert.True(t, IsInterrupted(err))
	assert.ErrorIs(t, err, context.Canceled)

	assert.True(t, summary.Interrupted)
	assert.Equal(t, 2, summary.Processed, "the record in flight completes")
	assert.Equal(t, 2, summary.Affected)
	assert.Equal(t, []ir.RecordID{1, 2}, h.relatedRecords(t))

	term, err := h.store.TermBySlug(context.Background(), "authors", "cap-ursula")
	require.NoError(t, err)
	assert.Equal(t, int64(2), term.RecordCount, "terms are refreshed after an interrupt")
}

func TestRun_CancelledDuringThrottle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, WithThrottle(2, time.Second))
	h.sleeper.OnSleep = func(int) { cancel() }
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1, 2, 3, 4, 5)

	summary, err := h.driver.Run(ctx, posts())
	require.Error(t, err)
	assert.True(t, IsInterrupted(err))
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, h.store.releases, "caches are released only after a completed pause")
}

func TestRun_StateTransitions(t *testing.T) {
	t.Run("resolved record", func(t *testing.T) {
		h := newHarness(t)
		h.addAuthors(t, u1)
		h.addPosts(t, 1, 1)

		_, err := h.driver.Run(context.Background(), posts())
		require.NoError(t, err)
		assert.Equal(t, []State{
			StateStart, StateCounting, StatePaging, StateResolving, StateWriting, StateThrottleCheck, StateDone,
		}, h.states)
	})

	t.Run("skipped record", func(t *testing.T) {
		h := newHarness(t)
		h.addPosts(t, 5, 1)

		_, err := h.driver.Run(context.Background(), posts())
		require.NoError(t, err)
		assert.Equal(t, []State{
			StateStart, StateCounting, StatePaging, StateResolving, StateThrottleCheck, StateDone,
		}, h.states)
	})
}

func TestRun_RunIDOnEveryLogLine(t *testing.T) {
	h := newHarness(t)
	h.addAuthors(t, u1)
	h.addPosts(t, 1, 1)
	h.addPosts(t, 4, 2)

	_, err := h.driver.Run(context.Background(), posts())
	require.NoError(t, err)

	entries := h.logs.All()
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.Equal(t, testRunID, e.ContextMap()["run_id"], "entry %q", e.Message)
	}
}

func TestRun_DefaultRunIDIsUUIDv7(t *testing.T) {
	s := newFaultStore(t)
	d := New(s, WithSleeper(RealSleeper{}))

	summary, err := d.Run(context.Background(), posts())
	require.NoError(t, err)
	assert.Len(t, summary.RunID, 36)
	assert.Equal(t, byte('7'), summary.RunID[14])
}
