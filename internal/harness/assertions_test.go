package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bylines/internal/fixture"
	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/store"
)

func int64p(n int64) *int64 { return &n }

// seededStore holds record 1 attached to cap-ursula, record 2 marked
// skipped and record 3 untouched.
func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ds := fixture.Dataset{
		Authors: []ir.Author{{ID: 1, Login: "ursula"}},
		Records: []ir.ContentRecord{
			{ID: 1, AuthorRef: 1, Type: "post", Status: "publish"},
			{ID: 2, AuthorRef: 7, Type: "post", Status: "publish"},
			{ID: 3, AuthorRef: 1, Type: "post", Status: "publish"},
		},
		Relations:   []fixture.Relation{{Record: 1, Author: 1}},
		SkipMarkers: []fixture.SkipMarker{{Record: 2, Reason: "author_not_found"}},
	}
	_, err = ds.Apply(context.Background(), st, fixture.Options{
		Taxonomy:    DefaultTaxonomy,
		SlugPrefix:  DefaultSlugPrefix,
		SkipMetaKey: "_bylines_skip_backfill",
	})
	require.NoError(t, err)
	return st
}

func TestEvaluateAssertion(t *testing.T) {
	st := seededStore(t)

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{"relation present", Assertion{Type: AssertRelation, Record: 1, Term: "cap-ursula"}, ""},
		{"relation missing", Assertion{Type: AssertRelation, Record: 3, Term: "cap-ursula"}, "record 3 related to cap-ursula"},
		{"no relation holds", Assertion{Type: AssertNoRelation, Record: 3}, ""},
		{"no relation violated", Assertion{Type: AssertNoRelation, Record: 1}, "not related to any term"},
		{"no relation to other term", Assertion{Type: AssertNoRelation, Record: 1, Term: "cap-other"}, ""},
		{"marker present", Assertion{Type: AssertSkipMarker, Record: 2, Reason: "author_not_found"}, ""},
		{"marker missing", Assertion{Type: AssertSkipMarker, Record: 3}, "no marker"},
		{"marker wrong reason", Assertion{Type: AssertSkipMarker, Record: 2, Reason: "other"}, `reason "author_not_found"`},
		{"no marker holds", Assertion{Type: AssertNoMarker, Record: 1}, ""},
		{"no marker violated", Assertion{Type: AssertNoMarker, Record: 2}, "no skip marker on record 2"},
		{"term exists", Assertion{Type: AssertTerm, Term: "cap-ursula"}, ""},
		{"term count unrefreshed", Assertion{Type: AssertTerm, Term: "cap-ursula", RecordCount: int64p(0)}, ""},
		{"term count mismatch", Assertion{Type: AssertTerm, Term: "cap-ursula", RecordCount: int64p(1)}, "record_count 0"},
		{"term missing", Assertion{Type: AssertTerm, Term: "cap-nobody"}, "term not found"},
		{"term count", Assertion{Type: AssertTermCount, Count: intp(1)}, ""},
		{"term count wrong", Assertion{Type: AssertTermCount, Count: intp(3)}, "1 terms [cap-ursula]"},
		{"matching", Assertion{Type: AssertMatching, Count: intp(1)}, ""},
		{"matching wrong", Assertion{Type: AssertMatching, Count: intp(2)}, "1 matching records"},
		{"matching other type", Assertion{Type: AssertMatching, Count: intp(0), RecordTypes: []string{"page"}}, ""},
		{"unknown", Assertion{Type: "vibes"}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := evaluateAssertion(context.Background(), st, DefaultTaxonomy, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{Type: "relation", Expected: "a", Actual: "b"}
	assert.Equal(t, "assertion failed: relation\n  expected: a\n  actual: b", err.Error())
}

func TestCaptureState(t *testing.T) {
	st := seededStore(t)

	snap := NewResult("capture").Snapshot
	require.NoError(t, captureState(context.Background(), st, DefaultTaxonomy, &snap))

	assert.Equal(t, []TermState{{Slug: "cap-ursula", Name: "ursula", Description: "ursula 1"}}, snap.Terms)
	assert.Equal(t, []RelationState{{RecordID: 1, Term: "cap-ursula"}}, snap.Relations)
	require.Len(t, snap.SkipMarkers, 1)
	assert.Equal(t, int64(2), snap.SkipMarkers[0].RecordID)
}
