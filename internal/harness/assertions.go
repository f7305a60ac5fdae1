package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/predicate"
	"github.com/roach88/bylines/internal/skipmark"
	"github.com/roach88/bylines/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  actual: %s", e.Actual)
	return buf.String()
}

// evaluateAssertion dispatches to the assertion's checker.
func evaluateAssertion(ctx context.Context, st *store.Store, taxonomy string, a Assertion) error {
	switch a.Type {
	case AssertRelation:
		return assertRelation(ctx, st, taxonomy, a, true)
	case AssertNoRelation:
		return assertRelation(ctx, st, taxonomy, a, false)
	case AssertSkipMarker:
		return assertMarker(ctx, st, a, true)
	case AssertNoMarker:
		return assertMarker(ctx, st, a, false)
	case AssertTerm:
		return assertTerm(ctx, st, taxonomy, a)
	case AssertTermCount:
		return assertTermCount(ctx, st, taxonomy, a)
	case AssertMatching:
		return assertMatching(ctx, st, taxonomy, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

// recordTerms returns the slugs of the terms attached to a record.
func recordTerms(ctx context.Context, st *store.Store, taxonomy string, recordID ir.RecordID) ([]string, error) {
	relations, err := st.Relations(ctx, taxonomy)
	if err != nil {
		return nil, err
	}

	var slugs []string
	for _, rel := range relations {
		if rel.RecordID != recordID {
			continue
		}
		term, err := st.Term(ctx, rel.TermID)
		if err != nil {
			return nil, err
		}
		slugs = append(slugs, term.Slug)
	}
	return slugs, nil
}

// assertRelation checks that a record is (or is not) related to a term.
// A no_relation assertion without a term means no relation at all.
func assertRelation(ctx context.Context, st *store.Store, taxonomy string, a Assertion, want bool) error {
	slugs, err := recordTerms(ctx, st, taxonomy, a.Record)
	if err != nil {
		return err
	}

	found := len(slugs) > 0
	if a.Term != "" {
		found = false
		for _, s := range slugs {
			if s == a.Term {
				found = true
				break
			}
		}
	}
	if found == want {
		return nil
	}

	target := a.Term
	if target == "" {
		target = "any term"
	}
	expected := fmt.Sprintf("record %d related to %s", a.Record, target)
	if !want {
		expected = fmt.Sprintf("record %d not related to %s", a.Record, target)
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: expected,
		Actual:   fmt.Sprintf("terms %v", slugs),
	}
}

// assertMarker checks for a skip marker and, when given, its reason.
func assertMarker(ctx context.Context, st *store.Store, a Assertion, want bool) error {
	markers, err := st.RecordsWithMeta(ctx, skipmark.DefaultKey)
	if err != nil {
		return err
	}

	var found *ir.SkipMarker
	for i := range markers {
		if markers[i].RecordID == a.Record {
			found = &markers[i]
			break
		}
	}

	switch {
	case want && found == nil:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("skip marker on record %d", a.Record),
			Actual:   "no marker",
		}
	case want && a.Reason != "" && found.Reason != a.Reason:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("reason %q", a.Reason),
			Actual:   fmt.Sprintf("reason %q", found.Reason),
		}
	case !want && found != nil:
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("no skip marker on record %d", a.Record),
			Actual:   fmt.Sprintf("marker with reason %q", found.Reason),
		}
	}
	return nil
}

// assertTerm checks that a term exists and, when given, its record count.
func assertTerm(ctx context.Context, st *store.Store, taxonomy string, a Assertion) error {
	term, err := st.TermBySlug(ctx, taxonomy, a.Term)
	if errors.Is(err, ir.ErrNotFound) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("term %s", a.Term),
			Actual:   "term not found",
		}
	}
	if err != nil {
		return err
	}

	if a.RecordCount != nil && term.RecordCount != *a.RecordCount {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("term %s with record_count %d", a.Term, *a.RecordCount),
			Actual:   fmt.Sprintf("record_count %d", term.RecordCount),
		}
	}
	return nil
}

// assertTermCount checks how many terms the taxonomy holds.
func assertTermCount(ctx context.Context, st *store.Store, taxonomy string, a Assertion) error {
	terms, err := st.TermsByTaxonomy(ctx, taxonomy)
	if err != nil {
		return err
	}
	if len(terms) != *a.Count {
		slugs := make([]string, len(terms))
		for i, t := range terms {
			slugs[i] = t.Slug
		}
		sort.Strings(slugs)
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d terms", *a.Count),
			Actual:   fmt.Sprintf("%d terms %v", len(terms), slugs),
		}
	}
	return nil
}

// assertMatching checks how many records still match the backfill predicate.
func assertMatching(ctx context.Context, st *store.Store, taxonomy string, a Assertion) error {
	types := a.RecordTypes
	if len(types) == 0 {
		types = []string{"post"}
	}
	statuses := a.RecordStatuses
	if len(statuses) == 0 {
		statuses = []string{"publish"}
	}

	pred, err := predicate.Build(predicate.Params{
		Taxonomy:       taxonomy,
		RecordTypes:    types,
		RecordStatuses: statuses,
		SkipMetaKey:    skipmark.DefaultKey,
	})
	if err != nil {
		return err
	}

	n, err := st.CountMatching(ctx, pred)
	if err != nil {
		return err
	}
	if n != *a.Count {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%d matching records", *a.Count),
			Actual:   fmt.Sprintf("%d matching records", n),
		}
	}
	return nil
}

// captureState fills the snapshot's final-state sections in a stable order.
func captureState(ctx context.Context, st *store.Store, taxonomy string, snap *Snapshot) error {
	terms, err := st.TermsByTaxonomy(ctx, taxonomy)
	if err != nil {
		return err
	}
	slugByID := make(map[int64]string, len(terms))
	for _, t := range terms {
		slugByID[t.ID] = t.Slug
		snap.Terms = append(snap.Terms, TermState{
			Slug:        t.Slug,
			Name:        t.Name,
			RecordCount: t.RecordCount,
			Description: t.Description,
		})
	}
	sort.Slice(snap.Terms, func(i, j int) bool { return snap.Terms[i].Slug < snap.Terms[j].Slug })

	relations, err := st.Relations(ctx, taxonomy)
	if err != nil {
		return err
	}
	for _, rel := range relations {
		snap.Relations = append(snap.Relations, RelationState{RecordID: rel.RecordID, Term: slugByID[rel.TermID]})
	}

	markers, err := st.RecordsWithMeta(ctx, skipmark.DefaultKey)
	if err != nil {
		return err
	}
	for _, m := range markers {
		snap.SkipMarkers = append(snap.SkipMarkers, MarkerState{
			RecordID:  m.RecordID,
			Reason:    m.Reason,
			CreatedAt: m.CreatedAt,
		})
	}
	sort.Slice(snap.SkipMarkers, func(i, j int) bool { return snap.SkipMarkers[i].RecordID < snap.SkipMarkers[j].RecordID })
	return nil
}
