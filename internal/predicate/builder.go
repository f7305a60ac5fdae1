package predicate

import (
	"fmt"
	"strings"

	"github.com/roach88/bylines/internal/ir"
	"github.com/roach88/bylines/internal/queryir"
	"github.com/roach88/bylines/internal/querysql"
)

// Source is the record set every predicate is evaluated against.
const Source = "records"

// Columns is the column list of a page query, in ContentRecord scan order.
var Columns = []string{"id", "author_ref", "type", "status"}

// Params holds the caller's constraints.
type Params struct {
	// Taxonomy is the taxonomy the author relation lives in.
	Taxonomy string

	// RecordTypes and RecordStatuses restrict the match; both must be non-empty.
	RecordTypes    []string
	RecordStatuses []string

	// ExplicitIDs restricts the match to exactly these records and overrides
	// AboveID/BelowID when non-empty.
	ExplicitIDs []ir.RecordID

	// AboveID and BelowID are exclusive id bounds; nil means unbounded.
	AboveID *int64
	BelowID *int64

	// SkipMetaKey is the metadata key of skip markers.
	SkipMetaKey string
}

// Predicate is a built "missing relation" filter.
//
// A Predicate is immutable and safe to share; it carries no store handle.
type Predicate struct {
	params   Params
	filter   queryir.Predicate
	compiler *querysql.SQLCompiler
}

// Build validates params and composes the filter.
//
// Validation happens before anything touches a store:
//   - empty Taxonomy, RecordTypes, RecordStatuses or SkipMetaKey fail
//   - with no ExplicitIDs and both bounds set, BelowID <= AboveID fails
//     with *InvalidRangeError
func Build(p Params) (*Predicate, error) {
	if strings.TrimSpace(p.Taxonomy) == "" {
		return nil, ErrNoTaxonomy
	}
	if len(p.RecordTypes) == 0 {
		return nil, ErrNoRecordTypes
	}
	if len(p.RecordStatuses) == 0 {
		return nil, ErrNoRecordStatuses
	}
	if p.SkipMetaKey == "" {
		return nil, ErrNoSkipMetaKey
	}

	preds := []queryir.Predicate{
		queryir.In{Field: "type", Values: stringValues(p.RecordTypes)},
		queryir.In{Field: "status", Values: stringValues(p.RecordStatuses)},
		queryir.NotEquals{Field: "author_ref", Value: int64(0)},
	}

	switch {
	case len(p.ExplicitIDs) > 0:
		preds = append(preds, queryir.In{Field: "id", Values: idValues(p.ExplicitIDs)})
	case p.AboveID != nil || p.BelowID != nil:
		if p.AboveID != nil && p.BelowID != nil && *p.BelowID <= *p.AboveID {
			return nil, &InvalidRangeError{Above: *p.AboveID, Below: *p.BelowID}
		}
		preds = append(preds, queryir.Range{Field: "id", Above: p.AboveID, Below: p.BelowID})
	}

	preds = append(preds,
		queryir.Not{Predicate: queryir.HasRelation{Taxonomy: p.Taxonomy}},
		queryir.Not{Predicate: queryir.HasMeta{Key: p.SkipMetaKey}},
	)

	filter := queryir.And{Predicates: preds}
	if result := queryir.ValidatePredicate(filter); !result.Valid {
		return nil, fmt.Errorf("build predicate: %s", strings.Join(result.Problems, "; "))
	}

	return &Predicate{
		params:   p,
		filter:   filter,
		compiler: querysql.NewSQLCompiler(),
	}, nil
}

// Params returns the constraints the predicate was built from.
func (p *Predicate) Params() Params {
	return p.params
}

// Filter returns the expression tree.
func (p *Predicate) Filter() queryir.Predicate {
	return p.filter
}

// CountQuery returns the counting form of the predicate.
func (p *Predicate) CountQuery() (string, []any, error) {
	return p.compiler.Compile(queryir.Count{From: Source, Filter: p.filter})
}

// PageQuery returns the paged form of the predicate: up to limit records
// with id > afterID in ascending id order. limit <= 0 returns every match.
func (p *Predicate) PageQuery(limit int, afterID ir.RecordID) (string, []any, error) {
	return p.compiler.Compile(queryir.Select{
		From:    Source,
		Columns: Columns,
		Filter:  p.filter,
		AfterID: afterID,
		Limit:   limit,
	})
}

func stringValues(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func idValues(ids []ir.RecordID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
