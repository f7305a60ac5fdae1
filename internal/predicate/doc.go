// Package predicate builds the "records missing an author relation" filter.
//
// Build composes the caller's constraints (record types, statuses, an
// explicit id set or an id window) with two structural anti-joins: the
// record has no relation under the taxonomy and carries no skip marker.
// Because both conditions are negated existence checks, a record drops out
// of every future match the moment a relation or marker is written. Running
// the backfill again therefore only ever sees outstanding work.
//
// The resulting Predicate is store-agnostic. CountQuery and PageQuery render
// the counting and the paged form of the same filter through
// internal/querysql.
package predicate
