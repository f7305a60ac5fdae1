// Package queryir provides the predicate expression tree used to describe
// which content records still need an author relation.
//
// QueryIR is the abstraction boundary between the predicate builder and the
// backing store. The builder composes typed leaf conditions; a backend
// (internal/querysql for SQLite) renders them to whatever query form it needs.
// Nothing in this package knows SQL.
//
// NODES:
//
// Predicates:
//   - And, Or, Not: boolean composition
//   - In: set membership (field IN values)
//   - Range: exclusive id window, either bound optional
//   - NotEquals: field <> value
//   - HasRelation: the record has a relation row under a taxonomy
//   - HasMeta: the record carries a metadata row with a key
//
// HasRelation and HasMeta are existence checks against other sets. Wrapped in
// Not they become anti-joins: once a relation or a skip marker is written the
// record stops matching, which is what makes a backfill re-runnable.
//
// Queries:
//   - Count: number of matching rows
//   - Select: matching rows in ascending id order, optionally after a cursor
//     and limited
//
// SEALED INTERFACES:
//
// Query and Predicate are sealed using the marker method pattern. Only types
// in this package implement them, so backends can type switch exhaustively:
//
//	switch p := pred.(type) {
//	case And:
//	    // ...
//	case Not:
//	    // ...
//	default:
//	    // unknown node - backends return an error
//	}
package queryir
