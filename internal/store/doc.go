// Package store provides SQLite-backed storage for bylines.
//
// The store plays every external collaborator of the backfill engine:
//   - Records: content records and the paged/counted "missing relation" match
//   - Authors: the author directory
//   - Terms: create-if-absent author terms and their relation rows
//   - Record metadata: key-value rows carrying skip markers
//
// # Guarantees
//
// Term uniqueness
//   - UNIQUE(taxonomy, slug) and a unique (taxonomy, author_id) index;
//     EnsureTerm looks the owner up, inserts with ON CONFLICT DO NOTHING and
//     reads back in one transaction, so two concurrent runs resolve the same
//     author to the same term
//   - authors whose logins normalize to the same slug get distinct terms:
//     the later one takes "<slug>-<author id>"
//
// Relation idempotency
//   - PRIMARY KEY(record_id, term_id); AttachTerm reports whether a row was
//     actually inserted
//
// Marker idempotency
//   - PRIMARY KEY(record_id, meta_key); the first marker written wins
//
// Deterministic reads
//   - every multi-row read is ordered by id
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
