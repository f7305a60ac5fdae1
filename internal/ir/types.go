package ir

import "time"

// RecordID identifies a content record.
type RecordID = int64

// ContentRecord is the item being reconciled.
//
// The engine only reads AuthorRef, Type and Status; the relation to terms is
// the one thing it writes.
type ContentRecord struct {
	ID        RecordID `json:"id" yaml:"id"`
	AuthorRef int64    `json:"author_ref" yaml:"author"` // 0 means "no author"
	Type      string   `json:"type" yaml:"type"`
	Status    string   `json:"status" yaml:"status"`
}

// Author is the entity a content record is attributed to.
type Author struct {
	ID          int64  `json:"id" yaml:"id"`
	Login       string `json:"login" yaml:"login"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
}

// Term represents one author within a taxonomy.
//
// INVARIANT: at most one Term per (Taxonomy, Slug) and at most one per
// (Taxonomy, AuthorID). The store enforces both with UNIQUE constraints.
// AuthorID is 0 for terms not owned by an author.
type Term struct {
	ID          int64  `json:"id"`
	Taxonomy    string `json:"taxonomy"`
	Slug        string `json:"slug"`
	Name        string `json:"name"`
	RecordCount int64  `json:"record_count"`
	Description string `json:"description"`
	AuthorID    int64  `json:"author_id,omitempty"`
}

// TermSpec describes the term to create-or-fetch for an author.
//
// With a non-zero AuthorID the term is identified by its owner and Slug is
// only the preferred slug. With AuthorID 0 the term is identified by Slug.
type TermSpec struct {
	Taxonomy    string
	Slug        string
	Name        string
	Description string
	AuthorID    int64
}

// SkipMarker permanently excludes a record from backfill matching until it
// is cleared out-of-band.
type SkipMarker struct {
	RecordID  RecordID  `json:"record_id"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// Relation associates a content record with a term.
type Relation struct {
	RecordID RecordID `json:"record_id" yaml:"record"`
	TermID   int64    `json:"term_id" yaml:"term"`
}
