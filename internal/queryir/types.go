package queryir

// Query represents an abstract query over the content records.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition over a content record.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Count counts the rows of From matching Filter.
//
// Semantics:
//
//	SELECT COUNT(*) FROM <from> WHERE <filter>
type Count struct {
	From   string    // Source name (e.g., "records")
	Filter Predicate // nil = no filter
}

func (Count) queryNode() {}

// Select retrieves the rows of From matching Filter in ascending id order.
//
// Semantics:
//
//	SELECT <columns> FROM <from>
//	WHERE <filter> AND id > <after_id>
//	ORDER BY id ASC
//	LIMIT <limit>
//
// AfterID is a last-seen-id cursor: 0 starts from the beginning. Paging by
// cursor stays correct when concurrent writers delete rows or when rows drop
// out of the match set between pages; numeric offsets do not.
//
// Limit <= 0 means unbounded (single pass).
type Select struct {
	From    string    // Source name (e.g., "records")
	Columns []string  // Explicit column list, in order
	Filter  Predicate // nil = no filter
	AfterID int64     // Cursor: only rows with id > AfterID
	Limit   int       // Maximum rows; <= 0 means no limit
}

func (Select) queryNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Or represents a disjunction of predicates (at least one must be true).
// An empty Or is false.
type Or struct {
	Predicates []Predicate
}

func (Or) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// In is a set-membership test.
//
// Semantics:
//
//	<field> IN (<values>)
//
// Values must be strings or int64. An empty Values slice matches nothing.
type In struct {
	Field  string
	Values []any
}

func (In) predicateNode() {}

// Range bounds a numeric field on either side, exclusively.
//
// Semantics:
//
//	<field> > <above> AND <field> < <below>
//
// A nil bound is omitted. When both are set, Below must exceed Above.
type Range struct {
	Field string
	Above *int64
	Below *int64
}

func (Range) predicateNode() {}

// NotEquals excludes a single value.
//
// Semantics:
//
//	<field> <> <value>
type NotEquals struct {
	Field string
	Value any
}

func (NotEquals) predicateNode() {}

// HasRelation is true when the record has at least one relation row to a
// term of Taxonomy.
type HasRelation struct {
	Taxonomy string
}

func (HasRelation) predicateNode() {}

// HasMeta is true when the record carries a metadata row with Key.
type HasMeta struct {
	Key string
}

func (HasMeta) predicateNode() {}

// Int64 returns a pointer to v. Convenience for Range bounds.
func Int64(v int64) *int64 {
	return &v
}
