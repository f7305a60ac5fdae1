package querysql

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/bylines/internal/queryir"
)

// Tables names the sets the existence predicates are evaluated against.
type Tables struct {
	Terms     string // terms(id, taxonomy, ...)
	Relations string // relations(record_id, term_id)
	Meta      string // record metadata(record_id, meta_key, ...)
}

// DefaultTables matches the schema created by internal/store.
var DefaultTables = Tables{
	Terms:     "terms",
	Relations: "term_relationships",
	Meta:      "record_meta",
}

// SQLCompiler compiles QueryIR to parameterized SQL for SQLite.
//
// CRITICAL: every Select is ordered by id ascending so paging is deterministic.
// CRITICAL: values are always parameterized, never interpolated.
type SQLCompiler struct {
	Tables Tables

	builder sq.StatementBuilderType
}

// NewSQLCompiler creates a SQLCompiler for the default schema.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{
		Tables:  DefaultTables,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}
}

// Compile converts a QueryIR query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if q == nil {
		return "", nil, fmt.Errorf("cannot compile nil query")
	}

	switch query := q.(type) {
	case queryir.Count:
		return c.compileCount(query)
	case *queryir.Count:
		return c.compileCount(*query)
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileCount(q queryir.Count) (string, []any, error) {
	if q.From == "" {
		return "", nil, fmt.Errorf("count: empty source")
	}

	sb := c.builder.Select("COUNT(*)").From(q.From)
	if q.Filter != nil {
		where, err := c.compilePredicate(q.From, q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb = sb.Where(where)
	}

	return sb.ToSql()
}

// compileSelect compiles a queryir.Select.
// MANDATORY: includes ORDER BY id ASC.
func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	if q.From == "" {
		return "", nil, fmt.Errorf("select: empty source")
	}
	if len(q.Columns) == 0 {
		return "", nil, fmt.Errorf("select: explicit columns required")
	}

	sb := c.builder.Select(q.Columns...).From(q.From)
	if q.Filter != nil {
		where, err := c.compilePredicate(q.From, q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		sb = sb.Where(where)
	}
	if q.AfterID > 0 {
		sb = sb.Where(sq.Gt{qualify(q.From, "id"): q.AfterID})
	}

	sb = sb.OrderBy(stableOrderKey(q.From))
	if q.Limit > 0 {
		sb = sb.Limit(uint64(q.Limit))
	}

	return sb.ToSql()
}

// stableOrderKey returns the ORDER BY clause for a select.
// MANDATORY: every select MUST call this function.
func stableOrderKey(from string) string {
	return qualify(from, "id") + " ASC"
}

// compilePredicate compiles a predicate to a squirrel condition. from is
// the outer source, used to correlate the existence subqueries.
func (c *SQLCompiler) compilePredicate(from string, p queryir.Predicate) (sq.Sqlizer, error) {
	switch pred := p.(type) {
	case nil:
		return nil, fmt.Errorf("nil predicate")
	case queryir.And:
		return c.compileAnd(from, pred)
	case *queryir.And:
		return c.compileAnd(from, *pred)
	case queryir.Or:
		return c.compileOr(from, pred)
	case *queryir.Or:
		return c.compileOr(from, *pred)
	case queryir.Not:
		return c.compileNot(from, pred)
	case *queryir.Not:
		return c.compileNot(from, *pred)
	case queryir.In:
		return compileIn(from, pred)
	case *queryir.In:
		return compileIn(from, *pred)
	case queryir.Range:
		return compileRange(from, pred)
	case *queryir.Range:
		return compileRange(from, *pred)
	case queryir.NotEquals:
		return sq.NotEq{qualify(from, pred.Field): pred.Value}, nil
	case *queryir.NotEquals:
		return sq.NotEq{qualify(from, pred.Field): pred.Value}, nil
	case queryir.HasRelation:
		return c.compileHasRelation(from, pred)
	case *queryir.HasRelation:
		return c.compileHasRelation(from, *pred)
	case queryir.HasMeta:
		return c.compileHasMeta(from, pred)
	case *queryir.HasMeta:
		return c.compileHasMeta(from, *pred)
	default:
		return nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

func (c *SQLCompiler) compileAnd(from string, and queryir.And) (sq.Sqlizer, error) {
	if len(and.Predicates) == 0 {
		return sq.Expr("1 = 1"), nil // Vacuous truth
	}

	conj := make(sq.And, 0, len(and.Predicates))
	for _, sub := range and.Predicates {
		s, err := c.compilePredicate(from, sub)
		if err != nil {
			return nil, err
		}
		conj = append(conj, s)
	}
	return conj, nil
}

func (c *SQLCompiler) compileOr(from string, or queryir.Or) (sq.Sqlizer, error) {
	if len(or.Predicates) == 0 {
		return sq.Expr("1 = 0"), nil
	}

	disj := make(sq.Or, 0, len(or.Predicates))
	for _, sub := range or.Predicates {
		s, err := c.compilePredicate(from, sub)
		if err != nil {
			return nil, err
		}
		disj = append(disj, s)
	}
	return disj, nil
}

func (c *SQLCompiler) compileNot(from string, not queryir.Not) (sq.Sqlizer, error) {
	inner, err := c.compilePredicate(from, not.Predicate)
	if err != nil {
		return nil, fmt.Errorf("compile not: %w", err)
	}
	innerSQL, args, err := inner.ToSql()
	if err != nil {
		return nil, fmt.Errorf("compile not: %w", err)
	}
	return sq.Expr("NOT ("+innerSQL+")", args...), nil
}

// compileIn renders set membership. squirrel renders an empty slice as
// (1=0), which keeps an empty set matching nothing.
func compileIn(from string, in queryir.In) (sq.Sqlizer, error) {
	if in.Field == "" {
		return nil, fmt.Errorf("set membership with empty field")
	}
	for i, v := range in.Values {
		switch v.(type) {
		case string, int64:
		default:
			return nil, fmt.Errorf("field %q value [%d]: unsupported type %T", in.Field, i, v)
		}
	}
	values := make([]any, len(in.Values))
	copy(values, in.Values)
	return sq.Eq{qualify(from, in.Field): values}, nil
}

func compileRange(from string, r queryir.Range) (sq.Sqlizer, error) {
	if r.Above == nil && r.Below == nil {
		return nil, fmt.Errorf("range on %q has no bounds", r.Field)
	}

	field := qualify(from, r.Field)
	bounds := sq.And{}
	if r.Above != nil {
		bounds = append(bounds, sq.Gt{field: *r.Above})
	}
	if r.Below != nil {
		bounds = append(bounds, sq.Lt{field: *r.Below})
	}
	return bounds, nil
}

// compileHasRelation renders a correlated existence check against the
// relation table joined to the terms of one taxonomy.
func (c *SQLCompiler) compileHasRelation(from string, hr queryir.HasRelation) (sq.Sqlizer, error) {
	if hr.Taxonomy == "" {
		return nil, fmt.Errorf("relation check with empty taxonomy")
	}
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s tr JOIN %s tt ON tt.id = tr.term_id WHERE tr.record_id = %s AND tt.taxonomy = ?)",
		c.Tables.Relations, c.Tables.Terms, qualify(from, "id"),
	)
	return sq.Expr(sql, hr.Taxonomy), nil
}

// compileHasMeta renders a correlated existence check against record metadata.
func (c *SQLCompiler) compileHasMeta(from string, hm queryir.HasMeta) (sq.Sqlizer, error) {
	if hm.Key == "" {
		return nil, fmt.Errorf("meta check with empty key")
	}
	sql := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s rm WHERE rm.record_id = %s AND rm.meta_key = ?)",
		c.Tables.Meta, qualify(from, "id"),
	)
	return sq.Expr(sql, hm.Key), nil
}

// qualify prefixes a column with its source so correlated subqueries cannot
// capture it.
func qualify(from, column string) string {
	return from + "." + column
}
