package queryir

import "fmt"

// ValidationResult contains the structural problems found in a query.
type ValidationResult struct {
	// Valid is true when no problems were found.
	Valid bool

	// Problems lists each issue in traversal order.
	Problems []string
}

// Validate checks a query for structural problems a backend cannot render
// meaningfully:
//  1. Empty source names
//  2. Empty In value sets (would silently match nothing)
//  3. In values that are not string or int64
//  4. Range with no bounds, or with Below <= Above
//  5. HasRelation without a taxonomy, HasMeta without a key
//  6. nil or unknown nodes
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{problems: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// ValidatePredicate checks a standalone predicate.
func ValidatePredicate(p Predicate) ValidationResult {
	v := &validator{problems: []string{}}
	v.validatePredicate(p)

	return ValidationResult{
		Valid:    len(v.problems) == 0,
		Problems: v.problems,
	}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addProblem("nil query")
	case Count:
		v.validateSource(query.From)
		if query.Filter != nil {
			v.validatePredicate(query.Filter)
		}
	case *Count:
		v.validateQuery(*query)
	case Select:
		v.validateSource(query.From)
		if len(query.Columns) == 0 {
			v.addProblem("select requires an explicit column list")
		}
		if query.AfterID < 0 {
			v.addProblem("negative cursor %d", query.AfterID)
		}
		if query.Filter != nil {
			v.validatePredicate(query.Filter)
		}
	case *Select:
		v.validateQuery(*query)
	default:
		v.addProblem("unknown query type: %T", q)
	}
}

func (v *validator) validateSource(from string) {
	if from == "" {
		v.addProblem("empty source name")
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addProblem("nil predicate")
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *And:
		v.validatePredicate(*pred)
	case Or:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	case *Or:
		v.validatePredicate(*pred)
	case Not:
		v.validatePredicate(pred.Predicate)
	case *Not:
		v.validatePredicate(*pred)
	case In:
		v.validateIn(pred)
	case *In:
		v.validateIn(*pred)
	case Range:
		v.validateRange(pred)
	case *Range:
		v.validateRange(*pred)
	case NotEquals:
		if pred.Field == "" {
			v.addProblem("not-equals with empty field")
		}
	case *NotEquals:
		v.validatePredicate(*pred)
	case HasRelation:
		if pred.Taxonomy == "" {
			v.addProblem("relation check with empty taxonomy")
		}
	case *HasRelation:
		v.validatePredicate(*pred)
	case HasMeta:
		if pred.Key == "" {
			v.addProblem("meta check with empty key")
		}
	case *HasMeta:
		v.validatePredicate(*pred)
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}

func (v *validator) validateIn(in In) {
	if in.Field == "" {
		v.addProblem("set membership with empty field")
	}
	if len(in.Values) == 0 {
		v.addProblem("field '%s' tested against an empty set", in.Field)
	}
	for i, val := range in.Values {
		switch val.(type) {
		case string, int64:
		default:
			v.addProblem("field '%s' value [%d] has unsupported type %T", in.Field, i, val)
		}
	}
}

func (v *validator) validateRange(r Range) {
	if r.Field == "" {
		v.addProblem("range with empty field")
	}
	if r.Above == nil && r.Below == nil {
		v.addProblem("range on '%s' has no bounds", r.Field)
		return
	}
	if r.Above != nil && r.Below != nil && *r.Below <= *r.Above {
		v.addProblem("range on '%s' is empty: below %d <= above %d", r.Field, *r.Below, *r.Above)
	}
}
