// Package expr is the restricted filter-predicate grammar scan (§4.5)
// evaluates: column references, literals, comparisons, boolean
// connectives, null checks, IN-lists, and an open Extension node for the
// index-only predicates the base spec calls out by example
// (intersects(geom, literal_bbox)). Expressions outside this grammar are
// evaluated in-memory by the caller, never rejected outright.
package expr

// Expr is any node in the predicate tree.
type Expr interface {
	// String renders the expression for logging/debugging; not used for
	// SQL translation (translation lives in pkg/table, which knows the
	// target dialect).
	String() string
}

// ColumnRef names a user-schema column by name.
type ColumnRef struct {
	Name string
}

func (c ColumnRef) String() string { return c.Name }

// Literal is a constant value of one of Go's comparable primitive kinds
// (bool, int64, float64, string, nil for SQL NULL).
type Literal struct {
	Value interface{}
}

func (l Literal) String() string { return "literal" }

// CompareOp enumerates the comparison operators the grammar supports.
type CompareOp int

const (
	Eq CompareOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

func (op CompareOp) String() string {
	switch op {
	case Eq:
		return "="
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Le:
		return "<="
	case Gt:
		return ">"
	case Ge:
		return ">="
	default:
		return "?"
	}
}

// Comparison is `left OP right`, e.g. ColumnRef{"id"} = Literal{10}.
type Comparison struct {
	Op    CompareOp
	Left  Expr
	Right Expr
}

func (c Comparison) String() string { return c.Left.String() + " " + c.Op.String() + " " + c.Right.String() }

// And is a conjunction of two or more sub-expressions.
type And struct {
	Exprs []Expr
}

func (a And) String() string { return "AND(...)" }

// Or is a disjunction of two or more sub-expressions.
type Or struct {
	Exprs []Expr
}

func (o Or) String() string { return "OR(...)" }

// Not negates a sub-expression.
type Not struct {
	Expr Expr
}

func (n Not) String() string { return "NOT(" + n.Expr.String() + ")" }

// IsNull is `col IS NULL` (or `IS NOT NULL` when Negate is set).
type IsNull struct {
	Column Expr
	Negate bool
}

func (n IsNull) String() string {
	if n.Negate {
		return n.Column.String() + " IS NOT NULL"
	}
	return n.Column.String() + " IS NULL"
}

// In is `col IN (literals...)`.
type In struct {
	Column Expr
	Values []Literal
}

func (n In) String() string { return n.Column.String() + " IN (...)" }

// Extension is an index-only predicate advertised by a registered index
// kind (e.g. "intersects"), opaque to the core engine beyond its name and
// argument list; only Index.SupportsFilter/Filter implementations
// interpret it.
type Extension struct {
	Name string
	Args []Expr
}

func (e Extension) String() string { return e.Name + "(...)" }

// Walk calls visit on e and every descendant, depth-first, pre-order.
// Callers use this to discover which ColumnRef/Extension nodes an
// expression touches, e.g. when deciding index eligibility.
func Walk(e Expr, visit func(Expr)) {
	if e == nil {
		return
	}
	visit(e)
	switch n := e.(type) {
	case Comparison:
		Walk(n.Left, visit)
		Walk(n.Right, visit)
	case And:
		for _, c := range n.Exprs {
			Walk(c, visit)
		}
	case Or:
		for _, c := range n.Exprs {
			Walk(c, visit)
		}
	case Not:
		Walk(n.Expr, visit)
	case IsNull:
		Walk(n.Column, visit)
	case In:
		Walk(n.Column, visit)
	case Extension:
		for _, a := range n.Args {
			Walk(a, visit)
		}
	}
}

// ColumnNames returns the set of column names directly referenced by e.
func ColumnNames(e Expr) []string {
	seen := map[string]bool{}
	var names []string
	Walk(e, func(n Expr) {
		if c, ok := n.(ColumnRef); ok && !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	})
	return names
}

// ReferencesOnly reports whether every ColumnRef in e is in allowed,
// used by delete's fast path (§4.6: "if condition references only
// row_id, enumerate directly").
func ReferencesOnly(e Expr, allowed ...string) bool {
	set := map[string]bool{}
	for _, a := range allowed {
		set[a] = true
	}
	ok := true
	Walk(e, func(n Expr) {
		if c, ok2 := n.(ColumnRef); ok2 && !set[c.Name] {
			ok = false
		}
	})
	return ok
}
