package ql

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is an ordered list of statements sent to the server in one round trip.
// The server answers with one result set per statement, in the same order.
type Query struct {
	Statements []Statement
}

// Empty reports whether the query has no statements.
func (q Query) Empty() bool {
	return len(q.Statements) == 0
}

// String renders the canonical text form of the query.
func (q Query) String() string {
	parts := make([]string, len(q.Statements))
	for i, st := range q.Statements {
		parts[i] = st.String()
	}
	return strings.Join(parts, "; ")
}

// CacheKey identifies the query structurally: two queries with the same AST share a key.
func (q Query) CacheKey() string {
	return q.String()
}

// ReadOnly reports whether every statement is a SELECT.
func (q Query) ReadOnly() bool {
	for _, st := range q.Statements {
		if _, ok := st.(*SelectStatement); !ok {
			return false
		}
	}
	return true
}

// Tables returns the distinct tables addressed by the statements, in first-seen order.
// exact is false when a target is a parameter and the table can only be known at execution time.
func (q Query) Tables() (tables []string, exact bool) {
	exact = true
	seen := make(map[string]bool)
	for _, st := range q.Statements {
		for _, target := range st.Targets() {
			var name string
			switch t := target.(type) {
			case Table:
				name = t.Name
			case Thing:
				name = t.Table
			default:
				exact = false
				continue
			}
			if !seen[name] {
				seen[name] = true
				tables = append(tables, name)
			}
		}
	}
	return tables, exact
}

// Statement is one of *SelectStatement, *UpdateStatement or *CreateStatement.
type Statement interface {
	fmt.Stringer
	// Targets lists the tables, records or parameters the statement reads or writes.
	Targets() []Expr
	statement()
}

// Order is a single ORDER BY term.
type Order struct {
	Field Ident
	Desc  bool
}

func (o Order) String() string {
	if o.Desc {
		return o.Field.String() + " DESC"
	}
	return o.Field.String() + " ASC"
}

// SelectStatement reads records. An empty Fields list selects every field.
type SelectStatement struct {
	Fields []Ident
	What   []Expr
	Where  Expr
	Order  []Order
	Limit  int
	Fetch  []Ident
}

func (*SelectStatement) statement() {}

func (s *SelectStatement) Targets() []Expr {
	return s.What
}

func (s *SelectStatement) String() string {
	var b strings.Builder
	b.WriteString("SELECT ")
	if len(s.Fields) == 0 {
		b.WriteString("*")
	} else {
		b.WriteString(joinIdents(s.Fields))
	}
	b.WriteString(" FROM ")
	b.WriteString(joinExprs(s.What))
	if s.Where != nil {
		b.WriteString(" WHERE ")
		b.WriteString(s.Where.String())
	}
	if len(s.Order) > 0 {
		parts := make([]string, len(s.Order))
		for i, o := range s.Order {
			parts[i] = o.String()
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(parts, ", "))
	}
	if s.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(strconv.Itoa(s.Limit))
	}
	if len(s.Fetch) > 0 {
		b.WriteString(" FETCH ")
		b.WriteString(joinIdents(s.Fetch))
	}
	return b.String()
}

// Clone returns a copy whose slices can be modified without touching s.
func (s *SelectStatement) Clone() *SelectStatement {
	c := *s
	c.Fields = append([]Ident(nil), s.Fields...)
	c.What = append([]Expr(nil), s.What...)
	c.Order = append([]Order(nil), s.Order...)
	c.Fetch = append([]Ident(nil), s.Fetch...)
	return &c
}

// Return selects what a write statement sends back.
type Return int

const (
	ReturnDefault Return = iota
	ReturnNone
	ReturnBefore
	ReturnAfter
	ReturnDiff
)

func (r Return) clause() string {
	switch r {
	case ReturnNone:
		return " RETURN NONE"
	case ReturnBefore:
		return " RETURN BEFORE"
	case ReturnAfter:
		return " RETURN AFTER"
	case ReturnDiff:
		return " RETURN DIFF"
	default:
		return ""
	}
}

// UpdateStatement merges Merge into every addressed record.
type UpdateStatement struct {
	What   []Expr
	Merge  Expr
	Return Return
}

func (*UpdateStatement) statement() {}

func (s *UpdateStatement) Targets() []Expr {
	return s.What
}

func (s *UpdateStatement) String() string {
	return "UPDATE " + joinExprs(s.What) + " MERGE " + s.Merge.String() + s.Return.clause()
}

// CreateStatement inserts a record with Content into a table or at a fixed id.
type CreateStatement struct {
	What    Expr
	Content Expr
	Return  Return
}

func (*CreateStatement) statement() {}

func (s *CreateStatement) Targets() []Expr {
	return []Expr{s.What}
}

func (s *CreateStatement) String() string {
	return "CREATE " + s.What.String() + " CONTENT " + s.Content.String() + s.Return.clause()
}

// Expr is a value or condition inside a statement.
type Expr interface {
	fmt.Stringer
	expr()
}

// Ident is a dotted field path such as "title" or "img.url".
type Ident struct {
	Path string
}

func (Ident) expr() {}

func (i Ident) String() string { return i.Path }

// Literal holds nil (NONE), bool, string, int64 or float64.
type Literal struct {
	Value any
}

func (Literal) expr() {}

func (l Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "NONE"
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return quote(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		s := strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	default:
		return quote(fmt.Sprint(v))
	}
}

// Literal constructors.

func Str(s string) Literal { return Literal{Value: s} }

func Int(n int64) Literal { return Literal{Value: n} }

func Float(f float64) Literal { return Literal{Value: f} }

func Bool(b bool) Literal { return Literal{Value: b} }

func None() Literal { return Literal{} }

// Param references a variable bound at execution time.
type Param struct {
	Name string
}

func (Param) expr() {}

func (p Param) String() string { return "$" + p.Name }

// Table addresses every record of a table.
type Table struct {
	Name string
}

func (Table) expr() {}

func (t Table) String() string { return t.Name }

// Thing addresses a single record as table:key.
type Thing struct {
	Table string
	Key   string
}

func (Thing) expr() {}

func (t Thing) String() string {
	if isIdent(t.Key) || isDigits(t.Key) {
		return t.Table + ":" + t.Key
	}
	return t.Table + ":⟨" + strings.ReplaceAll(t.Key, "⟩", `\⟩`) + "⟩"
}

// Field is one key of an object literal.
type Field struct {
	Key   string
	Value Expr
}

// Object is a literal document such as {done: true}.
type Object struct {
	Fields []Field
}

func (Object) expr() {}

func (o Object) String() string {
	if len(o.Fields) == 0 {
		return "{}"
	}
	parts := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		key := f.Key
		if !isIdent(key) {
			key = quote(key)
		}
		parts[i] = key + ": " + f.Value.String()
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

// Op is a binary operator.
type Op string

const (
	OpEq  Op = "="
	OpNe  Op = "!="
	OpLt  Op = "<"
	OpLe  Op = "<="
	OpGt  Op = ">"
	OpGe  Op = ">="
	OpAnd Op = "AND"
	OpOr  Op = "OR"
)

func (o Op) precedence() int {
	switch o {
	case OpOr:
		return 1
	case OpAnd:
		return 2
	default:
		return 3
	}
}

// Binary is a comparison or a logical conjunction/disjunction.
type Binary struct {
	Op    Op
	Left  Expr
	Right Expr
}

func (Binary) expr() {}

func (b Binary) String() string {
	return b.operand(b.Left, false) + " " + string(b.Op) + " " + b.operand(b.Right, true)
}

// operand parenthesizes children so that rendering and re-parsing yields the same tree.
func (b Binary) operand(e Expr, right bool) string {
	child, ok := e.(Binary)
	if !ok {
		return e.String()
	}
	parent, prec := b.Op.precedence(), child.Op.precedence()
	if prec < parent || (prec == parent && (right || parent == 3)) {
		return "(" + child.String() + ")"
	}
	return child.String()
}

// And folds conditions left to right. It returns nil when given none.
func And(conds ...Expr) Expr {
	var out Expr
	for _, c := range conds {
		if c == nil {
			continue
		}
		if out == nil {
			out = c
			continue
		}
		out = Binary{Op: OpAnd, Left: out, Right: c}
	}
	return out
}

func joinIdents(ids []Ident) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ", ")
}

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

func quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || isLetter(r) || (i > 0 && isDigit(r)) {
			continue
		}
		return false
	}
	return !keywords[strings.ToUpper(s)]
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return true
}

func isLetter(r rune) bool { return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
