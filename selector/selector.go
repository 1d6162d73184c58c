package selector

import (
	"github.com/cespare/xxhash/v2"

	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
)

// Selector is an immutable description of a record query. The zero value is the
// empty selector, which compiles to a query with no statements.
type Selector struct {
	stmt *ql.SelectStatement
	text string
}

// Empty is the selector that selects nothing.
var Empty = Selector{}

// FromText parses a selector from query text. Malformed text fails with *ql.ParseError.
// When the first statement is not a SELECT the result is the empty selector.
func FromText(text string) (Selector, error) {
	q, err := ql.Parse(text)
	if err != nil {
		return Selector{}, err
	}
	return FromQuery(q), nil
}

// MustFromText is FromText for selector literals; it panics on malformed text.
func MustFromText(text string) Selector {
	s, err := FromText(text)
	if err != nil {
		panic(err)
	}
	return s
}

// FromQuery keeps the first statement of q if it is a SELECT.
func FromQuery(q ql.Query) Selector {
	if q.Empty() {
		return Selector{}
	}
	stmt, ok := q.Statements[0].(*ql.SelectStatement)
	if !ok {
		return Selector{}
	}
	return FromStatement(stmt)
}

// FromStatement wraps a copy of stmt.
func FromStatement(stmt *ql.SelectStatement) Selector {
	if stmt == nil {
		return Selector{}
	}
	c := stmt.Clone()
	return Selector{stmt: c, text: c.String()}
}

// FromRecordID selects exactly one record: SELECT * FROM table:key.
func FromRecordID(id record.ID) Selector {
	return FromStatement(&ql.SelectStatement{What: []ql.Expr{id.Thing()}})
}

// ToWireQuery compiles a selector. It never fails.
func ToWireQuery(s Selector) ql.Query {
	return s.WireQuery()
}

// WireQuery compiles the selector into a query of zero or one statement.
func (s Selector) WireQuery() ql.Query {
	if s.stmt == nil {
		return ql.Query{}
	}
	return ql.Query{Statements: []ql.Statement{s.stmt.Clone()}}
}

// Statement returns a copy of the underlying SELECT, or false for the empty selector.
func (s Selector) Statement() (*ql.SelectStatement, bool) {
	if s.stmt == nil {
		return nil, false
	}
	return s.stmt.Clone(), true
}

func (s Selector) IsEmpty() bool {
	return s.stmt == nil
}

// ScopedTo narrows the selector to a single record while keeping its filter, field list
// and fetches. Writes use it to ask whether a record still belongs to the selection.
func (s Selector) ScopedTo(id record.ID) Selector {
	if s.stmt == nil {
		return Selector{}
	}
	c := s.stmt.Clone()
	c.What = []ql.Expr{id.Thing()}
	c.Order = nil
	c.Limit = 0
	return Selector{stmt: c, text: c.String()}
}

// String is the canonical text of the selector.
func (s Selector) String() string {
	return s.text
}

// CacheKey implements the key serializer's Keyer contract.
func (s Selector) CacheKey() string {
	return "sel(" + s.text + ")"
}

// Equal compares selectors structurally.
func (s Selector) Equal(other Selector) bool {
	return s.text == other.text
}

// Hash is a 64-bit digest of the canonical text, suitable for sharding and metrics labels.
func (s Selector) Hash() uint64 {
	return xxhash.Sum64String(s.text)
}
