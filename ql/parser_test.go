package ql

import (
	"errors"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Select(t *testing.T) {
	q, err := Parse("select title, img.url from item where done = false and owner = user:tobie order by title desc limit 5 fetch img")
	require.NoError(t, err)
	require.Len(t, q.Statements, 1)

	sel, ok := q.Statements[0].(*SelectStatement)
	require.True(t, ok)
	assert.Equal(t, []Ident{{Path: "title"}, {Path: "img.url"}}, sel.Fields)
	assert.Equal(t, []Expr{Table{Name: "item"}}, sel.What)
	assert.Equal(t, Binary{
		Op:    OpAnd,
		Left:  Binary{Op: OpEq, Left: Ident{Path: "done"}, Right: Literal{Value: false}},
		Right: Binary{Op: OpEq, Left: Ident{Path: "owner"}, Right: Thing{Table: "user", Key: "tobie"}},
	}, sel.Where)
	assert.Equal(t, []Order{{Field: Ident{Path: "title"}, Desc: true}}, sel.Order)
	assert.Equal(t, 5, sel.Limit)
	assert.Equal(t, []Ident{{Path: "img"}}, sel.Fetch)
}

func TestParse_WriteStatements(t *testing.T) {
	q, err := Parse("UPDATE item:1 MERGE $data RETURN NONE; SELECT * FROM item:1; CREATE item CONTENT {title: 'Test', done: false}")
	require.NoError(t, err)
	require.Len(t, q.Statements, 3)

	upd, ok := q.Statements[0].(*UpdateStatement)
	require.True(t, ok)
	assert.Equal(t, []Expr{Thing{Table: "item", Key: "1"}}, upd.What)
	assert.Equal(t, Param{Name: "data"}, upd.Merge)
	assert.Equal(t, ReturnNone, upd.Return)

	create, ok := q.Statements[2].(*CreateStatement)
	require.True(t, ok)
	assert.Equal(t, Table{Name: "item"}, create.What)
	assert.Equal(t, Object{Fields: []Field{
		{Key: "title", Value: Literal{Value: "Test"}},
		{Key: "done", Value: Literal{Value: false}},
	}}, create.Content)

	assert.False(t, q.ReadOnly())
	tables, exact := q.Tables()
	assert.Equal(t, []string{"item"}, tables)
	assert.True(t, exact)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
	}{
		{name: "missing from", input: "SELECT * item", pos: 9},
		{name: "dangling where", input: "SELECT * FROM item WHERE", pos: 24},
		{name: "bad limit", input: "SELECT * FROM item LIMIT -1", pos: 25},
		{name: "unterminated string", input: "SELECT * FROM item WHERE a = 'x", pos: 29},
		{name: "unknown statement", input: "DELETE item", pos: 0},
		{name: "stray character", input: "SELECT * FROM item WHERE a = #", pos: 29},
		{name: "missing separator", input: "SELECT * FROM a SELECT * FROM b", pos: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.pos, perr.Pos)
		})
	}
}

func TestParse_EmptyInput(t *testing.T) {
	q, err := Parse("  ;; ")
	require.NoError(t, err)
	assert.True(t, q.Empty())
	assert.Equal(t, "", q.String())
}

func TestRender_RoundTrips(t *testing.T) {
	inputs := []string{
		"SELECT * FROM item FETCH img",
		"select title, done from item where done = false order by title limit 10",
		"SELECT * FROM item:1, item:⟨a-b⟩",
		"SELECT * FROM $thing WHERE (a = 1 OR b = 2) AND c != 'x'",
		`UPDATE item:1 MERGE {done: true, "the title": 'it\'s'} RETURN NONE`,
		"CREATE item CONTENT $data",
		"SELECT * FROM item WHERE score >= 1.5 AND owner = user:tobie",
		"SELECT * FROM a; SELECT * FROM b",
	}

	var out strings.Builder
	for _, in := range inputs {
		q, err := Parse(in)
		require.NoError(t, err, in)

		rendered := q.String()
		again, err := Parse(rendered)
		require.NoError(t, err, rendered)
		assert.Equal(t, q, again, "re-parsing the canonical form must yield the same tree")

		out.WriteString(rendered)
		out.WriteString("\n")
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "canonical", []byte(out.String()))
}

func TestBinary_ParenthesizesRightAssociation(t *testing.T) {
	e := Binary{
		Op:    OpAnd,
		Left:  Ident{Path: "a"},
		Right: Binary{Op: OpAnd, Left: Ident{Path: "b"}, Right: Ident{Path: "c"}},
	}
	assert.Equal(t, "a AND (b AND c)", e.String())

	parsed, err := ParseExpr(e.String())
	require.NoError(t, err)
	assert.Equal(t, e, parsed)
}

func TestLiteral_String(t *testing.T) {
	assert.Equal(t, "NONE", None().String())
	assert.Equal(t, "2.0", Float(2).String())
	assert.Equal(t, "-3", Int(-3).String())
	assert.Equal(t, `'a\'b\\c'`, Str(`a'b\c`).String())
}

func TestThing_StringBracketsUnsafeKeys(t *testing.T) {
	assert.Equal(t, "item:abc", Thing{Table: "item", Key: "abc"}.String())
	assert.Equal(t, "item:42", Thing{Table: "item", Key: "42"}.String())
	assert.Equal(t, "item:⟨0190-ab⟩", Thing{Table: "item", Key: "0190-ab"}.String())
}

func TestVars(t *testing.T) {
	v := Vars{{Name: "a", Value: 1}}
	w := v.With("a", 2).With("b", "x")

	assert.Len(t, v, 1, "With must not modify the receiver")
	got, ok := w.Lookup("a")
	assert.True(t, ok)
	assert.Equal(t, 2, got)
	assert.Equal(t, map[string]any{"a": 2, "b": "x"}, w.Map())
}

func TestAnd(t *testing.T) {
	assert.Nil(t, And())
	assert.Equal(t, Ident{Path: "a"}, And(nil, Ident{Path: "a"}))
	assert.Equal(t, "a AND b", And(Ident{Path: "a"}, Ident{Path: "b"}).String())
}
