package sqlstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
)

func TestCompileSelect(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		vars     ql.Vars
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "whole table",
			query:    "SELECT * FROM item",
			wantSQL:  "SELECT tb, id, data FROM records WHERE tb = ? ORDER BY seq ASC",
			wantArgs: []any{"item"},
		},
		{
			name:     "record and condition",
			query:    "SELECT * FROM item:1 WHERE done = false AND score >= 2",
			wantSQL:  "SELECT tb, id, data FROM records WHERE (tb = ? AND id = ?) AND (json_extract(data, ?) = ? AND json_extract(data, ?) >= ?) ORDER BY seq ASC",
			wantArgs: []any{"item", "1", "$.done", false, "$.score", int64(2)},
		},
		{
			name:     "several targets with order and limit",
			query:    "SELECT * FROM item, tag ORDER BY title DESC LIMIT 5",
			wantSQL:  "SELECT tb, id, data FROM records WHERE (tb = ? OR tb = ?) ORDER BY json_extract(data, ?) DESC, seq ASC LIMIT ?",
			wantArgs: []any{"item", "tag", "$.title", 5},
		},
		{
			name:     "none and id comparisons",
			query:    "SELECT * FROM item WHERE img = NONE OR id != item:2",
			wantSQL:  "SELECT tb, id, data FROM records WHERE tb = ? AND (json_extract(data, ?) IS NULL OR (tb || ':' || id) != ?) ORDER BY seq ASC",
			wantArgs: []any{"item", "$.img", "item:2"},
		},
		{
			name:     "parameter target and value",
			query:    "SELECT * FROM $thing WHERE owner = $owner",
			vars:     ql.Vars{{Name: "thing", Value: record.NewID("item", "7")}, {Name: "owner", Value: record.NewID("user", "tobie")}},
			wantSQL:  "SELECT tb, id, data FROM records WHERE (tb = ? AND id = ?) AND json_extract(data, ?) = ? ORDER BY seq ASC",
			wantArgs: []any{"item", "7", "$.owner", "user:tobie"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := ql.ParseSelect(tt.query)
			require.NoError(t, err)

			c := newCompiler(tt.vars)
			got, err := c.compileSelect(st)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, got)
			assert.Equal(t, tt.wantArgs, c.args)
		})
	}
}

func TestCompileSelect_Errors(t *testing.T) {
	st, err := ql.ParseSelect("SELECT * FROM $missing")
	require.NoError(t, err)
	_, err = newCompiler(nil).compileSelect(st)
	assert.Error(t, err)

	st, err = ql.ParseSelect("SELECT * FROM item WHERE a = { b: 1 }")
	require.NoError(t, err)
	_, err = newCompiler(nil).compileSelect(st)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestTargetFromValue(t *testing.T) {
	got, err := targetFromValue("item")
	require.NoError(t, err)
	assert.Equal(t, target{table: "item"}, got)

	got, err = targetFromValue("item:⟨a-b⟩")
	require.NoError(t, err)
	assert.Equal(t, target{table: "item", key: "a-b"}, got)

	_, err = targetFromValue(42)
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestDocumentPaths(t *testing.T) {
	doc := map[string]any{"title": "a", "img": map[string]any{"url": "x", "w": 1}}

	v, ok := lookupPath(doc, "img.url")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	_, ok = lookupPath(doc, "title.nope")
	assert.False(t, ok)

	assert.Equal(t, map[string]any{"img": map[string]any{"url": "x"}}, project(doc, []string{"img.url", "missing"}))
	assert.Equal(t, doc, project(doc, nil))
}
