package cache

import (
	"strings"
	"testing"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

type keyed string

func (k keyed) CacheKey() string { return "keyed(" + string(k) + ")" }

type criteria struct {
	Table  string
	Limit  int
	hidden string
}

func TestDefaultKeySerializer_BasicTypes(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name   string
		method string
		args   []any
		want   string
	}{
		{
			name:   "no args",
			method: "query[item]",
			args:   nil,
			want:   "query[item]",
		},
		{
			name:   "multiple basic types",
			method: "query[item]",
			args:   []any{1, "hello", true, 3.14},
			want:   joinWithSeparator("query[item]", "1", "hello", "true", "3.14"),
		},
		{
			name:   "nil values",
			method: "query[item]",
			args:   []any{nil, (*int)(nil), []string(nil), map[string]int(nil)},
			want:   joinWithSeparator("query[item]", "nil", "nil", "slice:nil", "map:nil"),
		},
		{
			name:   "keyer wins over reflection",
			method: "query[item]",
			args:   []any{keyed("a"), &criteria{Table: "item"}},
			want:   joinWithSeparator("query[item]", "keyed(a)", "struct:{Table:item,Limit:0}"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.method, tt.args...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_Collections(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name string
		arg  any
		want string
	}{
		{name: "slice", arg: []int{1, 2}, want: "slice[2]:{1,2}"},
		{name: "array", arg: [2]string{"a", "b"}, want: "array[2]:{a,b}"},
		{name: "map sorted", arg: map[string]int{"b": 2, "a": 1}, want: "map[2]:{a=1,b=2}"},
		{name: "nested", arg: []any{keyed("x"), []int{1}}, want: "slice[2]:{keyed(x),slice[1]:{1}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey("m", tt.arg)
			if want := joinWithSeparator("m", tt.want); got != want {
				t.Errorf("SerializeKey() = %q, want %q", got, want)
			}
		})
	}
}

func TestDefaultKeySerializer_Stability(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	args := []any{map[string]any{"z": 1, "a": []string{"x"}}, criteria{Table: "item", Limit: 3}}

	first := serializer.SerializeKey("query[item]", args...)
	for i := 0; i < 50; i++ {
		if got := serializer.SerializeKey("query[item]", args...); got != first {
			t.Fatalf("key changed between calls: %q vs %q", first, got)
		}
	}
}
