package selector

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-querystate/ql"
)

// Param is one named query argument.
type Param struct {
	Name  string
	Value string
}

// Parameters is an ordered list of named arguments. Order is significant: two lists with
// the same pairs in a different order address different cache entries.
type Parameters struct {
	list []Param
}

// NewParameters builds Parameters from alternating name, value strings. A trailing name
// without a value binds the empty string.
func NewParameters(pairs ...string) Parameters {
	var p Parameters
	for i := 0; i < len(pairs); i += 2 {
		value := ""
		if i+1 < len(pairs) {
			value = pairs[i+1]
		}
		p.list = append(p.list, Param{Name: pairs[i], Value: value})
	}
	return p
}

// With returns a copy with one more pair.
func (p Parameters) With(name, value string) Parameters {
	list := make([]Param, len(p.list), len(p.list)+1)
	copy(list, p.list)
	return Parameters{list: append(list, Param{Name: name, Value: value})}
}

func (p Parameters) Len() int {
	return len(p.list)
}

// All returns a copy of the pairs in order.
func (p Parameters) All() []Param {
	return append([]Param(nil), p.list...)
}

// Vars converts the parameters into query bindings, preserving order.
func (p Parameters) Vars() ql.Vars {
	vars := make(ql.Vars, len(p.list))
	for i, kv := range p.list {
		vars[i] = ql.Binding{Name: kv.Name, Value: kv.Value}
	}
	return vars
}

// CacheKey implements the key serializer's Keyer contract. Names and values are quoted
// so that no two distinct lists share a key.
func (p Parameters) CacheKey() string {
	parts := make([]string, len(p.list))
	for i, kv := range p.list {
		parts[i] = strconv.Quote(kv.Name) + "=" + strconv.Quote(kv.Value)
	}
	return "params(" + strings.Join(parts, ",") + ")"
}

func (p Parameters) Equal(other Parameters) bool {
	if len(p.list) != len(other.list) {
		return false
	}
	for i := range p.list {
		if p.list[i] != other.list[i] {
			return false
		}
	}
	return true
}
