package ql

// Binding assigns a value to a query parameter.
type Binding struct {
	Name  string
	Value any
}

// Vars is an ordered list of parameter bindings. Later bindings win over earlier
// ones with the same name.
type Vars []Binding

// With returns a copy of v with one more binding appended.
func (v Vars) With(name string, value any) Vars {
	out := make(Vars, len(v), len(v)+1)
	copy(out, v)
	return append(out, Binding{Name: name, Value: value})
}

// Lookup returns the effective value bound to name.
func (v Vars) Lookup(name string) (any, bool) {
	for i := len(v) - 1; i >= 0; i-- {
		if v[i].Name == name {
			return v[i].Value, true
		}
	}
	return nil, false
}

// Map flattens the bindings into the object form the wire protocol expects.
func (v Vars) Map() map[string]any {
	out := make(map[string]any, len(v))
	for _, b := range v {
		out[b.Name] = b.Value
	}
	return out
}
