package record

import (
	"bytes"
	"encoding/json"
)

// Fetched is a link to another record that the query may have expanded with FETCH.
// It is written back to the server as the bare id and read from either the id or
// the full record.
type Fetched[T Remote] struct {
	id    ID
	value *T
}

// Link builds an unexpanded link.
func Link[T Remote](id ID) Fetched[T] {
	return Fetched[T]{id: id}
}

// Expanded builds a link carrying the full record.
func Expanded[T Remote](v T) Fetched[T] {
	return Fetched[T]{id: v.RecordID(), value: &v}
}

func (f Fetched[T]) ID() ID {
	return f.id
}

// Value returns the expanded record, if the server sent one.
func (f Fetched[T]) Value() (T, bool) {
	if f.value == nil {
		var zero T
		return zero, false
	}
	return *f.value, true
}

func (f Fetched[T]) MarshalJSON() ([]byte, error) {
	return f.id.MarshalJSON()
}

func (f *Fetched[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = Expanded(v)
		return nil
	}
	var id ID
	if err := id.UnmarshalJSON(data); err != nil {
		return err
	}
	*f = Fetched[T]{id: id}
	return nil
}
