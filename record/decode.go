package record

import (
	"encoding/json"
	"fmt"
)

// DeserializationError reports a row that does not match the expected remote shape.
type DeserializationError struct {
	Target string
	Index  int
	Err    error
}

func (e *DeserializationError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("decode %s: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("decode row %d into %s: %v", e.Index, e.Target, e.Err)
}

func (e *DeserializationError) Unwrap() error {
	return e.Err
}

// Decode turns raw result rows into remote records, preserving order.
func Decode[R any](rows []json.RawMessage) ([]R, error) {
	out := make([]R, 0, len(rows))
	for i, row := range rows {
		var r R
		if err := json.Unmarshal(row, &r); err != nil {
			return nil, &DeserializationError{Target: typeName[R](), Index: i, Err: err}
		}
		out = append(out, r)
	}
	return out, nil
}

// DecodeOne decodes a single record such as the server's answer to a create.
func DecodeOne[R any](row json.RawMessage) (R, error) {
	var r R
	if err := json.Unmarshal(row, &r); err != nil {
		return r, &DeserializationError{Target: typeName[R](), Index: -1, Err: err}
	}
	return r, nil
}

func typeName[R any]() string {
	var zero R
	return fmt.Sprintf("%T", zero)
}
