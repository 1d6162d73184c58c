package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/goliatone/go-querystate/ql"
)

// ErrInvalidID is returned when text or JSON does not describe a table:key pair.
var ErrInvalidID = errors.New("invalid record id")

// ID identifies a record as table plus key. It is comparable and usable as a map key.
type ID struct {
	Table string
	Key   string
}

// NewID builds an ID from its parts.
func NewID(table, key string) ID {
	return ID{Table: table, Key: key}
}

// ParseID accepts "table:key" and "table:⟨key⟩". Anything other than exactly two
// non-empty parts is rejected.
func ParseID(s string) (ID, error) {
	table, key, ok := strings.Cut(s, ":")
	if !ok || table == "" || key == "" {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if strings.HasPrefix(key, "⟨") && strings.HasSuffix(key, "⟩") {
		key = strings.TrimSuffix(strings.TrimPrefix(key, "⟨"), "⟩")
		key = strings.ReplaceAll(key, `\⟩`, "⟩")
	} else if strings.Contains(key, ":") {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	if key == "" {
		return ID{}, fmt.Errorf("%w: %q", ErrInvalidID, s)
	}
	return ID{Table: table, Key: key}, nil
}

// MustParseID is ParseID for literals known to be valid.
func MustParseID(s string) ID {
	id, err := ParseID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String renders "table:key", bracketing keys that ParseID could not read back bare.
func (id ID) String() string {
	if strings.ContainsAny(id.Key, ":⟨⟩") {
		return id.Table + ":⟨" + strings.ReplaceAll(id.Key, "⟩", `\⟩`) + "⟩"
	}
	return id.Table + ":" + id.Key
}

func (id ID) IsZero() bool {
	return id.Table == "" && id.Key == ""
}

// Thing returns the query-language form of the id.
func (id ID) Thing() ql.Thing {
	return ql.Thing{Table: id.Table, Key: id.Key}
}

// MarshalJSON writes the "table:key" form. The zero ID is null.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(id.String())
}

// UnmarshalJSON reads "table:key" or the structured {"tb": ..., "id": ...} form.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*id = ID{}
		return nil

	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := ParseID(s)
		if err != nil {
			return err
		}
		*id = parsed
		return nil

	case len(data) > 0 && data[0] == '{':
		var raw struct {
			Tb *string          `json:"tb"`
			ID *json.RawMessage `json:"id"`
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidID, err)
		}
		if raw.Tb == nil || *raw.Tb == "" {
			return fmt.Errorf("%w: missing field tb", ErrInvalidID)
		}
		if raw.ID == nil {
			return fmt.Errorf("%w: missing field id", ErrInvalidID)
		}
		key, err := keyText(*raw.ID)
		if err != nil {
			return err
		}
		*id = ID{Table: *raw.Tb, Key: key}
		return nil
	}
	return fmt.Errorf("%w: expected a string or an object, got %s", ErrInvalidID, data)
}

// keyText accepts string and numeric keys.
func keyText(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return "", fmt.Errorf("%w: empty key", ErrInvalidID)
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("%w: unsupported key %s", ErrInvalidID, raw)
}
