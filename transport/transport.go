package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
)

// ErrMissingResultSet is returned when a response has fewer result sets than expected.
var ErrMissingResultSet = errors.New("missing result set")

// Transport is the connection to the record server. One Transport is shared by every
// query and write of a session; implementations must be safe for concurrent use.
type Transport interface {
	Connect(ctx context.Context, url string) error
	SignIn(ctx context.Context, creds Credentials) (token string, err error)
	Query(ctx context.Context, q ql.Query, vars ql.Vars) ([]ResultSet, error)
	Merge(ctx context.Context, id record.ID, patch any) (json.RawMessage, error)
	Create(ctx context.Context, resource string, content any) (json.RawMessage, error)
}

// Credentials are the sign-in parameters of a database user.
type Credentials struct {
	Namespace string `json:"NS,omitempty"`
	Database  string `json:"DB,omitempty"`
	Username  string `json:"user"`
	Password  string `json:"pass"`
}

// Status values of a result set.
const (
	StatusOK  = "OK"
	StatusErr = "ERR"
)

// ResultSet is the server's answer to one statement.
type ResultSet struct {
	Status string
	Rows   []json.RawMessage
	Detail string
}

func (rs ResultSet) OK() bool {
	return rs.Status == StatusOK
}

// Error wraps every failure that happens between sending a request and getting a usable
// response: connection problems, server errors and malformed frames.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *Error for op unless it already is one. Nil stays nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var terr *Error
	if errors.As(err, &terr) {
		return err
	}
	return &Error{Op: op, Err: err}
}

// IsTransportError reports whether err is, or wraps, a *Error.
func IsTransportError(err error) bool {
	var terr *Error
	return errors.As(err, &terr)
}

// Take returns the index-th result set, failing if it is missing or reports an error.
func Take(sets []ResultSet, index int) (ResultSet, error) {
	if index < 0 || index >= len(sets) {
		return ResultSet{}, &Error{Op: "query", Err: fmt.Errorf("%w: want index %d, got %d sets", ErrMissingResultSet, index, len(sets))}
	}
	rs := sets[index]
	if !rs.OK() {
		return ResultSet{}, &Error{Op: "query", Err: fmt.Errorf("statement %d: %s", index, rs.Detail)}
	}
	return rs, nil
}

// Check returns the first failing result set as an error.
func Check(sets []ResultSet) error {
	for i := range sets {
		if _, err := Take(sets, i); err != nil {
			return err
		}
	}
	return nil
}
