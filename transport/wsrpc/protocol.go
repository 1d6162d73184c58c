package wsrpc

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-querystate/transport"
)

// Method names understood by the record server.
const (
	methodSignIn = "signin"
	methodQuery  = "query"
	methodMerge  = "merge"
	methodCreate = "create"
)

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type response struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is an error object returned by the server for a whole request.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// statementResult is the server's per-statement answer to a query request.
type statementResult struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Detail string          `json:"detail,omitempty"`
	Time   string          `json:"time,omitempty"`
}

func decodeResultSets(raw json.RawMessage) ([]transport.ResultSet, error) {
	var results []statementResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("decode query result: %w", err)
	}

	sets := make([]transport.ResultSet, len(results))
	for i, r := range results {
		if r.Status != transport.StatusOK {
			detail := r.Detail
			if detail == "" {
				var msg string
				if json.Unmarshal(r.Result, &msg) == nil {
					detail = msg
				} else {
					detail = string(r.Result)
				}
			}
			sets[i] = transport.ResultSet{Status: transport.StatusErr, Detail: detail}
			continue
		}
		rows, err := splitRows(r.Result)
		if err != nil {
			return nil, fmt.Errorf("decode statement %d: %w", i, err)
		}
		sets[i] = transport.ResultSet{Status: transport.StatusOK, Rows: rows}
	}
	return sets, nil
}

// splitRows turns a statement result into rows: an array yields its elements, null
// yields nothing and any other value is a single row.
func splitRows(raw json.RawMessage) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] != '[' {
		return []json.RawMessage{raw}, nil
	}
	var rows []json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// singleRecord unwraps the one-element array some servers return for record writes.
func singleRecord(raw json.RawMessage) (json.RawMessage, error) {
	rows, err := splitRows(raw)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, fmt.Errorf("empty write result")
	case 1:
		return rows[0], nil
	default:
		return nil, fmt.Errorf("write returned %d records", len(rows))
	}
}
