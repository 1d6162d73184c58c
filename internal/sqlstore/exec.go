package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
	"github.com/goliatone/go-querystate/transport"
)

var _ transport.Transport = (*Store)(nil)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type storedRecord struct {
	id  record.ID
	doc map[string]any
}

// Query runs every statement in order and answers with one result set each.
func (s *Store) Query(ctx context.Context, q ql.Query, vars ql.Vars) ([]transport.ResultSet, error) {
	sets := make([]transport.ResultSet, len(q.Statements))
	for i, st := range q.Statements {
		docs, err := s.execute(ctx, st, vars)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, transport.Wrap("query", ctxErr)
		}
		if err != nil {
			glog.V(2).Infof("[sqlstore]statement %d failed: %v", i, err)
			sets[i] = transport.ResultSet{Status: transport.StatusErr, Detail: err.Error()}
			continue
		}
		rows, err := encodeRows(docs)
		if err != nil {
			return nil, transport.Wrap("query", err)
		}
		sets[i] = transport.ResultSet{Status: transport.StatusOK, Rows: rows}
	}
	return sets, nil
}

// Merge applies patch to one record and returns the merged record.
func (s *Store) Merge(ctx context.Context, id record.ID, patch any) (json.RawMessage, error) {
	doc, err := toDocument(patch)
	if err != nil {
		return nil, transport.Wrap("merge", err)
	}
	var after []map[string]any
	err = s.inTx(ctx, func(tx querier) error {
		_, after, err = s.update(ctx, tx, []target{{table: id.Table, key: id.Key}}, doc)
		return err
	})
	if err != nil {
		return nil, transport.Wrap("merge", err)
	}
	if len(after) == 0 {
		return nil, transport.Wrap("merge", fmt.Errorf("%w: %s", ErrNotFound, id))
	}
	return json.Marshal(after[0])
}

// Create inserts content into resource, a table name or a table:key address.
func (s *Store) Create(ctx context.Context, resource string, content any) (json.RawMessage, error) {
	t, err := targetFromValue(resource)
	if err != nil {
		return nil, transport.Wrap("create", err)
	}
	doc, err := toDocument(content)
	if err != nil {
		return nil, transport.Wrap("create", err)
	}
	created, err := s.create(ctx, s.db, t, doc)
	if err != nil {
		return nil, transport.Wrap("create", err)
	}
	return json.Marshal(created)
}

// Seed creates one record per document in table and returns their ids.
func (s *Store) Seed(ctx context.Context, table string, docs ...any) ([]record.ID, error) {
	ids := make([]record.ID, 0, len(docs))
	for _, d := range docs {
		doc, err := toDocument(d)
		if err != nil {
			return ids, err
		}
		t := target{table: table}
		if raw, ok := doc["id"].(string); ok && raw != "" {
			id, err := record.ParseID(raw)
			if err != nil {
				return ids, err
			}
			t = target{table: id.Table, key: id.Key}
		}
		created, err := s.create(ctx, s.db, t, doc)
		if err != nil {
			return ids, err
		}
		id, _ := record.ParseID(created["id"].(string))
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes a record. It is how tests make a record vanish behind a session's back.
func (s *Store) Delete(ctx context.Context, id record.ID) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM records WHERE tb = ? AND id = ?", id.Table, id.Key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) execute(ctx context.Context, st ql.Statement, vars ql.Vars) ([]map[string]any, error) {
	switch st := st.(type) {
	case *ql.SelectStatement:
		return s.selectRecords(ctx, s.db, st, vars)
	case *ql.UpdateStatement:
		return s.updateStatement(ctx, st, vars)
	case *ql.CreateStatement:
		return s.createStatement(ctx, st, vars)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupported, st)
	}
}

func (s *Store) selectRecords(ctx context.Context, q querier, st *ql.SelectStatement, vars ql.Vars) ([]map[string]any, error) {
	c := newCompiler(vars)
	query, err := c.compileSelect(st)
	if err != nil {
		return nil, err
	}
	records, err := scanRecords(q.QueryContext(ctx, query, c.args...))
	if err != nil {
		return nil, err
	}

	fields := make([]string, len(st.Fields))
	for i, f := range st.Fields {
		fields[i] = f.Path
	}

	docs := make([]map[string]any, len(records))
	for i, r := range records {
		for _, f := range st.Fetch {
			if err := s.expand(ctx, q, r.doc, f.Path); err != nil {
				return nil, err
			}
		}
		docs[i] = project(r.doc, fields)
	}
	return docs, nil
}

// expand replaces the record id (or ids) stored at path by the records themselves.
// Ids that do not resolve stay as they are.
func (s *Store) expand(ctx context.Context, q querier, doc map[string]any, path string) error {
	v, ok := lookupPath(doc, path)
	if !ok {
		return nil
	}
	resolve := func(v any) (any, error) {
		raw, ok := v.(string)
		if !ok {
			return v, nil
		}
		id, err := record.ParseID(raw)
		if err != nil {
			return v, nil
		}
		r, err := s.load(ctx, q, id)
		if errors.Is(err, ErrNotFound) {
			return v, nil
		}
		if err != nil {
			return nil, err
		}
		return r.doc, nil
	}

	switch v := v.(type) {
	case []any:
		out := make([]any, len(v))
		for i, el := range v {
			expanded, err := resolve(el)
			if err != nil {
				return err
			}
			out[i] = expanded
		}
		setPath(doc, path, out)
	default:
		expanded, err := resolve(v)
		if err != nil {
			return err
		}
		setPath(doc, path, expanded)
	}
	return nil
}

func (s *Store) load(ctx context.Context, q querier, id record.ID) (storedRecord, error) {
	var data string
	err := q.QueryRowContext(ctx, "SELECT data FROM records WHERE tb = ? AND id = ?", id.Table, id.Key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return storedRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return storedRecord{}, err
	}
	doc, err := decodeDocument([]byte(data))
	if err != nil {
		return storedRecord{}, err
	}
	return storedRecord{id: id, doc: doc}, nil
}

func (s *Store) updateStatement(ctx context.Context, st *ql.UpdateStatement, vars ql.Vars) ([]map[string]any, error) {
	if st.Return == ql.ReturnDiff {
		return nil, fmt.Errorf("%w: RETURN DIFF", ErrUnsupported)
	}
	c := newCompiler(vars)
	targets, err := c.targets(st.What)
	if err != nil {
		return nil, err
	}
	patch, err := c.document(st.Merge)
	if err != nil {
		return nil, err
	}

	var before, after []map[string]any
	err = s.inTx(ctx, func(tx querier) error {
		before, after, err = s.update(ctx, tx, targets, patch)
		return err
	})
	if err != nil {
		return nil, err
	}

	switch st.Return {
	case ql.ReturnNone:
		return nil, nil
	case ql.ReturnBefore:
		return before, nil
	default:
		return after, nil
	}
}

// update merges patch into every existing record addressed by targets. Missing records
// are skipped.
func (s *Store) update(ctx context.Context, q querier, targets []target, patch map[string]any) (before, after []map[string]any, err error) {
	c := newCompiler(nil)
	filter := c.targetFilter(targets)
	records, err := scanRecords(q.QueryContext(ctx, "SELECT tb, id, data FROM records WHERE "+filter+" ORDER BY seq ASC", c.args...))
	if err != nil {
		return nil, nil, err
	}

	// The id is not patchable.
	fields := make(map[string]any, len(patch))
	for k, v := range patch {
		if k != "id" {
			fields[k] = v
		}
	}
	patchJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("encode patch: %w", err)
	}

	for _, r := range records {
		var data string
		err := q.QueryRowContext(ctx,
			"UPDATE records SET data = json_set(json_patch(data, ?), '$.id', tb || ':' || id) WHERE tb = ? AND id = ? RETURNING data",
			string(patchJSON), r.id.Table, r.id.Key,
		).Scan(&data)
		if err != nil {
			return nil, nil, err
		}
		doc, err := decodeDocument([]byte(data))
		if err != nil {
			return nil, nil, err
		}
		before = append(before, r.doc)
		after = append(after, doc)
	}
	return before, after, nil
}

func (s *Store) createStatement(ctx context.Context, st *ql.CreateStatement, vars ql.Vars) ([]map[string]any, error) {
	if st.Return == ql.ReturnDiff {
		return nil, fmt.Errorf("%w: RETURN DIFF", ErrUnsupported)
	}
	c := newCompiler(vars)
	t, err := c.target(st.What)
	if err != nil {
		return nil, err
	}
	content, err := c.document(st.Content)
	if err != nil {
		return nil, err
	}
	created, err := s.create(ctx, s.db, t, content)
	if err != nil {
		return nil, err
	}
	switch st.Return {
	case ql.ReturnNone, ql.ReturnBefore:
		return nil, nil
	default:
		return []map[string]any{created}, nil
	}
}

// create inserts doc at t, generating a key when t is a whole table.
func (s *Store) create(ctx context.Context, q querier, t target, doc map[string]any) (map[string]any, error) {
	key := t.key
	if key == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, err
		}
		key = strings.ReplaceAll(id.String(), "-", "")
	}

	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	out["id"] = record.NewID(t.table, key).String()

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	_, err = q.ExecContext(ctx, "INSERT INTO records (tb, id, data) VALUES (?, ?, ?)", t.table, key, string(data))
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return nil, fmt.Errorf("%w: %s:%s", ErrRecordExists, t.table, key)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func scanRecords(rows *sql.Rows, err error) ([]storedRecord, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []storedRecord
	for rows.Next() {
		var tb, id, data string
		if err := rows.Scan(&tb, &id, &data); err != nil {
			return nil, err
		}
		doc, err := decodeDocument([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, storedRecord{id: record.NewID(tb, id), doc: doc})
	}
	return out, rows.Err()
}

func encodeRows(docs []map[string]any) ([]json.RawMessage, error) {
	rows := make([]json.RawMessage, len(docs))
	for i, d := range docs {
		data, err := json.Marshal(d)
		if err != nil {
			return nil, err
		}
		rows[i] = data
	}
	return rows, nil
}
