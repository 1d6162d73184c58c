package sqlstore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-querystate/ql"
	"github.com/goliatone/go-querystate/record"
)

// target is a resolved FROM/UPDATE/CREATE address: a whole table, or one record when key is set.
type target struct {
	table string
	key   string
}

func (t target) isRecord() bool {
	return t.key != ""
}

// compiler turns ql expressions into SQL over the records table. Values are always bound,
// never interpolated.
type compiler struct {
	vars ql.Vars
	args []any
}

func newCompiler(vars ql.Vars) *compiler {
	return &compiler{vars: vars}
}

func (c *compiler) bind(v any) string {
	c.args = append(c.args, v)
	return "?"
}

// compileSelect builds the SQL for a SELECT. Field projection and FETCH happen on the
// decoded rows.
func (c *compiler) compileSelect(st *ql.SelectStatement) (string, error) {
	targets, err := c.targets(st.What)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("SELECT tb, id, data FROM records WHERE ")
	b.WriteString(c.targetFilter(targets))

	if st.Where != nil {
		cond, err := c.condition(st.Where)
		if err != nil {
			return "", err
		}
		b.WriteString(" AND ")
		b.WriteString(cond)
	}

	b.WriteString(" ORDER BY ")
	for _, o := range st.Order {
		b.WriteString(c.field(o.Field))
		if o.Desc {
			b.WriteString(" DESC, ")
		} else {
			b.WriteString(" ASC, ")
		}
	}
	b.WriteString("seq ASC")

	if st.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(c.bind(st.Limit))
	}
	return b.String(), nil
}

func (c *compiler) targetFilter(targets []target) string {
	parts := make([]string, len(targets))
	for i, t := range targets {
		if t.isRecord() {
			parts[i] = "(tb = " + c.bind(t.table) + " AND id = " + c.bind(t.key) + ")"
		} else {
			parts[i] = "tb = " + c.bind(t.table)
		}
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func (c *compiler) targets(exprs []ql.Expr) ([]target, error) {
	if len(exprs) == 0 {
		return nil, fmt.Errorf("%w: no target", ErrUnsupported)
	}
	out := make([]target, 0, len(exprs))
	for _, e := range exprs {
		t, err := c.target(e)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *compiler) target(e ql.Expr) (target, error) {
	switch e := e.(type) {
	case ql.Table:
		return target{table: e.Name}, nil
	case ql.Thing:
		return target{table: e.Table, key: e.Key}, nil
	case ql.Param:
		v, ok := c.vars.Lookup(e.Name)
		if !ok {
			return target{}, fmt.Errorf("parameter $%s is not bound", e.Name)
		}
		return targetFromValue(v)
	default:
		return target{}, fmt.Errorf("%w: cannot address %s", ErrUnsupported, e)
	}
}

func targetFromValue(v any) (target, error) {
	switch v := v.(type) {
	case record.ID:
		return target{table: v.Table, key: v.Key}, nil
	case ql.Thing:
		return target{table: v.Table, key: v.Key}, nil
	case string:
		if !strings.Contains(v, ":") {
			return target{table: v}, nil
		}
		id, err := record.ParseID(v)
		if err != nil {
			return target{}, err
		}
		return target{table: id.Table, key: id.Key}, nil
	default:
		return target{}, fmt.Errorf("%w: cannot address %T", ErrUnsupported, v)
	}
}

// condition compiles a WHERE expression.
func (c *compiler) condition(e ql.Expr) (string, error) {
	bin, ok := e.(ql.Binary)
	if !ok {
		// A bare operand is true when it is truthy.
		operand, err := c.operand(e)
		if err != nil {
			return "", err
		}
		return "(" + operand + ")", nil
	}

	switch bin.Op {
	case ql.OpAnd, ql.OpOr:
		left, err := c.condition(bin.Left)
		if err != nil {
			return "", err
		}
		right, err := c.condition(bin.Right)
		if err != nil {
			return "", err
		}
		return "(" + left + " " + string(bin.Op) + " " + right + ")", nil
	}

	if c.isNone(bin.Right) && (bin.Op == ql.OpEq || bin.Op == ql.OpNe) {
		left, err := c.operand(bin.Left)
		if err != nil {
			return "", err
		}
		if bin.Op == ql.OpEq {
			return left + " IS NULL", nil
		}
		return left + " IS NOT NULL", nil
	}

	left, err := c.operand(bin.Left)
	if err != nil {
		return "", err
	}
	right, err := c.operand(bin.Right)
	if err != nil {
		return "", err
	}
	return left + " " + string(bin.Op) + " " + right, nil
}

func (c *compiler) isNone(e ql.Expr) bool {
	switch e := e.(type) {
	case ql.Literal:
		return e.Value == nil
	case ql.Param:
		v, _ := c.vars.Lookup(e.Name)
		return v == nil
	}
	return false
}

func (c *compiler) operand(e ql.Expr) (string, error) {
	switch e := e.(type) {
	case ql.Ident:
		return c.field(e), nil
	case ql.Literal:
		return c.value(e.Value)
	case ql.Param:
		v, _ := c.vars.Lookup(e.Name)
		return c.value(v)
	case ql.Thing:
		return c.bind(e.Table + ":" + e.Key), nil
	case ql.Binary:
		cond, err := c.condition(e)
		if err != nil {
			return "", err
		}
		return cond, nil
	default:
		return "", fmt.Errorf("%w: cannot compare %s", ErrUnsupported, e)
	}
}

func (c *compiler) field(f ql.Ident) string {
	if f.Path == "id" {
		return "(tb || ':' || id)"
	}
	return "json_extract(data, " + c.bind("$."+f.Path) + ")"
}

func (c *compiler) value(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case record.ID:
		return c.bind(v.String()), nil
	case ql.Thing:
		return c.bind(v.Table + ":" + v.Key), nil
	case string, bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return c.bind(v), nil
	case json.Number:
		return c.bind(v.String()), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("bind %T: %w", v, err)
		}
		return c.bind(string(data)), nil
	}
}

// document resolves a MERGE or CONTENT expression to a JSON object.
func (c *compiler) document(e ql.Expr) (map[string]any, error) {
	switch e := e.(type) {
	case ql.Object:
		doc := make(map[string]any, len(e.Fields))
		for _, f := range e.Fields {
			v, err := c.literalValue(f.Value)
			if err != nil {
				return nil, err
			}
			doc[f.Key] = v
		}
		return doc, nil
	case ql.Param:
		v, ok := c.vars.Lookup(e.Name)
		if !ok {
			return nil, fmt.Errorf("parameter $%s is not bound", e.Name)
		}
		return toDocument(v)
	default:
		return nil, fmt.Errorf("%w: %s is not a document", ErrUnsupported, e)
	}
}

func (c *compiler) literalValue(e ql.Expr) (any, error) {
	switch e := e.(type) {
	case ql.Literal:
		return e.Value, nil
	case ql.Param:
		v, _ := c.vars.Lookup(e.Name)
		return v, nil
	case ql.Thing:
		return e.Table + ":" + e.Key, nil
	case ql.Object:
		return c.document(e)
	default:
		return nil, fmt.Errorf("%w: %s is not a value", ErrUnsupported, e)
	}
}

// toDocument normalizes any JSON-encodable value into an object.
func toDocument(v any) (map[string]any, error) {
	if doc, ok := v.(map[string]any); ok {
		return doc, nil
	}
	var data []byte
	switch v := v.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		var err error
		if data, err = json.Marshal(v); err != nil {
			return nil, fmt.Errorf("encode document: %w", err)
		}
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document must be an object", ErrUnsupported)
	}
	return doc, nil
}
