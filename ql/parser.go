package ql

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports malformed query text. Pos is a byte offset into the input.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at offset %d: %s", e.Pos, e.Msg)
}

// Parse parses one or more statements separated by semicolons.
func Parse(input string) (Query, error) {
	toks, err := lex(input)
	if err != nil {
		return Query{}, err
	}
	p := &parser{toks: toks}

	var q Query
	for {
		for p.acceptPunct(";") {
		}
		if p.peek().kind == tokEOF {
			return q, nil
		}
		st, err := p.statement()
		if err != nil {
			return Query{}, err
		}
		q.Statements = append(q.Statements, st)
		if !p.acceptPunct(";") && p.peek().kind != tokEOF {
			return Query{}, p.errorf("expected ; or end of input, found %s", p.peek().describe())
		}
	}
}

// ParseSelect parses text holding exactly one SELECT statement.
func ParseSelect(input string) (*SelectStatement, error) {
	q, err := Parse(input)
	if err != nil {
		return nil, err
	}
	if len(q.Statements) != 1 {
		return nil, &ParseError{Msg: fmt.Sprintf("expected one statement, found %d", len(q.Statements))}
	}
	sel, ok := q.Statements[0].(*SelectStatement)
	if !ok {
		return nil, &ParseError{Msg: "expected a SELECT statement"}
	}
	return sel, nil
}

// ParseExpr parses a standalone condition or value, e.g. "done = false".
func ParseExpr(input string) (Expr, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %s", p.peek().describe())
	}
	return e, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) peekAt(offset int) token {
	if p.i+offset >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.i+offset]
}

func (p *parser) advance() token {
	tok := p.toks[p.i]
	if tok.kind != tokEOF {
		p.i++
	}
	return tok
}

func (p *parser) errorf(format string, args ...any) error {
	return &ParseError{Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) isKeyword(kw string) bool {
	tok := p.peek()
	return tok.kind == tokKeyword && tok.text == kw
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectKeyword(kw string) error {
	if !p.acceptKeyword(kw) {
		return p.errorf("expected %s, found %s", kw, p.peek().describe())
	}
	return nil
}

func (p *parser) isPunct(s string) bool {
	tok := p.peek()
	return tok.kind == tokPunct && tok.text == s
}

func (p *parser) acceptPunct(s string) bool {
	if p.isPunct(s) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expectPunct(s string) error {
	if !p.acceptPunct(s) {
		return p.errorf("expected %q, found %s", s, p.peek().describe())
	}
	return nil
}

func (p *parser) statement() (Statement, error) {
	switch {
	case p.isKeyword("SELECT"):
		return p.selectStatement()
	case p.isKeyword("UPDATE"):
		return p.updateStatement()
	case p.isKeyword("CREATE"):
		return p.createStatement()
	}
	return nil, p.errorf("expected SELECT, UPDATE or CREATE, found %s", p.peek().describe())
}

func (p *parser) selectStatement() (*SelectStatement, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	st := &SelectStatement{}

	if !p.acceptPunct("*") {
		fields, err := p.identList()
		if err != nil {
			return nil, err
		}
		st.Fields = fields
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	what, err := p.targetList()
	if err != nil {
		return nil, err
	}
	st.What = what

	if p.acceptKeyword("WHERE") {
		if st.Where, err = p.expr(); err != nil {
			return nil, err
		}
	}

	if p.acceptKeyword("ORDER") {
		p.acceptKeyword("BY")
		for {
			field, err := p.fieldPath()
			if err != nil {
				return nil, err
			}
			order := Order{Field: field}
			if p.acceptKeyword("DESC") {
				order.Desc = true
			} else {
				p.acceptKeyword("ASC")
			}
			st.Order = append(st.Order, order)
			if !p.acceptPunct(",") {
				break
			}
		}
	}

	if p.acceptKeyword("LIMIT") {
		p.acceptKeyword("BY")
		tok := p.peek()
		n, err := strconv.Atoi(tok.text)
		if tok.kind != tokNumber || err != nil || n <= 0 {
			return nil, p.errorf("LIMIT expects a positive integer, found %s", tok.describe())
		}
		p.advance()
		st.Limit = n
	}

	if p.acceptKeyword("FETCH") {
		fetch, err := p.identList()
		if err != nil {
			return nil, err
		}
		st.Fetch = fetch
	}

	return st, nil
}

func (p *parser) updateStatement() (*UpdateStatement, error) {
	if err := p.expectKeyword("UPDATE"); err != nil {
		return nil, err
	}
	what, err := p.targetList()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("MERGE"); err != nil {
		return nil, err
	}
	data, err := p.document()
	if err != nil {
		return nil, err
	}
	ret, err := p.returnClause()
	if err != nil {
		return nil, err
	}
	return &UpdateStatement{What: what, Merge: data, Return: ret}, nil
}

func (p *parser) createStatement() (*CreateStatement, error) {
	if err := p.expectKeyword("CREATE"); err != nil {
		return nil, err
	}
	what, err := p.target()
	if err != nil {
		return nil, err
	}
	if err := p.expectKeyword("CONTENT"); err != nil {
		return nil, err
	}
	data, err := p.document()
	if err != nil {
		return nil, err
	}
	ret, err := p.returnClause()
	if err != nil {
		return nil, err
	}
	return &CreateStatement{What: what, Content: data, Return: ret}, nil
}

func (p *parser) returnClause() (Return, error) {
	if !p.acceptKeyword("RETURN") {
		return ReturnDefault, nil
	}
	switch {
	case p.acceptKeyword("NONE"):
		return ReturnNone, nil
	case p.acceptKeyword("BEFORE"):
		return ReturnBefore, nil
	case p.acceptKeyword("AFTER"):
		return ReturnAfter, nil
	case p.acceptKeyword("DIFF"):
		return ReturnDiff, nil
	}
	return ReturnDefault, p.errorf("expected NONE, BEFORE, AFTER or DIFF, found %s", p.peek().describe())
}

// document is the payload of MERGE and CONTENT: an object literal or a parameter.
func (p *parser) document() (Expr, error) {
	tok := p.peek()
	switch {
	case tok.kind == tokParam:
		p.advance()
		return Param{Name: tok.text}, nil
	case p.isPunct("{"):
		return p.object()
	}
	return nil, p.errorf("expected an object or a parameter, found %s", tok.describe())
}

func (p *parser) targetList() ([]Expr, error) {
	var out []Expr
	for {
		t, err := p.target()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if !p.acceptPunct(",") {
			return out, nil
		}
	}
}

func (p *parser) target() (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokParam:
		p.advance()
		return Param{Name: tok.text}, nil
	case tokIdent:
		p.advance()
		if p.acceptPunct(":") {
			return p.thingKey(tok.text)
		}
		return Table{Name: tok.text}, nil
	}
	return nil, p.errorf("expected a table, record or parameter, found %s", tok.describe())
}

func (p *parser) thingKey(table string) (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokIdent, tokNumber, tokKey:
		p.advance()
		return Thing{Table: table, Key: tok.text}, nil
	}
	return nil, p.errorf("expected a record key after %s:, found %s", table, tok.describe())
}

func (p *parser) identList() ([]Ident, error) {
	var out []Ident
	for {
		id, err := p.fieldPath()
		if err != nil {
			return nil, err
		}
		out = append(out, id)
		if !p.acceptPunct(",") {
			return out, nil
		}
	}
}

func (p *parser) fieldPath() (Ident, error) {
	var parts []string
	for {
		tok := p.peek()
		if tok.kind != tokIdent {
			return Ident{}, p.errorf("expected a field name, found %s", tok.describe())
		}
		p.advance()
		parts = append(parts, tok.text)
		if !p.acceptPunct(".") {
			return Ident{Path: strings.Join(parts, ".")}, nil
		}
	}
}

func (p *parser) expr() (Expr, error) {
	left, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		right, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: OpOr, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) andExpr() (Expr, error) {
	left, err := p.comparison()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		right, err := p.comparison()
		if err != nil {
			return nil, err
		}
		left = Binary{Op: OpAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) comparison() (Expr, error) {
	left, err := p.operand()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if tok.kind != tokOp {
		return left, nil
	}
	p.advance()
	right, err := p.operand()
	if err != nil {
		return nil, err
	}
	return Binary{Op: Op(tok.text), Left: left, Right: right}, nil
}

func (p *parser) operand() (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokString:
		p.advance()
		return Literal{Value: tok.text}, nil
	case tokNumber:
		p.advance()
		return numberLiteral(tok)
	case tokParam:
		p.advance()
		return Param{Name: tok.text}, nil
	case tokIdent:
		if next := p.peekAt(1); next.kind == tokPunct && next.text == ":" {
			p.advance()
			p.advance()
			return p.thingKey(tok.text)
		}
		return p.fieldPath()
	case tokKeyword:
		switch tok.text {
		case "TRUE":
			p.advance()
			return Literal{Value: true}, nil
		case "FALSE":
			p.advance()
			return Literal{Value: false}, nil
		case "NONE", "NULL":
			p.advance()
			return Literal{}, nil
		}
	case tokPunct:
		switch tok.text {
		case "(":
			p.advance()
			e, err := p.expr()
			if err != nil {
				return nil, err
			}
			if err := p.expectPunct(")"); err != nil {
				return nil, err
			}
			return e, nil
		case "{":
			return p.object()
		}
	}
	return nil, p.errorf("expected a value, found %s", tok.describe())
}

func (p *parser) object() (Expr, error) {
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	obj := Object{}
	for !p.isPunct("}") {
		tok := p.peek()
		var key string
		switch tok.kind {
		case tokIdent, tokString:
			key = tok.text
		case tokKeyword:
			key = tok.raw
		default:
			return nil, p.errorf("expected an object key, found %s", tok.describe())
		}
		p.advance()
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		value, err := p.expr()
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, Field{Key: key, Value: value})
		if !p.acceptPunct(",") {
			break
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	return obj, nil
}

func numberLiteral(tok token) (Expr, error) {
	if strings.Contains(tok.text, ".") {
		f, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.text)}
		}
		return Literal{Value: f}, nil
	}
	n, err := strconv.ParseInt(tok.text, 10, 64)
	if err != nil {
		return nil, &ParseError{Pos: tok.pos, Msg: fmt.Sprintf("invalid number %q", tok.text)}
	}
	return Literal{Value: n}, nil
}
