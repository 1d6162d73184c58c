package ql

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokKeyword
	tokNumber
	tokString
	tokParam
	tokKey
	tokOp
	tokPunct
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokKeyword:
		return "keyword"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokParam:
		return "parameter"
	case tokKey:
		return "record key"
	case tokOp:
		return "operator"
	default:
		return "punctuation"
	}
}

// token keeps the raw source text next to the normalized one so keywords can still be
// used as object keys with their original case.
type token struct {
	kind tokenKind
	text string
	raw  string
	pos  int
}

func (t token) describe() string {
	if t.kind == tokEOF {
		return t.kind.String()
	}
	return fmt.Sprintf("%s %q", t.kind, t.raw)
}

var keywords = map[string]bool{
	"SELECT":  true,
	"FROM":    true,
	"WHERE":   true,
	"AND":     true,
	"OR":      true,
	"ORDER":   true,
	"BY":      true,
	"ASC":     true,
	"DESC":    true,
	"LIMIT":   true,
	"FETCH":   true,
	"UPDATE":  true,
	"MERGE":   true,
	"CREATE":  true,
	"CONTENT": true,
	"RETURN":  true,
	"NONE":    true,
	"NULL":    true,
	"BEFORE":  true,
	"AFTER":   true,
	"DIFF":    true,
	"TRUE":    true,
	"FALSE":   true,
}

type lexer struct {
	input string
	pos   int
}

func lex(input string) ([]token, error) {
	l := &lexer{input: input}
	var toks []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.kind == tokEOF {
			return toks, nil
		}
	}
}

func (l *lexer) peekRune(offset int) rune {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.pos+offset:])
	return r
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			break
		}
		l.pos += size
	}
	start := l.pos
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: start}, nil
	}

	r, size := utf8.DecodeRuneInString(l.input[l.pos:])
	switch {
	case isLetter(r) || r == '_':
		word := l.readWhile(func(r rune) bool { return isLetter(r) || isDigit(r) || r == '_' })
		upper := strings.ToUpper(word)
		if keywords[upper] {
			return token{kind: tokKeyword, text: upper, raw: word, pos: start}, nil
		}
		return token{kind: tokIdent, text: word, raw: word, pos: start}, nil

	case isDigit(r) || (r == '-' && isDigit(l.peekRune(1))):
		l.pos += size
		l.readWhile(isDigit)
		if l.peekRune(0) == '.' && isDigit(l.peekRune(1)) {
			l.pos++
			l.readWhile(isDigit)
		}
		text := l.input[start:l.pos]
		return token{kind: tokNumber, text: text, raw: text, pos: start}, nil

	case r == '\'' || r == '"':
		return l.readString(r)

	case r == '$':
		l.pos += size
		name := l.readWhile(func(r rune) bool { return isLetter(r) || isDigit(r) || r == '_' })
		if name == "" {
			return token{}, &ParseError{Pos: start, Msg: "expected parameter name after $"}
		}
		return token{kind: tokParam, text: name, raw: "$" + name, pos: start}, nil

	case r == '⟨':
		return l.readKey()

	case r == '=':
		l.pos += size
		return token{kind: tokOp, text: "=", raw: "=", pos: start}, nil

	case r == '!' || r == '<' || r == '>':
		l.pos += size
		op := string(r)
		if l.peekRune(0) == '=' {
			l.pos++
			op += "="
		}
		if op == "!" {
			return token{}, &ParseError{Pos: start, Msg: "expected = after !"}
		}
		return token{kind: tokOp, text: op, raw: op, pos: start}, nil

	case strings.ContainsRune(",;(){}:*.", r):
		l.pos += size
		return token{kind: tokPunct, text: string(r), raw: string(r), pos: start}, nil
	}

	return token{}, &ParseError{Pos: start, Msg: fmt.Sprintf("unexpected character %q", r)}
}

func (l *lexer) readWhile(pred func(rune) bool) string {
	start := l.pos
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		if !pred(r) {
			break
		}
		l.pos += size
	}
	return l.input[start:l.pos]
}

func (l *lexer) readString(delim rune) (token, error) {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		l.pos += size
		switch r {
		case delim:
			return token{kind: tokString, text: b.String(), raw: l.input[start:l.pos], pos: start}, nil
		case '\\':
			if l.pos >= len(l.input) {
				return token{}, &ParseError{Pos: start, Msg: "unterminated string"}
			}
			esc, escSize := utf8.DecodeRuneInString(l.input[l.pos:])
			l.pos += escSize
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			default:
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(r)
		}
	}
	return token{}, &ParseError{Pos: start, Msg: "unterminated string"}
}

func (l *lexer) readKey() (token, error) {
	start := l.pos
	l.pos += utf8.RuneLen('⟨')
	var b strings.Builder
	for l.pos < len(l.input) {
		r, size := utf8.DecodeRuneInString(l.input[l.pos:])
		l.pos += size
		switch r {
		case '⟩':
			return token{kind: tokKey, text: b.String(), raw: l.input[start:l.pos], pos: start}, nil
		case '\\':
			if l.peekRune(0) == '⟩' {
				b.WriteRune('⟩')
				l.pos += utf8.RuneLen('⟩')
				continue
			}
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return token{}, &ParseError{Pos: start, Msg: "unterminated record key"}
}
