package lax

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokName
	tokOp
)

type token struct {
	kind tokenKind
	text string
	val  any // parsed literal for numbers and strings
	pos  int
}

// operators, longest first so "**" wins over "*".
var operators = []string{
	"**", "//", "==", "!=", "<=", ">=",
	"+", "-", "*", "/", "%", "<", ">", "=",
	"(", ")", "[", "]", "{", "}", ",", ".", ":",
}

// lexExpr splits an expression into tokens.
func lexExpr(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size

		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokName, text: src[start:i], pos: start})

		case r >= '0' && r <= '9', r == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			tok, n, err := lexNumber(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n

		case r == '\'' || r == '"':
			tok, n, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i += n

		default:
			matched := false
			for _, op := range operators {
				if strings.HasPrefix(src[i:], op) {
					toks = append(toks, token{kind: tokOp, text: op, pos: i})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, evalErrorf("invalid character %q at position %d", r, i)
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func lexNumber(src string, start int) (token, int, error) {
	i := start
	isFloat := false
	digits := func() {
		for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '_') {
			i++
		}
	}
	digits()
	if i < len(src) && src[i] == '.' && (i+1 >= len(src) || src[i+1] != '.') {
		isFloat = true
		i++
		digits()
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '+' || src[j] == '-') {
			j++
		}
		if j < len(src) && src[j] >= '0' && src[j] <= '9' {
			isFloat = true
			i = j
			digits()
		}
	}
	text := src[start:i]
	clean := strings.ReplaceAll(text, "_", "")
	if isFloat {
		f, err := strconv.ParseFloat(clean, 64)
		if err != nil {
			return token{}, 0, evalErrorf("invalid number %q", text)
		}
		return token{kind: tokNumber, text: text, val: f, pos: start}, i - start, nil
	}
	n, err := strconv.ParseInt(clean, 10, 64)
	if err != nil {
		return token{}, 0, evalErrorf("invalid number %q", text)
	}
	return token{kind: tokNumber, text: text, val: n, pos: start}, i - start, nil
}

func lexString(src string, start int) (token, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			i++
			return token{kind: tokString, text: src[start:i], val: b.String(), pos: start}, i - start, nil
		case c == '\\' && i+1 < len(src):
			i++
			switch src[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(src[i])
			default:
				b.WriteByte('\\')
				b.WriteByte(src[i])
			}
			i++
		default:
			b.WriteByte(c)
			i++
		}
	}
	return token{}, 0, evalErrorf("unterminated string literal at position %d", start)
}
