package lax

import "strings"

// resultName is the sentinel a multi-line condition assigns its outcome to.
const resultName = "__result__"

// deniedNames are identifiers an expression may never mention, even as a
// plain variable. They are compared lower-cased with surrounding
// underscores removed, so "__import__" and "Eval" are both caught.
var deniedNames = map[string]struct{}{
	"import": {}, "open": {}, "exec": {}, "eval": {}, "system": {},
	"subprocess": {}, "getattr": {}, "setattr": {}, "delattr": {},
	"compile": {}, "globals": {}, "locals": {}, "vars": {}, "dir": {},
	"help": {}, "reload": {}, "input": {}, "file": {}, "execfile": {},
	"exit": {}, "quit": {},
}

// screenTokens rejects token streams naming a denied identifier or any
// double-underscore name other than the result sentinel.
func screenTokens(expr string, toks []token) error {
	for _, t := range toks {
		if t.kind != tokName {
			continue
		}
		if t.text == resultName {
			continue
		}
		if strings.HasPrefix(t.text, "__") {
			return &ScreenError{Expr: expr, Ident: t.text}
		}
		if _, denied := deniedNames[strings.Trim(strings.ToLower(t.text), "_")]; denied {
			return &ScreenError{Expr: expr, Ident: t.text}
		}
	}
	return nil
}

// screen lexes expr and runs the identifier screen over it. Text that does
// not lex is reported as an evaluation error.
func screen(expr string) error {
	toks, err := lexExpr(expr)
	if err != nil {
		return err
	}
	return screenTokens(expr, toks)
}
