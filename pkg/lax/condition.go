package lax

import (
	"regexp"
	"strings"
)

// Condition is the outcome of an if or elif test. Bindings holds the names a
// multi-line condition assigned; the renderer merges them into the context
// the block was entered with.
type Condition struct {
	Truth    bool
	Bindings map[string]any
}

var loopFieldPattern = regexp.MustCompile(`^(not\s+)?loop\.(\w+)$`)

// evaluateCondition decides an if test. It never fails: anything that cannot
// be evaluated is false with no bindings.
func evaluateCondition(cond string, ctx Context, reg *Registry) Condition {
	cond = strings.TrimSpace(cond)
	if cond == "" {
		return Condition{}
	}
	if strings.Contains(cond, "\n") {
		return evaluateStatements(cond, ctx, reg)
	}
	if screen(cond) != nil {
		return Condition{}
	}

	if m := loopFieldPattern.FindStringSubmatch(cond); m != nil {
		v, _ := member(ctx["loop"], m[2])
		return Condition{Truth: truthy(v) != (m[1] != "")}
	}

	if rest, ok := strings.CutPrefix(cond, "="); ok {
		v, err := evaluate(rest, ctx, reg)
		return Condition{Truth: err == nil && truthy(v)}
	}

	if isDottedPath(cond) {
		v, ok := lookupPath(ctx, cond)
		return Condition{Truth: ok && truthy(v)}
	}

	if v, ok := ctx[cond]; ok {
		return Condition{Truth: truthy(v)}
	}

	v, err := evaluate(cond, ctx, reg)
	return Condition{Truth: err == nil && truthy(v)}
}

// isDottedPath reports whether s is two or more identifiers joined by dots.
// List positions such as items.0 are accepted after the first segment.
func isDottedPath(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || !isIdentifier(parts[0]) {
		return false
	}
	for _, p := range parts[1:] {
		if !isIdentifier(p) && !isDigits(p) {
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// evaluateStatements runs a multi-line condition: one "name = expr" per
// line, with blank lines and # comments skipped. The condition holds when
// the last value assigned to __result__ is truthy. Every other name the
// statements create or change is returned as a binding.
func evaluateStatements(body string, ctx Context, reg *Registry) Condition {
	work := ctx.clone()
	assigned := false
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, rhs, ok := splitAssignment(line)
		if !ok {
			return Condition{}
		}
		v, err := evaluate(rhs, work, reg)
		if err != nil {
			return Condition{}
		}
		work[name] = v
		if name == resultName {
			assigned = true
		}
	}
	if !assigned {
		return Condition{}
	}

	bindings := map[string]any{}
	for k, v := range work {
		if strings.HasPrefix(k, "__") {
			continue
		}
		if old, existed := ctx[k]; existed && equal(old, v) {
			continue
		}
		bindings[k] = v
	}
	return Condition{Truth: truthy(work[resultName]), Bindings: bindings}
}

// splitAssignment splits "name = expr". The target must be an identifier
// that passes the screen.
func splitAssignment(line string) (string, string, bool) {
	for i := 0; i < len(line); i++ {
		if line[i] != '=' {
			continue
		}
		if i+1 < len(line) && line[i+1] == '=' {
			return "", "", false
		}
		if i > 0 && strings.ContainsRune("!<>=", rune(line[i-1])) {
			return "", "", false
		}
		name := strings.TrimSpace(line[:i])
		rhs := strings.TrimSpace(line[i+1:])
		if !isIdentifier(name) || rhs == "" {
			return "", "", false
		}
		if screenTokens(line, []token{{kind: tokName, text: name}}) != nil {
			return "", "", false
		}
		return name, rhs, true
	}
	return "", "", false
}
