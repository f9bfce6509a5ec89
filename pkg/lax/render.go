package lax

import (
	"log/slog"
	"regexp"
	"strings"
)

var newlineRuns = regexp.MustCompile(`\n{2,}`)

// renderer interprets a node sequence. One renderer serves a whole render
// call; nested blocks recurse through render with a sub-slice of nodes.
type renderer struct {
	reg      *Registry
	logger   *slog.Logger
	maxDepth int
}

// run renders the top-level nodes and applies the newline collapse.
func (r *renderer) run(nodes []Node, ctx Context) string {
	return newlineRuns.ReplaceAllString(r.render(nodes, ctx, 0), "\n")
}

func (r *renderer) render(nodes []Node, ctx Context, depth int) string {
	if depth > r.maxDepth {
		r.logger.Warn("Render depth limit reached, block skipped", slog.Int("depth", depth))
		return ""
	}

	var out strings.Builder
	for i := 0; i < len(nodes); i++ {
		n := nodes[i]
		switch n.Kind {
		case LiteralNode:
			out.WriteString(n.Text)

		case ExpressionNode:
			out.WriteString(r.expression(n.Text, ctx))

		case ControlNode:
			word, rest := n.keyword()
			switch word {
			case "set", "let":
				r.assign(word, rest, ctx)

			case "if":
				blk, ok := matchIf(nodes, i)
				if !ok {
					r.logger.Debug("Skipping if without endif", slog.String("condition", rest))
					continue
				}
				out.WriteString(r.renderIf(blk, ctx, depth))
				i = blk.end

			case "for":
				end, ok := matchEnd(nodes, i, "endfor")
				if !ok {
					r.logger.Debug("Skipping for without endfor", slog.String("loop", rest))
					continue
				}
				out.WriteString(r.renderFor(rest, nodes[i+1:end], ctx, depth))
				i = end

			default:
				// include was expanded at compile time; closers, else and
				// unknown directives render nothing.
			}
		}
	}
	return out.String()
}

// expression renders a {{ }} tag body.
func (r *renderer) expression(body string, ctx Context) string {
	switch {
	case strings.HasPrefix(body, "="):
		expr := strings.TrimSpace(body[1:])
		v, err := evaluate(expr, ctx, r.reg)
		if err != nil {
			r.logger.Debug("Expression failed", slog.String("expr", expr), slog.Any("error", err))
			return calcMarker(err)
		}
		return toString(v)

	case strings.Contains(body, " or "):
		return toString(defaultChain(body, ctx))

	case strings.Contains(body, "."):
		v, _ := lookupPath(ctx, body)
		return toString(v)
	}
	return toString(ctx[body])
}

// defaultChain resolves "a or b.c or 'text'": a quoted literal wins outright,
// otherwise the first operand that is truthy or the number zero.
func defaultChain(body string, ctx Context) any {
	for _, part := range strings.Split(body, " or ") {
		part = strings.TrimSpace(part)
		if len(part) >= 2 && (part[0] == '"' || part[0] == '\'') && part[len(part)-1] == part[0] {
			return part[1 : len(part)-1]
		}
		var v any
		if strings.Contains(part, ".") {
			v, _ = lookupPath(ctx, part)
		} else {
			v = ctx[part]
		}
		if truthy(v) || isZeroNumber(v) {
			return v
		}
	}
	return nil
}

// assign handles {% set name = expr %} and {% let name = expr %}. A failed
// right-hand side binds its error marker instead of a value.
func (r *renderer) assign(word, rest string, ctx Context) {
	name, expr, ok := strings.Cut(rest, "=")
	if !ok {
		return
	}
	name = strings.TrimSpace(name)
	if !isIdentifier(name) {
		r.logger.Debug("Ignoring assignment to invalid name", slog.String("directive", word), slog.String("name", name))
		return
	}
	expr = strings.TrimSpace(expr)
	expr = strings.TrimSpace(strings.TrimPrefix(expr, "="))

	v, err := evaluate(expr, ctx, r.reg)
	if err != nil {
		r.logger.Debug("Assignment failed", slog.String("directive", word), slog.String("name", name), slog.Any("error", err))
		ctx[name] = bindMarker(word, err)
		return
	}
	ctx[name] = v
}

// ifBlock is an if statement split into its branches.
type ifBlock struct {
	branches []ifBranch
	end      int // index of the endif node
}

type ifBranch struct {
	cond   string
	isElse bool
	body   []Node
}

// matchIf finds the endif closing nodes[at] along with its elif and else
// branches. Only tags at the block's own depth split branches, and nothing
// after the first else does.
func matchIf(nodes []Node, at int) (ifBlock, bool) {
	_, cond := nodes[at].keyword()
	var blk ifBlock
	cur := ifBranch{cond: cond}
	start := at + 1
	seenElse := false
	depth := 1
	for j := at + 1; j < len(nodes); j++ {
		if nodes[j].Kind != ControlNode {
			continue
		}
		word, rest := nodes[j].keyword()
		switch word {
		case "if", "for":
			depth++
		case "endif", "endfor":
			if depth > 1 {
				depth--
				continue
			}
			if word == "endfor" {
				continue
			}
			cur.body = nodes[start:j]
			blk.branches = append(blk.branches, cur)
			blk.end = j
			return blk, true
		case "elif", "else":
			if depth != 1 || seenElse {
				continue
			}
			cur.body = nodes[start:j]
			blk.branches = append(blk.branches, cur)
			start = j + 1
			if word == "else" {
				seenElse = true
				cur = ifBranch{isElse: true}
			} else {
				cur = ifBranch{cond: rest}
			}
		}
	}
	return ifBlock{}, false
}

// matchEnd finds the closer of the block opened at nodes[at].
func matchEnd(nodes []Node, at int, closer string) (int, bool) {
	depth := 1
	for j := at + 1; j < len(nodes); j++ {
		if nodes[j].Kind != ControlNode {
			continue
		}
		word, _ := nodes[j].keyword()
		switch word {
		case "if", "for":
			depth++
		case "endif", "endfor":
			if depth > 1 {
				depth--
				continue
			}
			if word == closer {
				return j, true
			}
		}
	}
	return 0, false
}

// renderIf tests the branches in order and renders the first that holds.
// Bindings from every condition evaluated on the way are merged into ctx;
// the chosen body renders against a copy of it.
func (r *renderer) renderIf(blk ifBlock, ctx Context, depth int) string {
	for _, b := range blk.branches {
		if !b.isElse {
			c := evaluateCondition(b.cond, ctx, r.reg)
			for k, v := range c.Bindings {
				if r.reg.hasCustom(k) {
					continue
				}
				ctx[k] = v
			}
			if !c.Truth {
				continue
			}
		}
		return r.render(b.body, ctx.clone(), depth+1)
	}
	return ""
}

// renderFor renders body once per item, each time against a fresh copy of
// the context the loop was entered with. Iterations are joined by newlines.
func (r *renderer) renderFor(header string, body []Node, ctx Context, depth int) string {
	name, source, ok := parseForHeader(header)
	if !ok {
		r.logger.Debug("Malformed for header", slog.String("loop", header))
		return ""
	}
	items := iterate(r.iterable(source, ctx))
	if len(items) == 0 {
		return ""
	}

	parent := ctx["loop"]
	parts := make([]string, len(items))
	for idx, item := range items {
		iter := ctx.clone()
		iter[name] = item
		iter["loop"] = &LoopState{
			Index:  idx + 1,
			Index0: idx,
			First:  idx == 0,
			Last:   idx == len(items)-1,
			Length: len(items),
			Parent: parent,
		}
		parts[idx] = r.render(body, iter, depth+1)
	}
	return strings.Join(parts, "\n")
}

// parseForHeader splits "item in items" into the loop variable and the
// iterable expression.
func parseForHeader(header string) (string, string, bool) {
	name, source, ok := strings.Cut(header, " in ")
	if !ok {
		return "", "", false
	}
	name, source = strings.TrimSpace(name), strings.TrimSpace(source)
	if !isIdentifier(name) || source == "" {
		return "", "", false
	}
	return name, source, true
}

// iterable resolves a loop source as a context key first, then as an
// expression. Failures give nil, which iterates as nothing.
func (r *renderer) iterable(source string, ctx Context) any {
	if v, ok := ctx[source]; ok {
		return v
	}
	if screen(source) != nil {
		r.logger.Debug("Loop source rejected", slog.String("source", source))
		return nil
	}
	v, err := evaluate(source, ctx, r.reg)
	if err != nil {
		r.logger.Debug("Loop source failed", slog.String("source", source), slog.Any("error", err))
		return nil
	}
	return v
}
