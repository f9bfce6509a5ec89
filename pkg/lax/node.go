package lax

import "strings"

// NodeKind identifies the three kinds of compiled template units.
type NodeKind int

const (
	// LiteralNode is text copied verbatim to the output.
	LiteralNode NodeKind = iota
	// ExpressionNode is a {{ ... }} tag.
	ExpressionNode
	// ControlNode is a {% ... %} tag.
	ControlNode
)

func (k NodeKind) String() string {
	switch k {
	case LiteralNode:
		return "literal"
	case ExpressionNode:
		return "expression"
	case ControlNode:
		return "control"
	}
	return "unknown"
}

// Node is one unit of a compiled template, in source order.
// For tags, Text holds the body between the delimiters with the outer
// whitespace trimmed.
type Node struct {
	Kind NodeKind
	Text string
}

// keyword returns the directive word of a control tag and the rest of its body.
func (n Node) keyword() (string, string) {
	body := n.Text
	end := strings.IndexFunc(body, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if end < 0 {
		return body, ""
	}
	return body[:end], strings.TrimSpace(body[end:])
}

// tokenize splits expanded source into nodes. Each tag ends at the first
// closing delimiter after it opens. An opener without any closer after it
// stays literal text.
func tokenize(src string) []Node {
	var nodes []Node
	literalStart := 0
	noExprClose, noCtrlClose := false, false

	for i := 0; i < len(src)-1; {
		k := strings.IndexByte(src[i:], '{')
		if k < 0 || i+k+1 >= len(src) {
			break
		}
		i += k
		var closer string
		var kind NodeKind
		switch src[i+1] {
		case '%':
			if noCtrlClose {
				i++
				continue
			}
			closer, kind = "%}", ControlNode
		case '{':
			if noExprClose {
				i++
				continue
			}
			closer, kind = "}}", ExpressionNode
		default:
			i++
			continue
		}

		end := strings.Index(src[i+2:], closer)
		if end < 0 {
			if kind == ControlNode {
				noCtrlClose = true
			} else {
				noExprClose = true
			}
			i++
			continue
		}

		if i > literalStart {
			nodes = append(nodes, Node{Kind: LiteralNode, Text: src[literalStart:i]})
		}
		bodyEnd := i + 2 + end
		nodes = append(nodes, Node{Kind: kind, Text: strings.TrimSpace(src[i+2 : bodyEnd])})
		i = bodyEnd + len(closer)
		literalStart = i
	}

	if literalStart < len(src) {
		nodes = append(nodes, Node{Kind: LiteralNode, Text: src[literalStart:]})
	}
	return nodes
}
