package lax

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Node
	}{
		{"empty", "", nil},
		{"literal only", "plain text", []Node{{LiteralNode, "plain text"}}},
		{
			"mixed",
			"a {{ b }} c {% if x %}d{% endif %}",
			[]Node{
				{LiteralNode, "a "},
				{ExpressionNode, "b"},
				{LiteralNode, " c "},
				{ControlNode, "if x"},
				{LiteralNode, "d"},
				{ControlNode, "endif"},
			},
		},
		{"adjacent tags", "{{a}}{{b}}", []Node{{ExpressionNode, "a"}, {ExpressionNode, "b"}}},
		{"unclosed expression", "a {{ b", []Node{{LiteralNode, "a {{ b"}}},
		{
			"unclosed control after expression",
			"{{ a }} {% x",
			[]Node{{ExpressionNode, "a"}, {LiteralNode, " {% x"}},
		},
		{"single braces", "{ {x} }", []Node{{LiteralNode, "{ {x} }"}}},
		{
			"first closer ends the tag",
			"{{ a }} }}",
			[]Node{{ExpressionNode, "a"}, {LiteralNode, " }}"}},
		},
		{
			"multi-line body is trimmed",
			"{% if\n  x = 1\n  __result__ = x\n%}",
			[]Node{{ControlNode, "if\n  x = 1\n  __result__ = x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.src))
		})
	}
}

func TestNodeKeyword(t *testing.T) {
	word, rest := Node{Kind: ControlNode, Text: "for x in items"}.keyword()
	assert.Equal(t, "for", word)
	assert.Equal(t, "x in items", rest)

	word, rest = Node{Kind: ControlNode, Text: "if\n  y = 2"}.keyword()
	assert.Equal(t, "if", word)
	assert.Equal(t, "y = 2", rest)

	word, rest = Node{Kind: ControlNode, Text: "endfor"}.keyword()
	assert.Equal(t, "endfor", word)
	assert.Empty(t, rest)
}

func TestNodeKindString(t *testing.T) {
	assert.Equal(t, "literal", LiteralNode.String())
	assert.Equal(t, "expression", ExpressionNode.String())
	assert.Equal(t, "control", ControlNode.String())
	assert.Equal(t, "unknown", NodeKind(9).String())
}

func TestTemplateNodes(t *testing.T) {
	tmpl := New("Hi {{ name }}")
	nodes := tmpl.Nodes()
	assert.Equal(t, []Node{{LiteralNode, "Hi "}, {ExpressionNode, "name"}}, nodes)

	// The returned slice is a copy.
	nodes[0].Text = "changed"
	assert.Equal(t, "Hi ", tmpl.Nodes()[0].Text)
}
