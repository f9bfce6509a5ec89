package lax

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// render is a helper that renders source against data and fails the test on
// a validation error.
func render(tb testing.TB, source string, data map[string]any, opts ...Option) string {
	tb.Helper()
	out, err := New(source, opts...).Render(data)
	require.NoError(tb, err)
	return out
}

func TestRender_Expressions(t *testing.T) {
	data := map[string]any{
		"name":     "World",
		"nickname": "",
		"count":    0,
		"flag":     false,
		"price":    2.5,
		"qty":      4,
		"user": map[string]any{
			"profile": map[string]any{"name": "Ann"},
		},
	}

	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"plain lookup", "Hello {{name}}!", "Hello World!"},
		{"missing lookup", "[{{ nobody }}]", "[]"},
		{"dotted lookup", "{{ user.profile.name }}", "Ann"},
		{"dotted missing step", "[{{ user.nope.name }}]", "[]"},
		{"default chain picks truthy", "{{ nickname or name or 'Anon' }}", "World"},
		{"default chain keeps zero", "{{ count or 'none' }}", "0"},
		{"default chain literal", "{{ missing or \"x\" }}", "x"},
		{"default chain skips false", "{{ flag or 'x' }}", "x"},
		{"default chain no match", "[{{ missing or nickname }}]", "[]"},
		{"evaluated float", "{{= price * qty }}", "10.0"},
		{"evaluated int", "{{= qty * 3 + 1 }}", "13"},
		{"evaluated bool", "{{= qty > 3 }}", "True"},
		{"evaluated list", "{{= [1, 'a'] }}", "[1, 'a']"},
		{"evaluated function", "{{= upper(name) }}", "WORLD"},
		{"division by zero", "{{= 1 / 0 }}", "[Calculation Error: division by zero]"},
		{"undefined name", "{{= missing + 1 }}", "[Calculation Error: name 'missing' is not defined]"},
		{"expression binding", "{{= set('x', 5) }}{{ x }}", "55"},
		{"oversized range", "{{= range(-9000000000000000000, 9000000000000000000) }}", "[]"},
		{"range with huge step", "{{= range(0, 9223372036854775807, 9223372036854775807) }}", "[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.source, data))
		})
	}
}

func TestRender_DeniedExpressions(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"{{= __import__('os') }}", "[Error: potentially dangerous expression: __import__('os')]"},
		{"{{= eval('1') }}", "[Error: potentially dangerous expression: eval('1')]"},
		{"{{= OPEN('/etc/passwd') }}", "[Error: potentially dangerous expression: OPEN('/etc/passwd')]"},
		{"{{= name.__class__ }}", "[Error: potentially dangerous expression: name.__class__]"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.source, map[string]any{"name": "x"}))
		})
	}
}

func TestRender_DeniedExpressionHasNoSideEffect(t *testing.T) {
	called := false
	tmpl := New("{{= eval(touch()) }}")
	require.NoError(t, tmpl.RegisterFunction("touch", func() string {
		called = true
		return "1"
	}))

	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Contains(t, out, "[Error: potentially dangerous expression:")
	assert.False(t, called, "denied expression must not run any function")
}

func TestRender_IfElse(t *testing.T) {
	source := "{% if show %}Visible{% else %}Hidden{% endif %}"
	assert.Equal(t, "Visible", render(t, source, map[string]any{"show": true}))
	assert.Equal(t, "Hidden", render(t, source, map[string]any{"show": false}))
	assert.Equal(t, "Hidden", render(t, source, nil))
}

func TestRender_Elif(t *testing.T) {
	source := "{% if n > 10 %}big{% elif n > 5 %}mid{% else %}small{% endif %}"
	assert.Equal(t, "big", render(t, source, map[string]any{"n": 11}))
	assert.Equal(t, "mid", render(t, source, map[string]any{"n": 7}))
	assert.Equal(t, "small", render(t, source, map[string]any{"n": 1}))
}

func TestRender_NestedIf(t *testing.T) {
	source := "{% if a %}A{% if b %}B{% else %}b{% endif %}{% else %}none{% endif %}"
	assert.Equal(t, "AB", render(t, source, map[string]any{"a": true, "b": true}))
	assert.Equal(t, "Ab", render(t, source, map[string]any{"a": true, "b": false}))
	assert.Equal(t, "none", render(t, source, map[string]any{"a": false, "b": true}))
}

func TestRender_ConditionForms(t *testing.T) {
	data := map[string]any{
		"user":  map[string]any{"active": true, "tags": []any{}},
		"items": []any{1},
		"empty": []any{},
		"n":     3,
	}
	tests := []struct {
		cond string
		want bool
	}{
		{"user.active", true},
		{"user.tags", false},
		{"user.missing.deeper", false},
		{"items", true},
		{"empty", false},
		{"= n * 2 == 6", true},
		{"n >= 3 and items", true},
		{"not items", false},
		{"missing", false},
		{"missing is defined", false},
		{"user is defined", true},
		{"eval('1')", false},
		{"1 +", false},
	}
	for _, tt := range tests {
		t.Run(tt.cond, func(t *testing.T) {
			out := render(t, "{% if "+tt.cond+" %}yes{% else %}no{% endif %}", data)
			if tt.want {
				assert.Equal(t, "yes", out)
			} else {
				assert.Equal(t, "no", out)
			}
		})
	}
}

func TestRender_MultiLineConditionBindings(t *testing.T) {
	source := `{% if
# compute the discount first
discount = price * 0.1
__result__ = discount > 1
%}yes {{ discount }}{% endif %}|{{ discount }}`

	assert.Equal(t, "yes 2.0|2.0", render(t, source, map[string]any{"price": 20}))
	assert.Equal(t, "|0.5", render(t, source, map[string]any{"price": 5}))
}

func TestRender_MultiLineConditionWithoutResult(t *testing.T) {
	source := "{% if\nx = 1\ny = 2\n%}yes{% else %}no{% endif %}"
	assert.Equal(t, "no", render(t, source, nil))
}

func TestRender_UnclosedIfIsSkipped(t *testing.T) {
	assert.Equal(t, "never closed", render(t, "{% if x %}never closed", map[string]any{"x": false}))
}

func TestRender_ForLoop(t *testing.T) {
	out := render(t, "{% for item in items %}{{item}}-{% endfor %}", map[string]any{"items": []any{1, 2, 3}})
	assert.Equal(t, "1-\n2-\n3-", out)
}

func TestRender_ForLoopSources(t *testing.T) {
	tests := []struct {
		name   string
		source string
		data   map[string]any
		want   string
	}{
		{"typed slice", "{% for s in names %}{{s}}{% endfor %}", map[string]any{"names": []string{"a", "b"}}, "a\nb"},
		{"expression", "{% for i in range(3) %}{{i}}{% endfor %}", nil, "0\n1\n2"},
		{"map keys", "{% for k in m %}{{k}}{% endfor %}", map[string]any{"m": map[string]any{"b": 1, "a": 2}}, "a\nb"},
		{"string", "{% for c in word %}{{c}}.{% endfor %}", map[string]any{"word": "hi"}, "h.\ni."},
		{"dotted source", "{% for t in post.tags %}{{t}}{% endfor %}", map[string]any{"post": map[string]any{"tags": []any{"go"}}}, "go"},
		{"not iterable", "[{% for x in n %}{{x}}{% endfor %}]", map[string]any{"n": 5}, "[]"},
		{"missing", "[{% for x in nothing %}{{x}}{% endfor %}]", nil, "[]"},
		{"empty", "[{% for x in xs %}{{x}}{% endfor %}]", map[string]any{"xs": []any{}}, "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.source, tt.data))
		})
	}
}

func TestRender_LoopMetadata(t *testing.T) {
	source := "{% for x in xs %}{{loop.index}}/{{loop.index0}}/{{loop.length}}:{{loop.first}}:{{loop.last}}{% endfor %}"
	out := render(t, source, map[string]any{"xs": []any{"a", "b", "c"}})
	assert.Equal(t, "1/0/3:True:False\n2/1/3:False:False\n3/2/3:False:True", out)

	single := render(t, source, map[string]any{"xs": []any{"only"}})
	assert.Equal(t, "1/0/1:True:True", single)
}

func TestRender_LoopConditions(t *testing.T) {
	source := "{% for x in xs %}{% if loop.first %}F{% endif %}{% if not loop.last %},{% endif %}{{x}}{% endfor %}"
	assert.Equal(t, "F,a\nb", render(t, source, map[string]any{"xs": []any{"a", "b"}}))
}

func TestRender_ParentLoop(t *testing.T) {
	source := "{% for a in outer %}{% for b in inner %}{{loop.parentloop.index}}{{loop.index}} {% endfor %}{% endfor %}"
	out := render(t, source, map[string]any{"outer": []any{1, 2}, "inner": []any{1, 2}})
	assert.Equal(t, "11 \n12 \n21 \n22 ", out)
}

func TestRender_CallerLoopMapping(t *testing.T) {
	data := map[string]any{
		"loop": map[string]any{"first": true, "name": "outer"},
		"xs":   []any{1, 2},
	}
	assert.Equal(t, "F", render(t, "{% if loop.first %}F{% endif %}", data))

	out := render(t, "{% for x in xs %}{{ loop.parentloop.name }}{{ x }}{% endfor %}", data)
	assert.Equal(t, "outer1\nouter2", out)
}

func TestRender_LoopCopySemantics(t *testing.T) {
	source := "{% for x in xs %}{% set seen = x %}{{seen}}|{{prev or 'none'}}{% set prev = x %}{% endfor %}|{{ seen or 'gone' }}"
	out := render(t, source, map[string]any{"xs": []any{1, 2}})
	assert.Equal(t, "1|none\n2|none|gone", out)
}

func TestRender_BranchCopySemantics(t *testing.T) {
	source := "{% if show %}{% set inner = 1 %}{{ inner }}{% endif %}[{{ inner }}]"
	assert.Equal(t, "1[]", render(t, source, map[string]any{"show": true}))
}

func TestRender_SetAndLet(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   string
	}{
		{"set", "{% set total = price * 2 %}{{ total }}", "10"},
		{"let", "{% let label = upper(name) %}{{ label }}", "BOB"},
		{"leading equals", "{% set total = = price + 1 %}{{ total }}", "6"},
		{"set screen error", "{% set x = eval('1') %}{{ x }}", "[Set Error: potentially dangerous expression: eval('1')]"},
		{"let screen error", "{% let x = exec('1') %}{{ x }}", "[Let Error: potentially dangerous expression: exec('1')]"},
		{"calculation error", "{% set x = 1 // 0 %}{{ x }}", "[Calculation Error: integer division or modulo by zero]"},
		{"invalid name", "{% set 1x = 2 %}ok", "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, render(t, tt.source, map[string]any{"price": 5, "name": "bob"}))
		})
	}
}

func TestRender_DoesNotModifyCallerData(t *testing.T) {
	data := map[string]any{"price": 5}
	_ = render(t, "{% set price = 99 %}{% set extra = 1 %}{{ price }}", data)
	assert.Equal(t, map[string]any{"price": 5}, data)
}

func TestRender_UnknownDirectivesRenderNothing(t *testing.T) {
	assert.Equal(t, "ab", render(t, "a{% frobnicate now %}{% endfor %}{% else %}b", nil))
}

func TestRender_CollapsesNewlines(t *testing.T) {
	assert.Equal(t, "a\nb\nc", render(t, "a\n\n\nb\n\nc", nil))
	out := render(t, "{% for x in xs %}\n{{x}}\n{% endfor %}", map[string]any{"xs": []any{1, 2}})
	assert.Equal(t, "\n1\n2\n", out)
}

func TestRender_Idempotent(t *testing.T) {
	tmpl := New("{% for x in xs %}{{ loop.index }}={{= x * 2 }}{% endfor %}{% set y = 1 %}{{ y }}")
	data := map[string]any{"xs": []any{1, 2, 3}}

	first, err := tmpl.Render(data)
	require.NoError(t, err)
	second, err := tmpl.Render(data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_CustomFunctions(t *testing.T) {
	tmpl := New("{{= double(21) }} {{= greet(name) }} {{= safe_div(1, 0) }}")
	require.NoError(t, tmpl.RegisterFunctions(map[string]any{
		"double": func(n int) int { return n * 2 },
		"greet":  func(args ...any) any { return "hi " + toString(args[0]) },
		"safe_div": func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errors.New("nope")
			}
			return a / b, nil
		},
	}))

	out, err := tmpl.Render(map[string]any{"name": "ann"})
	require.NoError(t, err)
	assert.Equal(t, "42 hi ann [Calculation Error: nope]", out)
}

func TestRender_CustomFunctionShadowsBuiltin(t *testing.T) {
	tmpl := New("{{= upper('x') }}")
	require.NoError(t, tmpl.RegisterFunction("upper", func(s string) string { return "custom:" + s }))
	out, err := tmpl.Render(nil)
	require.NoError(t, err)
	assert.Equal(t, "custom:x", out)
}

func TestRender_InvalidContextKey(t *testing.T) {
	_, err := New("{{ x }}").Render(map[string]any{"ok": 1, "bad-key": 2})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidContextKey))

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "bad-key", verr.Key)
}

func TestRender_Includes(t *testing.T) {
	fsys := fstest.MapFS{
		"header.part.html":    {Data: []byte("<h1>{{ title }}</h1>")},
		"nav/links.part.html": {Data: []byte("<nav>{% include 'header.part.html' %}</nav>")},
	}

	out := render(t, "{% include 'header.part.html' %}body", map[string]any{"title": "T"}, WithFS(fsys))
	assert.Equal(t, "<h1>T</h1>body", out)

	nested := render(t, `{% include "nav/links.part.html" %}`, map[string]any{"title": "T"}, WithFS(fsys))
	assert.Equal(t, "<nav><h1>T</h1></nav>", nested)
}

func TestRender_IncludesFromBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "parts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "parts", "footer.part.html"), []byte("<footer>{{ year }}</footer>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "layout.part.html"), []byte("<main>{% include 'parts/footer.part.html' %}</main>"), 0o644))

	out := render(t, "{% include 'layout.part.html' %}", map[string]any{"year": 2024}, WithBaseDir(dir))
	assert.Equal(t, "<main><footer>2024</footer></main>", out)

	missing := render(t, "{% include 'header.part.html' %}", nil, WithBaseDir(dir))
	assert.Equal(t, "[Error: Include file 'header.part.html' not found]", missing)
}

func TestRender_MissingInclude(t *testing.T) {
	out := render(t, "a{% include 'nope.html' %}b", nil, WithFS(fstest.MapFS{}))
	assert.Equal(t, "a[Error: Include file 'nope.html' not found]b", out)
}

func TestRender_IncludeEscapingDirectory(t *testing.T) {
	out := render(t, "{% include '../secret.txt' %}", nil, WithFS(fstest.MapFS{}))
	assert.Equal(t, "[Error: Failed to include '../secret.txt': path escapes template directory]", out)
}

func TestRender_IncludeCycle(t *testing.T) {
	fsys := fstest.MapFS{
		"a.html": {Data: []byte("A{% include 'b.html' %}")},
		"b.html": {Data: []byte("B{% include 'a.html' %}")},
	}
	out := render(t, "{% include 'a.html' %}", nil, WithFS(fsys))
	assert.Equal(t, "AB[Error: Include cycle detected for 'a.html']", out)

	self := render(t, "S{% include 'self.html' %}", nil,
		WithFS(fstest.MapFS{"self.html": {Data: []byte("S{% include 'self.html' %}")}}),
		WithName("self.html"))
	assert.Equal(t, "S[Error: Include cycle detected for 'self.html']", self)
}

func TestRender_DepthLimit(t *testing.T) {
	source := "{% if a %}1{% if a %}2{% if a %}3{% endif %}{% endif %}{% endif %}"
	out := render(t, source, map[string]any{"a": true}, WithConfig(&Config{MaxRenderDepth: 2}))
	assert.Equal(t, "12", out)
}

// FuzzRender_Literal checks that text without tag openers renders unchanged.
// Runs of blank lines are the one rewrite applied to literal text, so inputs
// containing them are skipped; TestRender_CollapsesNewlines covers that case.
func FuzzRender_Literal(f *testing.F) {
	for _, seed := range []string{
		"",
		"plain text",
		"line one\nline two\n",
		"<p class=\"x\">50% off { not a tag } }}</p>",
		"trailing brace {",
		"% and } and %} alone",
		"unicode: \u00e9\u00e8 \u4e16\u754c",
		"  leading and trailing spaces\t\n",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, text string) {
		if strings.Contains(text, "{{") || strings.Contains(text, "{%") || strings.Contains(text, "\n\n") {
			t.Skip()
		}
		out, err := New(text, WithFS(fstest.MapFS{})).Render(nil)
		require.NoError(t, err)
		assert.Equal(t, text, out)
	})
}

func BenchmarkRender_Loop(b *testing.B) {
	items := make([]any, 100)
	for i := range items {
		items[i] = map[string]any{"title": "post", "views": i}
	}
	tmpl := New(`{% for p in posts %}<li>{{ p.title }} {{= p.views * 2 }}{% if loop.last %}!{% endif %}</li>{% endfor %}`)
	tmpl.Compile()
	data := map[string]any{"posts": items}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tmpl.Render(data)
	}
}
