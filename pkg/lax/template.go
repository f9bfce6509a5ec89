package lax

import (
	"io"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// Template is a parsed template source. It compiles lazily on first render;
// after that its node sequence never changes, so one Template may be
// rendered from many goroutines at once.
type Template struct {
	name   string
	source string
	fsys   fs.FS
	config *Config
	logger *slog.Logger
	reg    *Registry

	mu       sync.RWMutex
	nodes    []Node
	compiled bool
}

// Option configures a Template.
type Option func(*Template)

// WithBaseDir resolves include directives relative to dir.
func WithBaseDir(dir string) Option {
	return func(t *Template) { t.fsys = os.DirFS(dir) }
}

// WithFS resolves include directives inside fsys.
func WithFS(fsys fs.FS) Option {
	return func(t *Template) { t.fsys = fsys }
}

// WithName records the path of the source inside the include filesystem, so
// a template that includes itself is reported as a cycle.
func WithName(name string) Option {
	return func(t *Template) { t.name = name }
}

// WithLogger sets the logger used for include and render diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Template) { t.logger = logger }
}

// WithConfig sets the include and render limits.
func WithConfig(config *Config) Option {
	return func(t *Template) { t.config = config }
}

// WithRegistry shares a function registry between templates.
func WithRegistry(reg *Registry) Option {
	return func(t *Template) { t.reg = reg }
}

// New creates a Template from source text. Without WithBaseDir or WithFS,
// includes resolve against the working directory.
func New(source string, opts ...Option) *Template {
	t := &Template{source: source}
	for _, opt := range opts {
		opt(t)
	}
	if t.fsys == nil {
		t.fsys = os.DirFS(".")
	}
	if t.logger == nil {
		t.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if t.reg == nil {
		t.reg = NewRegistry()
	}
	t.config = t.config.withDefaults()
	return t
}

// Name returns the name given with WithName.
func (t *Template) Name() string {
	return t.name
}

// Registry returns the template's function registry.
func (t *Template) Registry() *Registry {
	return t.reg
}

// RegisterFunction makes fn callable from this template's expressions.
// See Registry.Register for the accepted function shapes.
func (t *Template) RegisterFunction(name string, fn any) error {
	return t.reg.Register(name, fn)
}

// RegisterFunctions registers several functions at once.
func (t *Template) RegisterFunctions(fns map[string]any) error {
	return t.reg.RegisterAll(fns)
}

// Compile expands includes and splits the source into nodes. Calling it
// again is a no-op.
func (t *Template) Compile() {
	t.mu.RLock()
	done := t.compiled
	t.mu.RUnlock()
	if done {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.compiled {
		return
	}
	in := &includer{fsys: t.fsys, maxDepth: t.config.MaxIncludeDepth, logger: t.logger}
	t.nodes = tokenize(in.expandAll(t.source, t.name))
	t.compiled = true
	t.logger.Debug("Compiled template", slog.String("name", t.name), slog.Int("nodes", len(t.nodes)))
}

// Nodes returns a copy of the compiled node sequence, compiling first if
// needed.
func (t *Template) Nodes() []Node {
	t.Compile()
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Node, len(t.nodes))
	copy(out, t.nodes)
	return out
}

// Render renders the template against data. The caller's map is never
// modified. The only error is a *ValidationError for a key that is not
// identifier-shaped; evaluation problems appear inline in the output.
func (t *Template) Render(data map[string]any) (string, error) {
	if err := validateContext(data); err != nil {
		t.logger.Warn("Rejected render context", slog.String("name", t.name), slog.Any("error", err))
		return "", err
	}
	t.Compile()
	t.mu.RLock()
	nodes := t.nodes
	t.mu.RUnlock()

	ctx := Context(data).clone()
	r := &renderer{reg: t.reg, logger: t.logger, maxDepth: t.config.MaxRenderDepth}
	return r.run(nodes, ctx), nil
}

// Execute renders the template into w.
func (t *Template) Execute(w io.Writer, data map[string]any) error {
	out, err := t.Render(data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
