package lax

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ErrTemplateNotFound is returned by Execute for a name the manager has not
// loaded.
var ErrTemplateNotFound = errors.New("template not found")

// watchDebounce groups bursts of filesystem events into one refresh.
const watchDebounce = 100 * time.Millisecond

// TemplateManager is the central controller for a directory of templates.
// Full templates match Config.TemplateGlob and can be executed by name;
// partials match Config.PartialGlob and exist to be included. Every template
// shares the manager's Registry.
// All methods are concurrent-safe.
type TemplateManager struct {
	logger        *slog.Logger
	config        *Config
	reg           *Registry
	templates     map[string]*Template
	templateNames []string
	partialNames  []string
	templateDir   string
	mu            sync.RWMutex
}

// NewTemplateManager creates a TemplateManager for templateDir and performs an
// initial Refresh. A nil config uses DefaultConfig.
func NewTemplateManager(logger *slog.Logger, config *Config, templateDir string) (*TemplateManager, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	tm := &TemplateManager{
		logger:      logger,
		config:      config.withDefaults(),
		reg:         NewRegistry(),
		templates:   map[string]*Template{},
		templateDir: templateDir,
	}

	if err := tm.Refresh(); err != nil {
		return nil, err
	}

	logger.Info("Template manager initialized", slog.String("dir", templateDir))
	return tm, nil
}

// SetConfig replaces the manager's limits and globs. Templates loaded before
// the call keep their old limits until the next Refresh.
func (tm *TemplateManager) SetConfig(config *Config) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.config = config.withDefaults()
}

// GetConfig returns a copy of the current configuration.
func (tm *TemplateManager) GetConfig() Config {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return *tm.config
}

// Registry returns the registry shared by every managed template.
func (tm *TemplateManager) Registry() *Registry {
	return tm.reg
}

// RegisterFunction makes fn callable from every managed template, including
// ones loaded by later refreshes.
func (tm *TemplateManager) RegisterFunction(name string, fn any) error {
	return tm.reg.Register(name, fn)
}

// RegisterFunctions registers several functions at once.
func (tm *TemplateManager) RegisterFunctions(fns map[string]any) error {
	return tm.reg.RegisterAll(fns)
}

// Refresh reloads every template and partial from the directory. On failure
// the previously loaded set stays in place.
func (tm *TemplateManager) Refresh() error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	fsys := os.DirFS(tm.templateDir)
	templates := map[string]*Template{}

	load := func(pattern string) ([]string, error) {
		matches, err := filepath.Glob(filepath.Join(tm.templateDir, pattern))
		if err != nil {
			return nil, fmt.Errorf("bad template pattern %q: %w", pattern, err)
		}
		names := make([]string, 0, len(matches))
		for _, match := range matches {
			name := filepath.Base(match)
			if _, dup := templates[name]; dup {
				continue
			}
			data, err := os.ReadFile(match)
			if err != nil {
				return nil, fmt.Errorf("failed to read template %s: %w", name, err)
			}
			t := New(string(data),
				WithFS(fsys),
				WithName(name),
				WithConfig(tm.config),
				WithRegistry(tm.reg),
				WithLogger(tm.logger),
			)
			t.Compile()
			templates[name] = t
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	}

	tm.logger.Info("Loading template files...")
	names, err := load(tm.config.TemplateGlob)
	if err != nil {
		tm.logger.Error("failed to load template files", "error", err)
		return err
	}
	if len(names) == 0 {
		tm.logger.Warn("No template files found matching pattern", "pattern", tm.config.TemplateGlob)
	}

	tm.logger.Info("Loading partial files...")
	partials, err := load(tm.config.PartialGlob)
	if err != nil {
		tm.logger.Error("failed to load partial files", "error", err)
		return err
	}

	tm.templates = templates
	tm.templateNames = names
	tm.partialNames = partials
	tm.logger.Info("Loaded template and partial files", "count", len(templates))
	return nil
}

// Lookup returns the loaded template or partial called name.
func (tm *TemplateManager) Lookup(name string) (*Template, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.templates[name]
	return t, ok
}

// Execute renders the full template called name into w.
func (tm *TemplateManager) Execute(w io.Writer, name string, data map[string]any) error {
	if name == "" {
		return nil
	}
	t, ok := tm.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
	}
	return t.Execute(w, data)
}

// ExecuteTemplateString renders raw template text with the manager's
// functions, resolving includes against the template directory. This is
// ideal for testing or previewing templates without saving them to disk.
func (tm *TemplateManager) ExecuteTemplateString(w io.Writer, content string, data map[string]any) error {
	tm.mu.RLock()
	t := New(content,
		WithFS(os.DirFS(tm.templateDir)),
		WithConfig(tm.config),
		WithRegistry(tm.reg),
		WithLogger(tm.logger),
	)
	tm.mu.RUnlock()
	return t.Execute(w, data)
}

// GetTemplateNames returns the names of the loaded full templates, sorted.
func (tm *TemplateManager) GetTemplateNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.templateNames...)
}

// GetPartialNames returns the names of the loaded partials, sorted.
func (tm *TemplateManager) GetPartialNames() []string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return append([]string(nil), tm.partialNames...)
}

// GetTemplateDir returns the template dir that the TemplateManager uses.
func (tm *TemplateManager) GetTemplateDir() string {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.templateDir
}

// Watch refreshes the manager whenever a template or partial in the
// directory changes. It blocks until ctx is done.
func (tm *TemplateManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create template watcher: %w", err)
	}
	defer func(watcher *fsnotify.Watcher) {
		_ = watcher.Close()
	}(watcher)

	if err = watcher.Add(tm.GetTemplateDir()); err != nil {
		return fmt.Errorf("failed to watch %s: %w", tm.GetTemplateDir(), err)
	}
	tm.logger.Info("Watching template directory", slog.String("dir", tm.GetTemplateDir()))

	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if tm.isTemplateFile(event.Name) && event.Op != fsnotify.Chmod {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			tm.logger.Error("Template watcher error", "error", err)
		case <-timer.C:
			if err := tm.Refresh(); err != nil {
				tm.logger.Error("Template refresh after change failed", "error", err)
			}
		}
	}
}

func (tm *TemplateManager) isTemplateFile(path string) bool {
	cfg := tm.GetConfig()
	base := filepath.Base(path)
	for _, pattern := range []string{cfg.TemplateGlob, cfg.PartialGlob} {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}
