package lax

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strings"
)

var includePattern = regexp.MustCompile(`\{%\s*include\s+['"]([^'"]+)['"]\s*%\}`)

// includer expands include directives against a filesystem rooted at the
// template's base directory.
type includer struct {
	fsys     fs.FS
	maxDepth int
	logger   *slog.Logger
}

// expandAll replaces include directives until none remain. Included text is
// expanded recursively before it is substituted. self names the file src was
// read from, if any, so a template including itself is caught as a cycle.
func (in *includer) expandAll(src, self string) string {
	var stack []string
	if self != "" {
		stack = []string{path.Clean(self)}
	}
	out := src
	for i := 0; i < in.maxDepth && includePattern.MatchString(out); i++ {
		out = in.expand(out, stack)
	}
	return out
}

func (in *includer) expand(src string, stack []string) string {
	return includePattern.ReplaceAllStringFunc(src, func(tag string) string {
		name := includePattern.FindStringSubmatch(tag)[1]
		return in.load(name, stack)
	})
}

func (in *includer) load(name string, stack []string) string {
	clean := path.Clean(strings.TrimPrefix(strings.ReplaceAll(name, `\`, "/"), "./"))
	if !fs.ValidPath(clean) {
		in.logger.Warn("Rejected include outside template directory", "include", name)
		return fmt.Sprintf("[Error: Failed to include '%s': path escapes template directory]", name)
	}
	if slices.Contains(stack, clean) || len(stack) >= in.maxDepth {
		in.logger.Warn("Include cycle detected", "include", name, "depth", len(stack))
		return fmt.Sprintf("[Error: Include cycle detected for '%s']", name)
	}

	data, err := fs.ReadFile(in.fsys, clean)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			in.logger.Warn("Include file not found", "include", name)
			return fmt.Sprintf("[Error: Include file '%s' not found]", name)
		}
		in.logger.Error("Failed to read include file", "include", name, "error", err)
		return fmt.Sprintf("[Error: Failed to include '%s': %v]", name, err)
	}

	next := make([]string, len(stack), len(stack)+1)
	copy(next, stack)
	return in.expand(string(data), append(next, clean))
}
