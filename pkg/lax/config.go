package lax

// Config holds the safety limits applied while compiling and rendering.
type Config struct {
	// MaxIncludeDepth caps how deeply include directives may nest. An include
	// past this depth, or one that re-enters a file already being expanded,
	// is replaced by an include cycle marker.
	MaxIncludeDepth int `json:"max_include_depth"`

	// MaxRenderDepth caps the nesting of if/for blocks followed during a render.
	// Blocks nested deeper render nothing.
	MaxRenderDepth int `json:"max_render_depth"`

	// TemplateGlob is the pattern of full templates inside a manager directory.
	TemplateGlob string `json:"template_glob"`

	// PartialGlob is the pattern of includable partials inside a manager directory.
	PartialGlob string `json:"partial_glob"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() *Config {
	return &Config{
		MaxIncludeDepth: 16,
		MaxRenderDepth:  64,
		TemplateGlob:    "*.tmpl.html",
		PartialGlob:     "*.part.html",
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.MaxIncludeDepth <= 0 {
		out.MaxIncludeDepth = d.MaxIncludeDepth
	}
	if out.MaxRenderDepth <= 0 {
		out.MaxRenderDepth = d.MaxRenderDepth
	}
	if out.TemplateGlob == "" {
		out.TemplateGlob = d.TemplateGlob
	}
	if out.PartialGlob == "" {
		out.PartialGlob = d.PartialGlob
	}
	return &out
}
