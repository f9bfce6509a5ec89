package main

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/cast"
	"github.com/yuin/goldmark"
)

// pageTimeLayout matches the timestamps the article store puts in contexts.
const pageTimeLayout = "2006-01-02 15:04"

var timeNow = time.Now

// hostFuncs returns the functions the host adds to every template on top of
// the built-in library. loc is the zone page timestamps are written in.
func hostFuncs(loc *time.Location) map[string]any {
	md := goldmark.New()
	ugc := bluemonday.UGCPolicy()

	return map[string]any{
		// markdown converts Markdown to HTML. The output is not sanitized.
		"markdown": func(src string) (string, error) {
			var buf bytes.Buffer
			if err := md.Convert([]byte(src), &buf); err != nil {
				return "", fmt.Errorf("failed to convert markdown: %w", err)
			}
			return buf.String(), nil
		},
		"sanitize": func(html string) string {
			return ugc.Sanitize(html)
		},
		"ago": func(v any) (string, error) {
			then, err := toTime(v, loc)
			if err != nil {
				return "", err
			}
			return humanize.RelTime(then, timeNow(), "ago", "from now"), nil
		},
		"bytes": func(n int64) string {
			if n < 0 {
				return "-" + humanize.Bytes(uint64(-n))
			}
			return humanize.Bytes(uint64(n))
		},
		"comma": func(n int64) string {
			return humanize.Comma(n)
		},
	}
}

// toTime reads a page timestamp string or a unix seconds value.
func toTime(v any, loc *time.Location) (time.Time, error) {
	if s, ok := v.(string); ok && strings.Contains(s, "-") {
		t, err := time.ParseInLocation(pageTimeLayout, s, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("ago() cannot parse %q", s)
		}
		return t, nil
	}
	ts, err := cast.ToInt64E(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("ago() needs a timestamp: %w", err)
	}
	return time.Unix(ts, 0), nil
}
