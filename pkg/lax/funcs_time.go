package lax

import (
	"time"

	"github.com/ncruces/go-strftime"
)

// timeNow is the clock behind the time builtins. Tests replace it.
var timeNow = time.Now

func clockFormat(name, def string) Func {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 0, 1); err != nil {
			return nil, err
		}
		layout := def
		if len(args) == 1 && args[0] != nil {
			layout = toString(args[0])
		}
		return strftime.Format(layout, timeNow()), nil
	}
}

func clockField(name string, field func(time.Time) int) Func {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 0, 0); err != nil {
			return nil, err
		}
		return int64(field(timeNow())), nil
	}
}

var (
	now   = clockFormat("now", "%Y-%m-%d %H:%M:%S")
	today = clockFormat("today", "%Y-%m-%d")
	year  = clockField("year", func(t time.Time) int { return t.Year() })
	month = clockField("month", func(t time.Time) int { return int(t.Month()) })
	day   = clockField("day", func(t time.Time) int { return t.Day() })
)
