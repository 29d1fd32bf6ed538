package domain

import (
	"strings"
	"time"
)

// Watermark is the remote "date edited" marker used for change detection.
type Watermark string

var watermarkLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (w Watermark) IsZero() bool {
	return strings.TrimSpace(string(w)) == ""
}

// Time parses the watermark with the layouts the remote is known to emit.
func (w Watermark) Time() (time.Time, bool) {
	s := strings.TrimSpace(string(w))
	for _, layout := range watermarkLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NewerThan reports whether w is strictly newer than stored.
// An empty w is always newer; an empty stored value never holds w back.
func (w Watermark) NewerThan(stored Watermark) bool {
	if w.IsZero() || stored.IsZero() {
		return true
	}
	wt, okW := w.Time()
	st, okS := stored.Time()
	if okW && okS {
		return wt.After(st)
	}
	return strings.TrimSpace(string(w)) > strings.TrimSpace(string(stored))
}
