// Package textutil holds the small text normalization helpers shared by
// the fetch worker and the storage layer.
package textutil

import (
	"html"
	"regexp"
	"time"
)

var (
	reBoldTags   = regexp.MustCompile(`</?b>`)
	reWhitespace = regexp.MustCompile(`\s+`)
)

// Fallback layouts for publish dates that are not RFC 1123Z.
var dateLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CleanMarkup strips the emphasis tags the search API embeds in titles
// and descriptions and unescapes HTML entities.
func CleanMarkup(s string) string {
	return html.UnescapeString(reBoldTags.ReplaceAllString(s, ""))
}

// CollapseWhitespace removes every whitespace run from s.
func CollapseWhitespace(s string) string {
	return reWhitespace.ReplaceAllString(s, "")
}

// ParseDateToTS converts a raw publish-date string into a unix
// timestamp for sorting. The API emits RFC 1123Z dates; a few ISO-ish
// layouts are tried as fallback. Unparseable dates map to 0.
func ParseDateToTS(dateStr string) float64 {
	if dateStr == "" {
		return 0
	}
	if t, err := time.Parse(time.RFC1123Z, dateStr); err == nil {
		return float64(t.Unix())
	}
	trimmed := dateStr
	if len(trimmed) > 19 {
		trimmed = trimmed[:19]
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.Local); err == nil {
			return float64(t.Unix())
		}
	}
	return 0
}
