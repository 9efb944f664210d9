package query

import (
	"sort"
	"strings"
)

// ExclusionMarker prefixes tokens that exclude matching articles from a
// tab query, e.g. "economy -crypto -nft".
const ExclusionMarker = "-"

// Parse splits a raw tab keyword into the search term sent to the API
// and the list of exclusion terms. Only the first positive token is
// used as the search term; additional positive tokens are ignored. A
// bare exclusion marker with nothing after it is dropped.
func Parse(raw string) (string, []string) {
	term := ""
	var excludes []string
	for _, token := range strings.Fields(raw) {
		if strings.HasPrefix(token, ExclusionMarker) {
			if len(token) > 1 {
				excludes = append(excludes, token[1:])
			}
			continue
		}
		if term == "" {
			term = token
		}
	}
	return term, excludes
}

// HasPositiveKeyword reports whether the raw tab query resolves to a
// non-empty search term. Callers must check this before dispatching a
// fetch.
func HasPositiveKeyword(raw string) bool {
	term, _ := Parse(raw)
	return term != ""
}

// BuildFetchKey returns a normalized signature for a (search term,
// exclusion set) pair. Exclusions are lowercased, deduplicated and
// sorted so that differing exclusion sets never collide on one key.
func BuildFetchKey(term string, excludeWords []string) string {
	seen := make(map[string]struct{})
	normalized := make([]string, 0, len(excludeWords))
	for _, word := range excludeWords {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		normalized = append(normalized, word)
	}
	sort.Strings(normalized)

	return strings.ToLower(strings.TrimSpace(term)) + "|" + strings.Join(normalized, "|")
}
