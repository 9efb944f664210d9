package storage

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"github.com/twbeatles/navernews-tabsearch/internal/textutil"
)

// Fingerprint returns the normalized-title hash used for duplicate
// detection: lowercase, strip all whitespace, md5. Titles differing
// only by case or whitespace runs map to the same fingerprint.
func Fingerprint(title string) string {
	normalized := textutil.CollapseWhitespace(strings.ToLower(title))
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
