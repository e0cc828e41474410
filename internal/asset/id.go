package asset

import (
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	slugInvalid = regexp.MustCompile(`[^A-Za-z0-9-]+`)
	validID     = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// Slug reduces a filename to a lowercase identifier-safe stem.
func Slug(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	slug := slugInvalid.ReplaceAllString(stem, "-")
	slug = strings.ToLower(strings.Trim(slug, "-"))
	if slug == "" {
		return "asset"
	}
	return slug
}

// NewID derives a stable asset identifier from the sanitized original name
// and the creation timestamp. The embedded timestamp makes concurrent
// writers to the same identifier impossible.
func NewID(filename string, createdAt time.Time) string {
	return Slug(filename) + "-" + createdAt.UTC().Format("20060102150405")
}

// ValidID reports whether id is a well-formed asset identifier. Used to
// reject path traversal on lookups.
func ValidID(id string) bool {
	return validID.MatchString(id)
}
