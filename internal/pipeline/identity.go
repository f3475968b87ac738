// internal/pipeline/identity.go
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

const maxSlugLen = 90

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

// Slugify lowercases value and collapses everything outside [a-z0-9-] into dashes.
func Slugify(value string) string {
	slug := strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(value), "-"), "-")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "-")
	}
	if slug == "" {
		return "task"
	}
	return slug
}

// Identity is the stable key for a (requester, task) pair. It doubles as the
// repository name and the workspace directory name.
func Identity(email, task string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return Slugify(task) + "-" + hex.EncodeToString(sum[:])[:8]
}

// HashSecret is stored instead of the raw secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
