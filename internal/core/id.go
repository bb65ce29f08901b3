package core

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"

	"github.com/google/uuid"
)

// NewID generates a UUID v7 (time-ordered).
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails (should not happen).
		return uuid.New().String()
	}
	return id.String()
}

// SlugLen is the fixed length of a workload slug.
const SlugLen = 6

var slugPattern = regexp.MustCompile(`^[0-9a-f]{6}$`)

// NewSlug generates a 6-character lowercase-hex workload slug.
// Slugs are immutable once assigned; uniqueness is enforced by the store.
func NewSlug() string {
	b := make([]byte, SlugLen/2)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}

// ValidSlug reports whether s is a well-formed slug.
func ValidSlug(s string) bool {
	return slugPattern.MatchString(s)
}
