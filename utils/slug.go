package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	nonAlphanumeric = regexp.MustCompile(`[^a-z0-9\s-]`)
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Slugify turns an arbitrary title into a URL-friendly slug.
// "Hello, World! 2026" -> "hello-world-2026"
func Slugify(s string) string {
	result := strings.ToLower(strings.TrimSpace(s))
	result = nonAlphanumeric.ReplaceAllString(result, "")
	result = strings.ReplaceAll(result, " ", "-")
	result = multipleHyphens.ReplaceAllString(result, "-")
	return strings.Trim(result, "-")
}

// PostSlug derives the unique post slug from the title and creation time.
func PostSlug(title string, createdAt time.Time) string {
	return Slugify(title) + "-" + strconv.FormatInt(createdAt.Unix(), 10)
}
