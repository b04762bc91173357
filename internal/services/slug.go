package services

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MaxSlugAttempts bounds the slug uniqueness loop.
	MaxSlugAttempts = 1000
	// MaxUsernameAttempts bounds the username uniqueness loop.
	MaxUsernameAttempts = 1000

	// maxSlugLength leaves room for a "-999" suffix in the 255 character
	// slug column.
	maxSlugLength = 240

	untitledSlug        = "untitled"
	minUsernameLength   = 3
	maxUsernameLength   = 20
	defaultUsernameBase = "user"
)

var (
	slugStrip       = regexp.MustCompile(`[^\p{L}\p{N}_\s-]`)
	slugCollapse    = regexp.MustCompile(`[-\s]+`)
	usernameStrip   = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// Slugify turns a title into a URL slug: lower case, punctuation dropped,
// whitespace and hyphen runs collapsed to a single hyphen. Long slugs are cut
// to maxSlugLength runes.
func Slugify(title string) string {
	slug := strings.ToLower(strings.TrimSpace(title))
	slug = slugStrip.ReplaceAllString(slug, "")
	slug = slugCollapse.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")
	if runes := []rune(slug); len(runes) > maxSlugLength {
		slug = strings.TrimRight(string(runes[:maxSlugLength]), "-")
	}
	if slug == "" {
		return untitledSlug
	}
	return slug
}

// slugCandidate returns the n-th slug to try: base, base-1, base-2, ...
func slugCandidate(base string, n int) string {
	if n == 0 {
		return base
	}
	return fmt.Sprintf("%s-%d", base, n)
}

// UsernameBase derives a username stem from an email local part, falling back
// to the display name with spaces removed.
func UsernameBase(email, name string) string {
	var base string
	if local, _, ok := strings.Cut(email, "@"); ok && local != "" {
		base = local
	} else {
		base = strings.ToLower(strings.ReplaceAll(name, " ", ""))
	}
	base = usernameStrip.ReplaceAllString(base, "")
	if len(base) < minUsernameLength {
		base = defaultUsernameBase + base
	}
	if len(base) > maxUsernameLength {
		base = base[:maxUsernameLength]
	}
	return base
}

// usernameCandidate returns the n-th username to try: base, base1, base2, ...
// The stem is shortened so the result stays within the length limit.
func usernameCandidate(base string, n int) string {
	if n == 0 {
		return base
	}
	suffix := fmt.Sprintf("%d", n)
	if len(base)+len(suffix) > maxUsernameLength {
		base = base[:maxUsernameLength-len(suffix)]
	}
	return base + suffix
}

// ValidateUsername checks the character set and length of a chosen username.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: username can only contain letters, numbers, and underscores", ErrValidation)
	}
	if len(username) < minUsernameLength || len(username) > maxUsernameLength {
		return fmt.Errorf("%w: username must be between %d and %d characters", ErrValidation, minUsernameLength, maxUsernameLength)
	}
	return nil
}
