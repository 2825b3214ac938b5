package policy

import (
	"regexp"
	"strings"
	"time"
)

const (
	ReasonMinLength  = 50
	ReasonMaxLength  = 2048
	CommentMinLength = 10
	CommentMaxLength = 1024

	// Expirations further out than this are allowed but flagged.
	LongExpiryHorizon = 365 * 24 * time.Hour
)

// PrivilegedRoles entitle their holders to auto-approval and to reviewing
// others' requests.
var PrivilegedRoles = []string{"ADMIN", "SECURITY-CHAMPION"}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripMarkup removes HTML tags before length validation so stored markup
// cannot smuggle script content and length limits apply to visible text.
func StripMarkup(raw string) string {
	return strings.TrimSpace(tagPattern.ReplaceAllString(raw, ""))
}

func ValidReason(sanitized string) bool {
	length := len([]rune(sanitized))
	return length >= ReasonMinLength && length <= ReasonMaxLength
}

func ValidReviewComment(sanitized string) bool {
	length := len([]rune(sanitized))
	return length >= CommentMinLength && length <= CommentMaxLength
}

func ValidExpiry(expiresAt, now time.Time) bool {
	return expiresAt.After(now)
}

// LongExpiry reports an expiry more than a year out. Allowed, but callers
// log it at WARN.
func LongExpiry(expiresAt, now time.Time) bool {
	return expiresAt.After(now.Add(LongExpiryHorizon))
}

func IsPrivileged(roles []string) bool {
	for _, role := range roles {
		for _, privileged := range PrivilegedRoles {
			if strings.EqualFold(strings.TrimSpace(role), privileged) {
				return true
			}
		}
	}
	return false
}

// ValidPageSize restricts list pagination to the supported page sizes.
func ValidPageSize(size int) bool {
	return size == 20 || size == 50 || size == 100
}
