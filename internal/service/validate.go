package service

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/identity-authority/internal/apperr"
)

var (
	emailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)
	// passwordCharsRe is the allowed alphabet; the class checks below
	// require one of each.
	passwordCharsRe = regexp.MustCompile(`^[A-Za-z\d@$!%*?&]{8,}$`)
	totpRe          = regexp.MustCompile(`^\d{6}$`)
	backupRe        = regexp.MustCompile(`^[0-9a-f]{8}$`)
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

const (
	msgLongPassword = "Password must be at most 72 bytes long"
	msgWeakPassword = "Password must be at least 8 characters long and contain uppercase, lowercase, number, and special character"
	msgBadUsername  = "Username must be 3-30 characters and contain only letters, numbers, and underscores"
)

// problems accumulates boundary validation messages.
type problems []string

func (p *problems) add(msg string) { *p = append(*p, msg) }

func (p problems) err() error {
	if len(p) == 0 {
		return nil
	}
	return apperr.InvalidInput(strings.Join(p, ". "))
}

func validEmail(email string) bool { return emailRe.MatchString(email) }

func validUsername(u string) bool { return usernameRe.MatchString(u) }

func strongPassword(pw string) bool {
	if !passwordCharsRe.MatchString(pw) {
		return false
	}
	return strings.ContainsAny(pw, "abcdefghijklmnopqrstuvwxyz") &&
		strings.ContainsAny(pw, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") &&
		strings.ContainsAny(pw, "0123456789") &&
		strings.ContainsAny(pw, "@$!%*?&")
}

func validName(n string) bool {
	l := utf8.RuneCountInString(n)
	return l >= 1 && l <= 50
}

// normalizeCode trims a second-factor code and lower-cases backup codes.
func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func validCodeFormat(code string) bool {
	return totpRe.MatchString(code) || backupRe.MatchString(code)
}
