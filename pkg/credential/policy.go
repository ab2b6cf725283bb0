package credential

import (
	"fmt"
	"regexp"
	"unicode/utf8"
)

// MaxPasswordBytes is the longest password bcrypt accepts
const MaxPasswordBytes = 72

var (
	upperPattern   = regexp.MustCompile(`[A-Z]`)
	lowerPattern   = regexp.MustCompile(`[a-z]`)
	digitPattern   = regexp.MustCompile(`[0-9]`)
	specialPattern = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// PasswordPolicy defines the requirements for password complexity
type PasswordPolicy struct {
	MinLength          int
	MaxLength          int
	RequireUppercase   bool
	RequireLowercase   bool
	RequireDigit       bool
	RequireSpecialChar bool
}

// DefaultPasswordPolicy is applied to registration, password reset and admin resets.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:          10,
		MaxLength:          MaxPasswordBytes,
		RequireUppercase:   true,
		RequireLowercase:   true,
		RequireDigit:       true,
		RequireSpecialChar: true,
	}
}

// Check returns every rule the password breaks; an empty slice means it is acceptable.
func (p PasswordPolicy) Check(password string) []string {
	var problems []string

	length := utf8.RuneCountInString(password)
	if length < p.MinLength {
		problems = append(problems, fmt.Sprintf("Password must be at least %d characters long", p.MinLength))
	}
	if p.MaxLength > 0 && length > p.MaxLength {
		problems = append(problems, fmt.Sprintf("Password must be at most %d characters long", p.MaxLength))
	} else if len(password) > MaxPasswordBytes {
		problems = append(problems, fmt.Sprintf("Password must be at most %d bytes long", MaxPasswordBytes))
	}
	if p.RequireUppercase && !upperPattern.MatchString(password) {
		problems = append(problems, "Password must contain at least one uppercase letter")
	}
	if p.RequireLowercase && !lowerPattern.MatchString(password) {
		problems = append(problems, "Password must contain at least one lowercase letter")
	}
	if p.RequireDigit && !digitPattern.MatchString(password) {
		problems = append(problems, "Password must contain at least one number")
	}
	if p.RequireSpecialChar && !specialPattern.MatchString(password) {
		problems = append(problems, "Password must contain at least one special character")
	}
	return problems
}
