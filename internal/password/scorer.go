// Package password scores passwords against the configured strength policy.
package password

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"onboard/internal/settings/models"
)

// SpecialCharacters is the set accepted by the special-character rule.
const SpecialCharacters = `!@#$%^&*()_+-=[]{}|;:,.<>?`

const checkWeight = 25

// Result is the outcome of scoring one password.
type Result struct {
	Valid    bool     `json:"valid"`
	Score    int      `json:"score"`
	Messages []string `json:"messages"`
}

// Score rates pw against policy. Four checks are worth 25 points each; a check
// that the policy does not require is credited. A required but missing special
// character costs 25 points. The score is clamped to [0, 100].
func Score(pw string, policy models.PasswordPolicy) Result {
	if !policy.Enabled {
		return Result{Valid: true, Score: 100, Messages: []string{}}
	}

	var hasDigit, hasUpper, hasLower, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		}
		if strings.ContainsRune(SpecialCharacters, r) {
			hasSpecial = true
		}
	}

	score := 0
	messages := []string{}

	if utf8.RuneCountInString(pw) >= policy.MinLength {
		score += checkWeight
	} else {
		messages = append(messages, fmt.Sprintf("Password must be at least %d characters long", policy.MinLength))
	}

	checks := []struct {
		required bool
		present  bool
		message  string
	}{
		{policy.RequireNumber, hasDigit, "Password must contain at least one number"},
		{policy.RequireUpper, hasUpper, "Password must contain at least one uppercase letter"},
		{policy.RequireLower, hasLower, "Password must contain at least one lowercase letter"},
	}
	for _, c := range checks {
		if !c.required || c.present {
			score += checkWeight
			continue
		}
		messages = append(messages, c.message)
	}

	if policy.RequireSpecial && !hasSpecial {
		score -= checkWeight
		messages = append(messages, "Password must contain at least one special character")
	}

	return Result{
		Valid:    len(messages) == 0,
		Score:    min(max(score, 0), 100),
		Messages: messages,
	}
}
