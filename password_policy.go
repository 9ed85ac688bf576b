package auth

import (
	"github.com/nbutton23/zxcvbn-go"
)

// ZxcvbnPolicy scores candidate passwords with zxcvbn and rejects anything
// below MinScore. User-derived inputs (name, email) count against the score
// so "alice@example.com" is a bad password for alice.
type ZxcvbnPolicy struct {
	MinScore int
}

// NewPasswordPolicy returns the default policy with the given minimum
// score. Zero or negative falls back to DefaultMinPasswordScore.
func NewPasswordPolicy(minScore int) ZxcvbnPolicy {
	if minScore <= 0 {
		minScore = DefaultMinPasswordScore
	}
	return ZxcvbnPolicy{MinScore: minScore}
}

// Check implements PasswordPolicy.
func (p ZxcvbnPolicy) Check(password string, userInputs ...string) error {
	if password == "" {
		return ErrNoEmptyString
	}

	minScore := p.MinScore
	if minScore <= 0 {
		minScore = DefaultMinPasswordScore
	}

	strength := zxcvbn.PasswordStrength(password, userInputs)
	if strength.Score < minScore {
		return ErrWeakPassword.Clone().WithMetadata(map[string]any{
			"score":     strength.Score,
			"min_score": minScore,
		})
	}

	return nil
}

var _ PasswordPolicy = ZxcvbnPolicy{}
