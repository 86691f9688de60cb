// Package phone canonicalizes user-entered phone numbers to bare digit strings and matches
// them against stored identities.
package phone

import (
	"strings"

	"github.com/salonbook/salonbook/services/booking-service/internal/errs"
)

// MinSuffixDigits is the shortest digit string that may take part in a suffix match.
const MinSuffixDigits = 7

// ErrAmbiguous means a number matched more than one stored identity.
var ErrAmbiguous = &errs.Error{Kind: errs.KindInvalidInput, Message: "phone number matches more than one identity"}

// Normalize strips every character that is not an ASCII digit. It is idempotent.
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Rules bound the digit count of a canonical number (E.164 caps MSISDNs at 15 digits).
type Rules struct {
	MinDigits int `yaml:"min_digits"`
	MaxDigits int `yaml:"max_digits"`
}

func DefaultRules() Rules {
	return Rules{MinDigits: 10, MaxDigits: 15}
}

func (r Rules) IsValid(digits string) bool {
	if len(digits) < r.MinDigits || len(digits) > r.MaxDigits {
		return false
	}
	return Normalize(digits) == digits
}

// Canonical normalizes raw and validates the result.
func (r Rules) Canonical(raw string) (string, error) {
	digits := Normalize(raw)
	if !r.IsValid(digits) {
		return "", errs.InvalidInput("phone must contain %d to %d digits", r.MinDigits, r.MaxDigits)
	}
	return digits, nil
}

// SuffixKey is the tail used to pre-filter stored identities before MatchSuffix.
func SuffixKey(digits string) string {
	if len(digits) <= MinSuffixDigits {
		return digits
	}
	return digits[len(digits)-MinSuffixDigits:]
}

// Matches reports whether a and b name the same number when one of them may lack a country
// prefix: the longer must end with the shorter.
func Matches(a, b string) bool {
	a, b = Normalize(a), Normalize(b)
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) < MinSuffixDigits {
		return false
	}
	return strings.HasSuffix(a, b)
}

// MatchSuffix returns the index of the single candidate matching digits. Each candidate
// stands for one stored identity, so two identities sharing a number are ambiguous too.
// No match is NotFound; several matches is ErrAmbiguous rather than a silent first pick.
func MatchSuffix(digits string, candidates []string) (int, error) {
	found := -1
	for i, c := range candidates {
		if !Matches(digits, c) {
			continue
		}
		if found >= 0 {
			return -1, ErrAmbiguous
		}
		found = i
	}
	if found < 0 {
		return -1, errs.NotFound("phone identity")
	}
	return found, nil
}
