package verification

import (
	"errors"
	"time"

	"github.com/salonbook/salonbook/services/booking-service/internal/phone"
	"golang.org/x/crypto/bcrypt"
)

// Policy holds the tunables of the verification flow. It can be loaded from YAML and
// overridden from the environment.
type Policy struct {
	TTL            time.Duration `yaml:"ttl"`
	ResendCooldown time.Duration `yaml:"resend_cooldown"`
	MaxAttempts    int           `yaml:"max_attempts"`
	CodeLength     int           `yaml:"code_length"`
	CodeHashCost   int           `yaml:"code_hash_cost"`
	ClockSkew      time.Duration `yaml:"clock_skew"`
	SendLimit      int           `yaml:"send_limit"`
	SendWindow     time.Duration `yaml:"send_window"`
	Retention      time.Duration `yaml:"retention"`
	Phone          phone.Rules   `yaml:"phone"`
}

func DefaultPolicy() Policy {
	return Policy{
		TTL:            10 * time.Minute,
		ResendCooldown: 60 * time.Second,
		MaxAttempts:    3,
		CodeLength:     6,
		CodeHashCost:   bcrypt.DefaultCost,
		ClockSkew:      time.Minute,
		SendLimit:      3,
		SendWindow:     10 * time.Minute,
		Retention:      24 * time.Hour,
		Phone:          phone.DefaultRules(),
	}
}

func (p Policy) Validate() error {
	var problems []error
	if p.TTL <= 0 {
		problems = append(problems, errors.New("ttl must be positive"))
	}
	if p.ResendCooldown < 0 || p.ResendCooldown >= p.TTL {
		problems = append(problems, errors.New("resend_cooldown must be shorter than ttl"))
	}
	if p.MaxAttempts < 1 {
		problems = append(problems, errors.New("max_attempts must be at least 1"))
	}
	if p.CodeLength < 4 || p.CodeLength > 6 {
		problems = append(problems, errors.New("code_length must be between 4 and 6"))
	}
	if p.CodeHashCost < bcrypt.MinCost || p.CodeHashCost > bcrypt.MaxCost {
		problems = append(problems, errors.New("code_hash_cost out of bcrypt range"))
	}
	if p.Phone.MinDigits < phone.MinSuffixDigits || p.Phone.MaxDigits < p.Phone.MinDigits {
		problems = append(problems, errors.New("phone digit bounds are inconsistent"))
	}
	return errors.Join(problems...)
}
