package password

import (
	"errors"
	"fmt"
	"unicode"
)

// Policy is the strength requirement applied to new passwords. The zero
// value accepts anything; use DefaultPolicy for the standard requirement.
type Policy struct {
	MinLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires eight characters drawn from all four classes.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// Check reports why the password fails the policy, or nil.
func (p Policy) Check(password string) error {
	if len(password) < p.MinLength {
		return fmt.Errorf("password must be at least %d characters", p.MinLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}

	switch {
	case p.RequireUpper && !upper:
		return errors.New("password must contain an uppercase letter")
	case p.RequireLower && !lower:
		return errors.New("password must contain a lowercase letter")
	case p.RequireDigit && !digit:
		return errors.New("password must contain a digit")
	case p.RequireSymbol && !symbol:
		return errors.New("password must contain a symbol")
	}
	return nil
}
