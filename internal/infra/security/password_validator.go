package security

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// DefaultPasswordSymbols is the defined symbol set the policy accepts for
// the symbol-class requirement.
const DefaultPasswordSymbols = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// PasswordValidationError reports a single policy violation. Code names
// the rule that failed so callers can answer with the specific
// requirement instead of a generic rejection.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a candidate secret against one policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to the PasswordRule interface.
type PasswordRuleFunc func(password string) error

func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator runs rules in order and stops at the first violation.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	return &PasswordValidator{rules: append([]PasswordRule(nil), rules...)}
}

// Validate returns the first violation among the configured rules, or nil.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator is not configured")
	}
	for _, rule := range v.rules {
		if err := rule.Validate(password); err != nil {
			return err
		}
	}
	return nil
}

// classRule builds a rule that passes when any rune satisfies match.
func classRule(code, message string, match func(rune) bool) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if match(r) {
				return nil
			}
		}
		return &PasswordValidationError{Code: code, Message: message}
	})
}

// MinLengthRule requires at least min characters, counted as runes so
// multibyte characters are not shortchanged.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if utf8.RuneCountInString(password) >= min {
			return nil
		}
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must have at least %d characters", min),
		}
	})
}

// RequireUppercaseRule requires at least one uppercase letter.
func RequireUppercaseRule() PasswordRule {
	return classRule("uppercase", "password must contain at least one uppercase letter", unicode.IsUpper)
}

// RequireLowercaseRule requires at least one lowercase letter.
func RequireLowercaseRule() PasswordRule {
	return classRule("lowercase", "password must contain at least one lowercase letter", unicode.IsLower)
}

// RequireDigitRule requires at least one digit.
func RequireDigitRule() PasswordRule {
	return classRule("digit", "password must contain at least one digit", unicode.IsDigit)
}

// RequireSymbolRule requires at least one character from the given symbol
// set; an empty set falls back to the default.
func RequireSymbolRule(symbols string) PasswordRule {
	if symbols == "" {
		symbols = DefaultPasswordSymbols
	}
	return PasswordRuleFunc(func(password string) error {
		if strings.ContainsAny(password, symbols) {
			return nil
		}
		return &PasswordValidationError{
			Code:    "symbol",
			Message: "password must contain at least one symbol",
		}
	})
}

// RequireDifferentFrom rejects a candidate equal to the comparator.
func RequireDifferentFrom(comparator string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if password != comparator {
			return nil
		}
		return &PasswordValidationError{
			Code:    "different",
			Message: "new password must differ from the current password",
		}
	})
}

// RequirePasswordStrengthRule enforces a minimum zxcvbn score between 1
// and 4. A non-positive score disables the estimator. Contextual user
// inputs (username, email) lower the score of passwords derived from them.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	if minScore > 4 {
		minScore = 4
	}
	return PasswordRuleFunc(func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if zxcvbn.PasswordStrength(password, userInputs).Score >= minScore {
			return nil
		}
		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too easy to guess; choose a stronger one",
		}
	})
}
