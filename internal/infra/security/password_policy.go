package security

import "fmt"

const defaultMinPasswordLength = 12

// PasswordPolicyConfig carries the tunable parts of the password policy.
// The four character-class requirements are not tunable; they are part of
// the account contract.
type PasswordPolicyConfig struct {
	MinLength int
	Symbols   string
	// MinStrengthScore enables the supplementary zxcvbn estimator when > 0.
	// The mandatory rules above always run first so a violation is reported
	// as the specific rule that failed.
	MinStrengthScore int
}

// DefaultPasswordPolicyConfig returns the built-in policy parameters.
func DefaultPasswordPolicyConfig() PasswordPolicyConfig {
	return PasswordPolicyConfig{
		MinLength: defaultMinPasswordLength,
		Symbols:   DefaultPasswordSymbols,
	}
}

// PasswordPolicy validates candidate secrets against the account policy:
// minimum length plus one character from each of the upper, lower, digit,
// and symbol classes.
type PasswordPolicy struct {
	cfg PasswordPolicyConfig
}

// NewPasswordPolicy builds a policy from the supplied parameters, filling
// zero values with defaults.
func NewPasswordPolicy(cfg PasswordPolicyConfig) *PasswordPolicy {
	if cfg.MinLength <= 0 {
		cfg.MinLength = defaultMinPasswordLength
	}
	if cfg.Symbols == "" {
		cfg.Symbols = DefaultPasswordSymbols
	}
	return &PasswordPolicy{cfg: cfg}
}

// DefaultPasswordPolicy returns the policy with built-in parameters.
func DefaultPasswordPolicy() *PasswordPolicy {
	return NewPasswordPolicy(DefaultPasswordPolicyConfig())
}

// Validate applies the policy rules, with optional contextual user inputs
// (username, email) feeding the strength estimator when it is enabled.
func (p *PasswordPolicy) Validate(password string, userInputs ...string) error {
	if p == nil {
		return fmt.Errorf("password policy is not configured")
	}

	rules := []PasswordRule{
		MinLengthRule(p.cfg.MinLength),
		RequireUppercaseRule(),
		RequireLowercaseRule(),
		RequireDigitRule(),
		RequireSymbolRule(p.cfg.Symbols),
	}
	if p.cfg.MinStrengthScore > 0 {
		rules = append(rules, RequirePasswordStrengthRule(p.cfg.MinStrengthScore, userInputs...))
	}

	return NewPasswordValidator(rules...).Validate(password)
}
