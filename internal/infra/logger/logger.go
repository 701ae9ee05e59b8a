package logger

import (
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base     *zap.Logger
	initOnce sync.Once
)

// New returns the process-wide structured logger. The first call decides
// the configuration; later calls return the same instance.
func New(env string) (*zap.Logger, error) {
	var err error
	initOnce.Do(func() {
		var conf zap.Config
		if env == "production" {
			conf = zap.NewProductionConfig()
		} else {
			conf = zap.NewDevelopmentConfig()
			conf.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		base, err = conf.Build()
	})
	return base, err
}

// RequestIDKey is the context key the transport layer files request
// identifiers under.
type RequestIDKey struct{}

var emailRegex = regexp.MustCompile(`^([^@]{1,3})[^@]*(@.+)$`)

// MaskEmail hides the local part of an address beyond its first three
// characters: john.doe@example.com becomes joh***@example.com.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}

	if m := emailRegex.FindStringSubmatch(email); len(m) == 3 {
		return m[1] + "***" + m[2]
	}

	if _, domain, ok := strings.Cut(email, "@"); ok {
		return "***@" + domain
	}
	return "***"
}

// MaskIP keeps the first two IPv4 octets or the first four IPv6 groups
// and blanks the rest.
func MaskIP(ip string) string {
	if ip == "" {
		return ""
	}

	if octets := strings.Split(ip, "."); len(octets) == 4 {
		return octets[0] + "." + octets[1] + ".*.*"
	}
	if groups := strings.Split(ip, ":"); len(groups) >= 4 {
		return strings.Join(groups[:4], ":") + ":*:*:*:*"
	}
	return "***"
}
