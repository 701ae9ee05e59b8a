package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Variant = "argon2id"
	argon2Version = "v=19"
)

var (
	errInvalidDigestFormat = errors.New("argon2: invalid encoded digest format")
	errInvalidConfig       = errors.New("argon2: invalid configuration")
)

// Argon2Config defines tunable parameters for Argon2id credential hashing.
type Argon2Config struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config returns the baseline cost settings: 64 MiB of memory,
// two passes, four lanes, a 16 byte salt and a 32 byte key.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{
		Memory:      64 * 1024,
		Iterations:  2,
		Parallelism: 4,
		SaltLength:  16,
		KeyLength:   32,
	}
}

var (
	argon2ConfigMu     sync.RWMutex
	activeArgon2Config = DefaultArgon2Config()
)

// CurrentArgon2Config returns the cost settings new digests are written with.
func CurrentArgon2Config() Argon2Config {
	argon2ConfigMu.RLock()
	defer argon2ConfigMu.RUnlock()
	return activeArgon2Config
}

// ConfigureArgon2 replaces the active cost settings after validation.
// Digests written under earlier settings stay verifiable because every
// digest embeds the parameters it was derived with.
func ConfigureArgon2(cfg Argon2Config) error {
	if err := validateArgon2Config(cfg); err != nil {
		return err
	}

	argon2ConfigMu.Lock()
	defer argon2ConfigMu.Unlock()
	activeArgon2Config = cfg
	return nil
}

func validateArgon2Config(cfg Argon2Config) error {
	switch {
	case cfg.Memory < 8*1024:
		return fmt.Errorf("%w: memory below 8192 KiB", errInvalidConfig)
	case cfg.Iterations < 1:
		return fmt.Errorf("%w: iterations must be positive", errInvalidConfig)
	case cfg.Parallelism < 1:
		return fmt.Errorf("%w: parallelism must be positive", errInvalidConfig)
	case cfg.SaltLength < 8:
		return fmt.Errorf("%w: salt shorter than 8 bytes", errInvalidConfig)
	case cfg.KeyLength < 16:
		return fmt.Errorf("%w: key shorter than 16 bytes", errInvalidConfig)
	}
	return nil
}

// HashPassword derives an Argon2id digest for the secret using the active
// cost settings. The result has the shape
//
//	argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<key>
//
// with salt and key in unpadded standard base64. Because the parameters
// travel inside the digest, verification never depends on runtime
// configuration. The secret itself is never logged or retained.
func HashPassword(password string) (string, error) {
	cfg := CurrentArgon2Config()

	salt := make([]byte, cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("argon2: generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)

	return fmt.Sprintf("%s$%s$m=%d,t=%d,p=%d$%s$%s",
		argon2Variant, argon2Version,
		cfg.Memory, cfg.Iterations, cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether the secret matches the stored digest.
// The key is re-derived with the parameters embedded in the digest and
// compared in constant time. Empty inputs never match and never error.
func VerifyPassword(password, encoded string) (bool, error) {
	if password == "" || encoded == "" {
		return false, nil
	}

	cfg, salt, want, err := decodeDigest(encoded)
	if err != nil {
		return false, err
	}

	got := argon2.IDKey([]byte(password), salt, cfg.Iterations, cfg.Memory, cfg.Parallelism, cfg.KeyLength)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// decodeDigest splits an encoded digest into the cost settings, salt, and
// key it carries. Embedded parameters pass the same validation as
// configured ones so a tampered digest cannot drive derivation cost to
// useless values.
func decodeDigest(encoded string) (Argon2Config, []byte, []byte, error) {
	fail := func(err error) (Argon2Config, []byte, []byte, error) {
		return Argon2Config{}, nil, nil, err
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return fail(errInvalidDigestFormat)
	}
	if parts[0] != argon2Variant {
		return fail(fmt.Errorf("argon2: unexpected variant %q", parts[0]))
	}
	if parts[1] != argon2Version {
		return fail(fmt.Errorf("argon2: unsupported version %q", parts[1]))
	}

	cfg, err := parseCostParams(parts[2])
	if err != nil {
		return fail(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fail(fmt.Errorf("argon2: decode salt: %w", err))
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fail(fmt.Errorf("argon2: decode key: %w", err))
	}

	cfg.SaltLength = uint32(len(salt))
	cfg.KeyLength = uint32(len(key))
	if err := validateArgon2Config(cfg); err != nil {
		return fail(err)
	}

	return cfg, salt, key, nil
}

// parseCostParams reads the "m=..,t=..,p=.." segment of a digest. Salt and
// key lengths are filled in by the caller once those fields are decoded.
func parseCostParams(segment string) (Argon2Config, error) {
	var cfg Argon2Config

	entries := strings.Split(segment, ",")
	if len(entries) != 3 {
		return cfg, errInvalidDigestFormat
	}

	for _, entry := range entries {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return cfg, errInvalidDigestFormat
		}

		width := 32
		if name == "p" {
			width = 8
		}
		n, err := strconv.ParseUint(value, 10, width)
		if err != nil {
			return cfg, fmt.Errorf("argon2: parse %s: %w", name, err)
		}

		switch name {
		case "m":
			cfg.Memory = uint32(n)
		case "t":
			cfg.Iterations = uint32(n)
		case "p":
			cfg.Parallelism = uint8(n)
		default:
			return cfg, errInvalidDigestFormat
		}
	}

	return cfg, nil
}
