package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/andrewlasiter/fda-tools-sub001/internal/infra/security"
)

type AppConfig struct {
	App        AppSettings        `mapstructure:"app"`
	Storage    StorageSettings    `mapstructure:"storage"`
	IdentityDB PostgresSettings   `mapstructure:"identity_db"`
	AuditDB    PostgresSettings   `mapstructure:"audit_db"`
	Redis      RedisSettings      `mapstructure:"redis"`
	Kafka      KafkaSettings      `mapstructure:"kafka"`
	Session    SessionSettings    `mapstructure:"session"`
	Lockout    LockoutSettings    `mapstructure:"lockout"`
	Telemetry  TelemetrySettings  `mapstructure:"telemetry"`
	Argon2     Argon2Settings     `mapstructure:"argon2"`
	Password   PasswordSettings   `mapstructure:"password"`
}

type AppSettings struct {
	Name        string   `mapstructure:"name"`
	Env         string   `mapstructure:"env"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// StorageSettings selects the persistence backends. The identity and audit
// stores stay physically separate regardless of driver choice.
type StorageSettings struct {
	// Driver is "postgres" or "memory"; memory serves embedded and
	// development use.
	Driver string `mapstructure:"driver"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	Schema            string        `mapstructure:"schema"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the optional Redis session backend.
type RedisSettings struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	DB            int    `mapstructure:"db"`
	Password      string `mapstructure:"password"`
	TLSEnabled    bool   `mapstructure:"tls_enabled"`
	SessionPrefix string `mapstructure:"session_prefix"`
}

// KafkaSettings configures the alarm producer.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// SessionSettings configures bearer-session issuance and the two expiry
// clocks.
type SessionSettings struct {
	// Backend is "store" (the identity database) or "redis".
	Backend         string        `mapstructure:"backend"`
	IdleTTL         time.Duration `mapstructure:"idle_ttl"`
	AbsoluteTTL     time.Duration `mapstructure:"absolute_ttl"`
	SigningSecret   string        `mapstructure:"signing_secret"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// LockoutSettings configures the failed-login lockout state machine.
type LockoutSettings struct {
	Threshold int           `mapstructure:"threshold"`
	Window    time.Duration `mapstructure:"window"`
}

// Argon2Settings configures Argon2id credential hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// PasswordSettings configures the password policy.
type PasswordSettings struct {
	MinLength        int    `mapstructure:"min_length"`
	Symbols          string `mapstructure:"symbols"`
	MinStrengthScore int    `mapstructure:"min_strength_score"`
}

type TelemetrySettings struct {
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("AUTHCORE")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_origins",
		"storage.driver",
		"identity_db.host",
		"identity_db.port",
		"identity_db.user",
		"identity_db.password",
		"identity_db.database",
		"identity_db.schema",
		"identity_db.ssl_mode",
		"identity_db.max_conns",
		"identity_db.min_conns",
		"identity_db.max_conn_lifetime",
		"identity_db.max_conn_idle_time",
		"identity_db.health_check_period",
		"audit_db.host",
		"audit_db.port",
		"audit_db.user",
		"audit_db.password",
		"audit_db.database",
		"audit_db.schema",
		"audit_db.ssl_mode",
		"audit_db.max_conns",
		"audit_db.min_conns",
		"audit_db.max_conn_lifetime",
		"audit_db.max_conn_idle_time",
		"audit_db.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.session_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"session.backend",
		"session.idle_ttl",
		"session.absolute_ttl",
		"session.signing_secret",
		"session.cleanup_interval",
		"lockout.threshold",
		"lockout.window",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"password.min_length",
		"password.symbols",
		"password.min_strength_score",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "authcore")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_origins", []string{})

	v.SetDefault("storage.driver", "postgres")

	v.SetDefault("identity_db.host", "localhost")
	v.SetDefault("identity_db.port", 5432)
	v.SetDefault("identity_db.user", "authcore")
	v.SetDefault("identity_db.password", "authcore_password")
	v.SetDefault("identity_db.database", "authcore")
	v.SetDefault("identity_db.schema", "authcore")
	v.SetDefault("identity_db.ssl_mode", "disable")
	v.SetDefault("identity_db.max_conns", 10)
	v.SetDefault("identity_db.min_conns", 2)
	v.SetDefault("identity_db.max_conn_lifetime", "60m")
	v.SetDefault("identity_db.max_conn_idle_time", "15m")
	v.SetDefault("identity_db.health_check_period", "30s")

	// The audit trail lives in its own database so tampering with the
	// identity store cannot reach it.
	v.SetDefault("audit_db.host", "localhost")
	v.SetDefault("audit_db.port", 5432)
	v.SetDefault("audit_db.user", "authcore_audit")
	v.SetDefault("audit_db.password", "authcore_audit_password")
	v.SetDefault("audit_db.database", "authcore_audit")
	v.SetDefault("audit_db.schema", "audit")
	v.SetDefault("audit_db.ssl_mode", "disable")
	v.SetDefault("audit_db.max_conns", 10)
	v.SetDefault("audit_db.min_conns", 2)
	v.SetDefault("audit_db.max_conn_lifetime", "60m")
	v.SetDefault("audit_db.max_conn_idle_time", "15m")
	v.SetDefault("audit_db.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.session_prefix", "authcore:session")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "authcore")

	v.SetDefault("session.backend", "store")
	v.SetDefault("session.idle_ttl", "30m")
	v.SetDefault("session.absolute_ttl", "8h")
	v.SetDefault("session.signing_secret", "")
	v.SetDefault("session.cleanup_interval", "5m")

	v.SetDefault("lockout.threshold", 5)
	v.SetDefault("lockout.window", "30m")

	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "http://localhost:4318")
	v.SetDefault("telemetry.service_name", "authcore")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	hashing := security.DefaultArgon2Config()
	v.SetDefault("argon2.memory", hashing.Memory)
	v.SetDefault("argon2.iterations", hashing.Iterations)
	v.SetDefault("argon2.parallelism", hashing.Parallelism)
	v.SetDefault("argon2.salt_length", hashing.SaltLength)
	v.SetDefault("argon2.key_length", hashing.KeyLength)

	v.SetDefault("password.min_length", 12)
	v.SetDefault("password.symbols", "")
	v.SetDefault("password.min_strength_score", 0)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "AUTHCORE_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
