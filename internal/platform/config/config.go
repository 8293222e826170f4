// Package config builds the process configuration from the environment.
// Services receive one immutable snapshot at construction time so behavior is
// deterministic and testable without process-wide fixtures.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Addr        string `env:"GATEHOUSE_ADDR" envDefault:":8080"`
	BaseURL     string `env:"GATEHOUSE_BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	KafkaBrokers   []string `env:"KAFKA_BROKERS"`
	ChangelogTopic string   `env:"CHANGELOG_TOPIC" envDefault:"gatehouse.user.changelog"`

	// ConfirmationSigningKey signs email-confirmation tokens.
	ConfirmationSigningKey string        `env:"CONFIRMATION_SIGNING_KEY" envDefault:"dev-secret-change-in-production"`
	ConfirmationTTL        time.Duration `env:"CONFIRMATION_TTL" envDefault:"72h"`

	Registration Registration `envPrefix:"REGISTRATION_"`
	Disposable   Disposable   `envPrefix:"DISPOSABLE_"`
	Spam         Spam         `envPrefix:"SPAM_"`
	Avatar       Avatar       `envPrefix:"AVATAR_"`
}

// Registration is the registration-setup snapshot consumed by the pipeline.
type Registration struct {
	EmailConfirmation  bool   `env:"EMAIL_CONFIRMATION" envDefault:"true"`
	Moderation         bool   `env:"MODERATION"`
	RequireDob         bool   `env:"REQUIRE_DOB"`
	MinimumAge         int    `env:"MINIMUM_AGE"`
	RequireLocation    bool   `env:"REQUIRE_LOCATION"`
	RequireEmailChoice bool   `env:"REQUIRE_EMAIL_CHOICE"`
	GravatarEnabled    bool   `env:"GRAVATAR_ENABLED"`
	EnableTrophies     bool   `env:"ENABLE_TROPHIES"`
	PrivacyPolicyURL   string `env:"PRIVACY_POLICY_URL"`
	TermsURL           string `env:"TERMS_URL"`
	UsernameMinLength  int    `env:"USERNAME_MIN_LENGTH" envDefault:"3"`
	UsernameMaxLength  int    `env:"USERNAME_MAX_LENGTH" envDefault:"50"`
}

// Disposable configures the disposable-email checker client.
type Disposable struct {
	BaseURL  string        `env:"BASE_URL" envDefault:"https://api.api-aries.com"`
	APIToken string        `env:"API_TOKEN"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"5s"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

// Spam configures the registration spam heuristics.
type Spam struct {
	EmailDomainDenylist []string      `env:"EMAIL_DOMAIN_DENYLIST"`
	UsernameDenylist    []string      `env:"USERNAME_DENYLIST"`
	VelocityLimit       int           `env:"VELOCITY_LIMIT" envDefault:"3"`
	VelocityWindow      time.Duration `env:"VELOCITY_WINDOW" envDefault:"1h"`
}

// Avatar configures avatar import.
type Avatar struct {
	StorageDir   string `env:"STORAGE_DIR" envDefault:"data/avatars"`
	MaxBytes     int64  `env:"MAX_BYTES" envDefault:"4194304"`
	TargetPixels int    `env:"TARGET_PIXELS" envDefault:"192"`
}

// FromEnv parses the configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
