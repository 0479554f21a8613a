package config

import "time"

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type AuthConfig struct {
	AccessTokenSecret  string        `mapstructure:"access_token_secret"`
	RefreshTokenSecret string        `mapstructure:"refresh_token_secret"`
	AccessTokenTTL     time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL    time.Duration `mapstructure:"refresh_token_ttl"`

	// Verification tokens cover email verification, password reset, and
	// account restoration links.
	VerificationTokenSecret string        `mapstructure:"verification_token_secret"`
	VerificationTokenTTL    time.Duration `mapstructure:"verification_token_ttl"`

	// How long a deactivated account can still be restored before it is
	// permanently reclaimed.
	DeactivationGracePeriod time.Duration `mapstructure:"deactivation_grace_period"`

	SecureCookies bool `mapstructure:"secure_cookies"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type ReaperConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Database DatabaseConfig `mapstructure:"database"`
	Reaper   ReaperConfig   `mapstructure:"reaper"`
}
