package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/openpress/identity/internal/config"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTesting     = "testing"
)

func LoadConfig() (*config.AppConfig, error) {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = EnvDevelopment
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath("./config/server")

	v.SetEnvPrefix("identity")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config config.AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Load environment-specific configurations
	for _, section := range []string{"server", "reaper"} {
		key := fmt.Sprintf("%s.%s", section, env)
		if envSettings := v.GetStringMap(key); len(envSettings) > 0 {
			var target any
			switch section {
			case "server":
				target = &config.Server
			case "reaper":
				target = &config.Reaper
			}
			if err := v.UnmarshalKey(key, target); err != nil {
				return nil, fmt.Errorf("error unmarshaling env config: %w", err)
			}
		}
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("auth.access_token_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("auth.verification_token_ttl", time.Hour)
	v.SetDefault("auth.deactivation_grace_period", 30*24*time.Hour)
	v.SetDefault("auth.secure_cookies", true)

	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.interval", 24*time.Hour)
}
