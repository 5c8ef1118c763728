package config

import (
	"log"

	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	// Driver is "sqlite" (default, embedded) or "postgres".
	Driver string `mapstructure:"driver"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`
	// URL is the postgres connection string, unused with sqlite.
	URL string `mapstructure:"url"`
}

type CaptureConfig struct {
	// StoreRawPayload keeps the original nested payload next to the
	// flattened form for forensic replay.
	StoreRawPayload bool `mapstructure:"store_raw_payload"`
}

type Config struct {
	ServerPort string         `mapstructure:"server_port"`
	Database   DatabaseConfig `mapstructure:"database"`
	Capture    CaptureConfig  `mapstructure:"capture"`
	// JWTSecret signs gateway session tokens. Required when a gateway
	// password is configured.
	JWTSecret string `mapstructure:"jwt_secret"`
	// GatewayPasswordHash is the bcrypt hash of the gateway password.
	// Leave empty to run the API unauthenticated (local single-user use).
	GatewayPasswordHash string   `mapstructure:"gateway_password_hash"`
	CORSOrigins         []string `mapstructure:"cors_origins"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	v.SetDefault("capture.store_raw_payload", true)

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "sqlite"
	}
	if config.Database.Driver == "sqlite" && config.Database.Path == "" {
		config.Database.Path = "data/capture.db"
	}
	if len(config.CORSOrigins) == 0 {
		config.CORSOrigins = []string{"http://localhost:3000"}
	}

	if config.GatewayPasswordHash != "" && config.JWTSecret == "" {
		log.Fatal("jwt_secret must be set when a gateway password is configured")
	}

	return &config
}
