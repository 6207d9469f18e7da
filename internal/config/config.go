package config

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"alcyxob/coaching-platform/internal/policy"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	S3        S3Config        `mapstructure:"s3"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Policy    PolicyConfig    `mapstructure:"policy"`
	Detection DetectionConfig `mapstructure:"detection"`
	Approval  ApprovalConfig  `mapstructure:"approval"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

// DatabaseConfig selects the store backend. Driver is "mongo" or "sqlite".
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver"`
	URI        string `mapstructure:"uri"`
	Name       string `mapstructure:"name"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// S3Config configures the snapshot archive. An empty BucketName disables it.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// JWTConfig defines JWT specific configuration. Tokens are issued elsewhere;
// this service only verifies them.
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// OpenAIConfig configures the AI suggestion provider. An empty APIKey
// disables it and the deterministic provider answers alone.
type OpenAIConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type PolicyConfig struct {
	Profile   string                     `mapstructure:"profile"`
	Overrides map[string]policy.Override `mapstructure:"overrides"`
}

type DetectionConfig struct {
	LookbackDays int `mapstructure:"lookback_days"`
}

type ApprovalConfig struct {
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel parses Level, falling back to info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// server.address -> SERVER_ADDRESS
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	var config Config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, err
		}
	}

	if err := v.Unmarshal(&config); err != nil {
		return config, err
	}
	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("database.driver", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "coaching_platform")
	v.SetDefault("database.sqlite_path", "./data/plans.db")
	v.SetDefault("s3.use_ssl", true)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.requests_per_minute", 20)
	v.SetDefault("openai.timeout", "20s")
	v.SetDefault("policy.profile", policy.DefaultProfileName)
	v.SetDefault("detection.lookback_days", 14)
	v.SetDefault("approval.retry_delay", "50ms")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	// Bind keys that only arrive through the environment.
	_ = v.BindEnv("jwt.secret")
	_ = v.BindEnv("openai.api_key")
	_ = v.BindEnv("s3.bucket_name")
	_ = v.BindEnv("s3.endpoint")
	_ = v.BindEnv("s3.region")
	_ = v.BindEnv("s3.access_key_id")
	_ = v.BindEnv("s3.secret_access_key")
}
