package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the assessment API.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	AllowOrigins        string
	DatabaseURL         string
	RedisURL            string
	NATSURL             string
	EventChannel        string
	JWTSecret           string
	SignInPath          string
	RegistryPath        string
	CertificateBaseURL  string
	SubmitRateLimit     int
	SubmitRateWindow    time.Duration
	ShutdownGracePeriod time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("INTERNGATE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Interngate API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("http.allow_origins", "*")
	v.SetDefault("events.channel", "interngate")
	v.SetDefault("auth.signin_path", "/auth/signin")
	v.SetDefault("assessments.registry", "configs/assessments.json")
	v.SetDefault("submit.rate_limit", 5)
	v.SetDefault("submit.rate_window", "1m")
	v.SetDefault("shutdown.grace", "10s")

	window, err := parseDuration(v.GetString("submit.rate_window"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid submit rate window: %w", err)
	}

	grace, err := parseDuration(v.GetString("shutdown.grace"), 10*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid shutdown grace period: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		AllowOrigins:        v.GetString("http.allow_origins"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		NATSURL:             v.GetString("nats.url"),
		EventChannel:        v.GetString("events.channel"),
		JWTSecret:           v.GetString("jwt.secret"),
		SignInPath:          v.GetString("auth.signin_path"),
		RegistryPath:        v.GetString("assessments.registry"),
		CertificateBaseURL:  strings.TrimRight(v.GetString("certificate.base_url"), "/"),
		SubmitRateLimit:     v.GetInt("submit.rate_limit"),
		SubmitRateWindow:    window,
		ShutdownGracePeriod: grace,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.CertificateBaseURL == "" {
		return Config{}, fmt.Errorf("certificate base url must be provided")
	}

	if cfg.SubmitRateLimit <= 0 {
		cfg.SubmitRateLimit = 5
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
