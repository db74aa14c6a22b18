package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr    string
	Env         string
	APIToken    string
	DatabaseURL string
	AutoMigrate bool

	WorkspaceDir string
	StepTimeout  time.Duration

	AnalyzeCmd  string
	GenerateCmd string
	SyncCmd     string
	EmailCmd    string

	Deploy DeployConfig
}

// DeployConfig holds the Deployment Client settings. Token presence is
// validated by the client itself so tools that never deploy can load
// config without it.
type DeployConfig struct {
	Token          string
	TeamID         string
	APIURL         string
	MaxAttempts    int
	BackoffBase    time.Duration
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

func Load() Config {
	return Config{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		Env:         getenv("ENV", "dev"),
		APIToken:    getenv("API_TOKEN", ""),
		DatabaseURL: getenv("DATABASE_URL", ""),
		AutoMigrate: getenvBool("AUTO_MIGRATE", true),

		WorkspaceDir: getenv("WORKSPACE_DIR", ".tmp"),
		StepTimeout:  getenvDuration("STEP_TIMEOUT", 120*time.Second),

		AnalyzeCmd:  getenv("ANALYZE_CMD", "analyze-transcript"),
		GenerateCmd: getenv("GENERATE_CMD", "generate-proposal"),
		SyncCmd:     getenv("SYNC_CMD", "drive-sync"),
		EmailCmd:    getenv("EMAIL_CMD", "send-email"),

		Deploy: DeployConfig{
			Token:          getenv("DEPLOY_TOKEN", ""),
			TeamID:         getenv("DEPLOY_TEAM_ID", ""),
			APIURL:         getenv("DEPLOY_API_URL", "https://api.vercel.com/v13/deployments"),
			MaxAttempts:    getenvInt("DEPLOY_MAX_ATTEMPTS", 4),
			BackoffBase:    getenvDuration("DEPLOY_BACKOFF_BASE", time.Second),
			ConnectTimeout: getenvDuration("DEPLOY_CONNECT_TIMEOUT", 10*time.Second),
			ReadTimeout:    getenvDuration("DEPLOY_READ_TIMEOUT", 60*time.Second),
		},
	}
}

func getenv(key, defaultValue string) string {
	v := os.Getenv(key)
	if v != "" {
		return v
	}
	return defaultValue
}

func getenvBool(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getenvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}

func getenvDuration(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}

	// Accept bare seconds as well as Go duration strings.
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
		return time.Duration(secs * float64(time.Second))
	}

	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
