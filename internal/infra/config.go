package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	SessionCookie    string
	ClaudeBaseURL    string
	ClaudePoolSize   int
	SendTimeout      time.Duration
	PythonBin        string
	MediaDir         string
	SceneName        string
	RenderWorkers    int
	JobTTL           time.Duration
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	AllowedOrigins   []string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		SessionCookie:    os.Getenv("SESSION_COOKIE"),
		ClaudeBaseURL:    getEnv("CLAUDE_BASE_URL", "https://claude.ai/api"),
		ClaudePoolSize:   getEnvInt("CLAUDE_POOL_SIZE", 4),
		SendTimeout:      time.Second * time.Duration(getEnvInt("SEND_TIMEOUT_SECONDS", 500)),
		PythonBin:        getEnv("PYTHON_BIN", "python"),
		MediaDir:         getEnv("MEDIA_DIR", "./public/movie"),
		SceneName:        getEnv("SCENE_NAME", "Scene"),
		RenderWorkers:    getEnvInt("RENDER_WORKERS", 4),
		JobTTL:           time.Minute * time.Duration(getEnvInt("JOB_TTL_MINUTES", 60)),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		AllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
	}

	if cfg.SessionCookie == "" {
		return nil, fmt.Errorf("SESSION_COOKIE is required")
	}

	if cfg.ClaudePoolSize < 1 {
		return nil, fmt.Errorf("CLAUDE_POOL_SIZE must be at least 1")
	}

	if cfg.RenderWorkers < 1 {
		return nil, fmt.Errorf("RENDER_WORKERS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
