package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds runtime configuration for the dashboard service.
type Config struct {
	ListenAddr      string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string

	APIBaseURL   string
	APITimeout   time.Duration
	AuthDisabled bool

	RefreshInterval time.Duration
	BreakerFailures uint32
	BreakerCooldown time.Duration

	TokenStoreDriver string
	TokenStorePath   string
	TokenDBHost      string
	TokenDBPort      int
	TokenDBUser      string
	TokenDBPassword  string
	TokenDBName      string
	TokenDBTimeout   time.Duration

	LogLevel           string
	LogFormat          string
	OTLPEndpoint       string
	OTLPInsecure       bool
	TraceSamplePercent int
}

// FromEnv loads configuration from environment variables with sensible defaults.
func FromEnv() Config {
	loadConfigDefaultsFromFile()
	loadSecretsDefaultsFromFile()

	return Config{
		ListenAddr:         getEnv("APP_LISTEN_ADDR", ":8080"),
		ReadTimeout:        time.Duration(getEnvInt("APP_READ_TIMEOUT_SEC", 10)) * time.Second,
		WriteTimeout:       time.Duration(getEnvInt("APP_WRITE_TIMEOUT_SEC", 30)) * time.Second,
		ShutdownTimeout:    time.Duration(getEnvInt("APP_SHUTDOWN_TIMEOUT_SEC", 10)) * time.Second,
		CORSOrigins:        getEnvList("APP_CORS_ORIGINS", nil),
		APIBaseURL:         strings.TrimRight(getEnv("APP_API_BASE_URL", "http://127.0.0.1:8081"), "/"),
		APITimeout:         time.Duration(getEnvInt("APP_API_TIMEOUT_SEC", 15)) * time.Second,
		AuthDisabled:       getEnvBool("APP_AUTH_DISABLED", false),
		RefreshInterval:    time.Duration(getEnvInt("APP_REFRESH_INTERVAL_SEC", 60)) * time.Second,
		BreakerFailures:    uint32(getEnvInt("APP_BREAKER_MAX_FAILURES", 5)),
		BreakerCooldown:    time.Duration(getEnvInt("APP_BREAKER_COOLDOWN_SEC", 120)) * time.Second,
		TokenStoreDriver:   strings.ToLower(getEnv("APP_TOKEN_STORE_DRIVER", "sqlite")),
		TokenStorePath:     getEnv("APP_TOKEN_STORE_PATH", "./recon-dashboard.db"),
		TokenDBHost:        getEnv("APP_TOKEN_DB_HOST", "127.0.0.1"),
		TokenDBPort:        getEnvInt("APP_TOKEN_DB_PORT", 3306),
		TokenDBUser:        getEnv("APP_TOKEN_DB_USER", "recon"),
		TokenDBPassword:    getEnv("APP_TOKEN_DB_PASSWORD", ""),
		TokenDBName:        getEnv("APP_TOKEN_DB_NAME", "recon_dashboard"),
		TokenDBTimeout:     time.Duration(getEnvInt("APP_TOKEN_DB_TIMEOUT_SEC", 5)) * time.Second,
		LogLevel:           getEnv("APP_LOG_LEVEL", "info"),
		LogFormat:          getEnv("APP_LOG_FORMAT", "json"),
		OTLPEndpoint:       getEnv("APP_OTLP_ENDPOINT", ""),
		OTLPInsecure:       getEnvBool("APP_OTLP_INSECURE", true),
		TraceSamplePercent: getEnvInt("APP_TRACE_SAMPLE_PERCENT", 100),
	}
}

func loadConfigDefaultsFromFile() {
	bootstrapCandidates := []string{
		"./recon-dashboard.env",
		"/etc/default/recon-dashboard",
	}
	for _, candidate := range bootstrapCandidates {
		_ = applyEnvDefaultsFromFile(absPath(candidate))
	}

	candidates := make([]string, 0, 2)
	if explicit := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	candidates = append(candidates, "/etc/recon-dashboard/config.env")

	for _, candidate := range candidates {
		if err := applyEnvDefaultsFromFile(absPath(candidate)); err == nil {
			return
		}
	}
}

func loadSecretsDefaultsFromFile() {
	candidates := make([]string, 0, 3)
	if explicit := strings.TrimSpace(os.Getenv("APP_SECRETS_FILE")); explicit != "" {
		candidates = append(candidates, explicit)
	}
	if credDir := strings.TrimSpace(os.Getenv("CREDENTIALS_DIRECTORY")); credDir != "" {
		credName := strings.TrimSpace(os.Getenv("APP_SECRETS_CREDENTIAL_NAME"))
		if credName == "" {
			credName = "app-secrets"
		}
		candidates = append(candidates, filepath.Join(credDir, credName))
	}
	candidates = append(candidates, "/etc/recon-dashboard/secrets.env")
	for _, candidate := range candidates {
		if err := applyEnvDefaultsFromFile(candidate); err == nil {
			return
		}
	}
}

// applyEnvDefaultsFromFile loads KEY=VALUE pairs without overriding variables
// that are already set in the process environment.
func applyEnvDefaultsFromFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return err
	}
	return godotenv.Load(path)
}

func absPath(candidate string) string {
	if filepath.IsAbs(candidate) {
		return candidate
	}
	if wd, err := os.Getwd(); err == nil {
		return filepath.Join(wd, candidate)
	}
	return candidate
}

// TokenStoreMySQLDSN returns a mysql driver DSN for the shared token store.
func (c Config) TokenStoreMySQLDSN() string {
	params := url.Values{}
	params.Set("parseTime", "true")
	params.Set("timeout", c.TokenDBTimeout.String())
	params.Set("readTimeout", c.TokenDBTimeout.String())
	params.Set("writeTimeout", c.TokenDBTimeout.String())
	params.Set("charset", "utf8mb4")
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", c.TokenDBUser, c.TokenDBPassword, c.TokenDBHost, c.TokenDBPort, c.TokenDBName, params.Encode())
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvBool(key string, def bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}

func getEnvList(key string, def []string) []string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		out := make([]string, 0, len(def))
		for _, d := range def {
			d = strings.TrimSpace(d)
			if d != "" {
				out = append(out, d)
			}
		}
		return out
	}

	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
