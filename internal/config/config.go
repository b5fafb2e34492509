package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Addr     string
	LogLevel string

	Store string
	DBDSN string

	FirebaseProjectID       string
	FirebaseCredentialsFile string
	FirebaseCredentialsJSON string

	AuthProvider   string
	GoogleClientID string
	AppleServiceID string

	BooksAPIKey string
	VibeAPIKey  string
	VibeModel   string

	RedisURL       string
	RateLimitRPS   float64
	RateLimitBurst int
	TrustProxy     bool

	MetricsUser string
	MetricsPass string
}

const (
	StoreMemory    = "memory"
	StoreFirestore = "firestore"
	StorePostgres  = "postgres"

	AuthFirebase = "firebase"
	AuthGoogle   = "google"
	AuthApple    = "apple"
	AuthDev      = "dev"
)

// Load merges a .env file from the working directory (variables already
// set in the environment win) and then reads the environment.
func Load() (Config, error) {
	if err := loadDotEnvFile(".env", os.Setenv, os.Getenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env: %w", err)
	}
	return LoadFromEnv(os.Getenv)
}

func loadDotEnvFile(path string, setenv func(string, string) error, getenv func(string) string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	for k, v := range values {
		if v == "" || getenv(k) != "" {
			continue
		}
		if err := setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	return nil
}

func LoadFromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		Env:                     getenv("APP_ENV"),
		Addr:                    getenv("APP_ADDR"),
		LogLevel:                getenv("APP_LOG_LEVEL"),
		Store:                   strings.ToLower(strings.TrimSpace(getenv("APP_STORE"))),
		DBDSN:                   getenv("APP_DB_DSN"),
		FirebaseProjectID:       strings.TrimSpace(getenv("APP_FIREBASE_PROJECT_ID")),
		FirebaseCredentialsFile: strings.TrimSpace(getenv("APP_FIREBASE_CREDENTIALS_FILE")),
		FirebaseCredentialsJSON: strings.TrimSpace(getenv("APP_FIREBASE_CREDENTIALS_JSON")),
		AuthProvider:            strings.ToLower(strings.TrimSpace(getenv("APP_AUTH_PROVIDER"))),
		GoogleClientID:          strings.TrimSpace(getenv("APP_GOOGLE_CLIENT_ID")),
		AppleServiceID:          strings.TrimSpace(getenv("APP_APPLE_SERVICE_ID")),
		BooksAPIKey:             getenv("APP_BOOKS_API_KEY"),
		VibeAPIKey:              getenv("APP_VIBE_API_KEY"),
		VibeModel:               strings.TrimSpace(getenv("APP_VIBE_MODEL")),
		RedisURL:                strings.TrimSpace(getenv("APP_REDIS_URL")),
		MetricsUser:             getenv("APP_METRICS_USER"),
		MetricsPass:             getenv("APP_METRICS_PASS"),
	}

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	switch cfg.Env {
	case "dev", "prod", "test":
	default:
		return Config{}, errors.New("APP_ENV: must be one of dev, test, prod")
	}

	if cfg.Store == "" {
		cfg.Store = StoreMemory
	}
	switch cfg.Store {
	case StoreMemory:
	case StorePostgres:
		if cfg.DBDSN == "" {
			return Config{}, errors.New("APP_DB_DSN: required when APP_STORE=postgres")
		}
	case StoreFirestore:
		if cfg.FirebaseProjectID == "" {
			return Config{}, errors.New("APP_FIREBASE_PROJECT_ID: required when APP_STORE=firestore")
		}
	default:
		return Config{}, errors.New("APP_STORE: must be one of memory, firestore, postgres")
	}

	if cfg.AuthProvider == "" {
		if cfg.IsProd() {
			cfg.AuthProvider = AuthFirebase
		} else {
			cfg.AuthProvider = AuthDev
		}
	}
	switch cfg.AuthProvider {
	case AuthDev:
	case AuthFirebase:
		if cfg.FirebaseProjectID == "" {
			return Config{}, errors.New("APP_FIREBASE_PROJECT_ID: required when APP_AUTH_PROVIDER=firebase")
		}
	case AuthGoogle:
		if cfg.GoogleClientID == "" {
			return Config{}, errors.New("APP_GOOGLE_CLIENT_ID: required when APP_AUTH_PROVIDER=google")
		}
	case AuthApple:
		if cfg.AppleServiceID == "" {
			return Config{}, errors.New("APP_APPLE_SERVICE_ID: required when APP_AUTH_PROVIDER=apple")
		}
	default:
		return Config{}, errors.New("APP_AUTH_PROVIDER: must be one of firebase, google, apple, dev")
	}

	rps, err := parseFloat(getenv("APP_RATE_LIMIT_RPS"), 10)
	if err != nil {
		return Config{}, fmt.Errorf("APP_RATE_LIMIT_RPS: %w", err)
	}
	if rps <= 0 {
		return Config{}, errors.New("APP_RATE_LIMIT_RPS: must be > 0")
	}
	cfg.RateLimitRPS = rps

	burst, err := parseInt(getenv("APP_RATE_LIMIT_BURST"), 30)
	if err != nil {
		return Config{}, fmt.Errorf("APP_RATE_LIMIT_BURST: %w", err)
	}
	if burst <= 0 {
		return Config{}, errors.New("APP_RATE_LIMIT_BURST: must be > 0")
	}
	cfg.RateLimitBurst = burst

	trustProxy, err := parseBool(getenv("APP_TRUST_PROXY"), false)
	if err != nil {
		return Config{}, fmt.Errorf("APP_TRUST_PROXY: %w", err)
	}
	cfg.TrustProxy = trustProxy

	if cfg.MetricsUser != "" && cfg.MetricsPass == "" {
		return Config{}, errors.New("APP_METRICS_PASS: required when APP_METRICS_USER is set")
	}

	if cfg.IsProd() {
		if cfg.Store == StoreMemory {
			return Config{}, errors.New("APP_STORE: memory is not allowed in prod")
		}
		if cfg.AuthProvider == AuthDev {
			return Config{}, errors.New("APP_AUTH_PROVIDER: dev is not allowed in prod")
		}
	}

	return cfg, nil
}

func (c Config) IsProd() bool { return c.Env == "prod" }

// NeedsFirebase reports whether the firebase app has to be initialised.
func (c Config) NeedsFirebase() bool {
	return c.Store == StoreFirestore || c.AuthProvider == AuthFirebase
}

func parseFloat(s string, def float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}

func parseInt(s string, def int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}

func parseBool(s string, def bool) (bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return strconv.ParseBool(s)
}
