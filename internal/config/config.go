package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Env       string
	Mode      Mode
	HTTPAddr  string
	PublicURL string

	DBDriver string
	DBDSN    string

	BlobBasePath string

	AuthSecret  string
	TokenTTL    time.Duration
	CORSOrigins []string

	// external evaluation service
	EvalBaseURL      string
	EvalTokenURL     string // optional: OAuth2 client credentials
	EvalClientID     string
	EvalClientSecret string
	EvalTimeout      time.Duration
	PollInterval     time.Duration
	MaxPollErrors    int

	// external class-report microservice
	ReportBaseURL string

	LogLevel     string
	LogFormat    string // text|json
	RollbarToken string

	SendgridKey string
	MailFrom    string
	AppName     string

	CronResumeSpec string
	CronCloseSpec  string
}

func defaults(v *viper.Viper) {
	v.SetDefault("ENV", "dev")
	v.SetDefault("MODE", string(ModeOffline))
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("BLOB_BASE_PATH", "./data")
	v.SetDefault("AUTH_HMAC_SECRET", "supersecret-dev-key")
	v.SetDefault("TOKEN_TTL", 8*time.Hour)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("EVAL_BASE_URL", "http://localhost:8000")
	v.SetDefault("EVAL_TIMEOUT", 15*time.Second)
	v.SetDefault("EVAL_POLL_INTERVAL", time.Second)
	v.SetDefault("EVAL_MAX_POLL_ERRORS", 5)
	v.SetDefault("REPORT_BASE_URL", "http://localhost:8100")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("MAIL_FROM", "noreply@localhost")
	v.SetDefault("APP_NAME", "Quizdesk")
	v.SetDefault("CRON_RESUME_SPEC", "@every 1m")
	v.SetDefault("CRON_CLOSE_SPEC", "@every 5m")
}

// FromEnv loads an optional .env file (ENV_FILE, default ".env") and reads the
// process environment on top of the defaults.
func FromEnv() (Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: stat %s: %w", envFile, err)
	}

	v := viper.New()
	v.SetTypeByDefaultValue(true)
	defaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	mode := Mode(strings.ToLower(v.GetString("MODE")))
	if mode != ModeOffline && mode != ModeOnline {
		return Config{}, fmt.Errorf("config: invalid MODE %q", mode)
	}
	cfg := Config{
		Env:              v.GetString("ENV"),
		Mode:             mode,
		HTTPAddr:         v.GetString("HTTP_ADDR"),
		PublicURL:        strings.TrimSuffix(v.GetString("PUBLIC_URL"), "/"),
		DBDriver:         v.GetString("DB_DRIVER"),
		DBDSN:            v.GetString("DB_DSN"),
		BlobBasePath:     v.GetString("BLOB_BASE_PATH"),
		AuthSecret:       v.GetString("AUTH_HMAC_SECRET"),
		TokenTTL:         v.GetDuration("TOKEN_TTL"),
		CORSOrigins:      splitCSV(v.GetString("CORS_ORIGINS")),
		EvalBaseURL:      strings.TrimSuffix(v.GetString("EVAL_BASE_URL"), "/"),
		EvalTokenURL:     v.GetString("EVAL_TOKEN_URL"),
		EvalClientID:     v.GetString("EVAL_CLIENT_ID"),
		EvalClientSecret: v.GetString("EVAL_CLIENT_SECRET"),
		EvalTimeout:      v.GetDuration("EVAL_TIMEOUT"),
		PollInterval:     v.GetDuration("EVAL_POLL_INTERVAL"),
		MaxPollErrors:    v.GetInt("EVAL_MAX_POLL_ERRORS"),
		ReportBaseURL:    strings.TrimSuffix(v.GetString("REPORT_BASE_URL"), "/"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		LogFormat:        v.GetString("LOG_FORMAT"),
		RollbarToken:     v.GetString("ROLLBAR_TOKEN"),
		SendgridKey:      v.GetString("SENDGRID_API_KEY"),
		MailFrom:         v.GetString("MAIL_FROM"),
		AppName:          v.GetString("APP_NAME"),
		CronResumeSpec:   v.GetString("CRON_RESUME_SPEC"),
		CronCloseSpec:    v.GetString("CRON_CLOSE_SPEC"),
	}
	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("config: EVAL_POLL_INTERVAL must be positive")
	}
	if cfg.Mode == ModeOnline && cfg.AuthSecret == "supersecret-dev-key" {
		return Config{}, fmt.Errorf("config: AUTH_HMAC_SECRET must be set in online mode")
	}
	return cfg, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
