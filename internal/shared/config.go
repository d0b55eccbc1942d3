package shared

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv      string `yaml:"app_env"`
	LogLevel    string `yaml:"log_level"`
	HTTPAddr    string `yaml:"http_addr"`
	MetricsAddr string `yaml:"metrics_addr"`

	AndroidPackage string `yaml:"android_app_package_name"`
	AppleAppID     string `yaml:"apple_app_id"`
	AppleCountry   string `yaml:"apple_country"`
	AppleBase      string `yaml:"apple_base_url"`
	SlackWebhook   string `yaml:"slack_webhook"`
	SecretKey      string `yaml:"cloud_function_secret_key"`

	TimezoneName      string         `yaml:"timezone"`
	Location          *time.Location `yaml:"-"`
	RunFrequency      time.Duration  `yaml:"-"`
	RunFrequencyMins  int            `yaml:"run_frequency_minutes"`
	CredentialFile    string         `yaml:"credential_file"`
	PlayDeveloperID   string         `yaml:"play_developer_id"`
	PlayApplicationID string         `yaml:"play_application_id"`

	RedisAddr      string        `yaml:"redis_addr"`
	RedisPass      string        `yaml:"redis_password"`
	RedisDB        int           `yaml:"redis_db"`
	LedgerTTLMins  int           `yaml:"ledger_ttl_minutes"`
	LedgerTTL      time.Duration `yaml:"-"`
	MySQLDSN       string        `yaml:"mysql_dsn"`
	FetchRPS       int           `yaml:"fetch_rps"`
	NotifyRPS      int           `yaml:"notify_rps"`
	MaxPages       int           `yaml:"max_pages"`
	Workers        int           `yaml:"poll_workers"`
	RequestTimeout time.Duration `yaml:"-"`
}

func Defaults() Config {
	return Config{
		AppEnv:           "prod",
		LogLevel:         "info",
		HTTPAddr:         ":8080",
		AppleCountry:     "za",
		AppleBase:        "https://itunes.apple.com",
		TimezoneName:     "Africa/Johannesburg",
		RunFrequencyMins: 60,
		CredentialFile:   "play_credentials.json",
		FetchRPS:         5,
		NotifyRPS:        1,
		MaxPages:         3,
		Workers:          2,
		RequestTimeout:   2 * time.Minute,
	}
}

// Load builds the config from defaults, then the optional YAML file at path,
// then the environment. Missing required settings are reported together.
func Load(path string) (Config, error) {
	c := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
			log.Warn().Str("key", k).Str("value", v).Msg("ignoring non-numeric env value")
		}
		return def
	}

	c.AppEnv = env("APP_ENV", c.AppEnv)
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
	c.HTTPAddr = env("HTTP_ADDR", c.HTTPAddr)
	c.MetricsAddr = env("METRICS_ADDR", c.MetricsAddr)
	c.AndroidPackage = env("ANDROID_APP_PACKAGE_NAME", c.AndroidPackage)
	c.AppleAppID = env("APPLE_APP_ID", c.AppleAppID)
	c.AppleCountry = env("APPLE_COUNTRY", c.AppleCountry)
	c.AppleBase = env("APPLE_BASE_URL", c.AppleBase)
	c.SlackWebhook = env("SLACK_WEBHOOK", c.SlackWebhook)
	c.SecretKey = env("CLOUD_FUNCTION_SECRET_KEY", c.SecretKey)
	c.TimezoneName = env("TIMEZONE", c.TimezoneName)
	c.RunFrequencyMins = atoi("RUN_FREQUENCY_MINUTES", c.RunFrequencyMins)
	c.CredentialFile = env("CREDENTIAL_FILE", c.CredentialFile)
	c.PlayDeveloperID = env("PLAY_DEVELOPER_ID", c.PlayDeveloperID)
	c.PlayApplicationID = env("PLAY_APPLICATION_ID", c.PlayApplicationID)
	c.RedisAddr = env("REDIS_ADDR", c.RedisAddr)
	c.RedisPass = env("REDIS_PASSWORD", c.RedisPass)
	c.RedisDB = atoi("REDIS_DB", c.RedisDB)
	c.LedgerTTLMins = atoi("LEDGER_TTL_MINUTES", c.LedgerTTLMins)
	c.MySQLDSN = env("MYSQL_DSN", c.MySQLDSN)
	c.FetchRPS = atoi("FETCH_RPS", c.FetchRPS)
	c.NotifyRPS = atoi("NOTIFY_RPS", c.NotifyRPS)
	c.MaxPages = atoi("MAX_PAGES", c.MaxPages)
	c.Workers = atoi("POLL_WORKERS", c.Workers)

	var missing []string
	for k, v := range map[string]string{
		"ANDROID_APP_PACKAGE_NAME":  c.AndroidPackage,
		"APPLE_APP_ID":              c.AppleAppID,
		"SLACK_WEBHOOK":             c.SlackWebhook,
		"CLOUD_FUNCTION_SECRET_KEY": c.SecretKey,
	} {
		if v == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	loc, err := time.LoadLocation(c.TimezoneName)
	if err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE %q: %w", c.TimezoneName, err)
	}
	c.Location = loc

	if c.RunFrequencyMins <= 0 {
		return Config{}, fmt.Errorf("RUN_FREQUENCY_MINUTES must be positive, got %d", c.RunFrequencyMins)
	}
	c.RunFrequency = time.Duration(c.RunFrequencyMins) * time.Minute
	// claims must outlive one window
	if c.LedgerTTLMins <= 0 {
		c.LedgerTTL = 2 * c.RunFrequency
	} else {
		c.LedgerTTL = time.Duration(c.LedgerTTLMins) * time.Minute
	}

	if c.PlayDeveloperID == "" || c.PlayApplicationID == "" {
		log.Debug().Msg("PLAY_DEVELOPER_ID/PLAY_APPLICATION_ID not set; android messages will not link to the console")
	}
	return c, nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
