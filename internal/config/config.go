package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	ExportDir string
	OutputDir string

	SourceAPath  string
	SourceBPath  string
	SourceALabel string
	SourceBLabel string

	ContactsPath       string
	ContactsURL        string
	ContactsSheetID    string
	ContactsSheetRange string

	RulesPath         string
	StrictConsistency bool
	SuggestThreshold  float64
	HTTPTimeoutMs     int

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleRefreshToken string

	SheetsPublishID    string
	SheetsPublishRange string
	SheetsRateLimitRPS int

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	WatchIntervalSec int
	WatchMailFetch   bool
	WatchProvider    string
	WatchLabel       string
	WatchFetchMax    int
	WatchPublish     bool

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "registry.db")),
		ExportDir: getEnv("EXPORT_DIR", filepath.Join(cwd, "data", "exports")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		SourceAPath:  getEnv("SOURCE_A_PATH", ""),
		SourceBPath:  getEnv("SOURCE_B_PATH", ""),
		SourceALabel: getEnv("SOURCE_A_LABEL", "search1"),
		SourceBLabel: getEnv("SOURCE_B_LABEL", "search2"),

		ContactsPath:       getEnv("CONTACTS_PATH", ""),
		ContactsURL:        getEnv("CONTACTS_URL", ""),
		ContactsSheetID:    getEnv("CONTACTS_SHEET_ID", ""),
		ContactsSheetRange: getEnv("CONTACTS_SHEET_RANGE", "contacts!A1:D"),

		RulesPath:         getEnv("RULES_PATH", ""),
		StrictConsistency: getEnvBool("STRICT_CONSISTENCY", false),
		SuggestThreshold:  getEnvFloat("SUGGEST_THRESHOLD", 0.72),
		HTTPTimeoutMs:     getEnvInt("HTTP_TIMEOUT_MS", 30000),

		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GoogleRefreshToken: getEnv("GOOGLE_REFRESH_TOKEN", ""),

		SheetsPublishID:    getEnv("SHEETS_PUBLISH_ID", ""),
		SheetsPublishRange: getEnv("SHEETS_PUBLISH_RANGE", "registry"),
		SheetsRateLimitRPS: getEnvInt("SHEETS_RATE_LIMIT_RPS", 1),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		WatchIntervalSec: getEnvInt("WATCH_INTERVAL_SEC", 300),
		WatchMailFetch:   getEnvBool("WATCH_MAIL_FETCH", false),
		WatchProvider:    getEnv("WATCH_PROVIDER", "gmail"),
		WatchLabel:       getEnv("WATCH_LABEL", "INBOX"),
		WatchFetchMax:    getEnvInt("WATCH_FETCH_MAX", 20),
		WatchPublish:     getEnvBool("WATCH_PUBLISH", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
