package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
)

// Ledger backends.
const (
	BackendHTTP   = "http"
	BackendMemory = "memory"
)

type Config struct {
	// Ledger
	LedgerBackend   string
	ActualBaseURL   string
	ActualAPIKey    string
	ActualBudget    string
	ActualPassword  string
	SplitterPayee   string
	SplitterAccount string

	// Tags
	TriggerTag  string
	AutoTag     string
	ExternalTag string

	// Polling
	ActualPollInterval time.Duration
	SpliitPollInterval time.Duration
	HistoryWindow      time.Duration
	SpliitHistoryLimit int
	SweepOnStartup     bool

	// Splitter
	SpliitBaseURL       string
	SpliitGroupID       string
	SpliitPayerID       string
	CategoryMappingFile string

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Google Sheets audit log
	GoogleSpreadsheetID      string
	GoogleAuditSheetName     string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// Misc
	StatusAddr string
	LogLevel   string
	Currency   string
}

func Load() *Config {
	cfg := &Config{
		LedgerBackend:   getEnv("LEDGER_BACKEND", BackendHTTP),
		ActualBaseURL:   getEnv("ACTUAL_BASEURL", ""),
		ActualAPIKey:    getEnv("ACTUAL_API_KEY", ""),
		ActualBudget:    getEnv("ACTUAL_BUDGET", ""),
		ActualPassword:  getEnv("ACTUAL_PASSWORD", ""),
		SplitterPayee:   getEnv("ACTUAL_SPLITTER_PAYEE_ID", ""),
		SplitterAccount: getEnv("ACTUAL_SPLITTER_ACCOUNT_ID", ""),

		TriggerTag:  getEnv("ACTUAL_TRIGGER_TAG", "#shared"),
		AutoTag:     getEnv("ACTUAL_AUTO_TAG", "#auto"),
		ExternalTag: getEnv("SPLIIT_TAG", "#spliit"),

		ActualPollInterval: getEnvDuration("ACTUAL_POLL_INTERVAL", 5*time.Second),
		SpliitPollInterval: getEnvDuration("SPLIIT_POLL_INTERVAL", 30*time.Second),
		HistoryWindow:      getEnvDuration("HISTORY_WINDOW", 30*24*time.Hour),
		SpliitHistoryLimit: getEnvInt("SPLIIT_HISTORY_LIMIT", 50),
		SweepOnStartup:     getEnvBool("SWEEP_ON_STARTUP", true),

		SpliitBaseURL:       getEnv("SPLIIT_BASE_URL", "https://spliit.app"),
		SpliitGroupID:       getEnv("SPLIIT_GROUP_ID", ""),
		SpliitPayerID:       getEnv("SPLIIT_PAYER_ID", ""),
		CategoryMappingFile: getEnv("SPLIIT_CATEGORY_MAPPING_FILE", "category-mapping.json"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/splitsync.db"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "splitsync"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "splitsync.events"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleAuditSheetName:     getEnv("GOOGLE_AUDIT_SHEET_NAME", "Audit"),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),

		StatusAddr: getEnv("STATUS_ADDR", ""),
		LogLevel:   getEnv("LOG_LEVEL", getEnv("LOGGING_LEVEL", "info")),
		Currency:   getEnv("CURRENCY", money.EUR),
	}

	return cfg
}

// MirroringEnabled reports whether the Splitter integration is configured.
func (c *Config) MirroringEnabled() bool {
	return c.SpliitGroupID != "" && c.SpliitPayerID != ""
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	switch c.LedgerBackend {
	case BackendHTTP:
		if c.ActualBaseURL == "" {
			errors = append(errors, "ACTUAL_BASEURL is required for the http ledger backend")
		} else if err := validateHTTPURL(c.ActualBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid ACTUAL_BASEURL '%s': %v", c.ActualBaseURL, err))
		}
		if c.ActualBudget == "" {
			errors = append(errors, "ACTUAL_BUDGET is required for the http ledger backend")
		}
		if c.ActualAPIKey == "" {
			errors = append(errors, "ACTUAL_API_KEY is required for the http ledger backend")
		}
	case BackendMemory:
	default:
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of [%s %s]", c.LedgerBackend, BackendHTTP, BackendMemory))
	}

	if c.SplitterPayee == "" {
		errors = append(errors, "ACTUAL_SPLITTER_PAYEE_ID is required")
	}
	if c.SplitterAccount == "" {
		errors = append(errors, "ACTUAL_SPLITTER_ACCOUNT_ID is required")
	}

	if strings.TrimSpace(c.TriggerTag) == "" {
		errors = append(errors, "trigger tag cannot be empty")
	} else if c.TriggerTag == c.AutoTag {
		errors = append(errors, fmt.Sprintf("trigger tag and auto tag must differ, both are '%s'", c.TriggerTag))
	}

	for name, d := range map[string]time.Duration{
		"ACTUAL_POLL_INTERVAL": c.ActualPollInterval,
		"SPLIIT_POLL_INTERVAL": c.SpliitPollInterval,
	} {
		if d < time.Second {
			errors = append(errors, fmt.Sprintf("invalid %s %v: must be at least 1 second", name, d))
		} else if d > 24*time.Hour {
			errors = append(errors, fmt.Sprintf("invalid %s %v: must be at most 24 hours", name, d))
		}
	}
	if c.HistoryWindow < 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid history window %v: must be at least 24 hours", c.HistoryWindow))
	}
	if c.SpliitHistoryLimit < 1 || c.SpliitHistoryLimit > 1000 {
		errors = append(errors, fmt.Sprintf("invalid splitter history limit %d: must be between 1 and 1000", c.SpliitHistoryLimit))
	}

	if c.MirroringEnabled() {
		if err := validateHTTPURL(c.SpliitBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid SPLIIT_BASE_URL '%s': %v", c.SpliitBaseURL, err))
		}
	} else if c.SpliitGroupID != "" || c.SpliitPayerID != "" {
		errors = append(errors, "SPLIIT_GROUP_ID and SPLIIT_PAYER_ID must be set together")
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided for the audit sheet")
		}
		if c.GoogleServiceAccountFile != "" && c.GoogleServiceAccountJSON == "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if money.GetCurrency(strings.ToUpper(c.Currency)) == nil {
		errors = append(errors, fmt.Sprintf("unknown currency '%s'", c.Currency))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("30s") and bare integers as seconds ("30").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if n, err := strconv.Atoi(value); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
