package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendHTTP   = "http"
	BackendSheets = "sheets"
	BackendMemory = "memory"
)

type Config struct {
	// HTTP Server
	Port string

	// Local store
	SQLiteDBPath string

	// Remote collection
	RemoteBackend string
	RemoteBaseURL string
	RemoteTimeout time.Duration

	// AMQP result feed; empty URL disables publishing
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	LogLevel string

	// Mock API server
	MockAPIPort string
}

func Load() *Config {
	return &Config{
		Port:         getEnv("PORT", "8081"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/expenses.db"),

		RemoteBackend: getEnv("REMOTE_BACKEND", BackendMemory),
		RemoteBaseURL: getEnv("REMOTE_BASE_URL", "http://localhost:8090"),
		RemoteTimeout: getEnvDuration("REMOTE_TIMEOUT", 15*time.Second),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "expenses"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "expense_results"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:          getEnv("GOOGLE_SHEET_NAME", "Expenses"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", ""),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),

		MockAPIPort: getEnv("MOCKAPI_PORT", "8090"),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	errors = append(errors, validatePort("port", c.Port)...)
	if c.MockAPIPort != "" {
		errors = append(errors, validatePort("mock API port", c.MockAPIPort)...)
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else if c.SQLiteDBPath == ":memory:" {
		errors = append(errors, "SQLite database path must be a file, not :memory:")
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

	validBackends := []string{BackendHTTP, BackendSheets, BackendMemory}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.RemoteBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid remote backend '%s': must be one of %v", c.RemoteBackend, validBackends))
	}

	if c.RemoteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be positive", c.RemoteTimeout))
	} else if c.RemoteTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid remote timeout %v: must be at most 5 minutes", c.RemoteTimeout))
	}

	if c.RemoteBackend == BackendHTTP {
		if c.RemoteBaseURL == "" {
			errors = append(errors, "REMOTE_BASE_URL is required when using http backend")
		} else if u, err := url.Parse(c.RemoteBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid remote base URL '%s': %v", c.RemoteBaseURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid remote base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.RemoteBackend == BackendSheets {
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSheetName == "" {
			errors = append(errors, "Google Sheet name is required when using sheets backend")
		}

		hasFile := c.GoogleServiceAccountFile != ""
		if !hasFile && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets backend")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// AMQPEnabled reports whether a result feed broker is configured.
func (c *Config) AMQPEnabled() bool {
	return c.AMQPURL != ""
}

func validatePort(name, value string) []string {
	port, err := strconv.Atoi(value)
	if err != nil {
		return []string{fmt.Sprintf("invalid %s '%s': must be a number", name, value)}
	}
	if port < 1 || port > 65535 {
		return []string{fmt.Sprintf("invalid %s %d: must be between 1 and 65535", name, port)}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
