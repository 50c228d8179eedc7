// env.go - Environment variable configuration and validation for birdlist
package conf

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvEBirdAPIToken holds the secondary-source credential
const EnvEBirdAPIToken = "EBIRD_API_TOKEN"

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

func getEnvBindings() []envBinding {
	return []envBinding{
		{"ebird.apitoken", EnvEBirdAPIToken, nil},

		{"debug", "BIRDLIST_DEBUG", validateEnvBool},
		{"logging.default_level", "BIRDLIST_LOG_LEVEL", validateEnvLogLevel},

		{"cache.ttl", "BIRDLIST_CACHE_TTL", validateEnvDuration},
		{"cache.rehydrate", "BIRDLIST_CACHE_REHYDRATE", validateEnvBool},

		{"datastore.driver", "BIRDLIST_DATASTORE_DRIVER", validateEnvDriver},
		{"datastore.sqlite.path", "BIRDLIST_SQLITE_PATH", nil},
		{"datastore.mysql.host", "BIRDLIST_MYSQL_HOST", nil},
		{"datastore.mysql.port", "BIRDLIST_MYSQL_PORT", validateEnvPort},
		{"datastore.mysql.username", "BIRDLIST_MYSQL_USERNAME", nil},
		{"datastore.mysql.password", "BIRDLIST_MYSQL_PASSWORD", nil},
		{"datastore.mysql.database", "BIRDLIST_MYSQL_DATABASE", nil},

		{"reconcile.fullregionprojectid", "BIRDLIST_FULL_REGION_PROJECT", nil},
		{"reconcile.regioncode", "BIRDLIST_REGION_CODE", validateEnvRegionCode},
		{"reconcile.locale", "BIRDLIST_LOCALE", validateEnvLocale},

		{"maintenance.concurrency", "BIRDLIST_MAINTENANCE_CONCURRENCY", validateEnvPositiveInt},
		{"notification.urls", "BIRDLIST_NOTIFICATION_URLS", nil},
		{"webserver.listen", "BIRDLIST_LISTEN", nil},
		{"sentry.dsn", "BIRDLIST_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every variable and validates values that are set
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f", value)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got '%s'", value)
	}
	return nil
}

func validateEnvDriver(value string) error {
	switch value {
	case "sqlite", "mysql":
		return nil
	default:
		return fmt.Errorf("driver must be 'sqlite' or 'mysql', got '%s'", value)
	}
}

func validateEnvLogLevel(value string) error {
	switch value {
	case "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unknown log level '%s'", value)
	}
}

// localePattern matches locale patterns like "en" or "en-us"
var localePattern = regexp.MustCompile(`(?i)^[a-z]{2}(-[a-z]{2})?$`)

func validateEnvLocale(value string) error {
	if !localePattern.MatchString(value) {
		return fmt.Errorf("locale must match pattern 'xx' or 'xx-xx' (e.g., 'en' or 'en-us'), got: '%s'", value)
	}
	return nil
}

// regionCodePattern matches eBird region codes such as "US", "US-OH" or "US-OH-035"
var regionCodePattern = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]{1,3}(-[0-9]{3})?)?$`)

func validateEnvRegionCode(value string) error {
	if !regionCodePattern.MatchString(value) {
		return fmt.Errorf("region code must look like 'US', 'US-OH' or 'US-OH-035', got '%s'", value)
	}
	return nil
}
