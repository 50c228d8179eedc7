// Package conf loads birdlist settings from config.yaml, the environment and .env.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/citizenbirds/birdlist/internal/logger"
)

// Settings contains all configuration options for birdlist.
type Settings struct {
	Debug bool `mapstructure:"debug"`

	Logging      logger.LoggingConfig `mapstructure:"logging"`
	Cache        CacheSettings        `mapstructure:"cache"`
	Datastore    DatastoreSettings    `mapstructure:"datastore"`
	HTTP         HTTPSettings         `mapstructure:"http"`
	INaturalist  INaturalistSettings  `mapstructure:"inaturalist"`
	EBird        EBirdSettings        `mapstructure:"ebird"`
	Wikimedia    WikimediaSettings    `mapstructure:"wikimedia"`
	Crosswalk    CrosswalkSettings    `mapstructure:"crosswalk"`
	Reconcile    ReconcileSettings    `mapstructure:"reconcile"`
	Maintenance  MaintenanceSettings  `mapstructure:"maintenance"`
	Notification NotificationSettings `mapstructure:"notification"`
	WebServer    WebServerSettings    `mapstructure:"webserver"`
	Sentry       SentrySettings       `mapstructure:"sentry"`
}

// CacheSettings configures the response cache
type CacheSettings struct {
	TTL        time.Duration `mapstructure:"ttl"`        // how long a response stays usable
	Rehydrate  bool          `mapstructure:"rehydrate"`  // load fresh durable rows at startup
	HeaderKeys []string      `mapstructure:"headerkeys"` // request headers folded into the cache key
}

// DatastoreSettings selects the durable cache backend
type DatastoreSettings struct {
	Driver string         `mapstructure:"driver"` // "sqlite" or "mysql"
	SQLite SQLiteSettings `mapstructure:"sqlite"`
	MySQL  MySQLSettings  `mapstructure:"mysql"`
}

// SQLiteSettings contains settings for the SQLite cache database
type SQLiteSettings struct {
	Path string `mapstructure:"path"`
}

// MySQLSettings contains settings for the MySQL cache database
type MySQLSettings struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"database"`
}

// DSN returns the go-sql-driver DSN for these settings
func (m *MySQLSettings) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		m.Username, m.Password, m.Host, m.Port, m.Database)
}

// HTTPSettings configures the outbound HTTP client
type HTTPSettings struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"useragent"`
}

// INaturalistSettings configures the primary source
type INaturalistSettings struct {
	BaseURL    string `mapstructure:"baseurl"`
	PerPage    int    `mapstructure:"perpage"`
	Verifiable bool   `mapstructure:"verifiable"`
	MaxPages   int    `mapstructure:"maxpages"`
}

// EBirdSettings configures the secondary source
type EBirdSettings struct {
	BaseURL  string `mapstructure:"baseurl"`
	APIToken string `mapstructure:"apitoken"`
}

// WikimediaSettings configures the encyclopedia and knowledge-graph lookups
type WikimediaSettings struct {
	WikipediaURL string `mapstructure:"wikipediaurl"`
	WikidataURL  string `mapstructure:"wikidataurl"`
	Contact      string `mapstructure:"contact"` // appended to the User-Agent
}

// CrosswalkSettings points at the identifier mapping tables
type CrosswalkSettings struct {
	ForwardPath   string `mapstructure:"forwardpath"`
	WikidataPath  string `mapstructure:"wikidatapath"`
	OverridesPath string `mapstructure:"overridespath"`
}

// ReconcileSettings configures the merge of primary and secondary lists
type ReconcileSettings struct {
	FullRegionProjectID string `mapstructure:"fullregionprojectid"`
	RegionCode          string `mapstructure:"regioncode"`
	Locale              string `mapstructure:"locale"`
	ExcludeLocations    string `mapstructure:"excludelocations"`
	CrossSpeciesMarker  string `mapstructure:"crossspeciesmarker"`
	PlaceholderPhotoURL string `mapstructure:"placeholderphotourl"`
}

// MaintenanceSettings configures the crosswalk audit
type MaintenanceSettings struct {
	Concurrency   int     `mapstructure:"concurrency"`
	RatePerSecond float64 `mapstructure:"ratepersecond"`
	Burst         int     `mapstructure:"burst"`
	OutputDir     string  `mapstructure:"outputdir"`
}

// NotificationSettings configures shoutrrr delivery of audit reports
type NotificationSettings struct {
	URLs  []string `mapstructure:"urls"`
	Title string   `mapstructure:"title"`
}

// WebServerSettings configures the HTTP API
type WebServerSettings struct {
	Listen string `mapstructure:"listen"`
}

// SentrySettings configures optional error telemetry
type SentrySettings struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads config.yaml (or configFile when set), .env and the environment
// into the global viper instance and stores the result for Setting().
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings, err := LoadWith(viper.GetViper(), configFile)
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settings, nil
}

// LoadWith is Load on a caller-supplied viper instance. It does not touch the
// global settings.
func LoadWith(v *viper.Viper, configFile string) (*Settings, error) {
	// .env is optional; a missing file is not an error
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, path := range GetDefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Defaults and environment are enough to run
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "birdlist"))
	}
	return append(paths, "/etc/birdlist")
}

// Setting returns the settings stored by the last successful Load, loading
// defaults on first use.
func Setting() *Settings {
	settingsMutex.RLock()
	s := settingsInstance
	settingsMutex.RUnlock()
	if s != nil {
		return s
	}

	s, err := Load("")
	if err != nil {
		GetLogger().Error("failed to load settings", logger.Error(err))
		return nil
	}
	return s
}
