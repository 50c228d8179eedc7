// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// DefaultCacheTTL bounds how long an upstream response is reused
const DefaultCacheTTL = 10 * time.Minute

// DefaultExcludeLocations matches offshore and auto-selected report locations
const DefaultExcludeLocations = `(?i)(pelagic|offshore|\bat sea\b|auto[- ]selected)`

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("logging.default_level", "info")
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", true)
	v.SetDefault("logging.console.level", "info")
	v.SetDefault("logging.file_output.enabled", false)
	v.SetDefault("logging.file_output.path", "logs/birdlist.log")
	v.SetDefault("logging.file_output.level", "info")

	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.rehydrate", true)
	v.SetDefault("cache.headerkeys", []string{})

	v.SetDefault("datastore.driver", "sqlite")
	v.SetDefault("datastore.sqlite.path", "birdlist-cache.db")
	v.SetDefault("datastore.mysql.host", "localhost")
	v.SetDefault("datastore.mysql.port", "3306")
	v.SetDefault("datastore.mysql.database", "birdlist")

	v.SetDefault("http.timeout", 30*time.Second)
	v.SetDefault("http.useragent", "birdlist/1.0")

	v.SetDefault("inaturalist.baseurl", "https://api.inaturalist.org/v1")
	v.SetDefault("inaturalist.perpage", 500)
	v.SetDefault("inaturalist.verifiable", true)
	v.SetDefault("inaturalist.maxpages", 500)

	v.SetDefault("ebird.baseurl", "https://api.ebird.org/v2")
	v.SetDefault("ebird.apitoken", "")

	v.SetDefault("wikimedia.wikipediaurl", "https://en.wikipedia.org/w/api.php")
	v.SetDefault("wikimedia.wikidataurl", "https://www.wikidata.org/w/api.php")
	v.SetDefault("wikimedia.contact", "")

	v.SetDefault("crosswalk.forwardpath", "data/taxon-to-code.json")
	v.SetDefault("crosswalk.wikidatapath", "data/taxon-to-wikidata.json")
	v.SetDefault("crosswalk.overridespath", "data/code-overrides.yaml")

	v.SetDefault("reconcile.fullregionprojectid", "")
	v.SetDefault("reconcile.regioncode", "")
	v.SetDefault("reconcile.locale", "en")
	v.SetDefault("reconcile.excludelocations", DefaultExcludeLocations)
	v.SetDefault("reconcile.crossspeciesmarker", "x")
	v.SetDefault("reconcile.placeholderphotourl", "https://static.inaturalist.org/photos/placeholder/square.png")

	v.SetDefault("maintenance.concurrency", 4)
	v.SetDefault("maintenance.ratepersecond", 5.0)
	v.SetDefault("maintenance.burst", 1)
	v.SetDefault("maintenance.outputdir", "")

	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.title", "birdlist crosswalk audit")

	v.SetDefault("webserver.listen", ":8080")

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
}
