// conf/validate.go

package conf

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if settings.Cache.TTL <= 0 {
		ve.Errors = append(ve.Errors, "cache.ttl must be positive")
	}

	switch settings.Datastore.Driver {
	case "sqlite":
		if settings.Datastore.SQLite.Path == "" {
			ve.Errors = append(ve.Errors, "datastore.sqlite.path is required for the sqlite driver")
		}
	case "mysql":
		if settings.Datastore.MySQL.Host == "" || settings.Datastore.MySQL.Database == "" {
			ve.Errors = append(ve.Errors, "datastore.mysql.host and datastore.mysql.database are required for the mysql driver")
		}
	default:
		ve.Errors = append(ve.Errors, fmt.Sprintf("datastore.driver must be sqlite or mysql, got %q", settings.Datastore.Driver))
	}

	if settings.INaturalist.PerPage < 1 {
		ve.Errors = append(ve.Errors, "inaturalist.perpage must be at least 1")
	}

	if err := validateReconcileSettings(&settings.Reconcile); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if settings.Maintenance.Concurrency < 1 {
		ve.Errors = append(ve.Errors, "maintenance.concurrency must be at least 1")
	}
	if settings.Maintenance.RatePerSecond <= 0 {
		ve.Errors = append(ve.Errors, "maintenance.ratepersecond must be positive")
	}

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry.dsn is required when sentry is enabled")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateReconcileSettings(r *ReconcileSettings) error {
	var errs []string

	if _, err := regexp.Compile(r.ExcludeLocations); err != nil {
		errs = append(errs, fmt.Sprintf("reconcile.excludelocations is not a valid pattern: %v", err))
	}
	if r.FullRegionProjectID != "" && r.RegionCode == "" {
		errs = append(errs, "reconcile.regioncode is required when a full-region project is set")
	}
	if r.RegionCode != "" {
		if err := validateEnvRegionCode(r.RegionCode); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("reconcile settings: %s", strings.Join(errs, "; "))
	}
	return nil
}
