// Package app wires the birdlist components from settings.
package app

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/language"

	"github.com/citizenbirds/birdlist/internal/buildinfo"
	"github.com/citizenbirds/birdlist/internal/cachestore"
	"github.com/citizenbirds/birdlist/internal/conf"
	"github.com/citizenbirds/birdlist/internal/crosswalk"
	"github.com/citizenbirds/birdlist/internal/datastore"
	"github.com/citizenbirds/birdlist/internal/diagnostics"
	"github.com/citizenbirds/birdlist/internal/ebird"
	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/httpclient"
	"github.com/citizenbirds/birdlist/internal/inaturalist"
	"github.com/citizenbirds/birdlist/internal/logger"
	"github.com/citizenbirds/birdlist/internal/maintenance"
	"github.com/citizenbirds/birdlist/internal/notification"
	"github.com/citizenbirds/birdlist/internal/observability"
	"github.com/citizenbirds/birdlist/internal/reconcile"
	"github.com/citizenbirds/birdlist/internal/wikimedia"
)

// App holds the long-lived components of one process.
type App struct {
	Settings    *conf.Settings
	Build       *buildinfo.Context
	Log         logger.Logger
	Metrics     *observability.Metrics
	Diagnostics diagnostics.Sink

	Durable    datastore.CacheRepository
	Cache      *cachestore.Store
	INat       *inaturalist.Client
	EBird      *ebird.Client
	Wikimedia  *wikimedia.Client
	Crosswalk  *crosswalk.Crosswalk
	Reconciler *reconcile.Reconciler
}

// New builds every component from settings. Close releases them.
func New(ctx context.Context, settings *conf.Settings, build *buildinfo.Context, log logger.Logger) (*App, error) {
	if log == nil {
		log = logger.Global().Module("app")
	}
	a := &App{Settings: settings, Build: build, Log: log}

	var err error
	if a.Metrics, err = observability.NewMetrics(); err != nil {
		return nil, err
	}
	a.Diagnostics = diagnostics.NewLogSink(log.Module("diagnostics"))

	store, err := datastore.Open(ctx, &settings.Datastore, log.Module("datastore"))
	if err != nil {
		return nil, err
	}
	a.Durable = store

	client := httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.HTTP.Timeout,
		UserAgent:      settings.HTTP.UserAgent + " (" + build.GetVersion() + ")",
	})
	client.SetMetrics(a.Metrics.Upstream)

	opts := []cachestore.Option{
		cachestore.WithTTL(settings.Cache.TTL),
		cachestore.WithHeaderKeys(settings.Cache.HeaderKeys...),
		cachestore.WithLogger(log.Module("cachestore")),
		cachestore.WithMetrics(a.Metrics.Cache),
	}
	if !settings.Cache.Rehydrate {
		opts = append(opts, cachestore.WithoutRehydrate())
	}
	if a.Cache, err = cachestore.New(cachestore.NewHTTPFetcher(client), a.Durable, opts...); err != nil {
		_ = a.Close()
		return nil, err
	}

	a.INat = inaturalist.NewClient(inaturalist.Config{
		BaseURL:  settings.INaturalist.BaseURL,
		PerPage:  settings.INaturalist.PerPage,
		MaxPages: settings.INaturalist.MaxPages,
	}, a.Cache, log.Module("inaturalist"))

	a.EBird = ebird.NewClient(ebird.Config{
		APIToken: settings.EBird.APIToken,
		BaseURL:  settings.EBird.BaseURL,
	}, a.Cache, log.Module("ebird"))

	a.Wikimedia = wikimedia.NewClient(wikimedia.Config{
		WikipediaURL:  settings.Wikimedia.WikipediaURL,
		WikidataURL:   settings.Wikimedia.WikidataURL,
		UserAgent:     wikimediaUserAgent(build, settings.Wikimedia.Contact),
		RatePerSecond: settings.Maintenance.RatePerSecond,
		Burst:         settings.Maintenance.Burst,
		Language:      language.Make(settings.Reconcile.Locale),
	}, a.Cache, log.Module("wikimedia"))

	table, err := crosswalk.Load(settings.Crosswalk.ForwardPath, settings.Crosswalk.WikidataPath, settings.Crosswalk.OverridesPath)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Crosswalk = crosswalk.New(table, a.Diagnostics)
	for _, d := range a.Crosswalk.Validate() {
		log.Warn("crosswalk violation", logger.String("key", d.Key), logger.String("detail", d.Message))
	}

	exclude, err := regexp.Compile(settings.Reconcile.ExcludeLocations)
	if err != nil {
		_ = a.Close()
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("setting", "reconcile.excludelocations").
			Build()
	}

	a.Reconciler = reconcile.New(a.INat, a.EBird, a.Crosswalk, reconcile.Options{
		FullRegionProjectID: settings.Reconcile.FullRegionProjectID,
		RegionCode:          settings.Reconcile.RegionCode,
		Locale:              settings.Reconcile.Locale,
		Verifiable:          settings.INaturalist.Verifiable,
		ExcludeLocations:    exclude,
		CrossSpeciesMarker:  settings.Reconcile.CrossSpeciesMarker,
		PlaceholderPhotoURL: settings.Reconcile.PlaceholderPhotoURL,
		Metrics:             a.Metrics.Reconcile,
	}, log.Module("reconcile"))

	if !a.EBird.HasCredential() {
		log.Warn("EBIRD_API_TOKEN not set, full-region lists will contain primary records only")
	}
	return a, nil
}

// FromGlobal builds an App from the settings stored by conf.Load and the
// global logger.
func FromGlobal(ctx context.Context, build *buildinfo.Context) (*App, error) {
	settings := conf.Setting()
	if settings == nil {
		return nil, errors.Newf("settings are not loaded").
			Component("app").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return New(ctx, settings, build, logger.Global().Module("app"))
}

// Syncer builds the crosswalk audit over the loaded tables.
func (a *App) Syncer(outputDir string) (*maintenance.Syncer, error) {
	notifier, err := notification.FromSettings(&a.Settings.Notification, a.Log.Module("notification"))
	if err != nil {
		return nil, err
	}
	return maintenance.New(a.Reconciler, a.Crosswalk, a.Wikimedia, maintenance.Options{
		Concurrency: a.Settings.Maintenance.Concurrency,
		OutputDir:   outputDir,
		Notifier:    notifier,
		Metrics:     a.Metrics.Maintenance,
	}, a.Log.Module("maintenance")), nil
}

// Close waits for in-flight fetches and closes the durable tier.
func (a *App) Close() error {
	if a.Cache != nil {
		a.Cache.Wait()
	}
	if a.Durable != nil {
		return a.Durable.Close()
	}
	return nil
}

func wikimediaUserAgent(build *buildinfo.Context, contact string) string {
	ua := "birdlist/" + build.GetVersion()
	if contact = strings.TrimSpace(contact); contact != "" {
		ua += " (" + contact + ")"
	}
	return ua
}
