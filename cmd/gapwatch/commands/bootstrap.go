package commands

import (
	"context"
	"fmt"

	"github.com/wonny/gapwatch/internal/api"
	"github.com/wonny/gapwatch/internal/checkpoint"
	"github.com/wonny/gapwatch/internal/contracts"
	"github.com/wonny/gapwatch/internal/dataset"
	"github.com/wonny/gapwatch/internal/external/polygon"
	"github.com/wonny/gapwatch/internal/notify"
	"github.com/wonny/gapwatch/internal/observability"
	"github.com/wonny/gapwatch/internal/qualification"
	"github.com/wonny/gapwatch/internal/scheduler"
	"github.com/wonny/gapwatch/internal/scheduler/jobs"
	"github.com/wonny/gapwatch/internal/storage"
	"github.com/wonny/gapwatch/internal/universe"
	"github.com/wonny/gapwatch/pkg/config"
	"github.com/wonny/gapwatch/pkg/database"
	"github.com/wonny/gapwatch/pkg/httputil"
	"github.com/wonny/gapwatch/pkg/logger"
	"github.com/wonny/gapwatch/pkg/redis"
)

// appOptions tweaks wiring for one command invocation
type appOptions struct {
	// DryRun keeps the dataset in memory and logs notifications
	DryRun bool
	// MaxSymbols overrides MAX_SYMBOLS when positive
	MaxSymbols int
}

// App is the fully wired pipeline
type App struct {
	Config    *config.Config
	Logger    *logger.Logger
	Metrics   *observability.Metrics
	Schedule  *checkpoint.Schedule
	Store     *dataset.Store
	Processor *checkpoint.Processor
	Universe  *universe.Loader
	Notifier  contracts.Notifier
	Deps      *jobs.Deps
	Checks    map[string]api.HealthCheck

	closers []func()
}

// Close releases connections in reverse order of creation
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// NewScheduler creates a scheduler with every pipeline job registered
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(scheduler.Options{
		Location:   a.Schedule.Location(),
		MaxRetries: a.Config.Scheduler.MaxRetries,
		RetryDelay: a.Config.Scheduler.RetryDelay,
	}, a.Logger)

	if err := jobs.Register(sched, a.Deps); err != nil {
		return nil, fmt.Errorf("register jobs: %w", err)
	}
	return sched, nil
}

// bootstrap wires config → logger → redis → http → polygon → storage →
// dataset store → schedule → processor → universe → notifier
// ⭐ SSOT: dependency wiring happens here only
func bootstrap(ctx context.Context, opts appOptions) (_ *App, err error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg)
	if opts.MaxSymbols > 0 {
		cfg.Pipeline.MaxSymbols = opts.MaxSymbols
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	app := &App{
		Config: cfg,
		Logger: log,
		Checks: make(map[string]api.HealthCheck),
	}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	if cfg.MetricsEnabled {
		app.Metrics = observability.NewMetrics("gapwatch")
	}

	// 3. Checkpoint schedule
	sched, err := loadSchedule(cfg)
	if err != nil {
		return nil, err
	}
	app.Schedule = sched

	log.WithFields(map[string]interface{}{
		"schedule": cfg.Pipeline.ScheduleFile,
		"timezone": sched.Timezone,
		"labels":   sched.Labels(),
		"hash":     sched.Hash(),
	}).Info("Checkpoint schedule loaded")

	// 4. Redis (cache + shared rate limit), optional
	rdb, err := redis.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	app.closers = append(app.closers, func() { rdb.Close() })

	var cache *redis.Cache
	if rdb.Enabled() {
		cache = redis.NewCache(rdb, "gapwatch")
		app.Checks["redis"] = func(ctx context.Context) error {
			return rdb.Redis().Ping(ctx).Err()
		}
	}

	// 5. HTTP client + Polygon
	httpClient := httputil.NewWithTimeout(cfg, log, cfg.Pipeline.RequestTimeout)
	if rdb.Enabled() {
		limiter := redis.NewRateLimiter(rdb, "gapwatch")
		httpClient.WithLimiter(limiter.For(redis.PolygonRateLimit(cfg.Polygon.RateLimit)))
	}
	poly := polygon.NewClient(httpClient, cfg.Polygon, cache, log)

	// 6. Storage
	primary, fallback, err := app.openStorage(ctx, opts.DryRun)
	if err != nil {
		return nil, err
	}

	storeOpts := []dataset.StoreOption{
		dataset.WithPersistRetries(cfg.Pipeline.PersistMaxRetries, cfg.Pipeline.RetryDelay),
	}
	if fallback != nil {
		storeOpts = append(storeOpts, dataset.WithFallback(fallback))
	}
	app.Store = dataset.NewStore(primary, log, storeOpts...)

	// 7. Processor
	app.Processor = checkpoint.NewProcessor(
		app.Store,
		poly,
		qualification.NewRule(sched.Qualification),
		sched,
		checkpoint.Config{
			Workers:      cfg.Pipeline.MaxConcurrentRequests,
			FetchTimeout: cfg.Pipeline.RequestTimeout,
		},
		app.Metrics,
		log,
	)

	// 8. Universe
	app.Universe = universe.NewLoader(universe.Options{
		Sources:    universeSources(cfg, poly),
		Gainers:    gainersSource(cfg, poly, log),
		Blobs:      primary,
		Cache:      cache,
		MaxSymbols: cfg.Pipeline.MaxSymbols,
		Metrics:    app.Metrics,
	}, log)

	// 9. Notifier
	app.Notifier, err = newNotifier(ctx, cfg, opts.DryRun, log)
	if err != nil {
		return nil, err
	}

	app.Deps = &jobs.Deps{
		Processor:      app.Processor,
		Universe:       app.Universe,
		Store:          app.Store,
		Notifier:       app.Notifier,
		AlertOnFailure: cfg.Notify.AlertOnFailure,
		Metrics:        app.Metrics,
		Logger:         log,
	}

	return app, nil
}

// applyFlags lets global flags override the environment
func applyFlags(cfg *config.Config) {
	if scheduleFile != "" {
		cfg.Pipeline.ScheduleFile = scheduleFile
	}
	if env != "" {
		cfg.Env = env
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
}

// loadConfigAndSchedule is the light path for commands that only read the plan
func loadConfigAndSchedule() (*config.Config, *checkpoint.Schedule, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	applyFlags(cfg)

	sched, err := loadSchedule(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, sched, nil
}

func loadSchedule(cfg *config.Config) (*checkpoint.Schedule, error) {
	sched, err := checkpoint.LoadScheduleOrDefault(cfg.Pipeline.ScheduleFile)
	if err != nil {
		return nil, fmt.Errorf("load schedule: %w", err)
	}

	if tz := cfg.Pipeline.Timezone; tz != "" && tz != sched.Timezone {
		sched.Timezone = tz
		if err := sched.Validate(); err != nil {
			return nil, fmt.Errorf("apply TIMEZONE: %w", err)
		}
	}
	return sched, nil
}

// openStorage returns the primary blob store and the optional local fallback
func (a *App) openStorage(ctx context.Context, dryRun bool) (storage.BlobStore, storage.BlobStore, error) {
	cfg := a.Config
	if dryRun {
		a.Logger.Info("Dry run: dataset kept in memory")
		return storage.NewMemoryStore(), nil, nil
	}

	var primary storage.BlobStore
	switch cfg.Storage.Backend {
	case "local":
		primary = storage.NewLocalStore(cfg.Storage.DataDir)

	case "s3":
		s3Store, err := storage.NewS3StoreFromEnv(ctx, cfg.Storage.AWSRegion, cfg.Storage.S3Bucket)
		if err != nil {
			return nil, nil, fmt.Errorf("create s3 store: %w", err)
		}
		primary = s3Store

	case "postgres":
		db, err := database.New(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.Checks["database"] = func(ctx context.Context) error {
			if status := db.HealthCheck(ctx); !status.Healthy {
				return fmt.Errorf("database unhealthy: %s", status.Error)
			}
			return nil
		}

		pgStore := storage.NewPostgresStore(db.Pool, "")
		if err := pgStore.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("ensure blob schema: %w", err)
		}
		primary = pgStore

	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	a.Logger.WithFields(map[string]interface{}{
		"backend":  primary.Name(),
		"fallback": cfg.Storage.FallbackDir,
	}).Info("Dataset storage ready")

	if cfg.Storage.FallbackDir == "" {
		return primary, nil, nil
	}
	return primary, storage.NewLocalStore(cfg.Storage.FallbackDir), nil
}

func universeSources(cfg *config.Config, poly *polygon.Client) []contracts.SymbolSource {
	if cfg.Pipeline.UniverseSource == "static" {
		return []contracts.SymbolSource{
			universe.NewStaticSource("static", cfg.Pipeline.StaticSymbols),
		}
	}
	return []contracts.SymbolSource{
		polygon.NewTickerSource(poly, cfg.Polygon.Exchange),
	}
}

// gainersSource prefers a configured gainers page over the Polygon gainers snapshot
func gainersSource(cfg *config.Config, poly *polygon.Client, log *logger.Logger) contracts.SymbolSource {
	if cfg.Pipeline.GainersURL != "" {
		return universe.NewHTMLGainersSource(httputil.New(cfg, log), cfg.Pipeline.GainersURL, log)
	}
	return polygon.NewGainersSource(poly)
}

func newNotifier(ctx context.Context, cfg *config.Config, dryRun bool, log *logger.Logger) (contracts.Notifier, error) {
	if dryRun || cfg.Notify.Backend == "log" {
		return notify.NewLogNotifier(log), nil
	}

	n, err := notify.NewSNSNotifierFromEnv(ctx, cfg.Storage.AWSRegion, cfg.Notify.SNSTopicARN, log)
	if err != nil {
		return nil, fmt.Errorf("create sns notifier: %w", err)
	}
	return n, nil
}
