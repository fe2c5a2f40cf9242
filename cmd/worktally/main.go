package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	memorycache "github.com/hylla/worktally/internal/adapters/cache/memory"
	rediscache "github.com/hylla/worktally/internal/adapters/cache/redis"
	"github.com/hylla/worktally/internal/adapters/server"
	"github.com/hylla/worktally/internal/adapters/server/common"
	"github.com/hylla/worktally/internal/adapters/storage/sqlite"
	"github.com/hylla/worktally/internal/app"
	"github.com/hylla/worktally/internal/config"
	"github.com/hylla/worktally/internal/domain"
	"github.com/hylla/worktally/internal/platform"
	"github.com/spf13/cobra"
)

var version = "dev"

// program is the subset of *tea.Program that watch needs.
type program interface {
	Run() (tea.Model, error)
}

var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// nowFunc is the clock handed to the service.
var nowFunc = time.Now

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		os.Exit(1)
	}
}

// run builds the command tree and executes args through fang.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCmd(&rootOptions{})
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.SetIn(os.Stdin)
	return fang.Execute(ctx, root, fang.WithVersion(version), fang.WithNotifySignal(os.Interrupt))
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	actorID    string
	devMode    bool
	jsonOut    bool
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("WORKTALLY_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	defaultApp := platform.DefaultAppName
	if envApp := strings.TrimSpace(os.Getenv("WORKTALLY_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:   "worktally",
		Short: "Work and QA session timers for tasks and bugs",
		Long: `worktally tracks how long tasks and bugs are worked on and tested.

Every start, pause, resume and finish is appended to a time log, and totals can be
rebuilt from that log at any time.`,
		Args: cobra.NoArgs,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.StringVar(&opts.actorID, "actor", "", "actor id recorded on transitions (defaults to identity.actor_id)")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	flags.BoolVar(&opts.jsonOut, "json", false, "print machine-readable JSON")

	root.AddGroup(
		&cobra.Group{ID: "items", Title: "Trackables"},
		&cobra.Group{ID: "timers", Title: "Timers"},
		&cobra.Group{ID: "ops", Title: "Operations"},
	)
	root.AddCommand(
		newPathsCmd(opts),
		newCreateCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newEditCmd(opts),
		newWorkCmd(opts),
		newQACmd(opts),
		newLogCmd(opts),
		newActiveCmd(opts),
		newRecomputeCmd(opts),
		newReconcileCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newServeCmd(opts),
		newWatchCmd(opts),
	)
	return root
}

// resolvedPaths applies --app and --dev to the platform defaults.
func (o *rootOptions) resolvedPaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// appRuntime is the wired stack behind one command invocation.
type appRuntime struct {
	cfg     config.Config
	paths   platform.Paths
	logger  *runtimeLogger
	repo    *sqlite.Repository
	service *app.Service
	timers  *common.AppServiceAdapter
	checks  []server.ReadyCheck
	closers []func() error
}

// openRuntime resolves config, opens storage and the cache, and builds the service.
func openRuntime(ctx context.Context, opts *rootOptions, stderr io.Writer) (*appRuntime, error) {
	paths, err := opts.resolvedPaths()
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(opts.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("WORKTALLY_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(opts.dbPath)
	if dbPath == "" {
		dbPath = strings.TrimSpace(os.Getenv("WORKTALLY_DB_PATH"))
	}
	dbOverridden := dbPath != ""
	if !dbOverridden {
		dbPath = paths.DBPath
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	if actor := strings.TrimSpace(opts.actorID); actor != "" {
		cfg.Identity.ActorID = actor
	}

	logger, err := newRuntimeLogger(stderr, paths.AppName, opts.devMode, cfg.Logging, nowFunc)
	if err != nil {
		return nil, err
	}
	rt := &appRuntime{cfg: cfg, paths: paths, logger: logger}
	rt.closers = append(rt.closers, logger.Close)
	if devLog := logger.DevLogPath(); devLog != "" {
		logger.Debug("dev log enabled", "path", devLog)
	}

	if err := config.EnsureConfigDir(cfg.Database.Path); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("open database %q: %w", cfg.Database.Path, err)
	}
	rt.repo = repo
	rt.closers = append(rt.closers, repo.Close)
	rt.checks = append(rt.checks, server.ReadyCheck{Name: "sqlite", Check: repo.Ping})
	logger.Debug("database opened", "path", cfg.Database.Path)

	cache := rt.openCache(ctx)
	rt.service = app.NewService(repo, uuid.NewString, nowFunc, app.ServiceConfig{
		DefaultActor: domain.Actor{ID: cfg.Identity.ActorID, Type: domain.ActorTypeUser},
		Cache:        cache,
		OnCacheError: func(op string, err error) {
			logger.Warn("trackable cache error", "op", op, "err", err)
		},
	})
	rt.timers = common.NewAppServiceAdapter(rt.service)
	return rt, nil
}

// openCache builds the configured trackable cache. A redis backend that cannot be reached
// degrades to no cache.
func (rt *appRuntime) openCache(ctx context.Context) app.TrackableCache {
	cfg := rt.cfg.Cache
	switch cfg.Backend {
	case config.CacheBackendNone:
		return nil
	case config.CacheBackendRedis:
		cache, err := rediscache.Dial(ctx, rediscache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      rt.cfg.CacheTTL(),
		})
		if err != nil {
			rt.logger.Warn("redis cache unavailable, continuing without cache", "addr", cfg.Redis.Addr, "err", err)
			return nil
		}
		rt.closers = append(rt.closers, func() error {
			stats := cache.Stats()
			rt.logger.Debug("redis cache stats", "hits", stats.Hits, "misses", stats.Misses, "sets", stats.Sets, "deletes", stats.Deletes, "errors", stats.Errors)
			return cache.Close()
		})
		rt.checks = append(rt.checks, server.ReadyCheck{Name: "redis", Check: cache.Ping})
		rt.logger.Debug("redis cache connected", "addr", cfg.Redis.Addr)
		return cache
	default:
		return memorycache.New(rt.cfg.CacheTTL())
	}
}

// actor returns the transition actor id for CLI and TUI calls.
func (rt *appRuntime) actor() string {
	return strings.TrimSpace(rt.cfg.Identity.ActorID)
}

// Close releases resources in reverse order of acquisition.
func (rt *appRuntime) Close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// withRuntime opens the runtime for one command and closes it afterwards.
func withRuntime(cmd *cobra.Command, opts *rootOptions, fn func(context.Context, *appRuntime) error) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := openRuntime(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close runtime: %w", closeErr)
		}
	}()
	return fn(ctx, rt)
}

// parseBoolEnv reads a boolean environment variable. ok is false when unset or unparsable.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
