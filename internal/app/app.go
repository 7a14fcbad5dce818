// Package app assembles a runnable ensemble from configuration.
package app

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/Iron-Ham/ensemble/internal/config"
	"github.com/Iron-Ham/ensemble/internal/conflict"
	"github.com/Iron-Ham/ensemble/internal/engine"
	"github.com/Iron-Ham/ensemble/internal/event"
	"github.com/Iron-Ham/ensemble/internal/extract"
	"github.com/Iron-Ham/ensemble/internal/fallback"
	"github.com/Iron-Ham/ensemble/internal/knowledge"
	"github.com/Iron-Ham/ensemble/internal/logging"
	"github.com/Iron-Ham/ensemble/internal/quality"
	"github.com/Iron-Ham/ensemble/internal/retry"
	"github.com/Iron-Ham/ensemble/internal/session"
	"github.com/Iron-Ham/ensemble/internal/store"
	"github.com/Iron-Ham/ensemble/internal/worker"
)

// Options adjust a build beyond what the config file says.
type Options struct {
	// Logger overrides the logger built from cfg.Logging.
	Logger *logging.Logger
	// Store overrides the store built from cfg.Store.
	Store store.Store
	// Workers replaces the command workers built from cfg.Roles.
	Workers []worker.Worker
	// LookPath reports whether a role's executable exists. Roles whose
	// command cannot be found get no worker, so their tasks fall back.
	// Defaults to exec.LookPath.
	LookPath func(file string) (string, error)
	// OnProgress receives streamed output for every task.
	OnProgress engine.ProgressFunc
}

// App holds the wired components. Close releases them.
type App struct {
	Config    *config.Config
	Logger    *logging.Logger
	Bus       *event.Bus
	Store     store.Store
	Workers   *worker.Registry
	Sessions  *session.Manager
	Fallback  *fallback.Coordinator
	Knowledge *knowledge.Coordinator
	Engine    *engine.Engine
	Resolver  *conflict.Resolver

	ownLogger bool
	ownStore  bool
}

// New wires every component described by cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	a.Logger = opts.Logger
	if a.Logger == nil {
		logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		a.Logger = logger
		a.ownLogger = true
	}

	a.Store = opts.Store
	if a.Store == nil {
		st, err := store.Open(ctx, StoreConfig(cfg.Store))
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		a.Store = st
		a.ownStore = true
	}

	a.Bus = event.NewBus(a.Logger)

	workers := opts.Workers
	if workers == nil {
		built, err := BuildWorkers(cfg, opts.LookPath, a.Logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		workers = built
	}
	a.Workers = worker.NewRegistry(workers...)

	a.Sessions = session.NewManager(ManagerConfig(cfg), a.Workers, a.Bus, a.Logger)
	a.Fallback = fallback.NewCoordinator(a.Sessions, Fallbacks(cfg), a.Logger)
	a.Knowledge = knowledge.NewCoordinator(a.Bus, a.Logger)

	a.Engine = engine.New(EngineConfig(cfg.Engine), engine.Deps{
		Executor:   a.Fallback,
		Context:    a.Knowledge,
		Gate:       quality.NewGate(),
		Writer:     extract.NewWriter(cfg.Conflict.ProximityWindow, a.Logger),
		Store:      a.Store,
		Bus:        a.Bus,
		Logger:     a.Logger,
		OnProgress: opts.OnProgress,
	})

	a.Resolver = conflict.NewResolver(conflict.Config{
		ArchitectRole:   cfg.Conflict.ArchitectRole,
		ProximityWindow: cfg.Conflict.ProximityWindow,
	}, a.Bus, a.Logger)

	a.Logger.Debug("ensemble wired",
		"roles", cfg.RoleNames(),
		"workers", a.Workers.Len(),
		"store", cfg.Store.Backend)
	return a, nil
}

// Close disposes sessions and releases the store and logger it opened.
func (a *App) Close() {
	if a.Sessions != nil {
		a.Sessions.Dispose()
	}
	if a.ownStore && a.Store != nil {
		if err := a.Store.Close(); err != nil && a.Logger != nil {
			a.Logger.Warn("failed to close store", "error", err.Error())
		}
	}
	if a.ownLogger && a.Logger != nil {
		_ = a.Logger.Close()
	}
}

// BuildWorkers creates one command worker per configured role. Each worker's
// family defaults to its role name so two roles on the same vendor stay
// distinct. Roles whose executable is missing are skipped with a warning.
func BuildWorkers(cfg *config.Config, lookPath func(string) (string, error), logger *logging.Logger) ([]worker.Worker, error) {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	var workers []worker.Worker
	for _, name := range cfg.RoleNames() {
		role := cfg.Roles[name]
		w, err := worker.NewCommandWorker(worker.CommandConfig{
			ID:              name,
			Vendor:          role.Vendor,
			Family:          roleFamily(name, role),
			Command:         role.Command,
			PTY:             role.PTY,
			SkipPermissions: role.SkipPermissions,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("role %s: %w", name, err)
		}
		if _, err := lookPath(w.Command()[0]); err != nil {
			logger.Warn("agent command not found, role unavailable",
				"agent", name,
				"command", w.Command()[0])
			continue
		}
		workers = append(workers, w)
	}
	return workers, nil
}

// ManagerConfig maps the session and role sections onto a session manager.
func ManagerConfig(cfg *config.Config) session.ManagerConfig {
	roles := make(map[string]worker.Selector, len(cfg.Roles))
	for name, role := range cfg.Roles {
		roles[name] = worker.Selector{Vendor: role.Vendor, Family: roleFamily(name, role)}
	}
	return session.ManagerConfig{
		Roles: roles,
		Session: session.Config{
			MaxRetries: cfg.Session.MaxRetries,
			Backoff: retry.Backoff{
				Base:   orDefault(cfg.Session.BaseDelay, retry.DefaultBaseDelay),
				Max:    orDefault(cfg.Session.MaxDelay, retry.DefaultMaxDelay),
				Jitter: cfg.Session.Jitter,
			},
			Options: worker.Options{Model: cfg.Session.Model},
		},
		AvailabilityTTL: cfg.Session.AvailabilityTTL,
	}
}

// Fallbacks returns the fallback chain of every role.
func Fallbacks(cfg *config.Config) map[string][]string {
	out := make(map[string][]string, len(cfg.Roles))
	for name, role := range cfg.Roles {
		if len(role.Fallbacks) > 0 {
			out[name] = append([]string(nil), role.Fallbacks...)
		}
	}
	return out
}

// EngineConfig converts the engine section.
func EngineConfig(c config.EngineConfig) engine.Config {
	return engine.Config{
		ContinueOnFailure: c.ContinueOnFailure,
		QualityRetries:    c.QualityRetries,
		AutosaveInterval:  c.AutosaveInterval,
		OutputRoot:        c.OutputRoot,
		MaxParallel:       c.MaxParallel,
	}
}

// StoreConfig converts the store section.
func StoreConfig(c config.StoreConfig) store.Config {
	return store.Config{
		Backend:    store.Backend(c.Backend),
		Dir:        c.Dir,
		SQLitePath: c.SQLitePath,
		S3Bucket:   c.S3Bucket,
		S3Prefix:   c.S3Prefix,
		S3Region:   c.S3Region,
	}
}

func roleFamily(name string, role config.RoleConfig) string {
	if role.Family != "" {
		return role.Family
	}
	return name
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
