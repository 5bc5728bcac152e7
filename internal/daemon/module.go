// Package daemon wires the mumbled components together with fx.
package daemon

import (
	"context"

	"github.com/mumblechat/mumble/internal/api"
	"github.com/mumblechat/mumble/internal/bus"
	"github.com/mumblechat/mumble/internal/config"
	"github.com/mumblechat/mumble/internal/devices"
	"github.com/mumblechat/mumble/internal/ingest"
	"github.com/mumblechat/mumble/internal/lock"
	"github.com/mumblechat/mumble/internal/logging"
	"github.com/mumblechat/mumble/internal/mirror"
	"github.com/mumblechat/mumble/internal/notify"
	"github.com/mumblechat/mumble/internal/outbox"
	"github.com/mumblechat/mumble/internal/session"
	"github.com/mumblechat/mumble/internal/source"
	"github.com/mumblechat/mumble/internal/source/gateway"
	"github.com/mumblechat/mumble/internal/source/memory"
	"github.com/mumblechat/mumble/internal/status"
	"github.com/mumblechat/mumble/internal/store"
	msync "github.com/mumblechat/mumble/internal/sync"
	"github.com/mumblechat/mumble/internal/views"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DefaultMemorySelfID is the inbox the in-memory source acts as when
// source.self_id is empty.
const DefaultMemorySelfID = "local"

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load ~/.mumble/config.toml
	// Logger replaces the session log file when set.
	Logger *zap.Logger
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideCache,
			provideSource,
			provideCoordinator,
			providePoller,
			provideIngestor,
			provideDirectory,
			provideViews,
			provideSender,
			provideNotifier,
			provideDevices,
			NewRuntime,
			provideSessionService,
			provideSyncService,
			provideConversationService,
			provideNickService,
			provideDeviceService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is only opened by the
// daemon that owns the session.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideCache(cfg *config.Config, b *bus.Bus, logger *zap.Logger) *mirror.Cache {
	return mirror.New(mirror.Options{Strict: cfg.Mirror.Strict, Bus: b, Logger: logger})
}

func provideSource(cfg *config.Config, logger *zap.Logger) (source.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceMemory:
		selfID := cfg.Source.SelfID
		if selfID == "" {
			selfID = DefaultMemorySelfID
		}
		logger.Info("using in-memory source", zap.String("self_id", selfID))
		return memory.New(selfID), nil
	default:
		logger.Info("using gateway source", zap.String("url", cfg.Source.URL))
		return gateway.New(gateway.Options{
			BaseURL:           cfg.Source.URL,
			Token:             cfg.Source.Token,
			MaxReconnectDelay: cfg.Sync.MaxBackoff.Duration,
			Logger:            logger.Named("gateway"),
		})
	}
}

func provideCoordinator(cfg *config.Config, src source.Source, cache *mirror.Cache, m *status.Machine, b *bus.Bus, logger *zap.Logger) *msync.Coordinator {
	return msync.NewCoordinator(msync.Options{
		Source:  src,
		Cache:   cache,
		Auth:    m,
		Bus:     b,
		Logger:  logger.Named("sync"),
		Workers: cfg.Sync.MessageWorkers,
	})
}

func providePoller(cfg *config.Config, coord *msync.Coordinator, logger *zap.Logger) *msync.Poller {
	return msync.NewPoller(coord, cfg.Sync.PollInterval.Duration, cfg.Sync.MaxBackoff.Duration, logger.Named("poller"))
}

func provideIngestor(src source.Source, cache *mirror.Cache, coord *msync.Coordinator, logger *zap.Logger) *ingest.Ingestor {
	return ingest.New(src, cache, coord, logger.Named("ingest"))
}

func provideDirectory(db *store.DB) (*views.Directory, error) {
	return views.NewDirectory(db)
}

func provideViews(cfg *config.Config, cache *mirror.Cache, dir *views.Directory) *views.Views {
	return views.New(cache, dir, selfID(cfg))
}

func provideSender(db *store.DB, src source.Source, cache *mirror.Cache, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, src, cache, b, logger.Named("outbox"))
}

func provideNotifier(cfg *config.Config, cache *mirror.Cache, v *views.Views, db *store.DB, b *bus.Bus, logger *zap.Logger) *notify.Notifier {
	return notify.New(notify.Options{
		SelfID:    selfID(cfg),
		PerSecond: cfg.Notify.PerSecond,
		Cache:     cache,
		Names:     v,
		Muted:     db,
		Bus:       b,
		Logger:    logger.Named("notify"),
	})
}

func provideDevices(src source.Source, logger *zap.Logger) *devices.Manager {
	return devices.NewManager(src, logger.Named("devices"))
}

func provideSessionService(p Params, cfg *config.Config, m *status.Machine, cache *mirror.Cache, rt *Runtime, b *bus.Bus) *api.SessionService {
	return api.NewSessionService(api.SessionInfo{
		Name:   p.SessionName,
		SelfID: selfID(cfg),
		Source: cfg.Source.Kind,
	}, m, cache, rt, b)
}

func provideSyncService(coord *msync.Coordinator, poller *msync.Poller, cache *mirror.Cache) *api.SyncService {
	return api.NewSyncService(coord, poller, cache)
}

func provideConversationService(v *views.Views, cache *mirror.Cache, db *store.DB, coord *msync.Coordinator, sender *outbox.Sender, n *notify.Notifier, poller *msync.Poller, b *bus.Bus) *api.ConversationService {
	return api.NewConversationService(api.ConversationOptions{
		Views:   v,
		Cache:   cache,
		DB:      db,
		Creator: coord,
		Outbox:  sender,
		Focus:   n,
		Watch:   poller,
		Bus:     b,
	})
}

func provideNickService(db *store.DB, dir *views.Directory) *api.NickService {
	return api.NewNickService(db, dir)
}

func provideDeviceService(m *devices.Manager) *api.DeviceService {
	return api.NewDeviceService(m)
}

func selfID(cfg *config.Config) string {
	if cfg.Source.SelfID == "" && cfg.Source.Kind == config.SourceMemory {
		return DefaultMemorySelfID
	}
	return cfg.Source.SelfID
}

// hasCredentials reports whether the daemon can connect without being told to.
func hasCredentials(cfg *config.Config) bool {
	return cfg.Source.Kind == config.SourceMemory || cfg.Source.Token != ""
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, srv *Server, lk *lock.Lock, db *store.DB, rt *Runtime, sender *outbox.Sender, notifier *notify.Notifier, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			rt.Start()

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			sender.Start(context.Background())
			if cfg.Notify.Enabled {
				notifier.Start(context.Background())
			}

			if hasCredentials(cfg) {
				go func() {
					if err := rt.Connect(context.Background()); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
					}
				}()
			} else {
				logger.Info("no credentials configured, waiting for connect")
				_ = machine.Transition(status.Unauthenticated)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			notifier.Stop()
			sender.Stop()
			rt.Stop()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
