package daemon

import (
	"context"
	"time"

	"github.com/Zain0205/travelin-chat/internal/api"
	"github.com/Zain0205/travelin-chat/internal/app"
	"github.com/Zain0205/travelin-chat/internal/bus"
	"github.com/Zain0205/travelin-chat/internal/chat"
	"github.com/Zain0205/travelin-chat/internal/config"
	"github.com/Zain0205/travelin-chat/internal/conn"
	"github.com/Zain0205/travelin-chat/internal/lock"
	"github.com/Zain0205/travelin-chat/internal/logging"
	"github.com/Zain0205/travelin-chat/internal/metrics"
	"github.com/Zain0205/travelin-chat/internal/notice"
	"github.com/Zain0205/travelin-chat/internal/profile"
	"github.com/Zain0205/travelin-chat/internal/restapi"
	"github.com/Zain0205/travelin-chat/internal/status"
	"github.com/Zain0205/travelin-chat/internal/store"
	"github.com/Zain0205/travelin-chat/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// restoreTimeout bounds session restore at startup.
const restoreTimeout = 30 * time.Second

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = resolve from ~/.travelin
	LogLevel    string
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
			provideNotices,
			provideLock,
			provideStore,
			provideRESTClient,
			provideManager,
			provideApp,
			provideChatService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	return config.Resolve(profile.ConfigPath(), profile.EnvPath())
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, logging.ParseLevel(p.LogLevel))
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideNotices(cfg *config.Config, b *bus.Bus) *notice.Center {
	return notice.NewCenter(b,
		notice.WithTTL(cfg.Chat.NoticeTTL()),
		notice.WithShowHook(func(l notice.Level) {
			metrics.Notices.WithLabelValues(string(l)).Inc()
		}),
	)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
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

func provideRESTClient(cfg *config.Config, db *store.DB, logger *zap.Logger) *restapi.Client {
	return restapi.New(cfg.APIURL, db, restapi.WithLogger(logger.Named("rest")))
}

func provideManager(cfg *config.Config, m *status.Machine, notices *notice.Center, logger *zap.Logger) *conn.Manager {
	opts := transport.DefaultOptions()
	opts.AutoReconnect = cfg.Reconnect.Enabled
	opts.MaxAttempts = cfg.Reconnect.MaxAttempts
	opts.Backoff = cfg.Reconnect.Backoff()
	return conn.NewManager(conn.Config{URL: cfg.ServerURL, Transport: opts}, m, notices, logger.Named("conn"))
}

func provideApp(cfg *config.Config, mgr *conn.Manager, rest *restapi.Client, db *store.DB, notices *notice.Center, b *bus.Bus, logger *zap.Logger) *app.App {
	chatCfg := chat.Config{
		HistoryLimit: cfg.Chat.HistoryLimit,
		TypingIdle:   cfg.Chat.TypingIdle(),
	}
	return app.New(mgr, rest, db, notices, b, chatCfg, logger.Named("app"))
}

func provideChatService(p Params, a *app.App, mgr *conn.Manager, m *status.Machine, notices *notice.Center, b *bus.Bus, logger *zap.Logger) *api.ChatService {
	return api.NewChatService(p.ProfileName, a, mgr, m, notices, b, logger.Named("api"))
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, ms *MetricsServer, lk *lock.Lock, db *store.DB, a *app.App, notices *notice.Center, logger *zap.Logger) {
	var cancelRestore context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			ms.Start()

			// Reconnect with stored credentials without blocking startup.
			var ctx context.Context
			ctx, cancelRestore = context.WithTimeout(context.Background(), restoreTimeout)
			go func() {
				defer cancelRestore()
				ok, err := a.Restore(ctx)
				switch {
				case err != nil:
					logger.Warn("session restore failed", zap.Error(err))
				case !ok:
					logger.Info("no credentials found, login required")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancelRestore != nil {
				cancelRestore()
			}
			srv.Stop(ctx)
			ms.Stop(ctx)
			a.Shutdown()
			notices.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
