package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/crewlane/guildsync/internal/auth"
	"github.com/crewlane/guildsync/internal/channels"
	"github.com/crewlane/guildsync/internal/config"
	"github.com/crewlane/guildsync/internal/correlation"
	"github.com/crewlane/guildsync/internal/db"
	"github.com/crewlane/guildsync/internal/gateway"
	"github.com/crewlane/guildsync/internal/handlers"
	"github.com/crewlane/guildsync/internal/healthcheck"
	"github.com/crewlane/guildsync/internal/identity"
	"github.com/crewlane/guildsync/internal/ingest"
	"github.com/crewlane/guildsync/internal/interaction"
	"github.com/crewlane/guildsync/internal/logger"
	"github.com/crewlane/guildsync/internal/notify"
	"github.com/crewlane/guildsync/internal/postings"
	"github.com/crewlane/guildsync/internal/resync"
	"github.com/crewlane/guildsync/internal/roles"
	"github.com/crewlane/guildsync/internal/server"
	"github.com/crewlane/guildsync/internal/webapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			correlation.NewStore,
			provideDiscordSession,
			provideGateway,
			provideWebAppClient,
			provideIdentityResolver,
			provideFanout,
			provideActivity,
			provideChannelsReconciler,
			providePostingsReconciler,
			provideRolesReconciler,
			provideOutbox,
			provideRouter,
			provideSubscriber,
			provideWizard,
			provideInteractionHandler,
			provideResync,
			provideCredentials,
			provideHealthRegistry,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideAuthHandler),
			provideServerHandler(provideLinksHandler),
			provideServerHandler(provideSyncHandler),
			provideServer,
		),
		fx.Invoke(
			runMigrations,
			startDiscord,
			startSubscriber,
			startResync,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideDiscordSession(cfg config.Config) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers
	return session, nil
}

func provideGateway(log *slog.Logger, cfg config.Config, session *discordgo.Session) *gateway.Gateway {
	return gateway.New(log, session, cfg.Discord.CallTimeout())
}

func provideWebAppClient(log *slog.Logger, cfg config.Config) *webapp.Client {
	return webapp.NewClient(log, cfg.WebApp.BaseURL, cfg.WebApp.APIToken, cfg.WebApp.Timeout())
}

func provideIdentityResolver(log *slog.Logger, client *webapp.Client) *identity.Resolver {
	return identity.NewResolver(log, client)
}

func provideFanout(log *slog.Logger, gw *gateway.Gateway) *notify.Fanout {
	return notify.NewFanout(log, gw)
}

func provideActivity(log *slog.Logger, store *correlation.Store, fanout *notify.Fanout) *notify.Activity {
	return notify.NewActivity(log, store, fanout)
}

func provideChannelsReconciler(log *slog.Logger, store *correlation.Store, gw *gateway.Gateway) *channels.Reconciler {
	return channels.NewReconciler(log, store, gw)
}

func providePostingsReconciler(log *slog.Logger, store *correlation.Store, gw *gateway.Gateway, client *webapp.Client, fanout *notify.Fanout) *postings.Reconciler {
	return postings.NewReconciler(log, store, gw, client, fanout)
}

func provideRolesReconciler(log *slog.Logger, store *correlation.Store, gw *gateway.Gateway, client *webapp.Client) *roles.Reconciler {
	return roles.NewReconciler(log, store, gw, client)
}

func provideOutbox(conn *pgxpool.Pool) *ingest.Outbox {
	return ingest.NewOutbox(conn)
}

func provideRouter(log *slog.Logger, ch *channels.Reconciler, po *postings.Reconciler, ro *roles.Reconciler, store *correlation.Store, activity *notify.Activity) *ingest.Router {
	return ingest.NewRouter(log, ch, po, ro, store, activity)
}

func provideSubscriber(log *slog.Logger, conn *pgxpool.Pool, outbox *ingest.Outbox, router *ingest.Router, cfg config.Config) *ingest.Subscriber {
	return ingest.NewSubscriber(log, conn, outbox, router, cfg.Sync.EventChannel, cfg.Sync.Workers)
}

func provideWizard(log *slog.Logger, session *discordgo.Session, store *correlation.Store, ch *channels.Reconciler, client *webapp.Client) *interaction.Wizard {
	return interaction.NewWizard(log, session, store, ch, client)
}

func provideInteractionHandler(log *slog.Logger, session *discordgo.Session, gw *gateway.Gateway, store *correlation.Store, resolver *identity.Resolver, client *webapp.Client, wizard *interaction.Wizard, activity *notify.Activity) *interaction.Handler {
	return interaction.NewHandler(log, session, gw, store, resolver, client, client, wizard, activity)
}

func provideResync(log *slog.Logger, store *correlation.Store, ch *channels.Reconciler, client *webapp.Client, po *postings.Reconciler, cfg config.Config) *resync.Service {
	return resync.NewService(log, store, ch, client, po, cfg.Sync.ResyncCron)
}

func provideCredentials(cfg config.Config) (*auth.Credentials, error) {
	return auth.NewCredentials(cfg.Admin.Username, cfg.Admin.Password)
}

func provideHealthRegistry(log *slog.Logger, conn *pgxpool.Pool, session *discordgo.Session) *healthcheck.Registry {
	return healthcheck.NewRegistry(log,
		healthcheck.NewPostgresChecker(conn),
		healthcheck.NewDiscordChecker(session),
	)
}

func providePingHandler(log *slog.Logger, registry *healthcheck.Registry) *handlers.PingHandler {
	return handlers.NewPingHandler(log, registry)
}

func provideAuthHandler(log *slog.Logger, credentials *auth.Credentials, cfg config.Config) *handlers.AuthHandler {
	return handlers.NewAuthHandler(log, credentials, cfg.Auth.JWTSecret, cfg.Auth.ExpiresIn())
}

func provideLinksHandler(log *slog.Logger, store *correlation.Store) *handlers.LinksHandler {
	return handlers.NewLinksHandler(log, store)
}

func provideSyncHandler(log *slog.Logger, service *resync.Service, outbox *ingest.Outbox) *handlers.SyncHandler {
	return handlers.NewSyncHandler(log, service, outbox)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.Handlers)
}

func runMigrations(cfg config.Config, log *slog.Logger) error {
	if err := db.Migrate(cfg.Postgres); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info("database schema up to date")
	return nil
}

func startDiscord(lc fx.Lifecycle, log *slog.Logger, session *discordgo.Session, handler *interaction.Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	session.AddHandler(func(s *discordgo.Session, ic *discordgo.InteractionCreate) {
		if ctx.Err() != nil {
			return
		}
		go handler.OnInteraction(ctx, ic)
	})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := session.Open(); err != nil {
				cancel()
				return fmt.Errorf("discord open connection: %w", err)
			}
			log.Info("discord gateway connected")
			return nil
		},
		OnStop: func(_ context.Context) error {
			cancel()
			return session.Close()
		},
	})
}

func startSubscriber(lc fx.Lifecycle, log *slog.Logger, subscriber *ingest.Subscriber, shutdowner fx.Shutdowner) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				defer close(done)
				if err := subscriber.Run(ctx); err != nil {
					log.Error("event subscriber stopped", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func startResync(lc fx.Lifecycle, service *resync.Service) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error { return service.Start() },
		OnStop:  func(ctx context.Context) error { return service.Stop(ctx) },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
