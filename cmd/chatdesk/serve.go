package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Jefrey13/chatdesk/internal/accounts"
	"github.com/Jefrey13/chatdesk/internal/ai"
	"github.com/Jefrey13/chatdesk/internal/config"
	"github.com/Jefrey13/chatdesk/internal/contact"
	"github.com/Jefrey13/chatdesk/internal/conversation"
	"github.com/Jefrey13/chatdesk/internal/db"
	"github.com/Jefrey13/chatdesk/internal/handlers"
	"github.com/Jefrey13/chatdesk/internal/hub"
	"github.com/Jefrey13/chatdesk/internal/ingest"
	"github.com/Jefrey13/chatdesk/internal/logger"
	"github.com/Jefrey13/chatdesk/internal/message"
	"github.com/Jefrey13/chatdesk/internal/monitor"
	"github.com/Jefrey13/chatdesk/internal/provider"
	"github.com/Jefrey13/chatdesk/internal/server"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			hub.New,
			provideAccountsService,
			provideContactService,
			provideConversationService,
			provideMessageService,
			provideAIClient,
			provideOutbound,
			providePipeline,
			provideMonitor,
			provideAuthHandler,
			provideWebhookHandler,
			provideConversationsHandler,
			provideSocketHandler,
			provideAgentsHandler,
			provideServer,
		),
		fx.Invoke(
			startMonitor,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func runMigrate() error {
	cfg, err := provideConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	if err := db.Migrate(cfg.Postgres); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.L.Info("migrations applied")
	return nil
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
	if err := db.Migrate(cfg.Postgres); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideAccountsService(conn *pgxpool.Pool, log *slog.Logger) *accounts.Service {
	return accounts.NewService(accounts.NewStore(conn), log)
}

func provideContactService(conn *pgxpool.Pool, log *slog.Logger) *contact.Service {
	return contact.NewService(contact.NewStore(conn), log)
}

func provideConversationService(conn *pgxpool.Pool, h *hub.Hub, log *slog.Logger) *conversation.Service {
	return conversation.NewService(conversation.NewStore(conn), h, log)
}

func provideMessageService(conn *pgxpool.Pool, h *hub.Hub, log *slog.Logger) *message.Service {
	return message.NewService(message.NewStore(conn), h, log)
}

func provideAIClient(cfg config.Config, log *slog.Logger) *ai.Client {
	return ai.NewClient(cfg.AI, log)
}

func provideOutbound(cfg config.Config, messages *message.Service, log *slog.Logger) *provider.Outbound {
	return provider.NewOutbound(provider.NewSender(cfg.Provider, log), messages, log)
}

func providePipeline(contacts *contact.Service, conversations *conversation.Service, messages *message.Service, generator *ai.Client, outbound *provider.Outbound, cfg config.Config, log *slog.Logger) *ingest.Pipeline {
	return ingest.NewPipeline(contacts, conversations, messages, generator, outbound, cfg.Monitor, log)
}

func provideMonitor(conversations *conversation.Service, contacts *contact.Service, outbound *provider.Outbound, cfg config.Config, log *slog.Logger) (*monitor.Monitor, error) {
	return monitor.New(conversations, contacts, outbound, cfg.Monitor, log)
}

func provideAuthHandler(service *accounts.Service, cfg config.Config, log *slog.Logger) *handlers.AuthHandler {
	return handlers.NewAuthHandler(service, cfg.Auth, log)
}

func provideWebhookHandler(pipeline *ingest.Pipeline, messages *message.Service, cfg config.Config, log *slog.Logger) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(pipeline, messages, cfg.Provider, log)
}

func provideConversationsHandler(conversations *conversation.Service, messages *message.Service, contacts *contact.Service, outbound *provider.Outbound, log *slog.Logger) *handlers.ConversationsHandler {
	return handlers.NewConversationsHandler(conversations, messages, contacts, outbound, log)
}

func provideSocketHandler(h *hub.Hub, log *slog.Logger) *handlers.SocketHandler {
	return handlers.NewSocketHandler(h, log)
}

func provideAgentsHandler(service *accounts.Service, h *hub.Hub, log *slog.Logger) *handlers.AgentsHandler {
	return handlers.NewAgentsHandler(service, h, log)
}

func provideServer(cfg config.Config, log *slog.Logger, authHandler *handlers.AuthHandler, webhookHandler *handlers.WebhookHandler, conversationsHandler *handlers.ConversationsHandler, socketHandler *handlers.SocketHandler, agentsHandler *handlers.AgentsHandler) *server.Server {
	return server.New(cfg.Server.Addr, cfg.Auth.JWTSecret, log,
		authHandler, webhookHandler, conversationsHandler, socketHandler, agentsHandler)
}

func startMonitor(lc fx.Lifecycle, m *monitor.Monitor) {
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return m.Start(ctx) },
		OnStop: func(context.Context) error {
			cancel()
			m.Stop()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, cfg config.Config, accountsService *accounts.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := accountsService.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Password); err != nil {
				return err
			}
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
