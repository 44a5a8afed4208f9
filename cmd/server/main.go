package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/svglol/dinkdonkbot/internal/app"
	"github.com/svglol/dinkdonkbot/internal/config"
	"github.com/svglol/dinkdonkbot/internal/database"
	"github.com/svglol/dinkdonkbot/internal/discord"
	"github.com/svglol/dinkdonkbot/internal/dispatcher"
	"github.com/svglol/dinkdonkbot/internal/kick"
	"github.com/svglol/dinkdonkbot/internal/logging"
	"github.com/svglol/dinkdonkbot/internal/redis"
	"github.com/svglol/dinkdonkbot/internal/registry"
	"github.com/svglol/dinkdonkbot/internal/resolver"
	"github.com/svglol/dinkdonkbot/internal/server"
	"github.com/svglol/dinkdonkbot/internal/twitch"
)

func setupConfig() *config.Config {
	// .env is optional; real deployments configure the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config) *goredis.Client {
	if cfg.RedisURL == "" {
		slog.Info("Redis not configured, autocomplete cache disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, tasks *app.TaskRunner) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		// Let detached notification work drain before exiting
		tasks.Wait()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	redisClient := setupRedis(cfg)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	subsRepo := database.NewSubscriptionRepo(pool)
	messageRepo := database.NewStreamMessageRepo(pool, subsRepo)

	twitchClient, err := twitch.NewClient(cfg.TwitchClientID, cfg.TwitchClientSecret, cfg.TwitchCallbackURL, cfg.TwitchWebhookSecret)
	if err != nil {
		slog.Error("Failed to create Twitch client", "error", err)
		os.Exit(1)
	}
	kickClient, err := kick.NewClient(cfg.KickClientID, cfg.KickClientSecret, cfg.KickCallbackURL)
	if err != nil {
		slog.Error("Failed to create Kick client", "error", err)
		os.Exit(1)
	}
	transport, err := discord.NewTransport(cfg.DiscordToken, cfg.DiscordAppID)
	if err != nil {
		slog.Error("Failed to create Discord transport", "error", err)
		os.Exit(1)
	}

	tasks := app.NewTaskRunner()
	service := app.NewService(
		subsRepo,
		messageRepo,
		registry.New(subsRepo),
		resolver.New(twitchClient, kickClient, clock),
		dispatcher.New(transport),
		transport,
		twitchClient,
		kickClient,
		clock,
		tasks,
	)

	var names *redis.NameCache
	if redisClient != nil {
		names = redis.NewNameCache(redisClient, subsRepo)
	} else {
		names = redis.NewNameCache(nil, subsRepo)
	}

	commands := discord.NewCommands(service, transport, names)
	commandRegistry := commands.BuildRegistry()
	if err := discord.RegisterCommands(transport.Session(), cfg.DiscordAppID, commandRegistry); err != nil {
		slog.Error("Failed to register commands", "error", err)
		os.Exit(1)
	}

	interactions, err := discord.NewInteractionHandler(cfg.DiscordPublicKey, commandRegistry, tasks)
	if err != nil {
		slog.Error("Failed to create interaction handler", "error", err)
		os.Exit(1)
	}

	// Webhook handlers are optional: without callback configuration the
	// endpoints are simply not mounted (pass nil explicitly to avoid
	// typed-nil interfaces)
	var (
		twitchWebhook *twitch.WebhookHandler
		kickWebhook   *kick.WebhookHandler
	)
	if cfg.TwitchWebhookSecret != "" {
		twitchWebhook = twitch.NewWebhookHandler(cfg.TwitchWebhookSecret, service)
	}
	if cfg.KickWebhookPublicKey != "" {
		kickWebhook, err = kick.NewWebhookHandler(cfg.KickWebhookPublicKey, service)
		if err != nil {
			slog.Error("Failed to create Kick webhook handler", "error", err)
			os.Exit(1)
		}
	}

	srv := newServer(cfg, twitchWebhook, kickWebhook, interactions, pool, redisClient)
	done := runGracefulShutdown(srv, tasks)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

func newServer(cfg *config.Config, twitchWebhook *twitch.WebhookHandler, kickWebhook *kick.WebhookHandler, interactions *discord.InteractionHandler, pool *pgxpool.Pool, redisClient *goredis.Client) *server.Server {
	switch {
	case twitchWebhook != nil && kickWebhook != nil:
		return server.NewServer(cfg, twitchWebhook, kickWebhook, interactions, pool, redisClient)
	case twitchWebhook != nil:
		return server.NewServer(cfg, twitchWebhook, nil, interactions, pool, redisClient)
	case kickWebhook != nil:
		return server.NewServer(cfg, nil, kickWebhook, interactions, pool, redisClient)
	default:
		return server.NewServer(cfg, nil, nil, interactions, pool, redisClient)
	}
}
