package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/krystlih/swu-league-manager-sub000/internal/config"
	"github.com/krystlih/swu-league-manager-sub000/internal/db"
	"github.com/krystlih/swu-league-manager-sub000/internal/notify"
	"github.com/krystlih/swu-league-manager-sub000/internal/service"
	"github.com/krystlih/swu-league-manager-sub000/internal/store"
	"github.com/krystlih/swu-league-manager-sub000/internal/timer"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	database, err := db.InitDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.RunMigrations(database.DB, cfg.DatabaseDriver, cfg.MigrationsPath); err != nil {
		return err
	}

	announcer, closeAnnouncer, err := newAnnouncer(cfg, logger)
	if err != nil {
		return err
	}
	defer closeAnnouncer()

	scheduler := timer.NewScheduler(timer.RealClock(), announcer, logger)
	defer scheduler.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := service.NewLeagueService(store.NewLeagueStore(database), scheduler, logger)
	if err := svc.Rebuild(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:           newRouter(svc, cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newAnnouncer posts to Discord when a bot token is configured and falls back
// to the log otherwise.
func newAnnouncer(cfg *config.Config, logger *slog.Logger) (notify.Announcer, func(), error) {
	if cfg.DiscordToken == "" {
		logger.Warn("DISCORD_TOKEN not set, round announcements will only be logged")
		return notify.NewLogAnnouncer(logger), func() {}, nil
	}

	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	if err := session.Open(); err != nil {
		return nil, nil, fmt.Errorf("failed to open discord session: %w", err)
	}
	return notify.NewDiscordAnnouncer(session), func() { session.Close() }, nil
}
