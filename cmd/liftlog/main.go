package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"tailscale.com/tsnet"

	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/ingest/alpha"
	"github.com/claude/liftlog/internal/mcp"
	"github.com/claude/liftlog/internal/server"
	"github.com/claude/liftlog/internal/storage"
	"github.com/claude/liftlog/internal/workout"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("liftlog starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Connect database (Postgres migrations run here)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	store, closeStore, err := storage.Open(ctx, cfg.Database, "migrations")
	if err != nil {
		log.Error("failed to open database", "driver", cfg.Database.Driver, "error", err)
		os.Exit(1)
	}
	defer closeStore()
	log.Info("database connected", "driver", cfg.Database.Driver)

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Active sessions in Redis when configured
	if cfg.Redis.Enabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error("redis unreachable", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		store = storage.WithSessions(store, storage.NewRedisSessions(rdb, cfg.Redis.TTL, cfg.Redis.Prefix))
		log.Info("active sessions in redis", "addr", cfg.Redis.Addr)
	}

	// Session runtimes
	sessions := workout.NewManager(store, log, workout.ManagerConfig{
		TickInterval: cfg.Session.TickInterval,
		IdleTimeout:  cfg.Session.IdleTimeout,
		Options: []workout.Option{
			workout.WithSettings(sessionSettings(cfg.Session)),
			workout.WithBodyweight(bodyweightFunc(store, cfg.Session.BodyweightKg, log)),
		},
	})
	defer sessions.Close()
	go sessions.Run(ctx)

	alphaProvider := alpha.NewProvider(store, log)

	// Create server
	srv := server.New(store, sessions, alphaProvider, cfg.Auth.APIKey, log)

	// Start server on tsnet or plain HTTP
	var listener net.Listener

	if cfg.Tailscale.Enabled {
		tsServer := &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		lc, err := tsServer.LocalClient()
		if err != nil {
			log.Error("tsnet local client failed", "error", err)
			os.Exit(1)
		}
		srv.SetTailscale(lc)

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		// DevIdentity attributes every request to user 1.
		id, err := store.GetOrCreateUser(ctx, "local", "Local Dev User")
		if err != nil {
			log.Error("failed to create local user", "error", err)
			os.Exit(1)
		}
		if id != 1 {
			log.Warn("local user is not user 1; dev requests will not see its data", "user_id", id)
		}

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	mcpSrv := mcp.New(mcp.NewLocal(store, sessions), Version, log)
	srv.MountMCP(mcp.HTTPHandler(mcpSrv, server.UserID))

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	log.Info("server stopped")
}

// sessionSettings overlays the configured session defaults on the built-in ones.
func sessionSettings(c config.SessionConfig) workout.Settings {
	s := workout.DefaultSettings()
	if c.DefaultSets > 0 {
		s.DefaultSets = c.DefaultSets
	}
	if c.DefaultReps > 0 {
		s.DefaultReps = c.DefaultReps
	}
	if c.DefaultWeight > 0 {
		s.DefaultWeight = c.DefaultWeight
	}
	if c.DefaultRestSeconds > 0 {
		s.DefaultRestSeconds = c.DefaultRestSeconds
	}
	if c.NominalMinutes > 0 {
		s.NominalMinutes = c.NominalMinutes
	}
	return s
}

// bodyweightFunc reads the user's stored bodyweight, falling back to the
// configured one.
func bodyweightFunc(store storage.Backend, fallback float64, log *slog.Logger) workout.BodyweightFunc {
	return func(ctx context.Context, userID int) float64 {
		kg, err := store.Bodyweight(ctx, userID)
		if err != nil {
			log.Warn("bodyweight lookup failed", "user_id", userID, "error", err)
		}
		if kg <= 0 {
			return fallback
		}
		return kg
	}
}
