// Command gomokuserver runs the Gomoku game server: a TCP accept loop
// speaking the line-delimited JSON protocol on GOMOKU_PORT, a read-only
// HTTP admin surface on GOMOKU_ADMIN_PORT, a background forfeit sweep,
// and (optionally) a Redis-backed cross-instance bus and OTLP tracing.
// Grounded on the teacher's cmd/v1/session/main.go: .env multi-path
// loading, gin router with CORS + Recovery, signal-driven graceful
// shutdown with a bounded deadline.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/heejunkim00/gomoku-game/internal/v1/adminapi"
	"github.com/heejunkim00/gomoku-game/internal/v1/bus"
	"github.com/heejunkim00/gomoku-game/internal/v1/config"
	"github.com/heejunkim00/gomoku-game/internal/v1/forfeit"
	"github.com/heejunkim00/gomoku-game/internal/v1/logging"
	"github.com/heejunkim00/gomoku-game/internal/v1/ratelimit"
	"github.com/heejunkim00/gomoku-game/internal/v1/registry"
	"github.com/heejunkim00/gomoku-game/internal/v1/session"
	"github.com/heejunkim00/gomoku-game/internal/v1/tracing"
)

func main() {
	envPaths := []string{".env", "../../../.env", "../../.env"}
	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			break
		}
	}

	cfg, err := config.ValidateEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.GoEnv != "production"); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var busService *bus.Service
	if cfg.RedisEnabled {
		busService, err = bus.NewService(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			logging.Error(ctx, "failed to connect to Redis bus, continuing without it", zap.Error(err))
			busService = nil
		} else {
			logging.Info(ctx, "bus: connected to Redis", zap.String("addr", cfg.RedisAddr))
		}
	}

	if cfg.OTELCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "gomoku-server", cfg.OTELCollectorAddr)
		if err != nil {
			logging.Warn(ctx, "tracing: failed to initialize, continuing without it", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logging.Warn(ctx, "tracing: shutdown error", zap.Error(err))
				}
			}()
		}
	}

	reg := registry.New(busService)

	rl, err := ratelimit.New(cfg, busService.Client())
	if err != nil {
		logging.Error(ctx, "failed to initialize rate limiter", zap.Error(err))
		os.Exit(1)
	}

	monitor := forfeit.New(reg)
	go monitor.Run(ctx)

	listener, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, cfg.Port))
	if err != nil {
		logging.Error(ctx, "failed to listen on game port", zap.Error(err))
		os.Exit(1)
	}
	logging.Info(ctx, "gomoku: game server listening", zap.String("addr", listener.Addr().String()))

	go acceptLoop(ctx, listener, reg, rl)

	allowedOrigins := strings.Split(cfg.AllowedOrigins, ",")
	adminAddr := net.JoinHostPort(cfg.Host, cfg.AdminPort)
	adminSrv := adminapi.New(adminAddr, reg, allowedOrigins)
	go func() {
		logging.Info(ctx, "gomoku: admin server listening", zap.String("addr", adminAddr))
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "admin server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logging.Info(context.Background(), "gomoku: shutting down")

	_ = listener.Close()
	if err := adminapi.Shutdown(context.Background(), adminSrv, 5*time.Second); err != nil {
		logging.Error(context.Background(), "admin server forced shutdown", zap.Error(err))
	}
	reg.Shutdown()
}

func acceptLoop(ctx context.Context, listener net.Listener, reg *registry.Registry, rl *ratelimit.Limiter) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				logging.Warn(ctx, "accept error", zap.Error(err))
				continue
			}
		}

		remoteIP, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if !rl.Allow(ctx, ratelimit.ScopeConnectIP, remoteIP) {
			_ = conn.Close()
			continue
		}

		sessionConn := session.NewConn(conn)
		d := session.New(reg, sessionConn, rl)
		go d.Run(ctx)
	}
}
