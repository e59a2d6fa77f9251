// Package adminapi is a small read-only HTTP side-server exposing
// operational endpoints on a separate port from the TCP game protocol:
// GET /health, GET /metrics (Prometheus), and GET /rooms (a JSON mirror
// of the room registry). Grounded on the teacher's cmd/v1/session/main.go
// gin router setup (cors.New, gin.Recovery, the /health and /metrics
// routes) and internal/v1/middleware/correlation.go.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/heejunkim00/gomoku-game/internal/v1/middleware"
	"github.com/heejunkim00/gomoku-game/internal/v1/registry"
)

// roomSummary is the JSON shape returned by GET /rooms, mirroring
// registry.RoomList without exposing room internals.
type roomSummary struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	PlayerCount    int             `json:"player_count"`
	SpectatorCount int             `json:"spectator_count"`
	Players        []string        `json:"players"`
	CurrentTurn    string          `json:"current_turn,omitempty"`
	ReadyStatus    map[string]bool `json:"ready_status,omitempty"`
}

// NewRouter builds the gin engine serving the admin surface.
func NewRouter(reg *registry.Registry, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = allowedOrigins
	corsConfig.AllowMethods = []string{"GET"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/rooms", func(c *gin.Context) {
		infos := reg.List()
		out := make([]roomSummary, 0, len(infos))
		for _, info := range infos {
			out = append(out, roomSummary{
				ID:             string(info.ID),
				Status:         string(info.Status),
				PlayerCount:    info.PlayerCount,
				SpectatorCount: info.SpectatorCount,
				Players:        info.Players,
				CurrentTurn:    string(info.CurrentTurn),
				ReadyStatus:    info.ReadyStatus,
			})
		}
		c.JSON(http.StatusOK, gin.H{"rooms": out})
	})

	return router
}

// New builds an *http.Server for the admin router, ready for the caller
// to run and gracefully shut down, matching the teacher's
// cmd/v1/session/main.go http.Server + signal-driven Shutdown pattern.
func New(addr string, reg *registry.Registry, allowedOrigins []string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewRouter(reg, allowedOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Shutdown gracefully stops srv with a bounded timeout, mirroring the
// teacher's 5s shutdown deadline in cmd/v1/session/main.go.
func Shutdown(ctx context.Context, srv *http.Server, timeout time.Duration) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
