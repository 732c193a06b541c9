package http

import (
	"context"
	"net/http"
	"time"

	"github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app/authstore"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const sessionName = "HuddleSession"

// Deps are the collaborators the router serves.
type Deps struct {
	Orch       *orch.Orchestrator
	Signal     *signal.SignalWSController
	Auth       *authstore.Store[AdminSession]
	Admin      AdminCredentials
	ICEServers []webrtc.ICEServer
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(AccessLog())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Auth.TTL / time.Second),
		HttpOnly: true,
		Secure:   cfg.Mode == "release",
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))

	h := &handlers{
		orch:  d.Orch,
		auth:  d.Auth,
		admin: d.Admin,
		ice:   d.ICEServers,
	}

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws", func(c *gin.Context) {
		d.Signal.HandleSignal(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/ice-servers", h.iceServers)

	auth := api.Group("/auth")
	auth.POST("/login", h.login)
	auth.POST("/logout", h.logout)
	auth.GET("/check", h.check)

	admin := api.Group("", h.requireAdmin)
	admin.GET("/dashboard/stats", h.dashboardStats)
	admin.GET("/dashboard/room/:roomId", h.dashboardRoom)
	admin.GET("/reports/usage", h.usageReport)
	admin.GET("/performance/metrics", h.performance)
	admin.GET("/memory/stats", h.memoryStats)
	admin.POST("/memory/cleanup", h.memoryCleanup)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}

type handlers struct {
	orch  *orch.Orchestrator
	auth  *authstore.Store[AdminSession]
	admin AdminCredentials
	ice   []webrtc.ICEServer
}

func abortError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
