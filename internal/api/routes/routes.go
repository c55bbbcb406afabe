package routes

import (
	"net/http"
	"time"

	"notify-service/internal/api/handlers"
	"notify-service/internal/api/middleware"
	"notify-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	// Gatherer backs GET /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
	// RateLimiter limits websocket upgrades per IP; nil disables it
	RateLimiter  middleware.RateLimiter
	WSRateLimit  int
	WSRateWindow time.Duration
}

type Router struct {
	engine          *gin.Engine
	wsHandler       *handlers.WSHandler
	presenceHandler *handlers.PresenceHandler
	authMW          *middleware.AuthMiddleware
	rateLimitMW     *middleware.RateLimitMiddleware
	opts            Options
}

func NewRouter(hub *websocket.Hub, opts Options) *Router {
	engine := gin.New()

	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS(opts.AllowedOrigins))
	engine.Use(middleware.LogApi())

	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.WSRateWindow == 0 {
		opts.WSRateWindow = time.Minute
	}

	r := &Router{
		engine:          engine,
		wsHandler:       handlers.NewWSHandler(hub, websocket.NewUpgrader(opts.AllowedOrigins)),
		presenceHandler: handlers.NewPresenceHandler(hub),
		authMW:          middleware.NewAuthMiddleware(opts.JWTSecret),
		opts:            opts,
	}
	if opts.RateLimiter != nil && opts.WSRateLimit > 0 {
		r.rateLimitMW = middleware.NewRateLimitMiddleware(opts.RateLimiter)
	}
	return r
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.opts.Gatherer, promhttp.HandlerOpts{})))

	api := r.engine.Group("/api/v1")

	// WebSocket endpoint: unauthenticated upgrades are closed by the hub
	ws := []gin.HandlerFunc{r.authMW.OptionalAuth()}
	if r.rateLimitMW != nil {
		ws = append(ws, r.rateLimitMW.RateLimitIP(r.opts.WSRateLimit, r.opts.WSRateWindow))
	}
	ws = append(ws, r.wsHandler.HandleWebSocket)
	api.GET("/ws", ws...)

	presence := api.Group("/presence")
	presence.Use(r.authMW.RequireAuth())
	{
		presence.GET("/stats", r.presenceHandler.GetStats)
		presence.GET("/users/:id", r.presenceHandler.GetUserPresence)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
