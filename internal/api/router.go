package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/api/handler"
	"github.com/nevzatmmc/dicevault/internal/api/middleware"
	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/service"
	"github.com/nevzatmmc/dicevault/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	BetSvc   *service.BetService
	StatsSvc *service.StatsService
	SeedSvc  *service.SeedService
	Hub      *ws.Hub
	Cfg      *config.Config
}

// SetupRouter creates and configures the public Gin engine with all routes,
// middleware, CORS, and rate limiting rules. Every route here is anonymous:
// the deposit itself is the authentication.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "network": deps.Cfg.Explorer.Network})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	betH := handler.NewBetHandler(deps.BetSvc)
	userH := handler.NewUserHandler(deps.BetSvc, deps.Cfg)
	fairH := handler.NewFairnessHandler(deps.SeedSvc)
	statsH := handler.NewStatsHandler(deps.StatsSvc)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	readRL := middleware.RateLimitMiddleware(30)  // 30 req/s per IP for reads
	writeRL := middleware.RateLimitMiddleware(10) // 10 req/s per IP for endpoints that hit the explorer

	api := r.Group("/api")
	{
		// ── Reads (public) ────────────────────────────────────────────────────
		reads := api.Group("")
		reads.Use(readRL)
		{
			reads.GET("/config", statsH.GameConfig)
			reads.GET("/stats", statsH.Stats)
			reads.GET("/seeds", fairH.Seeds)
			reads.GET("/bet/:id", betH.GetBet)
			reads.GET("/bets/user/:address", betH.UserBets)
			reads.GET("/bets/recent", betH.RecentBets)
		}

		// ── Submissions (public, strict rate limit) ───────────────────────────
		writes := api.Group("")
		writes.Use(writeRL)
		{
			writes.POST("/user/connect", userH.Connect)
			writes.POST("/bet/verify", betH.VerifyBet)
			writes.POST("/verify", fairH.VerifyRoll)
			writes.POST("/tx/submit", betH.SubmitTx)
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws/bets", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In development all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			// Development: allow any origin
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			// Production: allow only dicevault.bet (and www.)
			allowed := map[string]bool{
				"https://dicevault.bet":     true,
				"https://www.dicevault.bet": true,
			}
			if allowed[origin] {
				c.Header("Access-Control-Allow-Origin", origin)
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
