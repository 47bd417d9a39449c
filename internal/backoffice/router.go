package backoffice

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/backoffice/handler"
	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/repository"
	"github.com/nevzatmmc/dicevault/internal/service"
	"github.com/nevzatmmc/dicevault/internal/ws"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc    *service.AuthService
	WalletSvc  *service.WalletService
	SeedSvc    *service.SeedService
	BetSvc     *service.BetService
	PayoutSvc  *service.PayoutService
	UserRepo   *repository.UserRepository
	BetRepo    *repository.BetRepository
	WalletRepo *repository.WalletRepository
	PayoutRepo *repository.PayoutRepository
	SeedRepo   *repository.ServerSeedRepository
	Hub        *ws.Hub
	Cfg        *config.Config
}

// SetupBackofficeRouter creates the admin Gin engine. It listens on its own
// port behind three gates: the IP allowlist, the shared API key, and an
// operator JWT for everything past login.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Admin.AllowedIPs))
	r.Use(apiKeyMiddleware(deps.Cfg.Admin.APIKey))

	authH := handler.NewAuthHandler(deps.AuthSvc)
	dashH := handler.NewDashboardHandler(deps.UserRepo, deps.BetRepo, deps.WalletRepo, deps.PayoutRepo, deps.Hub, deps.Cfg)
	walletH := handler.NewWalletAdminHandler(deps.WalletSvc)
	seedH := handler.NewSeedAdminHandler(deps.SeedSvc, deps.SeedRepo)
	opsH := handler.NewOpsHandler(deps.BetSvc, deps.PayoutSvc)

	// Login and refresh live outside the JWT gate; they mint the tokens.
	r.POST("/admin/login", authH.Login)
	r.POST("/admin/refresh", authH.Refresh)

	admin := r.Group("/admin")
	admin.Use(operatorJWTMiddleware(deps.AuthSvc))
	{
		admin.GET("/dashboard", dashH.Dashboard)

		// Vault wallets
		w := admin.Group("/wallets")
		{
			w.GET("", walletH.List)
			w.POST("", walletH.Create)
			w.PUT("/:id", walletH.Update)
			w.DELETE("/:id", walletH.Delete)
			w.POST("/:id/withdraw", walletH.Withdraw)
		}

		// Seed calendar
		s := admin.Group("/seeds")
		{
			s.GET("", seedH.Calendar)
			s.POST("", seedH.Create)
			s.DELETE("/:date", seedH.Delete)
		}

		// Payout ledger and operational triggers
		admin.GET("/payouts", dashH.Payouts)
		admin.POST("/bets/sweep", opsH.SweepBets)
		admin.POST("/payouts/retry", opsH.RetryPayouts)
		admin.POST("/payouts/confirmations", opsH.CheckConfirmations)
		admin.POST("/tx/:txid/process", opsH.ProcessTx)
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if !allowed[clientIP] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "access denied: your IP is not whitelisted",
				"code":    "ERR_FORBIDDEN",
			})
			return
		}
		c.Next()
	}
}

// ── API key middleware ────────────────────────────────────────────────────────

// apiKeyMiddleware requires the shared X-API-Key header. An empty configured
// key disables the check; production config validation refuses that.
func apiKeyMiddleware(key string) gin.HandlerFunc {
	if key == "" {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		got := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "missing or invalid API key",
				"code":    "ERR_UNAUTHORIZED",
			})
			return
		}
		c.Next()
	}
}

// ── Operator JWT middleware ───────────────────────────────────────────────────

// operatorJWTMiddleware validates a Bearer token minted by /admin/login.
func operatorJWTMiddleware(authSvc *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "unauthorized",
				"code":    "ERR_UNAUTHORIZED",
			})
			return
		}

		claims, err := authSvc.ValidateAccessToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid token",
				"code":    "ERR_TOKEN_INVALID",
			})
			return
		}

		c.Set("operator", claims.Subject)
		c.Next()
	}
}
