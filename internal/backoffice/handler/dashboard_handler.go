package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/repository"
	"github.com/nevzatmmc/dicevault/internal/ws"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	userRepo   *repository.UserRepository
	betRepo    *repository.BetRepository
	walletRepo *repository.WalletRepository
	payoutRepo *repository.PayoutRepository
	hub        *ws.Hub
	cfg        *config.Config
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	userRepo *repository.UserRepository,
	betRepo *repository.BetRepository,
	walletRepo *repository.WalletRepository,
	payoutRepo *repository.PayoutRepository,
	hub *ws.Hub,
	cfg *config.Config,
) *DashboardHandler {
	return &DashboardHandler{
		userRepo:   userRepo,
		betRepo:    betRepo,
		walletRepo: walletRepo,
		payoutRepo: payoutRepo,
		hub:        hub,
		cfg:        cfg,
	}
}

// Dashboard godoc
// GET /admin/dashboard
//
// One aggregate snapshot per request; each section degrades independently so
// a failing collection cannot blank the whole screen.
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	// ── Bets ─────────────────────────────────────────────────────────────────
	betData := gin.H{}
	if totals, err := h.betRepo.Totals(ctx); err == nil {
		winRate := 0.0
		if totals.Bets > 0 {
			winRate = float64(totals.Wins) / float64(totals.Bets) * 100
		}
		betData = gin.H{
			"total":     totals.Bets,
			"wagered":   totals.Wagered,
			"wins":      totals.Wins,
			"paid_out":  totals.PaidOut,
			"house_net": totals.Wagered - totals.PaidOut,
			"win_rate":  winRate,
		}
	}

	// ── Users ────────────────────────────────────────────────────────────────
	userCount, _ := h.userRepo.Count(ctx)

	// ── Vaults ───────────────────────────────────────────────────────────────
	vaultData := gin.H{}
	received, sent, err := h.walletRepo.Totals(ctx)
	if err == nil {
		vaultData = gin.H{
			"total_received": received,
			"total_sent":     sent,
			"net_position":   received - sent,
		}
	}
	if active, err := h.walletRepo.ListActive(ctx); err == nil {
		vaultData["active"] = len(active)
	}

	// ── Payout queue ─────────────────────────────────────────────────────────
	payoutData := gin.H{}
	for _, status := range []domain.PayoutStatus{
		domain.PayoutStatusPending,
		domain.PayoutStatusBroadcast,
		domain.PayoutStatusFailed,
	} {
		if _, total, err := h.payoutRepo.List(ctx, status, 1, 0); err == nil {
			payoutData[string(status)] = total
		}
	}

	// ── WS connections ────────────────────────────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":      time.Now().UTC(),
		"network":        h.cfg.Explorer.Network,
		"bets":           betData,
		"total_users":    userCount,
		"vaults":         vaultData,
		"payouts":        payoutData,
		"ws_connections": wsConnections,
	})
}

// Payouts godoc
// GET /admin/payouts?status=failed&limit=50&offset=0
//
// Pages through payout records newest first; the operator uses this to
// inspect failed payouts before triggering a retry sweep.
func (h *DashboardHandler) Payouts(c *gin.Context) {
	status := domain.PayoutStatus(c.Query("status"))
	switch status {
	case "", domain.PayoutStatusPending, domain.PayoutStatusBroadcast,
		domain.PayoutStatusConfirmed, domain.PayoutStatusFailed:
	default:
		respondError(c, http.StatusBadRequest, "ERR_INVALID_STATUS",
			"status must be pending, broadcast, confirmed or failed")
		return
	}
	limit, offset := adminPagination(c)

	payouts, total, err := h.payoutRepo.List(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list payouts")
		return
	}
	respondList(c, payouts, total, limit, offset)
}
