package handler

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/service"
)

// OpsHandler serves the manual pipeline triggers under /admin. Each endpoint
// runs one sweep on demand instead of waiting for the next scheduler tick.
type OpsHandler struct {
	betSvc    *service.BetService
	payoutSvc *service.PayoutService
}

// NewOpsHandler creates an OpsHandler.
func NewOpsHandler(betSvc *service.BetService, payoutSvc *service.PayoutService) *OpsHandler {
	return &OpsHandler{betSvc: betSvc, payoutSvc: payoutSvc}
}

// SweepBets godoc
// POST /admin/bets/sweep
func (h *OpsHandler) SweepBets(c *gin.Context) {
	settled, err := h.betSvc.SweepPending(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "bet sweep failed")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"settled": settled})
}

// RetryPayouts godoc
// POST /admin/payouts/retry
func (h *OpsHandler) RetryPayouts(c *gin.Context) {
	queued, err := h.payoutSvc.RetryFailed(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "payout retry sweep failed")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"queued": queued})
}

// CheckConfirmations godoc
// POST /admin/payouts/confirmations
func (h *OpsHandler) CheckConfirmations(c *gin.Context) {
	confirmed, err := h.payoutSvc.CheckConfirmations(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "confirmation sweep failed")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"confirmed": confirmed})
}

// ProcessTx godoc
// POST /admin/tx/:txid/process
//
// Recovery path for deposits both feeds missed: fetches the transaction and
// runs it through the same pipeline as a live detection.
func (h *OpsHandler) ProcessTx(c *gin.Context) {
	txid := c.Param("txid")
	if !isTxid(txid) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_TXID", "txid must be 64 hex characters")
		return
	}

	bet, err := h.betSvc.SubmitTxid(c.Request.Context(), txid, domain.DetectedByAdmin)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_TX_NOT_FOUND", "transaction not found on the network")
		case errors.Is(err, domain.ErrNotVaultAddress):
			respondError(c, http.StatusBadRequest, "ERR_NOT_VAULT_ADDRESS", "transaction does not pay a vault address")
		case errors.Is(err, domain.ErrTxAlreadyProcessed):
			respondError(c, http.StatusConflict, "ERR_ALREADY_PROCESSED", "transaction was already processed")
		case errors.Is(err, domain.ErrBetTooSmall):
			respondError(c, http.StatusBadRequest, "ERR_BET_TOO_SMALL", "deposit is below the minimum bet")
		case errors.Is(err, domain.ErrBetTooLarge):
			respondError(c, http.StatusBadRequest, "ERR_BET_TOO_LARGE", "deposit is above the maximum bet")
		case domain.IsUserError(err):
			respondError(c, http.StatusBadRequest, "ERR_DEPOSIT_REJECTED", "deposit was rejected by bet validation")
		case errors.Is(err, domain.ErrExplorerUnavailable):
			respondError(c, http.StatusServiceUnavailable, "ERR_EXPLORER_UNAVAILABLE", "explorer is unavailable, try again later")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not process transaction")
		}
		return
	}
	respondSuccess(c, http.StatusOK, bet.ToResponse())
}

func isTxid(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
