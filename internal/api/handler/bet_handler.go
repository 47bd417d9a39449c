package handler

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/service"
)

// BetHandler serves bet lookup, history and fairness-proof endpoints.
type BetHandler struct {
	betSvc *service.BetService
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(betSvc *service.BetService) *BetHandler {
	return &BetHandler{betSvc: betSvc}
}

// GetBet godoc
// GET /api/bet/:id
func (h *BetHandler) GetBet(c *gin.Context) {
	bet, err := h.betSvc.GetBet(c.Request.Context(), c.Param("id"))
	if err != nil {
		if domain.IsNotFound(err) {
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "bet not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch bet")
		return
	}
	respondSuccess(c, http.StatusOK, bet.ToResponse())
}

// UserBets godoc
// GET /api/bets/user/:address?limit=20&offset=0
func (h *BetHandler) UserBets(c *gin.Context) {
	address := c.Param("address")
	limit, offset := parseLimitOffset(c)

	bets, total, err := h.betSvc.UserBets(c.Request.Context(), address, limit, offset)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch bet history")
		return
	}
	respondList(c, bets, total, limit, offset)
}

// RecentBets godoc
// GET /api/bets/recent?limit=20
func (h *BetHandler) RecentBets(c *gin.Context) {
	limit, _ := parseLimitOffset(c)

	bets, err := h.betSvc.RecentBets(c.Request.Context(), limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch recent bets")
		return
	}
	respondSuccess(c, http.StatusOK, bets)
}

// VerifyBet godoc
// POST /api/bet/verify
// Body: {"bet_id":"64f1..."}
func (h *BetHandler) VerifyBet(c *gin.Context) {
	var body struct {
		BetID string `json:"bet_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	proof, err := h.betSvc.VerifyBet(c.Request.Context(), body.BetID)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "bet not found")
		case errors.Is(err, domain.ErrBetNotSettled):
			respondError(c, http.StatusConflict, "ERR_BET_NOT_SETTLED", "bet is not settled yet")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not verify bet")
		}
		return
	}

	// The proof is complete only once the seed's calendar date has passed.
	if proof.ServerSeed == "" {
		respondError(c, http.StatusConflict, "ERR_SEED_NOT_REVEALED", proof.VerificationMsg)
		return
	}
	respondSuccess(c, http.StatusOK, proof)
}

// SubmitTx godoc
// POST /api/tx/submit
// Body: {"txid":"e3b0c4..."}
//
// Recovery path for deposits the live feeds missed. A txid that already has
// a bet returns that bet unchanged.
func (h *BetHandler) SubmitTx(c *gin.Context) {
	var body struct {
		Txid string `json:"txid" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if !isTxid(body.Txid) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_TXID", "txid must be 64 hex characters")
		return
	}

	bet, err := h.betSvc.SubmitTxid(c.Request.Context(), body.Txid, domain.DetectedByManual)
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

// ── helpers ──────────────────────────────────────────────────────────────────

func parseLimitOffset(c *gin.Context) (limit, offset int64) {
	limit, _ = strconv.ParseInt(c.DefaultQuery("limit", "20"), 10, 64)
	offset, _ = strconv.ParseInt(c.DefaultQuery("offset", "0"), 10, 64)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return
}

func isTxid(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
