package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/service"
)

// WalletAdminHandler serves /admin/wallets endpoints.
type WalletAdminHandler struct {
	walletSvc *service.WalletService
}

// NewWalletAdminHandler creates a WalletAdminHandler.
func NewWalletAdminHandler(walletSvc *service.WalletService) *WalletAdminHandler {
	return &WalletAdminHandler{walletSvc: walletSvc}
}

// List godoc
// GET /admin/wallets?with_balances=true
//
// with_balances costs one explorer round trip per vault.
func (h *WalletAdminHandler) List(c *gin.Context) {
	withBalances := c.Query("with_balances") == "true"

	wallets, err := h.walletSvc.ListAdmin(c.Request.Context(), withBalances)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not list vaults")
		return
	}
	respondSuccess(c, http.StatusOK, wallets)
}

// Create godoc
// POST /admin/wallets
// Body: {"multiplier":2.0,"chance":49.0,"label":"2x main"}
//
// Generates a fresh key, encrypts it under the master key, and registers the
// vault. Chance omitted means the house-edge default for the multiplier.
func (h *WalletAdminHandler) Create(c *gin.Context) {
	var req domain.CreateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	w, err := h.walletSvc.Create(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMultiplier):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_MULTIPLIER", "multiplier is outside the allowed range")
		case errors.Is(err, domain.ErrInvalidChance):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_CHANCE",
				"chance x multiplier exceeds the house ceiling")
		case errors.Is(err, domain.ErrWalletExists):
			respondError(c, http.StatusConflict, "ERR_WALLET_EXISTS", "a vault with this address already exists")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not create vault")
		}
		return
	}
	respondSuccess(c, http.StatusCreated, w.ToResponse())
}

// Update godoc
// PUT /admin/wallets/:id
// Body: {"chance":48.5,"label":"relabeled","is_active":false} — all optional
func (h *WalletAdminHandler) Update(c *gin.Context) {
	var req domain.UpdateWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	w, err := h.walletSvc.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "vault not found")
		case errors.Is(err, domain.ErrInvalidChance):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_CHANCE", "chance x multiplier exceeds 100")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not update vault")
		}
		return
	}
	respondSuccess(c, http.StatusOK, w.ToResponse())
}

// Delete godoc
// DELETE /admin/wallets/:id?force=true
//
// Deleting a vault discards its encrypted key; any remaining coins are gone
// with it. A vault that has received funds therefore answers 409 until the
// caller repeats the request with force.
func (h *WalletAdminHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	force := c.Query("force") == "true"

	err := h.walletSvc.Delete(c.Request.Context(), id, force)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "vault not found")
		case errors.Is(err, domain.ErrWalletHasFunds):
			body := gin.H{
				"success": false,
				"error":   "vault has received funds; deleting it destroys the key. Repeat with ?force=true to proceed",
				"code":    "ERR_WALLET_HAS_FUNDS",
			}
			if w, gerr := h.walletSvc.Get(c.Request.Context(), id); gerr == nil {
				body["data"] = gin.H{
					"address":        w.Address,
					"total_received": w.TotalReceived,
					"total_sent":     w.TotalSent,
				}
			}
			c.AbortWithStatusJSON(http.StatusConflict, body)
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not delete vault")
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted", "wallet_id": id})
}

// Withdraw godoc
// POST /admin/wallets/:id/withdraw
// Body: {"to_address":"...","amount":50000,"fee":300} — all optional
//
// Empty to_address falls back to the configured cold-storage address; zero
// amount sweeps the vault.
func (h *WalletAdminHandler) Withdraw(c *gin.Context) {
	var req domain.WithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	result, err := h.walletSvc.Withdraw(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		switch {
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "vault not found")
		case errors.Is(err, domain.ErrNoRecipient):
			respondError(c, http.StatusBadRequest, "ERR_NO_RECIPIENT",
				"no to_address given and no cold storage configured")
		case errors.Is(err, domain.ErrVaultDepleted):
			respondError(c, http.StatusConflict, "ERR_VAULT_DEPLETED", "vault has no spendable coins")
		case errors.Is(err, domain.ErrInsufficientFunds):
			respondError(c, http.StatusConflict, "ERR_INSUFFICIENT_FUNDS", "vault balance does not cover amount plus fee")
		case errors.Is(err, domain.ErrInvalidAddress):
			respondError(c, http.StatusBadRequest, "ERR_INVALID_ADDRESS", "destination address is invalid for this network")
		case errors.Is(err, domain.ErrBroadcastRejected):
			respondError(c, http.StatusBadGateway, "ERR_BROADCAST_REJECTED", "network rejected the withdrawal transaction")
		case domain.IsRetryable(err):
			respondError(c, http.StatusServiceUnavailable, "ERR_EXPLORER_UNAVAILABLE", "explorer is unavailable, try again later")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not withdraw from vault")
		}
		return
	}
	respondSuccess(c, http.StatusOK, result)
}
