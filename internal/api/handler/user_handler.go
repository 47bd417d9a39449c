package handler

import (
	"net/http"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/config"
	"github.com/nevzatmmc/dicevault/internal/keyvault"
	"github.com/nevzatmmc/dicevault/internal/service"
)

// UserHandler serves the wallet-identity endpoint. There are no accounts:
// a Bitcoin address is the whole identity.
type UserHandler struct {
	betSvc *service.BetService
	cfg    *config.Config
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(betSvc *service.BetService, cfg *config.Config) *UserHandler {
	return &UserHandler{betSvc: betSvc, cfg: cfg}
}

// Connect godoc
// POST /api/user/connect
// Body: {"address":"tb1q..."}
//
// Upserts the user behind the address and returns their lifetime stats plus
// the active seed material, so the client can pre-verify its next roll.
func (h *UserHandler) Connect(c *gin.Context) {
	var body struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	params := keyvault.NetParams(h.cfg.Explorer.Network)
	if _, err := btcutil.DecodeAddress(body.Address, params); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_ADDRESS",
			"address is not valid for the "+h.cfg.Explorer.Network+" network")
		return
	}

	resp, err := h.betSvc.Connect(c.Request.Context(), body.Address)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not connect address")
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}
