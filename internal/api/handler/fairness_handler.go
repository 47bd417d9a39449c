package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/fair"
	"github.com/nevzatmmc/dicevault/internal/service"
)

// FairnessHandler serves the seed calendar and the stateless roll verifier.
type FairnessHandler struct {
	seedSvc *service.SeedService
}

// NewFairnessHandler creates a FairnessHandler.
func NewFairnessHandler(seedSvc *service.SeedService) *FairnessHandler {
	return &FairnessHandler{seedSvc: seedSvc}
}

// Seeds godoc
// GET /api/seeds
//
// Returns the public fairness view: revealed seeds for the recent window,
// today's commitment, and the hash chain three days out.
func (h *FairnessHandler) Seeds(c *gin.Context) {
	view, err := h.seedSvc.PublicView(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch seed calendar")
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// VerifyRoll godoc
// POST /api/verify
// Body: {"server_seed":"...","client_seed":"...","nonce":0,"server_seed_hash":"..."}
//
// Stateless verifier for third parties: recomputes the roll for any triple
// and, when a hash is supplied, checks the seed against its commitment. No
// stored bet is consulted.
func (h *FairnessHandler) VerifyRoll(c *gin.Context) {
	var body struct {
		ServerSeed     string `json:"server_seed"      binding:"required"`
		ClientSeed     string `json:"client_seed"      binding:"required"`
		Nonce          *int64 `json:"nonce"            binding:"required"`
		ServerSeedHash string `json:"server_seed_hash"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	v, err := fair.Verify(body.ServerSeed, body.ClientSeed, *body.Nonce, body.ServerSeedHash)
	if err != nil {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_INPUT", err.Error())
		return
	}
	respondSuccess(c, http.StatusOK, v)
}
