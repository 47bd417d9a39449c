package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/service"
)

// StatsHandler serves the public aggregate and game-configuration endpoints.
type StatsHandler struct {
	statsSvc *service.StatsService
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(statsSvc *service.StatsService) *StatsHandler {
	return &StatsHandler{statsSvc: statsSvc}
}

// Stats godoc
// GET /api/stats
func (h *StatsHandler) Stats(c *gin.Context) {
	stats, err := h.statsSvc.Stats(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch stats")
		return
	}
	respondSuccess(c, http.StatusOK, stats)
}

// GameConfig godoc
// GET /api/config
//
// The parameters a client needs before its first deposit: bet bounds, house
// edge, network, and the active vault set with multipliers.
func (h *StatsHandler) GameConfig(c *gin.Context) {
	cfg, err := h.statsSvc.Config(c.Request.Context())
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch game config")
		return
	}
	respondSuccess(c, http.StatusOK, cfg)
}
