package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/repository"
	"github.com/nevzatmmc/dicevault/internal/service"
)

// Default calendar window when the query gives no bounds.
const (
	calendarPastDays   = 30
	calendarFutureDays = 7
)

// SeedAdminHandler serves /admin/seeds endpoints. Only future dates are
// writable; everything on or before today is the audit trail.
type SeedAdminHandler struct {
	seedSvc  *service.SeedService
	seedRepo *repository.ServerSeedRepository
}

// NewSeedAdminHandler creates a SeedAdminHandler.
func NewSeedAdminHandler(seedSvc *service.SeedService, seedRepo *repository.ServerSeedRepository) *SeedAdminHandler {
	return &SeedAdminHandler{seedSvc: seedSvc, seedRepo: seedRepo}
}

// Calendar godoc
// GET /admin/seeds?from=2026-08-01&to=2026-09-01
//
// Raw seeds never appear in the response, revealed or not; the operator
// verifies through the same public channel as everyone else.
func (h *SeedAdminHandler) Calendar(c *gin.Context) {
	now := time.Now().UTC()
	from := c.DefaultQuery("from", domain.SeedDateKey(now.AddDate(0, 0, -calendarPastDays)))
	to := c.DefaultQuery("to", domain.SeedDateKey(now.AddDate(0, 0, calendarFutureDays)))
	if !isSeedDate(from) || !isSeedDate(to) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_DATE", "from/to must be YYYY-MM-DD")
		return
	}

	seeds, err := h.seedRepo.Range(c.Request.Context(), from, to)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not fetch seed calendar")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"seeds": seeds,
		"from":  from,
		"to":    to,
	})
}

// Create godoc
// POST /admin/seeds
// Body: {"seed_date":"2026-09-01"}
func (h *SeedAdminHandler) Create(c *gin.Context) {
	var body struct {
		SeedDate string `json:"seed_date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if !isSeedDate(body.SeedDate) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_DATE", "seed_date must be YYYY-MM-DD")
		return
	}

	// Creation is get-or-create, so repeating a date returns the same seed.
	seed, err := h.seedSvc.AdminCreate(c.Request.Context(), body.SeedDate)
	if err != nil {
		if errors.Is(err, domain.ErrSeedImmutable) {
			respondError(c, http.StatusConflict, "ERR_SEED_IMMUTABLE", "only future dates can be pre-created")
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not create seed")
		return
	}
	respondSuccess(c, http.StatusCreated, seed)
}

// Delete godoc
// DELETE /admin/seeds/:date
//
// Removing a future seed forces fresh entropy on its next creation.
func (h *SeedAdminHandler) Delete(c *gin.Context) {
	date := c.Param("date")
	if !isSeedDate(date) {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_DATE", "date must be YYYY-MM-DD")
		return
	}

	err := h.seedSvc.AdminDelete(c.Request.Context(), date)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSeedImmutable):
			respondError(c, http.StatusConflict, "ERR_SEED_IMMUTABLE", "seeds for started dates cannot be deleted")
		case domain.IsNotFound(err):
			respondError(c, http.StatusNotFound, "ERR_NOT_FOUND", "no seed for this date")
		default:
			respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not delete seed")
		}
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted", "seed_date": date})
}

func isSeedDate(s string) bool {
	_, err := time.Parse(domain.SeedDateFormat, s)
	return err == nil
}
