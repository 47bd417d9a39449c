package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nevzatmmc/dicevault/internal/domain"
	"github.com/nevzatmmc/dicevault/internal/service"
)

// AuthHandler serves operator login and token refresh.
type AuthHandler struct {
	authSvc *service.AuthService
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(authSvc *service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login godoc
// POST /admin/login
// Body: {"username":"admin","password":"..."}
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.Login(req)
	if err != nil {
		if domain.IsAuthError(err) {
			respondError(c, http.StatusUnauthorized, "ERR_INVALID_CREDENTIALS", "invalid operator credentials")
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "login failed")
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}

// Refresh godoc
// POST /admin/refresh
// Body: {"refresh_token":"..."}
func (h *AuthHandler) Refresh(c *gin.Context) {
	var body struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	resp, err := h.authSvc.RefreshToken(body.RefreshToken)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "ERR_INVALID_TOKEN", "refresh token is invalid or expired")
		return
	}
	respondSuccess(c, http.StatusOK, resp)
}
