package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/authcore/backend/internal/model"
	"github.com/authcore/backend/internal/service"
)

type AuthHandler struct {
	svc *service.AuthService
}

func NewAuthHandler(svc *service.AuthService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// SignUp godoc
// @Summary Register a new user
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.SignUpRequest true "Email and password"
// @Success 201 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 409 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /sign-up [post]
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req model.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.Register(c.Request.Context(), req.Email, req.Password); err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusCreated, model.StatusResponse{Status: "created"})
}

// SignIn godoc
// @Summary Sign in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.SignInRequest true "Email and password"
// @Success 200 {object} model.SignInResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /sign-in [post]
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req model.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	accessToken, refreshToken, err := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.SignInResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
	})
}

// Refresh godoc
// @Summary Exchange a refresh token for a new access token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.RefreshRequest true "Refresh token"
// @Success 200 {object} model.RefreshResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /token [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req model.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	accessToken, err := h.svc.Refresh(c.Request.Context(), req.Token)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.RefreshResponse{AccessToken: accessToken})
}

// RequestReset godoc
// @Summary Request a password reset token
// @Description The reset token is returned directly; delivery is up to the caller.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body model.ResetRequest true "Account email"
// @Success 200 {object} model.ResetRequestResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /reset-password [post]
func (h *AuthHandler) RequestReset(c *gin.Context) {
	var req model.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	resetToken, err := h.svc.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ResetRequestResponse{ResetToken: resetToken})
}

// ConfirmReset godoc
// @Summary Set a new password using a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param token path string true "Reset token"
// @Param request body model.ResetConfirmRequest true "New password"
// @Success 200 {object} model.StatusResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 404 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /reset-password/{token} [post]
func (h *AuthHandler) ConfirmReset(c *gin.Context) {
	var req model.ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	if err := h.svc.ConfirmPasswordReset(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.StatusResponse{Status: "password_updated"})
}

// DeleteUser godoc
// @Summary Delete the authenticated account
// @Description Removes the user and all refresh tokens owned by it.
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.StatusResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /delete-user [delete]
func (h *AuthHandler) DeleteUser(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.svc.DeleteAccount(c.Request.Context(), user.ID); err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.StatusResponse{Status: "deleted"})
}

// Me godoc
// @Summary Get the authenticated user
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.AuthMeResponse
// @Failure 401 {object} model.ErrorResponse
// @Failure 403 {object} model.ErrorResponse
// @Router /protected [get]
func (h *AuthHandler) Me(c *gin.Context) {
	user := GetAuthUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.JSON(http.StatusOK, model.AuthMeResponse{
		User: model.AuthMeUser{
			ID:    user.ID.String(),
			Email: user.Email,
		},
	})
}

func writeAuthError(c *gin.Context, err error) {
	switch err {
	case service.ErrInvalidInput:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
	case service.ErrInvalidCredentials:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case service.ErrInvalidOrExpiredToken:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
	case service.ErrVerificationFailed:
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case service.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case service.ErrConflict:
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	default:
		log.Printf("auth: unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
	}
}
