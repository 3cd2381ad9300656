package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmarykin/authcore/internal/transport/http/middleware"
	"github.com/dmarykin/authcore/internal/usecase"
)

// PasswordHandler exposes the recovery-code flow and authenticated password changes.
type PasswordHandler struct {
	passwords *usecase.PasswordResetService
}

// NewPasswordHandler constructs a PasswordHandler.
func NewPasswordHandler(passwords *usecase.PasswordResetService) *PasswordHandler {
	return &PasswordHandler{passwords: passwords}
}

// RegisterRoutes binds the password routes.
func (h *PasswordHandler) RegisterRoutes(r *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	reset := r.Group("/reset")
	reset.POST("/request", h.requestReset)
	reset.POST("/verify", h.verifyCode)
	reset.POST("/confirm", h.confirmReset)

	r.POST("/change", authMiddleware, h.changePassword)
}

// requestReset responds identically whether or not the email is registered.
func (h *PasswordHandler) requestReset(c *gin.Context) {
	var req ResetRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	if strings.TrimSpace(req.Email) == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email is required"))
		return
	}

	if err := h.passwords.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		respondUsecaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "if the address is registered, a recovery code has been sent"})
}

func (h *PasswordHandler) verifyCode(c *gin.Context) {
	var req ResetVerifyPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	if err := h.passwords.VerifyResetCode(c.Request.Context(), req.Email, req.Code); err != nil {
		respondUsecaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "code is valid"})
}

func (h *PasswordHandler) confirmReset(c *gin.Context) {
	var req ResetConfirmPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	if err := h.passwords.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		respondUsecaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password has been reset"})
}

func (h *PasswordHandler) changePassword(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid request payload"))
		return
	}

	if err := h.passwords.ChangePassword(c.Request.Context(), accountID, req.CurrentPassword, req.NewPassword); err != nil {
		respondUsecaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "password has been changed"})
}
