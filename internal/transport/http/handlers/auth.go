package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmarykin/authcore/internal/transport/http/middleware"
	"github.com/dmarykin/authcore/internal/usecase"
)

// AuthHandler exposes registration, login, token verification, and account
// deactivation endpoints.
type AuthHandler struct {
	auth         *usecase.AuthService
	registration *usecase.RegistrationService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(auth *usecase.AuthService, registration *usecase.RegistrationService) *AuthHandler {
	return &AuthHandler{auth: auth, registration: registration}
}

// RegisterRoutes binds the authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup, authMiddleware gin.HandlerFunc) {
	r.POST("/register", h.register)
	r.POST("/login", h.login)
	r.GET("/verify", h.verify)
	r.DELETE("/account", authMiddleware, h.deactivate)
}

func (h *AuthHandler) register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid registration payload"))
		return
	}

	account, err := h.registration.Register(c.Request.Context(), usecase.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		respondUsecaseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, RegisterResponse{Account: newAccountSummary(*account)})
}

func (h *AuthHandler) login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid login payload"))
		return
	}

	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "identifier and password are required"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		respondUsecaseError(c, err)
		return
	}

	c.JSON(http.StatusOK, LoginResponse{
		Token:   result.Token,
		Account: newAccountSummary(result.Account),
	})
}

// verify validates the bearer token presented in the Authorization header.
// When the token sits inside its refresh window the replacement is exposed
// both in the body and the X-Refreshed-Token header.
func (h *AuthHandler) verify(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "missing bearer token"))
		return
	}

	verification, err := h.auth.VerifyToken(c.Request.Context(), token)
	if err != nil {
		respondUsecaseError(c, err)
		return
	}

	resp := VerifyResponse{AccountID: verification.AccountID}
	if verification.Claims != nil && verification.Claims.ExpiresAt != nil {
		expires := verification.Claims.ExpiresAt.Time
		resp.ExpiresAt = &expires
	}
	if verification.RefreshedToken != "" {
		resp.RefreshedToken = verification.RefreshedToken
		c.Header(middleware.RefreshedTokenHeader, verification.RefreshedToken)
	}

	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) deactivate(c *gin.Context) {
	accountID, ok := middleware.GetAuthenticatedAccountID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	if err := h.registration.Deactivate(c.Request.Context(), accountID); err != nil {
		respondUsecaseError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
