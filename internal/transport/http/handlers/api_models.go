package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmarykin/authcore/internal/core/domain"
	"github.com/dmarykin/authcore/internal/infra/logger"
)

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// NewErrorResponse creates an error response carrying the request correlation id.
func NewErrorResponse(c *gin.Context, message string) ErrorResponse {
	resp := ErrorResponse{Error: message}
	if c != nil {
		if id, ok := c.Request.Context().Value(logger.RequestIDKey{}).(string); ok {
			resp.RequestID = id
		}
	}
	return resp
}

// RegisterRequest is the payload for account registration.
type RegisterRequest struct {
	Username string  `json:"username"`
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Phone    *string `json:"phone,omitempty"`
}

// AccountSummary is the outward representation of an account.
type AccountSummary struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Phone        *string    `json:"phone,omitempty"`
	RegisteredAt time.Time  `json:"registered_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

func newAccountSummary(account domain.Account) AccountSummary {
	return AccountSummary{
		ID:           account.ID,
		Username:     account.Username,
		Email:        account.Email,
		Phone:        account.Phone,
		RegisteredAt: account.RegisteredAt,
		LastLogin:    account.LastLogin,
	}
}

// RegisterResponse is returned on successful registration.
type RegisterResponse struct {
	Account AccountSummary `json:"account"`
}

// LoginRequest is the payload for credential authentication.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token   string         `json:"token"`
	Account AccountSummary `json:"account"`
}

// VerifyResponse reports a valid token's subject. RefreshedToken mirrors the
// X-Refreshed-Token header when an advisory replacement was minted.
type VerifyResponse struct {
	AccountID      string     `json:"account_id"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	RefreshedToken string     `json:"refreshed_token,omitempty"`
}

// ResetRequestPayload is the payload for initiating password recovery.
type ResetRequestPayload struct {
	Email string `json:"email"`
}

// ResetVerifyPayload is the payload for checking a recovery code.
type ResetVerifyPayload struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResetConfirmPayload is the payload for completing password recovery.
type ResetConfirmPayload struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

// ChangePasswordRequest is the payload for an authenticated password change.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// MessageResponse is a generic acknowledgement payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports per-dependency readiness.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
