package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dmarykin/authcore/internal/infra/logger"
	"github.com/dmarykin/authcore/internal/usecase"
)

const (
	// AccountIDKey is the gin context key holding the authenticated account id.
	AccountIDKey = "account_id"
	// RefreshedTokenHeader carries an advisory replacement token. The client
	// may adopt it at any time; the presented token stays valid until expiry.
	RefreshedTokenHeader = "X-Refreshed-Token"
)

// ErrorResponse matches the handlers.ErrorResponse structure.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func newErrorResponse(c *gin.Context, message string) ErrorResponse {
	resp := ErrorResponse{Error: message}
	if id, ok := c.Request.Context().Value(logger.RequestIDKey{}).(string); ok {
		resp.RequestID = id
	}
	return resp
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// RequireAuth validates the Authorization header and stores the subject on
// the context. When the token is inside its refresh window the replacement
// is exposed through the X-Refreshed-Token response header.
func RequireAuth(auth *usecase.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing bearer token"))
			return
		}

		verification, err := auth.VerifyToken(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, usecase.ErrExpiredAccessToken):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token expired"))
			case errors.Is(err, usecase.ErrTokenNotActive):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token not yet active"))
			case errors.Is(err, usecase.ErrInvalidAccessToken),
				errors.Is(err, usecase.ErrSubjectUnavailable):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed"))
			}
			return
		}

		if verification.RefreshedToken != "" {
			c.Header(RefreshedTokenHeader, verification.RefreshedToken)
		}

		c.Set(AccountIDKey, verification.AccountID)

		c.Next()
	}
}

// GetAuthenticatedAccountID retrieves the account id placed by RequireAuth.
func GetAuthenticatedAccountID(c *gin.Context) (string, bool) {
	value, exists := c.Get(AccountIDKey)
	if !exists {
		return "", false
	}

	if id, ok := value.(string); ok && id != "" {
		return id, true
	}

	return "", false
}
