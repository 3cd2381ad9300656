package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dmarykin/authcore/internal/usecase"
)

// respondUsecaseError translates usecase errors into HTTP responses. Unmapped
// errors collapse into a generic 500 so internals never leak outward.
func respondUsecaseError(c *gin.Context, err error) {
	var lockedErr *usecase.AccountLockedError
	if errors.As(err, &lockedErr) {
		c.Header("Retry-After", strconv.Itoa(lockedErr.RetryAfterSeconds()))
		c.JSON(http.StatusLocked, NewErrorResponse(c, lockedErr.Error()))
		return
	}

	var rateErr *usecase.RateLimitExceededError
	if errors.As(err, &rateErr) {
		if secs := int(rateErr.RetryAfter.Seconds()); secs > 0 {
			c.Header("Retry-After", strconv.Itoa(secs))
		}
		c.JSON(http.StatusTooManyRequests, NewErrorResponse(c, "too many requests"))
		return
	}

	switch {
	case errors.Is(err, usecase.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid credentials"))
	case errors.Is(err, usecase.ErrInactiveAccount):
		c.JSON(http.StatusForbidden, NewErrorResponse(c, "account is not active"))
	case errors.Is(err, usecase.ErrUsernameTaken):
		c.JSON(http.StatusConflict, NewErrorResponse(c, "username already taken"))
	case errors.Is(err, usecase.ErrEmailTaken):
		c.JSON(http.StatusConflict, NewErrorResponse(c, "email already registered"))
	case errors.Is(err, usecase.ErrWeakPassword),
		errors.Is(err, usecase.ErrNewPasswordInvalid):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, err.Error()))
	case errors.Is(err, usecase.ErrCurrentPasswordInvalid):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "current password is incorrect"))
	case errors.Is(err, usecase.ErrInvalidOrExpiredCode):
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid or expired recovery code"))
	case errors.Is(err, usecase.ErrDeliveryFailed):
		c.JSON(http.StatusBadGateway, NewErrorResponse(c, "could not deliver recovery code"))
	case errors.Is(err, usecase.ErrExpiredAccessToken):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "access token expired"))
	case errors.Is(err, usecase.ErrTokenNotActive):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "access token not yet active"))
	case errors.Is(err, usecase.ErrInvalidAccessToken),
		errors.Is(err, usecase.ErrSubjectUnavailable):
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid access token"))
	case errors.Is(err, usecase.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, NewErrorResponse(c, "account not found"))
	default:
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "internal error"))
	}
}
