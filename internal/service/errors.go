package service

import (
	"net/http"

	"github.com/rryowa/botgate/internal/util"
)

// Validation errors.
var (
	ErrCredentialsRequired = util.NewResponseError(util.KindValidation, http.StatusBadRequest,
		"CREDENTIALS", "Missing required information", "Email and password are required")
	ErrEmailFormat = util.NewResponseError(util.KindValidation, http.StatusBadRequest,
		"EMAIL_FORMAT", "Invalid input", "Invalid email format")
	ErrPasswordLength = util.NewResponseError(util.KindValidation, http.StatusBadRequest,
		"PASSWORD_LENGTH", "Invalid input", "Password must be at least 8 characters")
	ErrUserExists = util.NewResponseError(util.KindValidation, http.StatusBadRequest,
		"USER_EXISTS", "Registration failed", "User already exists. Please sign in")
	ErrRefreshTokenRequired = util.NewResponseError(util.KindValidation, http.StatusBadRequest,
		"REFRESH_TOKEN_REQUIRED", "Missing required information", "Refresh token is required")
)

// Authentication errors.
var (
	ErrInvalidCredentials = util.NewResponseError(util.KindAuthentication, http.StatusUnauthorized,
		"INVALID_CREDENTIALS", "Authentication failed", "Invalid email or password")
	ErrInvalidRefreshToken = util.NewResponseError(util.KindAuthentication, http.StatusUnauthorized,
		"INVALID_REFRESH_TOKEN", "Authentication failed", "Invalid refresh token")
	ErrRefreshTokenExpired = util.NewResponseError(util.KindAuthentication, http.StatusUnauthorized,
		"TOKEN_EXPIRED", "Session expired", "Refresh token expired")
	ErrTokenReuseDetected = util.NewResponseError(util.KindAuthentication, http.StatusForbidden,
		"TOKEN_REUSE_DETECTED", "Security alert", "Security issue detected. Please login again")
	ErrNotAuthenticated = util.NewResponseError(util.KindAuthentication, http.StatusUnauthorized,
		"NOT_AUTHENTICATED", "Authentication required", "Not authenticated")
	ErrAccessTokenExpired = util.NewResponseError(util.KindAuthentication, http.StatusUnauthorized,
		"ACCESS_TOKEN_EXPIRED", "Authentication required", "Access token expired")
	ErrAccessTokenInvalid = util.NewResponseError(util.KindAuthentication, http.StatusUnauthorized,
		"ACCESS_TOKEN_INVALID", "Authentication required", "Invalid access token")
	ErrLoginFailed = util.NewResponseError(util.KindAuthentication, http.StatusInternalServerError,
		"LOGIN_FAILED", "Authentication failed", "Failed to process login. Please try again")
	ErrLogoutFailed = util.NewResponseError(util.KindAuthentication, http.StatusInternalServerError,
		"LOGOUT_FAILED", "Logout failed", "Failed to process logout. Please try again")
	ErrTokenGeneration = util.NewResponseError(util.KindAuthentication, http.StatusInternalServerError,
		"TOKEN_GENERATION", "Token error", "Failed to generate access token")
)

// Rate limiting errors.
var (
	ErrRateLimitExceeded = util.NewResponseError(util.KindRateLimit, http.StatusTooManyRequests,
		"RATE_LIMIT_EXCEEDED", "Rate limit exceeded", "Too many requests. Please try again later")
	ErrRateLimitService = util.NewResponseError(util.KindRateLimit, http.StatusInternalServerError,
		"RATE_LIMIT_SERVICE_ERROR", "Rate Limiting Error", "Unable to process request due to rate limiting service error")
	ErrViolationTracker = util.NewResponseError(util.KindRateLimit, http.StatusInternalServerError,
		"VIOLATION_TRACKER", "Failed to track violation", "Failed to track violation")
)

var ErrInternal = util.NewResponseError(util.KindInternal, http.StatusInternalServerError,
	"INTERNAL", "Internal server error", "Internal server error")
