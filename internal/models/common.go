package models

//nolint:gosec //file not handles sensitive data
const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"

	MwUserIDKey = "userID"

	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)
