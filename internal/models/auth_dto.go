package models

import "time"

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

type AuthResponse struct {
	Message string       `json:"message,omitempty"`
	User    UserResponse `json:"user"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// TokenPair is what a successful register, login or refresh hands to the transport layer.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AuthResult bundles the issued tokens with the user they belong to.
type AuthResult struct {
	User   *User
	Tokens TokenPair
}

// ClientMeta identifies the caller of a request for security events.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}
