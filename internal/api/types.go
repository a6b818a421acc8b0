package api

import "time"

// TokenRequest is the payload for profile token issuance.
type TokenRequest struct {
	ProfileID string `json:"profile_id"`
	AccessKey string `json:"access_key"`
}

// TokenResponse carries an issued profile token.
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ProfileID string    `json:"profile_id"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
