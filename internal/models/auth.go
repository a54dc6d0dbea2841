package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest is the operator credential payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	IssuedAt    time.Time `json:"issued_at"`
	Username    string    `json:"username"`
}

// JWTClaims extends registered claims with operator identity.
type JWTClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}
