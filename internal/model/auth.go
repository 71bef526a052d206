package model

import (
	"time"

	"github.com/google/uuid"
)

type SignUpRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

type RefreshRequest struct {
	Token string `json:"token"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type ResetRequest struct {
	Email string `json:"email"`
}

type ResetRequestResponse struct {
	ResetToken string `json:"resetToken"`
}

type ResetConfirmRequest struct {
	Password string `json:"password"`
}

type AuthUser struct {
	ID    uuid.UUID
	Email string
}

type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RefreshToken struct {
	ID        int64
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

type ResetToken struct {
	ID        int64
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}
