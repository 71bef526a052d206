package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/authcore/backend/internal/config"
	"github.com/authcore/backend/internal/db"
	"github.com/authcore/backend/internal/model"
	"github.com/authcore/backend/internal/password"
	"github.com/authcore/backend/internal/token"
)

var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrVerificationFailed    = errors.New("token verification failed")
	ErrConflict              = errors.New("conflict")
	ErrNotFound              = errors.New("not found")
	ErrMisconfigured         = errors.New("auth config invalid")
)

type UserStore interface {
	CreateUser(ctx context.Context, id uuid.UUID, email, passwordHash string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*model.User, error)
	UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

type TokenLedger interface {
	InsertRefreshToken(ctx context.Context, userID uuid.UUID, tokenStr string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenStr string) (*model.RefreshToken, error)
	InsertResetToken(ctx context.Context, userID uuid.UUID, tokenStr string, expiresAt time.Time) error
	ConsumeResetToken(ctx context.Context, tokenStr string) (*model.ResetToken, error)
}

type AuthService struct {
	users      UserStore
	ledger     TokenLedger
	hasher     *password.Hasher
	codec      *token.Codec
	refreshTTL time.Duration
	resetTTL   time.Duration
}

func NewAuthService(users UserStore, ledger TokenLedger, cfg config.AuthConfig) (*AuthService, error) {
	accessTTL, err := time.ParseDuration(cfg.AccessTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid ACCESS_TOKEN_TTL", ErrMisconfigured)
	}

	refreshTTL, err := time.ParseDuration(cfg.RefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid REFRESH_TOKEN_TTL", ErrMisconfigured)
	}

	resetTTL, err := time.ParseDuration(cfg.ResetTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid RESET_TOKEN_TTL", ErrMisconfigured)
	}

	codec, err := token.NewCodec(cfg.AccessSecret, cfg.RefreshSecret, cfg.ResetSecret, accessTTL, resetTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMisconfigured, err)
	}

	return &AuthService{
		users:      users,
		ledger:     ledger,
		hasher:     password.NewHasher(0),
		codec:      codec,
		refreshTTL: refreshTTL,
		resetTTL:   resetTTL,
	}, nil
}

// Codec exposes the token codec so the access-guard middleware can
// verify bearer tokens without going through the service.
func (s *AuthService) Codec() *token.Codec {
	return s.codec
}

func (s *AuthService) Register(ctx context.Context, email, plaintext string) error {
	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		return ErrInvalidInput
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return err
	}

	if _, err := s.users.CreateUser(ctx, uuid.New(), email, hash); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Login deliberately reports the same error for an unknown email and a
// wrong password.
func (s *AuthService) Login(ctx context.Context, email, plaintext string) (string, string, error) {
	email = normalizeEmail(email)
	if email == "" || plaintext == "" {
		return "", "", ErrInvalidInput
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if db.IsNoRows(err) {
			return "", "", ErrInvalidCredentials
		}
		return "", "", err
	}

	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return "", "", ErrInvalidCredentials
	}

	accessToken, err := s.codec.Issue(token.PurposeAccess, token.Identity{SubjectID: user.ID, Email: user.Email})
	if err != nil {
		return "", "", err
	}

	refreshToken, err := s.codec.Issue(token.PurposeRefresh, token.Identity{SubjectID: user.ID})
	if err != nil {
		return "", "", err
	}

	if err := s.ledger.InsertRefreshToken(ctx, user.ID, refreshToken, time.Now().Add(s.refreshTTL)); err != nil {
		return "", "", err
	}

	return accessToken, refreshToken, nil
}

// Refresh exchanges a refresh token for a fresh access token. The
// refresh token is not rotated; it stays valid until its ledger row
// expires or the account is deleted.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return "", ErrInvalidInput
	}

	record, err := s.ledger.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		if db.IsNoRows(err) {
			return "", ErrInvalidOrExpiredToken
		}
		return "", err
	}
	if time.Now().After(record.ExpiresAt) {
		return "", ErrInvalidOrExpiredToken
	}

	identity, err := s.codec.Verify(token.PurposeRefresh, refreshToken)
	if err != nil {
		return "", ErrVerificationFailed
	}
	if identity.SubjectID != record.UserID {
		return "", ErrVerificationFailed
	}

	user, err := s.users.GetUserByID(ctx, record.UserID)
	if err != nil {
		if db.IsNoRows(err) {
			return "", ErrInvalidOrExpiredToken
		}
		return "", err
	}

	return s.codec.Issue(token.PurposeAccess, token.Identity{SubjectID: user.ID, Email: user.Email})
}

// RequestPasswordReset issues a single-use reset token valid for one
// hour. Delivery to the user is the caller's concern.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return "", ErrInvalidInput
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if db.IsNoRows(err) {
			return "", ErrNotFound
		}
		return "", err
	}

	resetToken, err := s.codec.Issue(token.PurposeReset, token.Identity{SubjectID: user.ID})
	if err != nil {
		return "", err
	}

	if err := s.ledger.InsertResetToken(ctx, user.ID, resetToken, time.Now().Add(s.resetTTL)); err != nil {
		return "", err
	}

	return resetToken, nil
}

// ConfirmPasswordReset consumes the ledger row before anything else, so
// a racing second confirmation loses, and a confirmation that fails
// midway still counts as having used the token.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, resetToken, newPassword string) error {
	if strings.TrimSpace(resetToken) == "" || newPassword == "" {
		return ErrInvalidInput
	}

	record, err := s.ledger.ConsumeResetToken(ctx, resetToken)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	if time.Now().After(record.ExpiresAt) {
		return ErrInvalidOrExpiredToken
	}

	identity, err := s.codec.Verify(token.PurposeReset, resetToken)
	if err != nil {
		return ErrVerificationFailed
	}
	if identity.SubjectID != record.UserID {
		return ErrVerificationFailed
	}

	user, err := s.users.GetUserByID(ctx, record.UserID)
	if err != nil {
		if db.IsNoRows(err) {
			return ErrNotFound
		}
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	return s.users.UpdateUserPassword(ctx, user.ID, hash)
}

// DeleteAccount removes the user and, through the store's cascade, all
// refresh tokens owned by the user. Outstanding reset tokens are left
// behind and die by expiry. Deleting an already-deleted account is a
// no-op.
func (s *AuthService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.DeleteUser(ctx, userID); err != nil && !db.IsNoRows(err) {
		return err
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
