package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/authcore/backend/internal/model"
)

func (db *Postgres) EnsureAuthSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS refresh_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS refresh_tokens_user_id_idx ON refresh_tokens(user_id)`,
		// reset_tokens has no FK on purpose: rows outlive account
		// deletion and expire lazily.
		`
		CREATE TABLE IF NOT EXISTS reset_tokens (
			id BIGSERIAL PRIMARY KEY,
			user_id UUID NOT NULL,
			token TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func (db *Postgres) CreateUser(ctx context.Context, id uuid.UUID, email, passwordHash string) (*model.User, error) {
	query := `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING id, email, password_hash, created_at, updated_at
	`
	var user model.User
	err := db.Pool.QueryRow(ctx, query, id, email, passwordHash).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var user model.User
	err := db.Pool.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) GetUserByID(ctx context.Context, userID uuid.UUID) (*model.User, error) {
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	var user model.User
	err := db.Pool.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Postgres) UpdateUserPassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := db.Pool.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// DeleteUser removes the user row; refresh_tokens rows go with it via
// ON DELETE CASCADE. reset_tokens rows are left behind.
func (db *Postgres) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (db *Postgres) InsertRefreshToken(ctx context.Context, userID uuid.UUID, tokenStr string, expiresAt time.Time) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := db.Pool.Exec(ctx, query, userID, tokenStr, expiresAt)
	return err
}

func (db *Postgres) GetRefreshToken(ctx context.Context, tokenStr string) (*model.RefreshToken, error) {
	query := `
		SELECT id, user_id, token, expires_at, created_at
		FROM refresh_tokens
		WHERE token = $1
	`
	var tok model.RefreshToken
	err := db.Pool.QueryRow(ctx, query, tokenStr).Scan(
		&tok.ID,
		&tok.UserID,
		&tok.Token,
		&tok.ExpiresAt,
		&tok.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (db *Postgres) InsertResetToken(ctx context.Context, userID uuid.UUID, tokenStr string, expiresAt time.Time) error {
	query := `
		INSERT INTO reset_tokens (user_id, token, expires_at, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err := db.Pool.Exec(ctx, query, userID, tokenStr, expiresAt)
	return err
}

// ConsumeResetToken deletes the reset token row and returns it in one
// statement, so two racing confirmations cannot both claim the token.
func (db *Postgres) ConsumeResetToken(ctx context.Context, tokenStr string) (*model.ResetToken, error) {
	query := `
		DELETE FROM reset_tokens
		WHERE token = $1
		RETURNING id, user_id, token, expires_at, created_at
	`
	var tok model.ResetToken
	err := db.Pool.QueryRow(ctx, query, tokenStr).Scan(
		&tok.ID,
		&tok.UserID,
		&tok.Token,
		&tok.ExpiresAt,
		&tok.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func IsNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
