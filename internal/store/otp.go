package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/areassist/apiserver/types"
)

// OTPRepository handles persistence for one-time verification codes.
type OTPRepository struct {
	db *sql.DB
}

func NewOTPRepository(db *sql.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Create stores a fresh challenge and supersedes any live code for the same
// (user, channel, destination) tuple in the same transaction, so at most one
// code is ever valid per destination.
func (r *OTPRepository) Create(ctx context.Context, challenge types.OTPChallenge) (types.OTPChallenge, error) {
	challenge.CreatedAt = time.Now()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.OTPChallenge{}, err
	}

	const supersede = `
		UPDATE otp_challenges
		SET used = TRUE
		WHERE user_id = $1 AND channel = $2 AND destination = $3 AND used = FALSE`
	if _, err := tx.ExecContext(ctx, supersede, challenge.UserID, challenge.Channel, challenge.Destination); err != nil {
		_ = tx.Rollback()
		return types.OTPChallenge{}, err
	}

	const insert = `
		INSERT INTO otp_challenges (user_id, channel, destination, code, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		insert,
		challenge.UserID,
		challenge.Channel,
		challenge.Destination,
		challenge.Code,
		challenge.ExpiresAt,
		challenge.CreatedAt,
	).Scan(&challenge.ID); err != nil {
		_ = tx.Rollback()
		return types.OTPChallenge{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.OTPChallenge{}, err
	}
	return challenge, nil
}

// Consume marks the matching live challenge used and flips the corresponding
// verification flag on its user, atomically. A second consume of the same
// code, or a consume after expiry, returns ErrNotFound.
func (r *OTPRepository) Consume(ctx context.Context, channel types.OTPChannel, destination, code string) (types.OTPChallenge, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.OTPChallenge{}, err
	}

	const query = `
		SELECT id, user_id, channel, destination, code, expires_at, used, created_at
		FROM otp_challenges
		WHERE channel = $1 AND destination = $2 AND code = $3 AND used = FALSE AND expires_at > $4
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`
	var challenge types.OTPChallenge
	err = tx.QueryRowContext(ctx, query, channel, destination, code, time.Now()).Scan(
		&challenge.ID,
		&challenge.UserID,
		&challenge.Channel,
		&challenge.Destination,
		&challenge.Code,
		&challenge.ExpiresAt,
		&challenge.Used,
		&challenge.CreatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return types.OTPChallenge{}, ErrNotFound
		}
		return types.OTPChallenge{}, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE otp_challenges SET used = TRUE WHERE id = $1`, challenge.ID); err != nil {
		_ = tx.Rollback()
		return types.OTPChallenge{}, err
	}

	flagColumn := "email_verified"
	if challenge.Channel == types.ChannelPhone {
		flagColumn = "phone_verified"
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET `+flagColumn+` = TRUE, updated_at = $1 WHERE id = $2`,
		time.Now(), challenge.UserID,
	); err != nil {
		_ = tx.Rollback()
		return types.OTPChallenge{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.OTPChallenge{}, err
	}
	challenge.Used = true
	return challenge, nil
}
