package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/areassist/apiserver/types"
)

const userColumns = `id, name, email, role, district, external_id, password_hash,
	profile_picture, phone, email_verified, phone_verified,
	skills, availability, experience, transportation,
	emergency_contact, emergency_phone, profile_completed, verified,
	last_login, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row *sql.Row) (types.User, error) {
	var user types.User
	var externalID sql.NullString
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.Role,
		&user.District,
		&externalID,
		&user.PasswordHash,
		&user.ProfilePicture,
		&user.Phone,
		&user.EmailVerified,
		&user.PhoneVerified,
		&user.Skills,
		&user.Availability,
		&user.Experience,
		&user.Transportation,
		&user.EmergencyContact,
		&user.EmergencyPhone,
		&user.ProfileCompleted,
		&user.Verified,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	user.ExternalID = externalID.String
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) GetByExternalID(ctx context.Context, externalID string) (types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, externalID))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (
			name, email, role, district, external_id, password_hash,
			profile_picture, phone, email_verified, phone_verified,
			skills, availability, experience, transportation,
			emergency_contact, emergency_phone, profile_completed, verified,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Role,
		user.District,
		nullString(user.ExternalID),
		user.PasswordHash,
		user.ProfilePicture,
		user.Phone,
		user.EmailVerified,
		user.PhoneVerified,
		user.Skills,
		user.Availability,
		user.Experience,
		user.Transportation,
		user.EmergencyContact,
		user.EmergencyPhone,
		user.ProfileCompleted,
		user.Verified,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		return types.User{}, err
	}
	return user, nil
}

func (r *UserRepository) Update(ctx context.Context, user types.User) (types.User, error) {
	user.UpdatedAt = time.Now()

	const query = `
		UPDATE users
		SET name = $1,
			email = $2,
			role = $3,
			district = $4,
			external_id = $5,
			password_hash = $6,
			profile_picture = $7,
			phone = $8,
			email_verified = $9,
			phone_verified = $10,
			skills = $11,
			availability = $12,
			experience = $13,
			transportation = $14,
			emergency_contact = $15,
			emergency_phone = $16,
			profile_completed = $17,
			verified = $18,
			updated_at = $19
		WHERE id = $20`
	result, err := r.db.ExecContext(
		ctx,
		query,
		user.Name,
		user.Email,
		user.Role,
		user.District,
		nullString(user.ExternalID),
		user.PasswordHash,
		user.ProfilePicture,
		user.Phone,
		user.EmailVerified,
		user.PhoneVerified,
		user.Skills,
		user.Availability,
		user.Experience,
		user.Transportation,
		user.EmergencyContact,
		user.EmergencyPhone,
		user.ProfileCompleted,
		user.Verified,
		user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return types.User{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.User{}, err
	}
	if affected == 0 {
		return types.User{}, ErrNotFound
	}
	return user, nil
}

func (r *UserRepository) ListByRole(ctx context.Context, role types.Role) ([]types.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE role = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []types.User
	for rows.Next() {
		var user types.User
		var externalID sql.NullString
		if err := rows.Scan(
			&user.ID,
			&user.Name,
			&user.Email,
			&user.Role,
			&user.District,
			&externalID,
			&user.PasswordHash,
			&user.ProfilePicture,
			&user.Phone,
			&user.EmailVerified,
			&user.PhoneVerified,
			&user.Skills,
			&user.Availability,
			&user.Experience,
			&user.Transportation,
			&user.EmergencyContact,
			&user.EmergencyPhone,
			&user.ProfileCompleted,
			&user.Verified,
			&user.LastLogin,
			&user.CreatedAt,
			&user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		user.ExternalID = externalID.String
		users = append(users, user)
	}
	return users, rows.Err()
}

// LinkExternalID attaches a federated identity to an existing local account.
func (r *UserRepository) LinkExternalID(ctx context.Context, id int, externalID string) error {
	const query = `UPDATE users SET external_id = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, externalID, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin stamps the most recent successful sign-in.
func (r *UserRepository) TouchLastLogin(ctx context.Context, id int) error {
	const query = `UPDATE users SET last_login = $1 WHERE id = $2`
	_, err := r.db.ExecContext(ctx, query, time.Now(), id)
	return err
}

// SetVerified records an admin's approval of a volunteer account.
func (r *UserRepository) SetVerified(ctx context.Context, id int, verified bool) error {
	const query = `UPDATE users SET verified = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, verified, time.Now(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
