package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/areassist/apiserver/types"
)

// NotificationRepository handles persistence for notifications.
type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) Create(ctx context.Context, notif types.Notification) (types.Notification, error) {
	notif.CreatedAt = time.Now()

	const query = `
		INSERT INTO notifications (user_id, issue_id, volunteer_id, title, message, type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		notif.UserID,
		notif.IssueID,
		notif.VolunteerID,
		notif.Title,
		notif.Message,
		notif.Type,
		notif.CreatedAt,
	).Scan(&notif.ID); err != nil {
		return types.Notification{}, err
	}
	return notif, nil
}

func (r *NotificationRepository) Get(ctx context.Context, id int) (types.Notification, error) {
	const query = `
		SELECT id, user_id, issue_id, volunteer_id, title, message, type, is_read, created_at
		FROM notifications
		WHERE id = $1`
	var notif types.Notification
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&notif.ID,
		&notif.UserID,
		&notif.IssueID,
		&notif.VolunteerID,
		&notif.Title,
		&notif.Message,
		&notif.Type,
		&notif.IsRead,
		&notif.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Notification{}, ErrNotFound
		}
		return types.Notification{}, err
	}
	return notif, nil
}

func (r *NotificationRepository) ListByUser(ctx context.Context, userID int) ([]types.Notification, error) {
	const query = `
		SELECT id, user_id, issue_id, volunteer_id, title, message, type, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifs []types.Notification
	for rows.Next() {
		var notif types.Notification
		if err := rows.Scan(
			&notif.ID,
			&notif.UserID,
			&notif.IssueID,
			&notif.VolunteerID,
			&notif.Title,
			&notif.Message,
			&notif.Type,
			&notif.IsRead,
			&notif.CreatedAt,
		); err != nil {
			return nil, err
		}
		notifs = append(notifs, notif)
	}
	return notifs, rows.Err()
}

// UnreadCount recomputes from the table on every call; it is the source of
// truth clients must not second-guess with cached counters.
func (r *NotificationRepository) UnreadCount(ctx context.Context, userID int) (int, error) {
	const query = `SELECT COUNT(1) FROM notifications WHERE user_id = $1 AND is_read = FALSE`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// MarkRead is idempotent; marking an already-read notification is a no-op.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID int) error {
	const query = `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`, id, userID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, userID int) error {
	const query = `UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`
	_, err := r.db.ExecContext(ctx, query, userID)
	return err
}

// Delete hard-deletes a notification owned by the given recipient.
func (r *NotificationRepository) Delete(ctx context.Context, id, userID int) error {
	const query = `DELETE FROM notifications WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
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
