package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/areassist/apiserver/types"
)

// FeedbackRepository handles persistence for visitor feedback.
type FeedbackRepository struct {
	db *sql.DB
}

func NewFeedbackRepository(db *sql.DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

func (r *FeedbackRepository) Create(ctx context.Context, fb types.Feedback) (types.Feedback, error) {
	fb.CreatedAt = time.Now()

	const query = `
		INSERT INTO feedback (name, message, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := r.db.QueryRowContext(ctx, query, fb.Name, fb.Message, fb.CreatedAt).Scan(&fb.ID); err != nil {
		return types.Feedback{}, err
	}
	return fb, nil
}

func (r *FeedbackRepository) List(ctx context.Context) ([]types.Feedback, error) {
	const query = `SELECT id, name, message, created_at FROM feedback ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []types.Feedback
	for rows.Next() {
		var fb types.Feedback
		if err := rows.Scan(&fb.ID, &fb.Name, &fb.Message, &fb.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, fb)
	}
	return items, rows.Err()
}
