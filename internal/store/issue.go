package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/areassist/apiserver/types"
)

const issueColumns = `id, title, description, category, location, image_url,
	reporter_id, latitude, longitude, status, resolved_image_url,
	volunteer_note, verification_confidence, verification_report,
	created_at, resolved_at, updated_at`

// IssueFilter narrows List results.
type IssueFilter struct {
	Category string
	Status   string
	Offset   int
	Limit    int
}

// IssueRepository handles persistence for issues.
//
// Lifecycle transitions that also notify the reporter (Annotate, Resolve,
// Reopen) run the issue mutation and the notification insert in a single
// transaction so a crash cannot separate the two writes.
type IssueRepository struct {
	db *sql.DB
}

func NewIssueRepository(db *sql.DB) *IssueRepository {
	return &IssueRepository{db: db}
}

func (r *IssueRepository) Create(ctx context.Context, issue types.Issue) (types.Issue, error) {
	now := time.Now()
	issue.CreatedAt = now
	issue.UpdatedAt = now
	if issue.Status == "" {
		issue.Status = types.StatusPending
	}

	const query = `
		INSERT INTO issues (
			title, description, category, location, image_url, reporter_id,
			latitude, longitude, status, resolved_image_url, volunteer_note,
			verification_confidence, verification_report, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		issue.Title,
		issue.Description,
		issue.Category,
		issue.Location,
		issue.ImageURL,
		issue.ReporterID,
		issue.Latitude,
		issue.Longitude,
		issue.Status,
		issue.ResolvedImageURL,
		issue.VolunteerNote,
		issue.VerificationConfidence,
		issue.VerificationReport,
		issue.CreatedAt,
		issue.UpdatedAt,
	).Scan(&issue.ID); err != nil {
		return types.Issue{}, err
	}
	return issue, nil
}

func (r *IssueRepository) Get(ctx context.Context, id int) (types.Issue, error) {
	const query = `SELECT ` + issueColumns + ` FROM issues WHERE id = $1`
	return scanIssueRow(r.db.QueryRowContext(ctx, query, id))
}

func (r *IssueRepository) List(ctx context.Context, filter IssueFilter) ([]types.Issue, int, error) {
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Limit < 1 {
		filter.Limit = 20
	}

	where := make([]string, 0, 2)
	args := make([]any, 0, 4)
	if filter.Category != "" && filter.Category != "all" {
		args = append(args, filter.Category)
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Status != "" && filter.Status != "all" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM issues`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := `SELECT ` + issueColumns + ` FROM issues` + clause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	issues, err := collectIssues(rows)
	if err != nil {
		return nil, 0, err
	}
	return issues, total, nil
}

func (r *IssueRepository) ListByReporter(ctx context.Context, reporterID int) ([]types.Issue, error) {
	const query = `SELECT ` + issueColumns + ` FROM issues WHERE reporter_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, reporterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIssues(rows)
}

// ListOpen returns issues a volunteer can still act on.
func (r *IssueRepository) ListOpen(ctx context.Context) ([]types.Issue, error) {
	const query = `SELECT ` + issueColumns + ` FROM issues WHERE status <> $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, types.StatusResolved)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectIssues(rows)
}

// SetStatus moves a non-resolved issue to the given status. The guard is a
// compare-and-swap on the current row so a concurrent resolve wins and the
// loser observes ErrConflict.
func (r *IssueRepository) SetStatus(ctx context.Context, id int, to types.IssueStatus) error {
	const query = `
		UPDATE issues
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status <> $4`
	result, err := r.db.ExecContext(ctx, query, to, time.Now(), id, types.StatusResolved)
	if err != nil {
		return err
	}
	return r.guardOutcome(ctx, result, id)
}

// Annotate writes a volunteer note plus its reporter notification. The issue
// must not be resolved.
func (r *IssueRepository) Annotate(ctx context.Context, id int, note string, status types.IssueStatus, notif types.Notification) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		const query = `
			UPDATE issues
			SET volunteer_note = $1, status = $2, updated_at = $3
			WHERE id = $4 AND status <> $5`
		result, err := tx.ExecContext(ctx, query, note, status, time.Now(), id, types.StatusResolved)
		if err != nil {
			return err
		}
		if err := r.guardOutcomeTx(ctx, tx, result, id); err != nil {
			return err
		}
		return insertNotification(ctx, tx, notif)
	})
}

// Resolve marks a non-resolved issue resolved, stamps resolved_at, stores the
// resolution photo, and notifies the reporter.
func (r *IssueRepository) Resolve(ctx context.Context, id int, resolvedImageURL string, notif types.Notification) (time.Time, error) {
	resolvedAt := time.Now()
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		const query = `
			UPDATE issues
			SET status = $1, resolved_image_url = $2, resolved_at = $3, updated_at = $3
			WHERE id = $4 AND status <> $1`
		result, err := tx.ExecContext(ctx, query, types.StatusResolved, resolvedImageURL, resolvedAt, id)
		if err != nil {
			return err
		}
		if err := r.guardOutcomeTx(ctx, tx, result, id); err != nil {
			return err
		}
		return insertNotification(ctx, tx, notif)
	})
	if err != nil {
		return time.Time{}, err
	}
	return resolvedAt, nil
}

// Reopen returns a resolved issue to Pending, clearing the resolution fields,
// and notifies the reporter. Only resolved issues can be reopened.
func (r *IssueRepository) Reopen(ctx context.Context, id int, notif types.Notification) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		const query = `
			UPDATE issues
			SET status = $1, resolved_image_url = '', resolved_at = NULL, updated_at = $2
			WHERE id = $3 AND status = $4`
		result, err := tx.ExecContext(ctx, query, types.StatusPending, time.Now(), id, types.StatusResolved)
		if err != nil {
			return err
		}
		if err := r.guardOutcomeTx(ctx, tx, result, id); err != nil {
			return err
		}
		return insertNotification(ctx, tx, notif)
	})
}

func (r *IssueRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// guardOutcome distinguishes "row missing" from "guard lost" after a guarded
// UPDATE touched zero rows.
func (r *IssueRepository) guardOutcome(ctx context.Context, result sql.Result, id int) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM issues WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func (r *IssueRepository) guardOutcomeTx(ctx context.Context, tx *sql.Tx, result sql.Result, id int) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM issues WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

func insertNotification(ctx context.Context, tx *sql.Tx, notif types.Notification) error {
	const query = `
		INSERT INTO notifications (user_id, issue_id, volunteer_id, title, message, type, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`
	_, err := tx.ExecContext(
		ctx,
		query,
		notif.UserID,
		notif.IssueID,
		notif.VolunteerID,
		notif.Title,
		notif.Message,
		notif.Type,
		time.Now(),
	)
	return err
}

func scanIssueRow(row *sql.Row) (types.Issue, error) {
	var issue types.Issue
	err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&issue.Location,
		&issue.ImageURL,
		&issue.ReporterID,
		&issue.Latitude,
		&issue.Longitude,
		&issue.Status,
		&issue.ResolvedImageURL,
		&issue.VolunteerNote,
		&issue.VerificationConfidence,
		&issue.VerificationReport,
		&issue.CreatedAt,
		&issue.ResolvedAt,
		&issue.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Issue{}, ErrNotFound
		}
		return types.Issue{}, err
	}
	return issue, nil
}

func collectIssues(rows *sql.Rows) ([]types.Issue, error) {
	var issues []types.Issue
	for rows.Next() {
		var issue types.Issue
		if err := rows.Scan(
			&issue.ID,
			&issue.Title,
			&issue.Description,
			&issue.Category,
			&issue.Location,
			&issue.ImageURL,
			&issue.ReporterID,
			&issue.Latitude,
			&issue.Longitude,
			&issue.Status,
			&issue.ResolvedImageURL,
			&issue.VolunteerNote,
			&issue.VerificationConfidence,
			&issue.VerificationReport,
			&issue.CreatedAt,
			&issue.ResolvedAt,
			&issue.UpdatedAt,
		); err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}
