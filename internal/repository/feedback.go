package repository

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
)

// FeedbackRecord is one requester's feedback for one conversion. Nil
// fields were never submitted.
type FeedbackRecord struct {
	RequesterID  int64
	ConversionID string
	Rating       *int
	Comment      *string
}

type FeedbackRepository interface {
	// UpsertRating stores a rating unless one exists: first write wins
	// per field, later writes only fill missing fields.
	UpsertRating(ctx context.Context, requesterID int64, conversionID string, rating int) error
	// UpsertComment stores a comment with the same first-write-wins rule.
	UpsertComment(ctx context.Context, requesterID int64, conversionID string, comment string) error
	// Get returns the record for the pair, ok=false when none exists.
	Get(ctx context.Context, requesterID int64, conversionID string) (FeedbackRecord, bool, error)
	// HasRating gates re-prompting: true once a rating is recorded.
	HasRating(ctx context.Context, requesterID int64, conversionID string) (bool, error)
	// List returns all records, for reporting.
	List(ctx context.Context) ([]FeedbackRecord, error)
}

type feedbackRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewFeedbackRepository(db *sql.DB, logger *slog.Logger) FeedbackRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &feedbackRepository{db: db, logger: logger}
}

// The single-statement COALESCE upsert keeps the first-write-wins merge
// atomic per (requester, conversion) key under concurrent submissions.
const upsertRatingSQL = `
INSERT INTO feedback (requester_id, conversion_id, rating)
VALUES (?, ?, ?)
ON CONFLICT(requester_id, conversion_id) DO UPDATE SET
	rating     = COALESCE(feedback.rating, excluded.rating),
	updated_at = CURRENT_TIMESTAMP`

const upsertCommentSQL = `
INSERT INTO feedback (requester_id, conversion_id, comment)
VALUES (?, ?, ?)
ON CONFLICT(requester_id, conversion_id) DO UPDATE SET
	comment    = COALESCE(feedback.comment, excluded.comment),
	updated_at = CURRENT_TIMESTAMP`

func (r *feedbackRepository) UpsertRating(ctx context.Context, requesterID int64, conversionID string, rating int) error {
	if rating < 1 || rating > 5 {
		return errors.New("rating out of range 1..5")
	}
	if _, err := r.db.ExecContext(ctx, upsertRatingSQL, requesterID, conversionID, rating); err != nil {
		r.logger.Error("failed to upsert rating",
			"requester_id", requesterID, "conversion_id", conversionID, "error", err)
		return err
	}
	return nil
}

func (r *feedbackRepository) UpsertComment(ctx context.Context, requesterID int64, conversionID string, comment string) error {
	if _, err := r.db.ExecContext(ctx, upsertCommentSQL, requesterID, conversionID, comment); err != nil {
		r.logger.Error("failed to upsert comment",
			"requester_id", requesterID, "conversion_id", conversionID, "error", err)
		return err
	}
	return nil
}

func (r *feedbackRepository) Get(ctx context.Context, requesterID int64, conversionID string) (FeedbackRecord, bool, error) {
	rec := FeedbackRecord{RequesterID: requesterID, ConversionID: conversionID}
	err := r.db.QueryRowContext(ctx,
		`SELECT rating, comment FROM feedback WHERE requester_id = ? AND conversion_id = ?`,
		requesterID, conversionID,
	).Scan(&rec.Rating, &rec.Comment)
	if errors.Is(err, sql.ErrNoRows) {
		return FeedbackRecord{}, false, nil
	}
	if err != nil {
		return FeedbackRecord{}, false, err
	}
	return rec, true, nil
}

func (r *feedbackRepository) HasRating(ctx context.Context, requesterID int64, conversionID string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM feedback
		 WHERE requester_id = ? AND conversion_id = ? AND rating IS NOT NULL`,
		requesterID, conversionID,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *feedbackRepository) List(ctx context.Context) ([]FeedbackRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT requester_id, conversion_id, rating, comment FROM feedback ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FeedbackRecord
	for rows.Next() {
		var rec FeedbackRecord
		if err := rows.Scan(&rec.RequesterID, &rec.ConversionID, &rec.Rating, &rec.Comment); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
