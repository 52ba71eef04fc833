package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"shipchat/internal/domain"
)

type ReportRepo struct {
	db *sql.DB
}

func NewReportRepo(db *sql.DB) *ReportRepo {
	return &ReportRepo{db: db}
}

var _ domain.ReportRepository = (*ReportRepo)(nil)

func (r *ReportRepo) Create(ctx context.Context, rep *domain.Report) error {
	rep.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reports (id, kind, reported_id, submitter_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rep.ID, rep.Kind, rep.ReportedID, rep.SubmitterID, rep.Message, rep.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}
