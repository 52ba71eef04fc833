package postgres

import (
	"context"
	"database/sql"

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
	return r.db.QueryRowContext(ctx, `
		INSERT INTO reports (id, kind, reported_id, submitter_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at
	`, rep.ID, rep.Kind, rep.ReportedID, rep.SubmitterID, rep.Message).Scan(&rep.CreatedAt)
}
