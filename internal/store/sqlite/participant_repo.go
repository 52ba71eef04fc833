package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shipchat/internal/domain"
)

type ParticipantRepo struct {
	db *sql.DB
}

func NewParticipantRepo(db *sql.DB) *ParticipantRepo {
	return &ParticipantRepo{db: db}
}

var _ domain.ParticipantRepository = (*ParticipantRepo)(nil)

const participantColumns = `fez_id, user_id, list_position, read_count, hidden_count, joined_at`

func (r *ParticipantRepo) List(ctx context.Context, fezID uuid.UUID) ([]*domain.FezParticipant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+participantColumns+`
		FROM fez_participants
		WHERE fez_id = ?
		ORDER BY list_position
	`, fezID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	var res []*domain.FezParticipant
	for rows.Next() {
		p := &domain.FezParticipant{}
		if err := rows.Scan(&p.FezID, &p.UserID, &p.ListPosition, &p.ReadCount, &p.HiddenCount, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r *ParticipantRepo) Get(ctx context.Context, fezID, userID uuid.UUID) (*domain.FezParticipant, error) {
	p := &domain.FezParticipant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM fez_participants
		WHERE fez_id = ? AND user_id = ?
	`, fezID, userID).Scan(&p.FezID, &p.UserID, &p.ListPosition, &p.ReadCount, &p.HiddenCount, &p.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// Add appends the user at the next free list position. SQLite serializes
// writers, so the MAX+1 subquery inside the insert is race-free.
func (r *ParticipantRepo) Add(ctx context.Context, fezID, userID uuid.UUID, hiddenCount int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO fez_participants (fez_id, user_id, list_position, read_count, hidden_count, joined_at)
		SELECT ?, ?, COALESCE(MAX(list_position) + 1, 0), 0, ?, ?
		FROM fez_participants WHERE fez_id = ?
	`, fezID, userID, hiddenCount, time.Now().UTC(), fezID)
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) Remove(ctx context.Context, fezID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM fez_participants WHERE fez_id = ? AND user_id = ?`, fezID, userID)
	return err
}

func (r *ParticipantRepo) SetReadCount(ctx context.Context, fezID, userID uuid.UUID, readCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fez_participants SET read_count = ? WHERE fez_id = ? AND user_id = ?
	`, readCount, fezID, userID)
	return err
}
