package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

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
		WHERE fez_id = $1
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
		WHERE fez_id = $1 AND user_id = $2
	`, fezID, userID).Scan(&p.FezID, &p.UserID, &p.ListPosition, &p.ReadCount, &p.HiddenCount, &p.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get participant: %w", err)
	}
	return p, nil
}

// Add appends the user at the next free list position. The fez row is locked
// so two concurrent joins cannot claim the same position.
func (r *ParticipantRepo) Add(ctx context.Context, fezID, userID uuid.UUID, hiddenCount int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add tx: %w", err)
	}
	defer tx.Rollback()

	var fezExists uuid.UUID
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM fezzes WHERE id = $1 FOR UPDATE`, fezID,
	).Scan(&fezExists); err != nil {
		return fmt.Errorf("lock fez: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fez_participants (fez_id, user_id, list_position, read_count, hidden_count, joined_at)
		SELECT $1, $2, COALESCE(MAX(list_position) + 1, 0), 0, $3, NOW()
		FROM fez_participants WHERE fez_id = $1
	`, fezID, userID, hiddenCount); err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add tx: %w", err)
	}
	return nil
}

func (r *ParticipantRepo) Remove(ctx context.Context, fezID, userID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM fez_participants WHERE fez_id = $1 AND user_id = $2`, fezID, userID)
	return err
}

func (r *ParticipantRepo) SetReadCount(ctx context.Context, fezID, userID uuid.UUID, readCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE fez_participants SET read_count = $1 WHERE fez_id = $2 AND user_id = $3
	`, readCount, fezID, userID)
	return err
}
