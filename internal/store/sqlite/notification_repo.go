package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"shipchat/internal/domain"
)

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

var _ domain.NotificationRepository = (*NotificationRepo)(nil)

func (r *NotificationRepo) Increment(ctx context.Context, userID, fezID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, fez_id, unread_count) VALUES (?, ?, 1)
		ON CONFLICT (user_id, fez_id)
		DO UPDATE SET unread_count = unread_count + 1
	`, userID, fezID)
	return err
}

func (r *NotificationRepo) Decrement(ctx context.Context, userID, fezID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET unread_count = unread_count - 1
		WHERE user_id = ? AND fez_id = ? AND unread_count > 0
	`, userID, fezID)
	return err
}

func (r *NotificationRepo) Clear(ctx context.Context, userID, fezID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, fez_id, unread_count) VALUES (?, ?, 0)
		ON CONFLICT (user_id, fez_id)
		DO UPDATE SET unread_count = 0
	`, userID, fezID)
	return err
}

func (r *NotificationRepo) MarkViewed(ctx context.Context, userID, fezID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (user_id, fez_id, unread_count, viewed_at)
		VALUES (?, ?, 0, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id, fez_id)
		DO UPDATE SET viewed_at = CURRENT_TIMESTAMP
	`, userID, fezID)
	return err
}

func (r *NotificationRepo) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, fez_id, unread_count, viewed_at
		FROM notifications
		WHERE user_id = ? AND unread_count > 0
		ORDER BY fez_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	var res []*domain.Notification
	for rows.Next() {
		n := &domain.Notification{}
		if err := rows.Scan(&n.UserID, &n.FezID, &n.UnreadCount, &n.ViewedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
