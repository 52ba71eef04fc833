package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shipchat/internal/domain"
)

// NotificationService is the store-backed notification counter. Every call is
// best-effort: failures are logged and never surfaced to the triggering
// request.
type NotificationService struct {
	notifications domain.NotificationRepository
	log           *zap.Logger
}

var _ domain.NotificationCounter = (*NotificationService)(nil)

func NewNotificationService(notifications domain.NotificationRepository, log *zap.Logger) *NotificationService {
	return &NotificationService{notifications: notifications, log: log}
}

func (s *NotificationService) IncrementUnread(ctx context.Context, userID, fezID uuid.UUID) {
	if err := s.notifications.Increment(ctx, userID, fezID); err != nil {
		s.log.Warn("notification increment failed",
			zap.Stringer("user_id", userID), zap.Stringer("fez_id", fezID), zap.Error(err))
	}
}

func (s *NotificationService) DecrementUnread(ctx context.Context, userID, fezID uuid.UUID) {
	if err := s.notifications.Decrement(ctx, userID, fezID); err != nil {
		s.log.Warn("notification decrement failed",
			zap.Stringer("user_id", userID), zap.Stringer("fez_id", fezID), zap.Error(err))
	}
}

func (s *NotificationService) ClearUnread(ctx context.Context, userID, fezID uuid.UUID) {
	if err := s.notifications.Clear(ctx, userID, fezID); err != nil {
		s.log.Warn("notification clear failed",
			zap.Stringer("user_id", userID), zap.Stringer("fez_id", fezID), zap.Error(err))
	}
}

func (s *NotificationService) MarkViewed(ctx context.Context, userID, fezID uuid.UUID) {
	if err := s.notifications.MarkViewed(ctx, userID, fezID); err != nil {
		s.log.Warn("notification mark-viewed failed",
			zap.Stringer("user_id", userID), zap.Stringer("fez_id", fezID), zap.Error(err))
	}
}

// ListForUser returns the caller's pending notifications.
func (s *NotificationService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.Notification, error) {
	return s.notifications.ListForUser(ctx, userID)
}
