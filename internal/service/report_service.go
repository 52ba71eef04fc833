package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"

	"shipchat/internal/domain"
)

// ReportService files moderation reports against fezzes and posts.
type ReportService struct {
	reports  domain.ReportRepository
	fezzes   domain.FezRepository
	posts    domain.PostRepository
	sanitize *bluemonday.Policy
}

func NewReportService(reports domain.ReportRepository, fezzes domain.FezRepository, posts domain.PostRepository) *ReportService {
	return &ReportService{
		reports:  reports,
		fezzes:   fezzes,
		posts:    posts,
		sanitize: bluemonday.StrictPolicy(),
	}
}

func (s *ReportService) ReportFez(ctx context.Context, submitter *domain.User, fezID uuid.UUID, message string) error {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return domain.ErrNotFound
	}
	return s.reports.Create(ctx, &domain.Report{
		ID:          uuid.New(),
		Kind:        domain.ReportKindFez,
		ReportedID:  fezID.String(),
		SubmitterID: submitter.ID,
		Message:     s.sanitize.Sanitize(message),
	})
}

func (s *ReportService) ReportPost(ctx context.Context, submitter *domain.User, postID int64, message string) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}
	if post == nil {
		return domain.ErrNotFound
	}
	return s.reports.Create(ctx, &domain.Report{
		ID:          uuid.New(),
		Kind:        domain.ReportKindFezPost,
		ReportedID:  strconv.FormatInt(postID, 10),
		SubmitterID: submitter.ID,
		Message:     s.sanitize.Sanitize(message),
	})
}
