package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"shipchat/internal/domain"
)

const maxPostLength = 2048

// PostService is the append-only post ledger for fezzes. Counter mutations
// for a single add or delete ride one store transaction; the side-channel
// notification and live-publish calls are best-effort.
type PostService struct {
	fezzes       domain.FezRepository
	participants domain.ParticipantRepository
	posts        domain.PostRepository
	identity     domain.IdentityCache
	notify       domain.NotificationCounter
	live         LivePublisher
	sanitize     *bluemonday.Policy
	log          *zap.Logger

	// MaxPostsPerPage caps the listPosts window and is the default limit.
	MaxPostsPerPage int
}

func NewPostService(
	fezzes domain.FezRepository,
	participants domain.ParticipantRepository,
	posts domain.PostRepository,
	identity domain.IdentityCache,
	notify domain.NotificationCounter,
	live LivePublisher,
	log *zap.Logger,
	maxPostsPerPage int,
) *PostService {
	return &PostService{
		fezzes:          fezzes,
		participants:    participants,
		posts:           posts,
		identity:        identity,
		notify:          notify,
		live:            live,
		sanitize:        bluemonday.StrictPolicy(),
		log:             log,
		MaxPostsPerPage: maxPostsPerPage,
	}
}

type PostCreateInput struct {
	FezID     uuid.UUID
	Text      string
	ImageName *string
}

// FezPostData is the API projection of a post.
type FezPostData struct {
	ID        int64              `json:"id"`
	FezID     uuid.UUID          `json:"fez_id"`
	Author    *domain.UserHeader `json:"author"`
	Text      string             `json:"text"`
	ImageName *string            `json:"image_name,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// AddPost appends a post to the fez ledger. Per-member counters are adjusted
// in the same transaction as the insert: members who block or mute the author
// get hiddenCount+1, the author's readCount advances to cover their own post,
// and everyone else gets an unread notification.
func (s *PostService) AddPost(ctx context.Context, author *domain.User, in PostCreateInput) (*domain.FezPost, error) {
	fez, err := s.fezzes.GetByID(ctx, in.FezID)
	if err != nil {
		return nil, fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return nil, domain.ErrNotFound
	}

	pivot, err := s.participants.Get(ctx, in.FezID, author.ID)
	if err != nil {
		return nil, fmt.Errorf("get pivot: %w", err)
	}
	if pivot == nil && !author.AccessLevel.HasElevatedAccess() {
		return nil, domain.ErrForbidden
	}

	if author.ID != fez.OwnerID {
		ownerBlocks, err := s.identity.Blocks(ctx, fez.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("load owner blocks: %w", err)
		}
		authorBlocks, err := s.identity.Blocks(ctx, author.ID)
		if err != nil {
			return nil, fmt.Errorf("load author blocks: %w", err)
		}
		if ownerBlocks.Contains(author.ID) || authorBlocks.Contains(fez.OwnerID) {
			return nil, domain.ErrUnavailable
		}
	}

	if fez.ModStatus.PostingLocked() {
		return nil, domain.ErrLocked
	}
	if fez.FezType.IsPrivate() && in.ImageName != nil {
		return nil, domain.ErrInvalidContent
	}
	if (in.Text == "" && in.ImageName == nil) || len([]rune(in.Text)) > maxPostLength {
		return nil, domain.ErrInvalidContent
	}

	members, err := s.participants.List(ctx, in.FezID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	var hiddenIDs, notifyIDs []uuid.UUID
	for _, m := range members {
		if m.UserID == author.ID {
			continue
		}
		blocks, err := s.identity.Blocks(ctx, m.UserID)
		if err != nil {
			return nil, fmt.Errorf("load member blocks: %w", err)
		}
		mutes, err := s.identity.Mutes(ctx, m.UserID)
		if err != nil {
			return nil, fmt.Errorf("load member mutes: %w", err)
		}
		if blocks.Contains(author.ID) || mutes.Contains(author.ID) {
			hiddenIDs = append(hiddenIDs, m.UserID)
		} else {
			notifyIDs = append(notifyIDs, m.UserID)
		}
	}

	post := &domain.FezPost{
		FezID:     in.FezID,
		AuthorID:  author.ID,
		Text:      s.sanitize.Sanitize(in.Text),
		ImageName: in.ImageName,
	}
	if err := s.posts.Create(ctx, post, hiddenIDs); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}

	for _, uid := range notifyIDs {
		s.notify.IncrementUnread(ctx, uid, in.FezID)
	}
	s.live.PublishPost(ctx, post, author.Header())
	return post, nil
}

// DeletePost soft-deletes a post and shifts every affected member's counters
// down so they stay consistent with the reduced postCount. A member whose
// readCount exceeded the deleted post's position read past it and is
// decremented by exactly one, whether or not they had read later posts.
func (s *PostService) DeletePost(ctx context.Context, requester *domain.User, postID int64) error {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return fmt.Errorf("get post: %w", err)
	}
	if post == nil {
		return domain.ErrNotFound
	}
	if post.AuthorID != requester.ID && !requester.AccessLevel.HasElevatedAccess() {
		return domain.ErrForbidden
	}

	postIndex, err := s.posts.CountBefore(ctx, post.FezID, post.ID)
	if err != nil {
		return fmt.Errorf("count posts before: %w", err)
	}

	members, err := s.participants.List(ctx, post.FezID)
	if err != nil {
		return fmt.Errorf("list participants: %w", err)
	}

	var hiddenIDs, untouchedIDs []uuid.UUID
	for _, m := range members {
		blocks, err := s.identity.Blocks(ctx, m.UserID)
		if err != nil {
			return fmt.Errorf("load member blocks: %w", err)
		}
		mutes, err := s.identity.Mutes(ctx, m.UserID)
		if err != nil {
			return fmt.Errorf("load member mutes: %w", err)
		}
		hiding := blocks.Contains(post.AuthorID) || mutes.Contains(post.AuthorID)
		if hiding {
			hiddenIDs = append(hiddenIDs, m.UserID)
		}
		if !hiding && m.ReadCount <= postIndex && m.UserID != requester.ID {
			untouchedIDs = append(untouchedIDs, m.UserID)
		}
	}

	if err := s.posts.Delete(ctx, post, postIndex, hiddenIDs); err != nil {
		return fmt.Errorf("delete post: %w", err)
	}

	for _, uid := range untouchedIDs {
		s.notify.DecrementUnread(ctx, uid, post.FezID)
	}
	return nil
}

// ListPosts returns the viewer's visible window of the fez's posts in
// ascending order and advances the viewer's readCount when the window extends
// it. A repeat call with the same window is a no-op on the counters.
// start < 0 means "resume near the viewer's last-read position"; limit <= 0
// means the configured default.
func (s *PostService) ListPosts(ctx context.Context, viewer *domain.User, fezID uuid.UUID, start, limit int) ([]*FezPostData, error) {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return nil, fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return nil, domain.ErrNotFound
	}
	pivot, err := s.participants.Get(ctx, fezID, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("get pivot: %w", err)
	}
	if pivot == nil && (!viewer.AccessLevel.HasElevatedAccess() || fez.FezType.IsPrivate()) {
		return nil, domain.ErrForbidden
	}

	if limit <= 0 || limit > s.MaxPostsPerPage {
		limit = s.MaxPostsPerPage
	}
	if start < 0 {
		readCount := 0
		if pivot != nil {
			readCount = pivot.ReadCount
		}
		start = (readCount - 1) / limit * limit
		if start < 0 {
			start = 0
		}
	}

	blocks, err := s.identity.Blocks(ctx, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	mutes, err := s.identity.Mutes(ctx, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("load mutes: %w", err)
	}
	excluded := blocks.Union(mutes)

	posts, err := s.posts.List(ctx, fezID, excluded.ToSlice(), start, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}

	if pivot != nil && start+limit > pivot.ReadCount {
		visible := fez.PostCount - pivot.HiddenCount
		newRead := start + limit
		if newRead > visible {
			newRead = visible
		}
		if newRead > pivot.ReadCount {
			if err := s.participants.SetReadCount(ctx, fezID, viewer.ID, newRead); err != nil {
				return nil, fmt.Errorf("advance read count: %w", err)
			}
			pivot.ReadCount = newRead
		}
		if pivot.ReadCount >= visible {
			s.notify.MarkViewed(ctx, viewer.ID, fezID)
		}
	}

	return s.toData(ctx, posts)
}

// GetPost returns one post if the viewer could see it in a listing.
func (s *PostService) GetPost(ctx context.Context, viewer *domain.User, postID int64) (*domain.FezPost, error) {
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	if post == nil {
		return nil, domain.ErrNotFound
	}
	return post, nil
}

func (s *PostService) toData(ctx context.Context, posts []*domain.FezPost) ([]*FezPostData, error) {
	ids := make([]uuid.UUID, 0, len(posts))
	seen := map[uuid.UUID]struct{}{}
	for _, p := range posts {
		if _, ok := seen[p.AuthorID]; !ok {
			seen[p.AuthorID] = struct{}{}
			ids = append(ids, p.AuthorID)
		}
	}
	headers, err := s.identity.Headers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve authors: %w", err)
	}
	res := make([]*FezPostData, 0, len(posts))
	for _, p := range posts {
		author, ok := headers[p.AuthorID]
		if !ok {
			author = &domain.UserHeader{ID: p.AuthorID}
		}
		res = append(res, &FezPostData{
			ID:        p.ID,
			FezID:     p.FezID,
			Author:    author,
			Text:      p.Text,
			ImageName: p.ImageName,
			CreatedAt: p.CreatedAt,
		})
	}
	return res, nil
}

// ToData converts a single post for API responses.
func (s *PostService) ToData(ctx context.Context, p *domain.FezPost) (*FezPostData, error) {
	res, err := s.toData(ctx, []*domain.FezPost{p})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}
