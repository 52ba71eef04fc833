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

const (
	maxTitleLength = 100
	maxInfoLength  = 2048
)

// LivePublisher pushes events to currently connected fez viewers. Publishing
// is fire-and-forget; implementations re-check viewer visibility per
// connection at publish time.
type LivePublisher interface {
	PublishPost(ctx context.Context, post *domain.FezPost, author *domain.UserHeader)
	PublishMembershipChange(ctx context.Context, fezID uuid.UUID, changed *domain.UserHeader, joined bool)
	PublishStatusChange(ctx context.Context, fezID uuid.UUID, cancelled bool)
}

// FezService owns fez lifecycle and membership: capacity, waitlist,
// join/unjoin, owner add/remove, and block-aware masking of member lists.
type FezService struct {
	fezzes       domain.FezRepository
	participants domain.ParticipantRepository
	posts        domain.PostRepository
	users        domain.UserRepository
	identity     domain.IdentityCache
	notify       domain.NotificationCounter
	live         LivePublisher
	sanitize     *bluemonday.Policy
	log          *zap.Logger
}

func NewFezService(
	fezzes domain.FezRepository,
	participants domain.ParticipantRepository,
	posts domain.PostRepository,
	users domain.UserRepository,
	identity domain.IdentityCache,
	notify domain.NotificationCounter,
	live LivePublisher,
	log *zap.Logger,
) *FezService {
	return &FezService{
		fezzes:       fezzes,
		participants: participants,
		posts:        posts,
		users:        users,
		identity:     identity,
		notify:       notify,
		live:         live,
		sanitize:     bluemonday.StrictPolicy(),
		log:          log,
	}
}

type FezCreateInput struct {
	FezType        domain.FezType
	Title          string
	Info           string
	Location       *string
	StartTime      *time.Time
	EndTime        *time.Time
	MinCapacity    int
	MaxCapacity    int
	InitialUserIDs []uuid.UUID
}

type FezUpdateInput struct {
	Title       string
	Info        string
	Location    *string
	StartTime   *time.Time
	EndTime     *time.Time
	MinCapacity int
	MaxCapacity int
}

// FezSummary is the listing projection of a fez.
type FezSummary struct {
	ID               uuid.UUID               `json:"id"`
	FezType          domain.FezType          `json:"fez_type"`
	Title            string                  `json:"title"`
	Info             string                  `json:"info"`
	Location         *string                 `json:"location,omitempty"`
	StartTime        *time.Time              `json:"start_time,omitempty"`
	EndTime          *time.Time              `json:"end_time,omitempty"`
	MinCapacity      int                     `json:"min_capacity"`
	MaxCapacity      int                     `json:"max_capacity"`
	Cancelled        bool                    `json:"cancelled"`
	Owner            *domain.UserHeader      `json:"owner"`
	PostCount        int                     `json:"post_count"`
	ParticipantCount int                     `json:"participant_count"`
	UnreadCount      *int                    `json:"unread_count,omitempty"`
	ModStatus        domain.ModerationStatus `json:"mod_status"`
}

// MembersData is the masked, capacity-split member view for one viewer.
type MembersData struct {
	Participants []*domain.UserHeader `json:"participants"`
	Waitlist     []*domain.UserHeader `json:"waitlist"`
	ReadCount    int                  `json:"read_count"`
	HiddenCount  int                  `json:"hidden_count"`
	PostCount    int                  `json:"post_count"`
}

// blockedBetween reports whether either user blocks the other. Mutes do not
// hide existence, only post content.
func (s *FezService) blockedBetween(ctx context.Context, a, b uuid.UUID) (bool, error) {
	if a == b {
		return false, nil
	}
	aBlocks, err := s.identity.Blocks(ctx, a)
	if err != nil {
		return false, err
	}
	if aBlocks.Contains(b) {
		return true, nil
	}
	bBlocks, err := s.identity.Blocks(ctx, b)
	if err != nil {
		return false, err
	}
	return bBlocks.Contains(a), nil
}

// hiddenPostCount counts existing posts the user cannot see because they
// block or mute the author. Used to seed a new pivot's hidden count.
func (s *FezService) hiddenPostCount(ctx context.Context, fezID, userID uuid.UUID) (int, error) {
	blocks, err := s.identity.Blocks(ctx, userID)
	if err != nil {
		return 0, err
	}
	mutes, err := s.identity.Mutes(ctx, userID)
	if err != nil {
		return 0, err
	}
	hidden := blocks.Union(mutes)
	if hidden.Cardinality() == 0 {
		return 0, nil
	}
	return s.posts.CountByAuthors(ctx, fezID, hidden.ToSlice())
}

// Create makes a new fez with the owner as participant zero, followed by the
// initial users in the given order. Initial users with a block relationship
// to the owner are silently dropped.
func (s *FezService) Create(ctx context.Context, owner *domain.User, in FezCreateInput) (*domain.Fez, error) {
	if !in.FezType.Valid() {
		return nil, domain.ErrInvalidInput
	}
	if in.Title == "" || len([]rune(in.Title)) > maxTitleLength || len([]rune(in.Info)) > maxInfoLength {
		return nil, domain.ErrInvalidInput
	}
	if in.MinCapacity < 0 || in.MaxCapacity < 0 {
		return nil, domain.ErrInvalidInput
	}

	memberIDs := []uuid.UUID{owner.ID}
	seen := map[uuid.UUID]struct{}{owner.ID: {}}
	for _, id := range in.InitialUserIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		blocked, err := s.blockedBetween(ctx, owner.ID, id)
		if err != nil {
			return nil, fmt.Errorf("check blocks: %w", err)
		}
		if blocked {
			continue
		}
		memberIDs = append(memberIDs, id)
	}

	fez := &domain.Fez{
		ID:          uuid.New(),
		FezType:     in.FezType,
		Title:       s.sanitize.Sanitize(in.Title),
		Info:        s.sanitize.Sanitize(in.Info),
		Location:    in.Location,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		MinCapacity: in.MinCapacity,
		MaxCapacity: in.MaxCapacity,
		ModStatus:   domain.ModStatusNormal,
		OwnerID:     owner.ID,
	}
	if err := s.fezzes.Create(ctx, fez, memberIDs); err != nil {
		return nil, fmt.Errorf("create fez: %w", err)
	}
	return fez, nil
}

// Get loads a fez and the viewer's pivot, hiding the fez entirely when a
// block relationship exists between the viewer and the owner and the viewer
// is not already a member.
func (s *FezService) Get(ctx context.Context, viewer *domain.User, fezID uuid.UUID) (*domain.Fez, *domain.FezParticipant, error) {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return nil, nil, fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return nil, nil, domain.ErrNotFound
	}
	pivot, err := s.participants.Get(ctx, fezID, viewer.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("get pivot: %w", err)
	}
	if pivot == nil {
		blocked, err := s.blockedBetween(ctx, viewer.ID, fez.OwnerID)
		if err != nil {
			return nil, nil, fmt.Errorf("check blocks: %w", err)
		}
		if blocked {
			return nil, nil, domain.ErrUnavailable
		}
	}
	return fez, pivot, nil
}

// CanViewDetail applies the uniform visibility gate: members always; elevated
// users except on private fez types.
func (s *FezService) CanViewDetail(fez *domain.Fez, viewer *domain.User, pivot *domain.FezParticipant) bool {
	if pivot != nil {
		return true
	}
	return viewer.AccessLevel.HasElevatedAccess() && !fez.FezType.IsPrivate()
}

// Join adds the requesting user to the fez.
func (s *FezService) Join(ctx context.Context, user *domain.User, fezID uuid.UUID) error {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return domain.ErrNotFound
	}
	pivot, err := s.participants.Get(ctx, fezID, user.ID)
	if err != nil {
		return fmt.Errorf("get pivot: %w", err)
	}
	if pivot != nil {
		return domain.ErrAlreadyMember
	}
	blocked, err := s.blockedBetween(ctx, user.ID, fez.OwnerID)
	if err != nil {
		return fmt.Errorf("check blocks: %w", err)
	}
	if blocked {
		return domain.ErrUnavailable
	}
	if !fez.FezType.SelfJoinable() {
		return domain.ErrInvalidOperation
	}

	hidden, err := s.hiddenPostCount(ctx, fezID, user.ID)
	if err != nil {
		return fmt.Errorf("count hidden posts: %w", err)
	}
	if err := s.participants.Add(ctx, fezID, user.ID, hidden); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}

	s.notify.ClearUnread(ctx, user.ID, fezID)
	s.live.PublishMembershipChange(ctx, fezID, user.Header(), true)
	return nil
}

// Unjoin removes the requesting user from the fez.
func (s *FezService) Unjoin(ctx context.Context, user *domain.User, fezID uuid.UUID) error {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return domain.ErrNotFound
	}
	if !fez.FezType.SelfJoinable() {
		return domain.ErrInvalidOperation
	}
	pivot, err := s.participants.Get(ctx, fezID, user.ID)
	if err != nil {
		return fmt.Errorf("get pivot: %w", err)
	}
	if pivot == nil {
		return domain.ErrNotMember
	}
	if err := s.participants.Remove(ctx, fezID, user.ID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}

	s.notify.ClearUnread(ctx, user.ID, fezID)
	s.live.PublishMembershipChange(ctx, fezID, user.Header(), false)
	return nil
}

// AddMember is the owner-initiated variant of Join; it bypasses the self-join
// type restriction so owners can manage closed groups.
func (s *FezService) AddMember(ctx context.Context, requester *domain.User, fezID, targetID uuid.UUID) error {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return domain.ErrNotFound
	}
	if requester.ID != fez.OwnerID {
		return domain.ErrForbidden
	}
	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get target user: %w", err)
	}
	if target == nil {
		return domain.ErrNotFound
	}
	pivot, err := s.participants.Get(ctx, fezID, targetID)
	if err != nil {
		return fmt.Errorf("get pivot: %w", err)
	}
	if pivot != nil {
		return domain.ErrAlreadyMember
	}
	blocked, err := s.blockedBetween(ctx, targetID, fez.OwnerID)
	if err != nil {
		return fmt.Errorf("check blocks: %w", err)
	}
	if blocked {
		return domain.ErrUnavailable
	}

	hidden, err := s.hiddenPostCount(ctx, fezID, targetID)
	if err != nil {
		return fmt.Errorf("count hidden posts: %w", err)
	}
	if err := s.participants.Add(ctx, fezID, targetID, hidden); err != nil {
		return fmt.Errorf("add participant: %w", err)
	}

	s.notify.ClearUnread(ctx, targetID, fezID)
	s.live.PublishMembershipChange(ctx, fezID, target.Header(), true)
	return nil
}

// RemoveMember is the owner-initiated variant of Unjoin.
func (s *FezService) RemoveMember(ctx context.Context, requester *domain.User, fezID, targetID uuid.UUID) error {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return domain.ErrNotFound
	}
	if requester.ID != fez.OwnerID {
		return domain.ErrForbidden
	}
	pivot, err := s.participants.Get(ctx, fezID, targetID)
	if err != nil {
		return fmt.Errorf("get pivot: %w", err)
	}
	if pivot == nil {
		return domain.ErrNotMember
	}
	if err := s.participants.Remove(ctx, fezID, targetID); err != nil {
		return fmt.Errorf("remove participant: %w", err)
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil || target == nil {
		s.log.Warn("removed member lookup failed", zap.Stringer("user_id", targetID), zap.Error(err))
		target = &domain.User{ID: targetID}
	}
	s.notify.ClearUnread(ctx, targetID, fezID)
	s.live.PublishMembershipChange(ctx, fezID, target.Header(), false)
	return nil
}

// Update applies owner edits to the fez's descriptive fields and capacities.
func (s *FezService) Update(ctx context.Context, requester *domain.User, fezID uuid.UUID, in FezUpdateInput) (*domain.Fez, error) {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return nil, fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return nil, domain.ErrNotFound
	}
	if requester.ID != fez.OwnerID && !requester.AccessLevel.HasElevatedAccess() {
		return nil, domain.ErrForbidden
	}
	if in.Title == "" || len([]rune(in.Title)) > maxTitleLength || len([]rune(in.Info)) > maxInfoLength {
		return nil, domain.ErrInvalidInput
	}
	if in.MinCapacity < 0 || in.MaxCapacity < 0 {
		return nil, domain.ErrInvalidInput
	}

	fez.Title = s.sanitize.Sanitize(in.Title)
	fez.Info = s.sanitize.Sanitize(in.Info)
	fez.Location = in.Location
	fez.StartTime = in.StartTime
	fez.EndTime = in.EndTime
	fez.MinCapacity = in.MinCapacity
	fez.MaxCapacity = in.MaxCapacity
	if err := s.fezzes.Update(ctx, fez); err != nil {
		return nil, fmt.Errorf("update fez: %w", err)
	}
	return fez, nil
}

// Cancel flags the fez as cancelled without removing it or its history.
func (s *FezService) Cancel(ctx context.Context, requester *domain.User, fezID uuid.UUID) error {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return domain.ErrNotFound
	}
	if requester.ID != fez.OwnerID {
		return domain.ErrForbidden
	}
	if err := s.fezzes.SetCancelled(ctx, fezID, true); err != nil {
		return err
	}
	s.live.PublishStatusChange(ctx, fezID, true)
	return nil
}

// Delete soft-deletes a fez. Moderator-or-above only.
func (s *FezService) Delete(ctx context.Context, requester *domain.User, fezID uuid.UUID) error {
	if !requester.AccessLevel.HasElevatedAccess() {
		return domain.ErrForbidden
	}
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil {
		return fmt.Errorf("get fez: %w", err)
	}
	if fez == nil {
		return domain.ErrNotFound
	}
	return s.fezzes.SoftDelete(ctx, fezID)
}

// Members builds the masked, capacity-split member view. Callers must have
// passed the CanViewDetail gate.
func (s *FezService) Members(ctx context.Context, viewer *domain.User, fez *domain.Fez, pivot *domain.FezParticipant) (*MembersData, error) {
	pivots, err := s.participants.List(ctx, fez.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	ids := make([]uuid.UUID, len(pivots))
	for i, p := range pivots {
		ids[i] = p.UserID
	}
	headers, err := s.identity.Headers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve headers: %w", err)
	}
	ordered := make([]*domain.UserHeader, len(pivots))
	for i, p := range pivots {
		if h, ok := headers[p.UserID]; ok {
			ordered[i] = h
		} else {
			ordered[i] = &domain.UserHeader{ID: p.UserID}
		}
	}

	blocks, err := s.identity.Blocks(ctx, viewer.ID)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	masked := MaskParticipants(ordered, blocks)
	active, waitlist := SplitCapacity(masked, fez.MaxCapacity)

	data := &MembersData{
		Participants: active,
		Waitlist:     waitlist,
		PostCount:    fez.PostCount,
	}
	if pivot != nil {
		data.ReadCount = pivot.ReadCount
		data.HiddenCount = pivot.HiddenCount
	}
	return data, nil
}

// Summary builds the listing projection of a fez for a viewer.
func (s *FezService) Summary(ctx context.Context, fez *domain.Fez, unread *int) (*FezSummary, error) {
	owner, err := s.identity.Header(ctx, fez.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("resolve owner: %w", err)
	}
	pivots, err := s.participants.List(ctx, fez.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return &FezSummary{
		ID:               fez.ID,
		FezType:          fez.FezType,
		Title:            fez.Title,
		Info:             fez.Info,
		Location:         fez.Location,
		StartTime:        fez.StartTime,
		EndTime:          fez.EndTime,
		MinCapacity:      fez.MinCapacity,
		MaxCapacity:      fez.MaxCapacity,
		Cancelled:        fez.Cancelled,
		Owner:            owner,
		PostCount:        fez.PostCount,
		ParticipantCount: len(pivots),
		UnreadCount:      unread,
		ModStatus:        fez.ModStatus,
	}, nil
}

// ListOpen lists joinable fezzes, hiding any whose owner has a block
// relationship with the viewer.
func (s *FezService) ListOpen(ctx context.Context, viewer *domain.User, filter domain.FezFilter) ([]*FezSummary, error) {
	fezzes, err := s.fezzes.ListOpen(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list open fezzes: %w", err)
	}
	res := make([]*FezSummary, 0, len(fezzes))
	for _, fez := range fezzes {
		blocked, err := s.blockedBetween(ctx, viewer.ID, fez.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("check blocks: %w", err)
		}
		if blocked {
			continue
		}
		summary, err := s.Summary(ctx, fez, nil)
		if err != nil {
			return nil, err
		}
		res = append(res, summary)
	}
	return res, nil
}

// ListJoined lists the viewer's fezzes with per-fez unread counts.
func (s *FezService) ListJoined(ctx context.Context, viewer *domain.User, filter domain.FezFilter) ([]*FezSummary, error) {
	joined, err := s.fezzes.ListJoined(ctx, viewer.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("list joined fezzes: %w", err)
	}
	res := make([]*FezSummary, 0, len(joined))
	for _, j := range joined {
		unread := j.UnreadCount()
		summary, err := s.Summary(ctx, j.Fez, &unread)
		if err != nil {
			return nil, err
		}
		res = append(res, summary)
	}
	return res, nil
}

// ListOwned lists fezzes the viewer owns.
func (s *FezService) ListOwned(ctx context.Context, viewer *domain.User, filter domain.FezFilter) ([]*FezSummary, error) {
	fezzes, err := s.fezzes.ListOwned(ctx, viewer.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("list owned fezzes: %w", err)
	}
	res := make([]*FezSummary, 0, len(fezzes))
	for _, fez := range fezzes {
		summary, err := s.Summary(ctx, fez, nil)
		if err != nil {
			return nil, err
		}
		res = append(res, summary)
	}
	return res, nil
}

// CanViewLive is the publish-time visibility re-check used by the live
// fan-out registry. authorID may be uuid.Nil for membership events. Errors
// make the connection invisible rather than failing the publish.
func (s *FezService) CanViewLive(ctx context.Context, fezID, viewerID, authorID uuid.UUID) bool {
	fez, err := s.fezzes.GetByID(ctx, fezID)
	if err != nil || fez == nil {
		return false
	}
	pivot, err := s.participants.Get(ctx, fezID, viewerID)
	if err != nil {
		return false
	}
	if pivot == nil {
		viewer, err := s.users.GetByID(ctx, viewerID)
		if err != nil || viewer == nil {
			return false
		}
		if !viewer.AccessLevel.HasElevatedAccess() || fez.FezType.IsPrivate() {
			return false
		}
	}
	if authorID != uuid.Nil && authorID != viewerID {
		blocks, err := s.identity.Blocks(ctx, viewerID)
		if err != nil {
			return false
		}
		mutes, err := s.identity.Mutes(ctx, viewerID)
		if err != nil {
			return false
		}
		if blocks.Contains(authorID) || mutes.Contains(authorID) {
			return false
		}
	}
	return true
}

// MaskForViewer substitutes the placeholder identity when the viewer blocks
// the named user. Used for membership-changed live events.
func (s *FezService) MaskForViewer(ctx context.Context, viewerID uuid.UUID, header *domain.UserHeader) *domain.UserHeader {
	blocks, err := s.identity.Blocks(ctx, viewerID)
	if err != nil {
		return header
	}
	if blocks.Contains(header.ID) {
		return MaskedHeader()
	}
	return header
}
