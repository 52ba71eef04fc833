package service_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shipchat/internal/domain"
)

// fakeState is a tiny in-memory store shared by the per-interface fakes. It
// mirrors the transactional counter rules the SQL repositories implement so
// service tests can assert on end state.
type fakeState struct {
	mu         sync.Mutex
	users      map[uuid.UUID]*domain.User
	fezzes     map[uuid.UUID]*domain.Fez
	pivots     map[uuid.UUID][]*domain.FezParticipant
	posts      []*domain.FezPost
	nextPostID int64
	blocks     map[uuid.UUID][]uuid.UUID
	mutes      map[uuid.UUID][]uuid.UUID
}

func newFakeState() *fakeState {
	return &fakeState{
		users:      make(map[uuid.UUID]*domain.User),
		fezzes:     make(map[uuid.UUID]*domain.Fez),
		pivots:     make(map[uuid.UUID][]*domain.FezParticipant),
		nextPostID: 1,
		blocks:     make(map[uuid.UUID][]uuid.UUID),
		mutes:      make(map[uuid.UUID][]uuid.UUID),
	}
}

func (s *fakeState) addUser(username string) *domain.User {
	return s.addUserLevel(username, domain.AccessVerified)
}

func (s *fakeState) addUserLevel(username string, level domain.AccessLevel) *domain.User {
	u := &domain.User{
		ID:          uuid.New(),
		Username:    username,
		DisplayName: username,
		AccessLevel: level,
		IsActive:    true,
	}
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
	return u
}

func (s *fakeState) pivot(fezID, userID uuid.UUID) *domain.FezParticipant {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pivots[fezID] {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func (s *fakeState) livePosts(fezID uuid.UUID) []*domain.FezPost {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []*domain.FezPost
	for _, p := range s.posts {
		if p.FezID == fezID && p.DeletedAt == nil {
			res = append(res, p)
		}
	}
	return res
}

// ── users ────────────────────────────────────────────────────────────────────

type fakeUsers struct{ s *fakeState }

var _ domain.UserRepository = (*fakeUsers)(nil)

func (f *fakeUsers) Create(ctx context.Context, u *domain.User) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.users[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return f.s.users[id], nil
}

func (f *fakeUsers) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, u := range f.s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, u := range f.s.users {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (f *fakeUsers) GetHeaders(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserHeader, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	res := make(map[uuid.UUID]*domain.UserHeader, len(ids))
	for _, id := range ids {
		if u, ok := f.s.users[id]; ok {
			res[id] = u.Header()
		}
	}
	return res, nil
}

func (f *fakeUsers) MatchUsernames(ctx context.Context, search string, limit int) ([]*domain.UserHeader, error) {
	return nil, nil
}

func (f *fakeUsers) Update(ctx context.Context, u *domain.User) error { return nil }

func (f *fakeUsers) SetLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error { return nil }

// ── fezzes ───────────────────────────────────────────────────────────────────

type fakeFezzes struct{ s *fakeState }

var _ domain.FezRepository = (*fakeFezzes)(nil)

func (f *fakeFezzes) Create(ctx context.Context, fez *domain.Fez, initialUserIDs []uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	now := time.Now()
	fez.CreatedAt = now
	fez.UpdatedAt = now
	f.s.fezzes[fez.ID] = fez
	for i, uid := range initialUserIDs {
		f.s.pivots[fez.ID] = append(f.s.pivots[fez.ID], &domain.FezParticipant{
			FezID: fez.ID, UserID: uid, ListPosition: i, JoinedAt: now,
		})
	}
	return nil
}

func (f *fakeFezzes) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fez, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	fez, ok := f.s.fezzes[id]
	if !ok || fez.DeletedAt != nil {
		return nil, nil
	}
	return fez, nil
}

func (f *fakeFezzes) Update(ctx context.Context, fez *domain.Fez) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.fezzes[fez.ID] = fez
	return nil
}

func (f *fakeFezzes) SetCancelled(ctx context.Context, id uuid.UUID, cancelled bool) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if fez, ok := f.s.fezzes[id]; ok {
		fez.Cancelled = cancelled
	}
	return nil
}

func (f *fakeFezzes) SoftDelete(ctx context.Context, id uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if fez, ok := f.s.fezzes[id]; ok {
		now := time.Now()
		fez.DeletedAt = &now
	}
	return nil
}

func (f *fakeFezzes) ListOpen(ctx context.Context, filter domain.FezFilter) ([]*domain.Fez, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var res []*domain.Fez
	for _, fez := range f.s.fezzes {
		if fez.DeletedAt != nil || fez.FezType.IsPrivate() {
			continue
		}
		if filter.Type != "" && fez.FezType != filter.Type {
			continue
		}
		res = append(res, fez)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.Before(res[j].CreatedAt) })
	return res, nil
}

func (f *fakeFezzes) ListJoined(ctx context.Context, userID uuid.UUID, filter domain.FezFilter) ([]*domain.JoinedFez, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var res []*domain.JoinedFez
	for fezID, pivots := range f.s.pivots {
		fez, ok := f.s.fezzes[fezID]
		if !ok || fez.DeletedAt != nil {
			continue
		}
		for _, p := range pivots {
			if p.UserID == userID {
				res = append(res, &domain.JoinedFez{Fez: fez, ReadCount: p.ReadCount, HiddenCount: p.HiddenCount})
			}
		}
	}
	return res, nil
}

func (f *fakeFezzes) ListOwned(ctx context.Context, ownerID uuid.UUID, filter domain.FezFilter) ([]*domain.Fez, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var res []*domain.Fez
	for _, fez := range f.s.fezzes {
		if fez.DeletedAt == nil && fez.OwnerID == ownerID {
			res = append(res, fez)
		}
	}
	return res, nil
}

// ── participants ─────────────────────────────────────────────────────────────

type fakePivots struct{ s *fakeState }

var _ domain.ParticipantRepository = (*fakePivots)(nil)

func (f *fakePivots) List(ctx context.Context, fezID uuid.UUID) ([]*domain.FezParticipant, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	res := make([]*domain.FezParticipant, len(f.s.pivots[fezID]))
	copy(res, f.s.pivots[fezID])
	sort.Slice(res, func(i, j int) bool { return res[i].ListPosition < res[j].ListPosition })
	return res, nil
}

func (f *fakePivots) Get(ctx context.Context, fezID, userID uuid.UUID) (*domain.FezParticipant, error) {
	return f.s.pivot(fezID, userID), nil
}

func (f *fakePivots) Add(ctx context.Context, fezID, userID uuid.UUID, hiddenCount int) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	next := 0
	for _, p := range f.s.pivots[fezID] {
		if p.ListPosition >= next {
			next = p.ListPosition + 1
		}
	}
	f.s.pivots[fezID] = append(f.s.pivots[fezID], &domain.FezParticipant{
		FezID: fezID, UserID: userID, ListPosition: next, HiddenCount: hiddenCount, JoinedAt: time.Now(),
	})
	return nil
}

func (f *fakePivots) Remove(ctx context.Context, fezID, userID uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	pivots := f.s.pivots[fezID]
	for i, p := range pivots {
		if p.UserID == userID {
			f.s.pivots[fezID] = append(pivots[:i:i], pivots[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakePivots) SetReadCount(ctx context.Context, fezID, userID uuid.UUID, readCount int) error {
	if p := f.s.pivot(fezID, userID); p != nil {
		p.ReadCount = readCount
	}
	return nil
}

// ── posts ────────────────────────────────────────────────────────────────────

type fakePosts struct{ s *fakeState }

var _ domain.PostRepository = (*fakePosts)(nil)

func (f *fakePosts) Create(ctx context.Context, p *domain.FezPost, hiddenUserIDs []uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p.ID = f.s.nextPostID
	f.s.nextPostID++
	p.CreatedAt = time.Now()
	f.s.posts = append(f.s.posts, p)

	fez := f.s.fezzes[p.FezID]
	fez.PostCount++
	hidden := make(map[uuid.UUID]bool, len(hiddenUserIDs))
	for _, id := range hiddenUserIDs {
		hidden[id] = true
	}
	for _, pv := range f.s.pivots[p.FezID] {
		if hidden[pv.UserID] {
			pv.HiddenCount++
		}
		if pv.UserID == p.AuthorID {
			pv.ReadCount = fez.PostCount - pv.HiddenCount
		}
	}
	return nil
}

func (f *fakePosts) GetByID(ctx context.Context, id int64) (*domain.FezPost, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.posts {
		if p.ID == id && p.DeletedAt == nil {
			return p, nil
		}
	}
	return nil, nil
}

func (f *fakePosts) Delete(ctx context.Context, p *domain.FezPost, postIndex int, hiddenUserIDs []uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	now := time.Now()
	p.DeletedAt = &now

	fez := f.s.fezzes[p.FezID]
	if fez.PostCount > 0 {
		fez.PostCount--
	}
	hidden := make(map[uuid.UUID]bool, len(hiddenUserIDs))
	for _, id := range hiddenUserIDs {
		hidden[id] = true
	}
	for _, pv := range f.s.pivots[p.FezID] {
		if hidden[pv.UserID] && pv.HiddenCount > 0 {
			pv.HiddenCount--
		}
		if pv.ReadCount > postIndex {
			pv.ReadCount--
		}
	}
	return nil
}

func (f *fakePosts) List(ctx context.Context, fezID uuid.UUID, excludedAuthors []uuid.UUID, start, limit int) ([]*domain.FezPost, error) {
	excluded := make(map[uuid.UUID]bool, len(excludedAuthors))
	for _, id := range excludedAuthors {
		excluded[id] = true
	}
	var visible []*domain.FezPost
	for _, p := range f.s.livePosts(fezID) {
		if !excluded[p.AuthorID] {
			visible = append(visible, p)
		}
	}
	if start >= len(visible) {
		return nil, nil
	}
	end := start + limit
	if end > len(visible) {
		end = len(visible)
	}
	return visible[start:end], nil
}

func (f *fakePosts) CountBefore(ctx context.Context, fezID uuid.UUID, postID int64) (int, error) {
	n := 0
	for _, p := range f.s.livePosts(fezID) {
		if p.ID < postID {
			n++
		}
	}
	return n, nil
}

func (f *fakePosts) CountByAuthors(ctx context.Context, fezID uuid.UUID, authorIDs []uuid.UUID) (int, error) {
	authors := make(map[uuid.UUID]bool, len(authorIDs))
	for _, id := range authorIDs {
		authors[id] = true
	}
	n := 0
	for _, p := range f.s.livePosts(fezID) {
		if authors[p.AuthorID] {
			n++
		}
	}
	return n, nil
}

// ── blocks ───────────────────────────────────────────────────────────────────

type fakeBlocks struct{ s *fakeState }

var _ domain.BlockRepository = (*fakeBlocks)(nil)

func (f *fakeBlocks) AddBlock(ctx context.Context, userID, targetID uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.blocks[userID] = append(f.s.blocks[userID], targetID)
	return nil
}

func (f *fakeBlocks) RemoveBlock(ctx context.Context, userID, targetID uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.blocks[userID] = removeID(f.s.blocks[userID], targetID)
	return nil
}

func (f *fakeBlocks) AddMute(ctx context.Context, userID, targetID uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.mutes[userID] = append(f.s.mutes[userID], targetID)
	return nil
}

func (f *fakeBlocks) RemoveMute(ctx context.Context, userID, targetID uuid.UUID) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	f.s.mutes[userID] = removeID(f.s.mutes[userID], targetID)
	return nil
}

func (f *fakeBlocks) Blocks(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]uuid.UUID(nil), f.s.blocks[userID]...), nil
}

func (f *fakeBlocks) Mutes(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	return append([]uuid.UUID(nil), f.s.mutes[userID]...), nil
}

func removeID(ids []uuid.UUID, target uuid.UUID) []uuid.UUID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}

// ── notification counter ─────────────────────────────────────────────────────

type counterKey struct {
	userID uuid.UUID
	fezID  uuid.UUID
}

type fakeNotify struct {
	mu      sync.Mutex
	unread  map[counterKey]int
	viewed  map[counterKey]bool
	cleared map[counterKey]bool
}

var _ domain.NotificationCounter = (*fakeNotify)(nil)

func newFakeNotify() *fakeNotify {
	return &fakeNotify{
		unread:  make(map[counterKey]int),
		viewed:  make(map[counterKey]bool),
		cleared: make(map[counterKey]bool),
	}
}

func (f *fakeNotify) IncrementUnread(ctx context.Context, userID, fezID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unread[counterKey{userID, fezID}]++
}

func (f *fakeNotify) DecrementUnread(ctx context.Context, userID, fezID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := counterKey{userID, fezID}
	if f.unread[k] > 0 {
		f.unread[k]--
	}
}

func (f *fakeNotify) ClearUnread(ctx context.Context, userID, fezID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := counterKey{userID, fezID}
	f.unread[k] = 0
	f.cleared[k] = true
}

func (f *fakeNotify) MarkViewed(ctx context.Context, userID, fezID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.viewed[counterKey{userID, fezID}] = true
}

func (f *fakeNotify) viewedFor(userID, fezID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewed[counterKey{userID, fezID}]
}

func (f *fakeNotify) unreadFor(userID, fezID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[counterKey{userID, fezID}]
}

// ── live publisher ───────────────────────────────────────────────────────────

type publishedPost struct {
	post   *domain.FezPost
	author *domain.UserHeader
}

type publishedMembership struct {
	fezID   uuid.UUID
	changed *domain.UserHeader
	joined  bool
}

type publishedStatus struct {
	fezID     uuid.UUID
	cancelled bool
}

type fakeLive struct {
	mu          sync.Mutex
	posts       []publishedPost
	memberships []publishedMembership
	statuses    []publishedStatus
}

func (f *fakeLive) PublishPost(ctx context.Context, post *domain.FezPost, author *domain.UserHeader) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, publishedPost{post: post, author: author})
}

func (f *fakeLive) PublishMembershipChange(ctx context.Context, fezID uuid.UUID, changed *domain.UserHeader, joined bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberships = append(f.memberships, publishedMembership{fezID: fezID, changed: changed, joined: joined})
}

func (f *fakeLive) PublishStatusChange(ctx context.Context, fezID uuid.UUID, cancelled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, publishedStatus{fezID: fezID, cancelled: cancelled})
}
