package domain

import (
	"context"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
)

// FezFilter narrows fez listings. Zero values mean "no filter".
type FezFilter struct {
	Type  FezType
	Day   *time.Time // match fezzes whose start time falls on this day
	Start int
	Limit int
}

// JoinedFez pairs a fez with the caller's pivot counters so listings can
// report unread counts.
type JoinedFez struct {
	Fez         *Fez
	ReadCount   int
	HiddenCount int
}

// UnreadCount is the number of visible posts the member has not read yet.
func (j *JoinedFez) UnreadCount() int {
	n := j.Fez.PostCount - j.ReadCount - j.HiddenCount
	if n < 0 {
		return 0
	}
	return n
}

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetHeaders(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*UserHeader, error)
	MatchUsernames(ctx context.Context, search string, limit int) ([]*UserHeader, error)
	Update(ctx context.Context, u *User) error
	SetLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error
}

// FezRepository defines persistence operations for fezzes.
type FezRepository interface {
	// Create inserts the fez and its initial participants in one transaction.
	// The owner must be the first entry of initialUserIDs.
	Create(ctx context.Context, f *Fez, initialUserIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*Fez, error)
	Update(ctx context.Context, f *Fez) error
	SetCancelled(ctx context.Context, id uuid.UUID, cancelled bool) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	ListOpen(ctx context.Context, filter FezFilter) ([]*Fez, error)
	ListJoined(ctx context.Context, userID uuid.UUID, filter FezFilter) ([]*JoinedFez, error)
	ListOwned(ctx context.Context, ownerID uuid.UUID, filter FezFilter) ([]*Fez, error)
}

// ParticipantRepository defines operations on fez membership pivots.
type ParticipantRepository interface {
	// List returns pivots ordered by list position (join order).
	List(ctx context.Context, fezID uuid.UUID) ([]*FezParticipant, error)
	// Get returns nil without error when the user has no pivot.
	Get(ctx context.Context, fezID, userID uuid.UUID) (*FezParticipant, error)
	// Add appends the user at the next list position with the given
	// precomputed hidden count, transactionally.
	Add(ctx context.Context, fezID, userID uuid.UUID, hiddenCount int) error
	Remove(ctx context.Context, fezID, userID uuid.UUID) error
	SetReadCount(ctx context.Context, fezID, userID uuid.UUID, readCount int) error
}

// PostRepository defines persistence operations for fez posts. Create and
// Delete apply the related counter updates in the same transaction as the
// post row change; partial counter updates must be impossible.
type PostRepository interface {
	// Create inserts the post, increments the fez post count, increments
	// hidden counts for the listed members, and advances the author's read
	// count to postCount-hiddenCount, all in one transaction.
	Create(ctx context.Context, p *FezPost, hiddenUserIDs []uuid.UUID) error
	GetByID(ctx context.Context, id int64) (*FezPost, error)
	// Delete soft-deletes the post, decrements the fez post count, decrements
	// hidden counts (floored at zero) for the listed members, and decrements
	// any read count greater than postIndex, all in one transaction.
	Delete(ctx context.Context, p *FezPost, postIndex int, hiddenUserIDs []uuid.UUID) error
	// List returns live posts in ascending ID order, skipping the excluded
	// authors, within the start/limit window.
	List(ctx context.Context, fezID uuid.UUID, excludedAuthors []uuid.UUID, start, limit int) ([]*FezPost, error)
	// CountBefore returns how many live posts in the fez precede the post ID.
	CountBefore(ctx context.Context, fezID uuid.UUID, postID int64) (int, error)
	// CountByAuthors returns how many live posts in the fez were written by
	// any of the given authors.
	CountByAuthors(ctx context.Context, fezID uuid.UUID, authorIDs []uuid.UUID) (int, error)
}

// BlockRepository defines persistence for user block and mute relationships.
type BlockRepository interface {
	AddBlock(ctx context.Context, userID, targetID uuid.UUID) error
	RemoveBlock(ctx context.Context, userID, targetID uuid.UUID) error
	AddMute(ctx context.Context, userID, targetID uuid.UUID) error
	RemoveMute(ctx context.Context, userID, targetID uuid.UUID) error
	Blocks(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	Mutes(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// NotificationRepository defines persistence for the notification counter.
type NotificationRepository interface {
	Increment(ctx context.Context, userID, fezID uuid.UUID) error
	Decrement(ctx context.Context, userID, fezID uuid.UUID) error
	Clear(ctx context.Context, userID, fezID uuid.UUID) error
	MarkViewed(ctx context.Context, userID, fezID uuid.UUID) error
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*Notification, error)
}

// ReportRepository defines persistence for moderation reports.
type ReportRepository interface {
	Create(ctx context.Context, r *Report) error
}

// NotificationCounter is the external counting service the membership and
// post code notify on state changes. Calls are best-effort: implementations
// log failures, callers never fail a request on them.
type NotificationCounter interface {
	IncrementUnread(ctx context.Context, userID, fezID uuid.UUID)
	DecrementUnread(ctx context.Context, userID, fezID uuid.UUID)
	ClearUnread(ctx context.Context, userID, fezID uuid.UUID)
	MarkViewed(ctx context.Context, userID, fezID uuid.UUID)
}

// IdentityCache resolves user headers and current block/mute sets.
type IdentityCache interface {
	Header(ctx context.Context, id uuid.UUID) (*UserHeader, error)
	Headers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*UserHeader, error)
	Blocks(ctx context.Context, userID uuid.UUID) (mapset.Set[uuid.UUID], error)
	Mutes(ctx context.Context, userID uuid.UUID) (mapset.Set[uuid.UUID], error)
	Invalidate(userID uuid.UUID)
}
