package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccessLevel orders user privilege from banned up to admin.
type AccessLevel int

const (
	AccessBanned AccessLevel = iota
	AccessQuarantined
	AccessVerified
	AccessModerator
	AccessAdmin
)

// HasElevatedAccess reports whether the level grants moderator powers.
func (a AccessLevel) HasElevatedAccess() bool {
	return a >= AccessModerator
}

// FezType classifies a fez. Closed fezzes are private message groups;
// everything else is a joinable gathering, optionally tied to an activity.
type FezType string

const (
	FezTypeClosed   FezType = "closed"
	FezTypeOpen     FezType = "open"
	FezTypeActivity FezType = "activity"
	FezTypeDining   FezType = "dining"
	FezTypeGaming   FezType = "gaming"
	FezTypeMeetup   FezType = "meetup"
	FezTypeMusic    FezType = "music"
	FezTypeShore    FezType = "shore"
	FezTypeOther    FezType = "other"
)

// IsPrivate reports whether the fez type hides membership and content from
// non-members, including moderators.
func (t FezType) IsPrivate() bool {
	return t == FezTypeClosed
}

// SelfJoinable reports whether users may join/leave on their own; closed
// groups only change membership through the owner.
func (t FezType) SelfJoinable() bool {
	return t != FezTypeClosed
}

// Valid reports whether t is a known fez type.
func (t FezType) Valid() bool {
	switch t {
	case FezTypeClosed, FezTypeOpen, FezTypeActivity, FezTypeDining,
		FezTypeGaming, FezTypeMeetup, FezTypeMusic, FezTypeShore, FezTypeOther:
		return true
	}
	return false
}

// ModerationStatus tracks moderator action against a fez.
type ModerationStatus string

const (
	ModStatusNormal      ModerationStatus = "normal"
	ModStatusLocked      ModerationStatus = "locked"
	ModStatusQuarantined ModerationStatus = "quarantined"
)

// PostingLocked reports whether new posts are forbidden.
func (m ModerationStatus) PostingLocked() bool {
	return m == ModStatusLocked || m == ModStatusQuarantined
}

// User represents an application user.
type User struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	Username       string      `db:"username" json:"username"`
	DisplayName    string      `db:"display_name" json:"display_name"`
	Email          *string     `db:"email" json:"email,omitempty"`
	HashedPassword string      `db:"hashed_password" json:"-"`
	AccessLevel    AccessLevel `db:"access_level" json:"access_level"`
	IsActive       bool        `db:"is_active" json:"is_active"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	LastSeen       time.Time   `db:"last_seen" json:"last_seen"`
}

// Header returns the identity projection used in member lists and post DTOs.
func (u *User) Header() *UserHeader {
	return &UserHeader{ID: u.ID, Username: u.Username, DisplayName: u.DisplayName}
}

// UserHeader is the minimal identity shown to other users.
type UserHeader struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name,omitempty"`
}

// Fez is a group conversation: an open gathering, a scheduled activity, or a
// closed private message group.
type Fez struct {
	ID          uuid.UUID        `db:"id"`
	FezType     FezType          `db:"fez_type"`
	Title       string           `db:"title"`
	Info        string           `db:"info"`
	Location    *string          `db:"location"`
	StartTime   *time.Time       `db:"start_time"`
	EndTime     *time.Time       `db:"end_time"`
	MinCapacity int              `db:"min_capacity"`
	MaxCapacity int              `db:"max_capacity"` // 0 = unbounded
	Cancelled   bool             `db:"cancelled"`
	ModStatus   ModerationStatus `db:"mod_status"`
	OwnerID     uuid.UUID        `db:"owner_id"`
	PostCount   int              `db:"post_count"`
	CreatedAt   time.Time        `db:"created_at"`
	UpdatedAt   time.Time        `db:"updated_at"`
	DeletedAt   *time.Time       `db:"deleted_at"`
}

// FezParticipant is the per-member pivot. ListPosition is append-only join
// order; the first MaxCapacity positions are the active participants, the
// rest form the waitlist. ReadCount + HiddenCount never exceeds the fez's
// PostCount.
type FezParticipant struct {
	FezID        uuid.UUID `db:"fez_id"`
	UserID       uuid.UUID `db:"user_id"`
	ListPosition int       `db:"list_position"`
	ReadCount    int       `db:"read_count"`
	HiddenCount  int       `db:"hidden_count"`
	JoinedAt     time.Time `db:"joined_at"`
}

// FezPost is a single message in a fez. The ascending integer ID defines
// delivery order.
type FezPost struct {
	ID        int64      `db:"id"`
	FezID     uuid.UUID  `db:"fez_id"`
	AuthorID  uuid.UUID  `db:"author_id"`
	Text      string     `db:"text"`
	ImageName *string    `db:"image_name"`
	CreatedAt time.Time  `db:"created_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// ReportKind identifies what a moderation report targets.
type ReportKind string

const (
	ReportKindFez     ReportKind = "fez"
	ReportKindFezPost ReportKind = "fez_post"
)

// Report is a user-submitted moderation report against a fez or a post.
type Report struct {
	ID          uuid.UUID  `db:"id"`
	Kind        ReportKind `db:"kind"`
	ReportedID  string     `db:"reported_id"`
	SubmitterID uuid.UUID  `db:"submitter_id"`
	Message     string     `db:"message"`
	CreatedAt   time.Time  `db:"created_at"`
}

// Notification is one row of the notification counter: pending unread posts
// for a user in a fez.
type Notification struct {
	UserID      uuid.UUID  `db:"user_id"`
	FezID       uuid.UUID  `db:"fez_id"`
	UnreadCount int        `db:"unread_count"`
	ViewedAt    *time.Time `db:"viewed_at"`
}
