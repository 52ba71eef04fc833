package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"shipchat/internal/domain"
)

// Time allowed to write an event to a peer. A slow or dead receiver is
// dropped rather than blocking the publisher.
const writeWait = 10 * time.Second

// Conn is the transport surface the hub needs; *websocket.Conn satisfies it,
// and tests substitute fakes.
type Conn interface {
	WriteJSON(v any) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// VisibilityFunc re-checks at publish time whether a viewer may receive an
// event on a fez. authorID is uuid.Nil for membership events.
type VisibilityFunc func(ctx context.Context, fezID, viewerID, authorID uuid.UUID) bool

// MaskFunc substitutes a placeholder identity when the viewer blocks the
// named user.
type MaskFunc func(ctx context.Context, viewerID uuid.UUID, header *domain.UserHeader) *domain.UserHeader

// PostEvent is pushed to viewers when a post is added to a fez.
type PostEvent struct {
	Type      string             `json:"type"` // "fez_post"
	FezID     uuid.UUID          `json:"fez_id"`
	PostID    int64              `json:"post_id"`
	Author    *domain.UserHeader `json:"author"`
	Text      string             `json:"text"`
	ImageName *string            `json:"image_name,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// MembershipEvent is pushed to viewers when a user joins or leaves a fez.
type MembershipEvent struct {
	Type   string             `json:"type"` // "membership_change"
	FezID  uuid.UUID          `json:"fez_id"`
	User   *domain.UserHeader `json:"user"`
	Joined bool               `json:"joined"`
}

// StatusEvent is pushed to viewers when a fez is cancelled.
type StatusEvent struct {
	Type      string    `json:"type"` // "fez_status"
	FezID     uuid.UUID `json:"fez_id"`
	Cancelled bool      `json:"cancelled"`
}

type client struct {
	userID uuid.UUID

	// writeMu serializes writes: gorilla connections allow at most one
	// concurrent writer, and publishes come from arbitrary request goroutines.
	writeMu sync.Mutex
	conn    Conn
}

// Hub is the per-process registry of open live-update connections, keyed by
// fez ID. It is a push-only channel: all mutating actions go through the
// HTTP API, and client frames are ignored.
type Hub struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]map[*client]struct{}

	visibility VisibilityFunc
	mask       MaskFunc
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		conns: make(map[uuid.UUID]map[*client]struct{}),
		log:   log,
	}
}

// SetVisibility wires the publish-time checks. Must be called before any
// Subscribe; it lives apart from NewHub because the services that implement
// the checks are constructed after the hub.
func (h *Hub) SetVisibility(visibility VisibilityFunc, mask MaskFunc) {
	h.visibility = visibility
	h.mask = mask
}

// Subscription identifies one registered connection; Close deregisters it
// deterministically, after which no further publishes reach the connection.
type Subscription struct {
	hub   *Hub
	fezID uuid.UUID
	c     *client
}

func (s *Subscription) Close() {
	s.hub.remove(s.fezID, s.c)
}

// Subscribe registers a connection for a fez after checking that the user
// currently has visibility into it.
func (h *Hub) Subscribe(ctx context.Context, fezID, userID uuid.UUID, conn Conn) (*Subscription, error) {
	if h.visibility == nil || !h.visibility(ctx, fezID, userID, uuid.Nil) {
		return nil, domain.ErrForbidden
	}
	c := &client{userID: userID, conn: conn}

	h.mu.Lock()
	if h.conns[fezID] == nil {
		h.conns[fezID] = make(map[*client]struct{})
	}
	h.conns[fezID][c] = struct{}{}
	h.mu.Unlock()

	return &Subscription{hub: h, fezID: fezID, c: c}, nil
}

func (h *Hub) remove(fezID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.conns[fezID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, fezID)
		}
	}
}

// snapshot copies the current client set so writes happen outside the lock.
func (h *Hub) snapshot(fezID uuid.UUID) []*client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	set, ok := h.conns[fezID]
	if !ok {
		return nil
	}
	res := make([]*client, 0, len(set))
	for c := range set {
		res = append(res, c)
	}
	return res
}

func (h *Hub) send(fezID uuid.UUID, c *client, payload any) {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteJSON(payload)
	c.writeMu.Unlock()
	if err != nil {
		h.log.Debug("live publish failed, dropping connection",
			zap.Stringer("fez_id", fezID), zap.Stringer("user_id", c.userID), zap.Error(err))
		_ = c.conn.Close()
		h.remove(fezID, c)
	}
}

// PublishPost pushes a new-post event to every connection on the fez whose
// owning user still has visibility and does not block or mute the author.
func (h *Hub) PublishPost(ctx context.Context, post *domain.FezPost, author *domain.UserHeader) {
	for _, c := range h.snapshot(post.FezID) {
		if !h.visibility(ctx, post.FezID, c.userID, post.AuthorID) {
			continue
		}
		h.send(post.FezID, c, &PostEvent{
			Type:      "fez_post",
			FezID:     post.FezID,
			PostID:    post.ID,
			Author:    author,
			Text:      post.Text,
			ImageName: post.ImageName,
			CreatedAt: post.CreatedAt,
		})
	}
}

// PublishMembershipChange pushes a member joined/left event, masking the
// changed user for viewers who block them.
func (h *Hub) PublishMembershipChange(ctx context.Context, fezID uuid.UUID, changed *domain.UserHeader, joined bool) {
	for _, c := range h.snapshot(fezID) {
		if !h.visibility(ctx, fezID, c.userID, uuid.Nil) {
			continue
		}
		header := changed
		if h.mask != nil {
			header = h.mask(ctx, c.userID, changed)
		}
		h.send(fezID, c, &MembershipEvent{
			Type:   "membership_change",
			FezID:  fezID,
			User:   header,
			Joined: joined,
		})
	}
}

// PublishStatusChange pushes a cancelled/uncancelled flag to every connection
// on the fez that still has visibility.
func (h *Hub) PublishStatusChange(ctx context.Context, fezID uuid.UUID, cancelled bool) {
	for _, c := range h.snapshot(fezID) {
		if !h.visibility(ctx, fezID, c.userID, uuid.Nil) {
			continue
		}
		h.send(fezID, c, &StatusEvent{
			Type:      "fez_status",
			FezID:     fezID,
			Cancelled: cancelled,
		})
	}
}

// ConnCount reports open connections for a fez; used by tests and the health
// endpoint.
func (h *Hub) ConnCount(fezID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns[fezID])
}
