package ws_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shipchat/internal/domain"
	"shipchat/internal/service"
	"shipchat/internal/ws"
)

type fakeConn struct {
	mu       sync.Mutex
	written  []any
	writeErr error
	closed   bool
}

var _ ws.Conn = (*fakeConn)(nil)

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	c.written = append(c.written, v)
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) events(t *testing.T) []any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]any, len(c.written))
	copy(res, c.written)
	return res
}

// allowAll grants visibility unless the viewer appears in denied, or the
// author in mutedBy[viewer].
type fakeVisibility struct {
	denied  map[uuid.UUID]bool
	mutedBy map[uuid.UUID]uuid.UUID
}

func (v *fakeVisibility) check(ctx context.Context, fezID, viewerID, authorID uuid.UUID) bool {
	if v.denied[viewerID] {
		return false
	}
	if authorID != uuid.Nil && v.mutedBy[viewerID] == authorID {
		return false
	}
	return true
}

func newTestHub(vis *fakeVisibility, mask ws.MaskFunc) *ws.Hub {
	h := ws.NewHub(zap.NewNop())
	h.SetVisibility(vis.check, mask)
	return h
}

func testPost(fezID uuid.UUID, authorID uuid.UUID) *domain.FezPost {
	return &domain.FezPost{
		ID:        7,
		FezID:     fezID,
		AuthorID:  authorID,
		Text:      "muster at deck 5",
		CreatedAt: time.Now(),
	}
}

func TestSubscribeVisibility(t *testing.T) {
	ctx := context.Background()
	fezID := uuid.New()
	allowed, blocked := uuid.New(), uuid.New()
	vis := &fakeVisibility{denied: map[uuid.UUID]bool{blocked: true}}
	hub := newTestHub(vis, nil)

	sub, err := hub.Subscribe(ctx, fezID, allowed, &fakeConn{})
	require.NoError(t, err)
	assert.Equal(t, 1, hub.ConnCount(fezID))

	_, err = hub.Subscribe(ctx, fezID, blocked, &fakeConn{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 1, hub.ConnCount(fezID))

	sub.Close()
	assert.Equal(t, 0, hub.ConnCount(fezID))
}

func TestPublishPost(t *testing.T) {
	ctx := context.Background()
	fezID := uuid.New()
	author := &domain.UserHeader{ID: uuid.New(), Username: "alice"}
	viewer, muter, stale := uuid.New(), uuid.New(), uuid.New()

	vis := &fakeVisibility{
		denied:  map[uuid.UUID]bool{},
		mutedBy: map[uuid.UUID]uuid.UUID{muter: author.ID},
	}
	hub := newTestHub(vis, nil)

	viewerConn, muterConn, staleConn := &fakeConn{}, &fakeConn{}, &fakeConn{}
	_, err := hub.Subscribe(ctx, fezID, viewer, viewerConn)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, fezID, muter, muterConn)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, fezID, stale, staleConn)
	require.NoError(t, err)

	// stale lost visibility after subscribing, e.g. removed from the fez.
	vis.denied[stale] = true

	hub.PublishPost(ctx, testPost(fezID, author.ID), author)

	events := viewerConn.events(t)
	require.Len(t, events, 1)
	ev, ok := events[0].(*ws.PostEvent)
	require.True(t, ok)
	assert.Equal(t, "fez_post", ev.Type)
	assert.Equal(t, int64(7), ev.PostID)
	assert.Equal(t, author, ev.Author)

	assert.Empty(t, muterConn.events(t), "muting viewer must not receive the post")
	assert.Empty(t, staleConn.events(t), "stale viewer must not receive the post")
}

func TestPublishDropsFailedConn(t *testing.T) {
	ctx := context.Background()
	fezID := uuid.New()
	author := &domain.UserHeader{ID: uuid.New(), Username: "alice"}
	viewer := uuid.New()

	hub := newTestHub(&fakeVisibility{}, nil)
	conn := &fakeConn{writeErr: errors.New("broken pipe")}
	_, err := hub.Subscribe(ctx, fezID, viewer, conn)
	require.NoError(t, err)

	hub.PublishPost(ctx, testPost(fezID, author.ID), author)

	assert.True(t, conn.closed)
	assert.Equal(t, 0, hub.ConnCount(fezID))

	// A second publish to the now-empty fez is a no-op.
	hub.PublishPost(ctx, testPost(fezID, author.ID), author)
}

// overlapConn fails the one-writer rule check if two writes ever run at the
// same time.
type overlapConn struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
	writes   atomic.Int32
}

var _ ws.Conn = (*overlapConn)(nil)

func (c *overlapConn) WriteJSON(v any) error {
	if c.inFlight.Add(1) != 1 {
		c.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	c.inFlight.Add(-1)
	c.writes.Add(1)
	return nil
}

func (c *overlapConn) SetWriteDeadline(t time.Time) error { return nil }

func (c *overlapConn) Close() error { return nil }

func TestConcurrentPublishesSerializeWrites(t *testing.T) {
	ctx := context.Background()
	fezID := uuid.New()
	author := &domain.UserHeader{ID: uuid.New(), Username: "alice"}
	viewer := uuid.New()

	hub := newTestHub(&fakeVisibility{}, nil)
	conn := &overlapConn{}
	_, err := hub.Subscribe(ctx, fezID, viewer, conn)
	require.NoError(t, err)

	const publishers = 16
	var wg sync.WaitGroup
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hub.PublishPost(ctx, testPost(fezID, author.ID), author)
		}()
	}
	wg.Wait()

	assert.False(t, conn.overlap.Load(), "writes to one connection must never overlap")
	assert.Equal(t, int32(publishers), conn.writes.Load())
	assert.Equal(t, 1, hub.ConnCount(fezID))
}

func TestPublishStatusChange(t *testing.T) {
	ctx := context.Background()
	fezID := uuid.New()
	viewer, stale := uuid.New(), uuid.New()

	vis := &fakeVisibility{denied: map[uuid.UUID]bool{}}
	hub := newTestHub(vis, nil)

	viewerConn, staleConn := &fakeConn{}, &fakeConn{}
	_, err := hub.Subscribe(ctx, fezID, viewer, viewerConn)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, fezID, stale, staleConn)
	require.NoError(t, err)
	vis.denied[stale] = true

	hub.PublishStatusChange(ctx, fezID, true)

	events := viewerConn.events(t)
	require.Len(t, events, 1)
	ev := events[0].(*ws.StatusEvent)
	assert.Equal(t, "fez_status", ev.Type)
	assert.Equal(t, fezID, ev.FezID)
	assert.True(t, ev.Cancelled)
	assert.Empty(t, staleConn.events(t))
}

func TestPublishMembershipMasking(t *testing.T) {
	ctx := context.Background()
	fezID := uuid.New()
	joined := &domain.UserHeader{ID: uuid.New(), Username: "bob"}
	blocker, other := uuid.New(), uuid.New()

	mask := func(ctx context.Context, viewerID uuid.UUID, header *domain.UserHeader) *domain.UserHeader {
		if viewerID == blocker {
			return service.MaskedHeader()
		}
		return header
	}
	hub := newTestHub(&fakeVisibility{}, mask)

	blockerConn, otherConn := &fakeConn{}, &fakeConn{}
	_, err := hub.Subscribe(ctx, fezID, blocker, blockerConn)
	require.NoError(t, err)
	_, err = hub.Subscribe(ctx, fezID, other, otherConn)
	require.NoError(t, err)

	hub.PublishMembershipChange(ctx, fezID, joined, true)

	events := otherConn.events(t)
	require.Len(t, events, 1)
	ev := events[0].(*ws.MembershipEvent)
	assert.Equal(t, "membership_change", ev.Type)
	assert.True(t, ev.Joined)
	assert.Equal(t, joined, ev.User)

	events = blockerConn.events(t)
	require.Len(t, events, 1)
	masked := events[0].(*ws.MembershipEvent)
	assert.Equal(t, uuid.Nil, masked.User.ID)
	assert.NotEqual(t, joined.Username, masked.User.Username)
}
