package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shipchat/internal/domain"
	"shipchat/internal/service"
)

type testEnv struct {
	state  *fakeState
	notify *fakeNotify
	live   *fakeLive
	ident  *service.IdentityService
	fez    *service.FezService
	post   *service.PostService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	s := newFakeState()
	ident := service.NewIdentityService(&fakeUsers{s}, &fakeBlocks{s})
	notify := newFakeNotify()
	live := &fakeLive{}
	log := zap.NewNop()
	return &testEnv{
		state:  s,
		notify: notify,
		live:   live,
		ident:  ident,
		fez:    service.NewFezService(&fakeFezzes{s}, &fakePivots{s}, &fakePosts{s}, &fakeUsers{s}, ident, notify, live, log),
		post:   service.NewPostService(&fakeFezzes{s}, &fakePivots{s}, &fakePosts{s}, ident, notify, live, log, 50),
	}
}

func (e *testEnv) mustCreateFez(t *testing.T, owner *domain.User, fezType domain.FezType, maxCapacity int, initial ...uuid.UUID) *domain.Fez {
	t.Helper()
	fez, err := e.fez.Create(context.Background(), owner, service.FezCreateInput{
		FezType:        fezType,
		Title:          "Trivia at the pool bar",
		Info:           "Casual trivia, all welcome",
		MaxCapacity:    maxCapacity,
		InitialUserIDs: initial,
	})
	require.NoError(t, err)
	return fez
}

func TestCreateFez(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")

	t.Run("OwnerIsParticipantZero", func(t *testing.T) {
		b := env.state.addUser("bob")
		fez := env.mustCreateFez(t, owner, domain.FezTypeGaming, 0, b.ID)

		members, err := env.fez.Members(ctx, owner, fez, env.state.pivot(fez.ID, owner.ID))
		require.NoError(t, err)
		require.Len(t, members.Participants, 2)
		assert.Equal(t, owner.ID, members.Participants[0].ID)
		assert.Equal(t, b.ID, members.Participants[1].ID)
	})

	t.Run("BlockedInitialUsersDropped", func(t *testing.T) {
		blocked := env.state.addUser("mallory")
		require.NoError(t, env.ident.Block(ctx, blocked.ID, owner.ID))

		fez := env.mustCreateFez(t, owner, domain.FezTypeDining, 0, blocked.ID)
		assert.Nil(t, env.state.pivot(fez.ID, blocked.ID))
	})

	t.Run("InvalidInput", func(t *testing.T) {
		_, err := env.fez.Create(ctx, owner, service.FezCreateInput{FezType: "bogus", Title: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = env.fez.Create(ctx, owner, service.FezCreateInput{FezType: domain.FezTypeOpen, Title: ""})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestJoinAndWaitlist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")
	b := env.state.addUser("bob")
	c := env.state.addUser("carol")

	fez := env.mustCreateFez(t, owner, domain.FezTypeActivity, 2)

	require.NoError(t, env.fez.Join(ctx, b, fez.ID))
	require.NoError(t, env.fez.Join(ctx, c, fez.ID))

	members, err := env.fez.Members(ctx, owner, fez, env.state.pivot(fez.ID, owner.ID))
	require.NoError(t, err)
	require.Len(t, members.Participants, 2)
	require.Len(t, members.Waitlist, 1)
	assert.Equal(t, owner.ID, members.Participants[0].ID)
	assert.Equal(t, b.ID, members.Participants[1].ID)
	assert.Equal(t, c.ID, members.Waitlist[0].ID)

	t.Run("JoinTwice", func(t *testing.T) {
		assert.ErrorIs(t, env.fez.Join(ctx, b, fez.ID), domain.ErrAlreadyMember)
	})

	t.Run("UnknownFez", func(t *testing.T) {
		assert.ErrorIs(t, env.fez.Join(ctx, b, uuid.New()), domain.ErrNotFound)
	})

	t.Run("PublishesMembershipChange", func(t *testing.T) {
		require.NotEmpty(t, env.live.memberships)
		first := env.live.memberships[0]
		assert.Equal(t, fez.ID, first.fezID)
		assert.Equal(t, b.ID, first.changed.ID)
		assert.True(t, first.joined)
	})

	t.Run("WaitlistPromotionOnLeave", func(t *testing.T) {
		require.NoError(t, env.fez.Unjoin(ctx, b, fez.ID))
		members, err := env.fez.Members(ctx, owner, fez, env.state.pivot(fez.ID, owner.ID))
		require.NoError(t, err)
		require.Len(t, members.Participants, 2)
		assert.Empty(t, members.Waitlist)
		assert.Equal(t, c.ID, members.Participants[1].ID)
	})
}

func TestJoinBlockedByOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")
	b := env.state.addUser("bob")
	require.NoError(t, env.ident.Block(ctx, owner.ID, b.ID))

	fez := env.mustCreateFez(t, owner, domain.FezTypeOpen, 0)

	// Renders exactly like a missing fez so the block is not observable.
	assert.ErrorIs(t, env.fez.Join(ctx, b, fez.ID), domain.ErrUnavailable)
	_, _, err := env.fez.Get(ctx, b, fez.ID)
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}

func TestClosedFezMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")
	b := env.state.addUser("bob")
	c := env.state.addUser("carol")

	fez := env.mustCreateFez(t, owner, domain.FezTypeClosed, 0, b.ID)

	t.Run("SelfJoinRejected", func(t *testing.T) {
		assert.ErrorIs(t, env.fez.Join(ctx, c, fez.ID), domain.ErrInvalidOperation)
	})

	t.Run("SelfLeaveRejected", func(t *testing.T) {
		assert.ErrorIs(t, env.fez.Unjoin(ctx, b, fez.ID), domain.ErrInvalidOperation)
	})

	t.Run("OwnerAddsAndRemoves", func(t *testing.T) {
		require.NoError(t, env.fez.AddMember(ctx, owner, fez.ID, c.ID))
		assert.NotNil(t, env.state.pivot(fez.ID, c.ID))

		require.NoError(t, env.fez.RemoveMember(ctx, owner, fez.ID, c.ID))
		assert.Nil(t, env.state.pivot(fez.ID, c.ID))
	})

	t.Run("NonOwnerForbidden", func(t *testing.T) {
		assert.ErrorIs(t, env.fez.AddMember(ctx, b, fez.ID, c.ID), domain.ErrForbidden)
		assert.ErrorIs(t, env.fez.RemoveMember(ctx, b, fez.ID, owner.ID), domain.ErrForbidden)
	})

	t.Run("ModeratorCannotSeePrivateDetail", func(t *testing.T) {
		mod := env.state.addUserLevel("mod", domain.AccessModerator)
		fezRow, pivot, err := env.fez.Get(ctx, mod, fez.ID)
		require.NoError(t, err)
		assert.False(t, env.fez.CanViewDetail(fezRow, mod, pivot))
	})
}

func TestJoinSeedsHiddenCount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")
	b := env.state.addUser("bob")

	fez := env.mustCreateFez(t, owner, domain.FezTypeOpen, 0)
	for i := 0; i < 3; i++ {
		_, err := env.post.AddPost(ctx, owner, service.PostCreateInput{FezID: fez.ID, Text: "hello"})
		require.NoError(t, err)
	}

	// A joiner who mutes the author of all existing posts starts with those
	// posts already counted as hidden.
	require.NoError(t, env.ident.Mute(ctx, b.ID, owner.ID))
	require.NoError(t, env.fez.Join(ctx, b, fez.ID))

	pivot := env.state.pivot(fez.ID, b.ID)
	require.NotNil(t, pivot)
	assert.Equal(t, 3, pivot.HiddenCount)
	assert.Equal(t, 0, pivot.ReadCount)
	assert.LessOrEqual(t, pivot.ReadCount+pivot.HiddenCount, fez.PostCount)
}

func TestMembersMasking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")
	b := env.state.addUser("bob")
	c := env.state.addUser("carol")

	fez := env.mustCreateFez(t, owner, domain.FezTypeOpen, 0, b.ID, c.ID)
	require.NoError(t, env.ident.Block(ctx, c.ID, b.ID))

	members, err := env.fez.Members(ctx, c, fez, env.state.pivot(fez.ID, c.ID))
	require.NoError(t, err)

	// Length and order are preserved; only the blocked identity is replaced.
	require.Len(t, members.Participants, 3)
	assert.Equal(t, owner.ID, members.Participants[0].ID)
	assert.Equal(t, uuid.Nil, members.Participants[1].ID)
	assert.Equal(t, "unavailable user", members.Participants[1].Username)
	assert.Equal(t, c.ID, members.Participants[2].ID)
}

func TestCancelAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")
	b := env.state.addUser("bob")
	mod := env.state.addUserLevel("mod", domain.AccessModerator)

	fez := env.mustCreateFez(t, owner, domain.FezTypeOpen, 0, b.ID)

	t.Run("CancelOwnerOnly", func(t *testing.T) {
		assert.ErrorIs(t, env.fez.Cancel(ctx, b, fez.ID), domain.ErrForbidden)
		require.NoError(t, env.fez.Cancel(ctx, owner, fez.ID))

		// Cancelled fezzes keep members and history.
		got, pivot, err := env.fez.Get(ctx, b, fez.ID)
		require.NoError(t, err)
		assert.True(t, got.Cancelled)
		assert.NotNil(t, pivot)

		require.Len(t, env.live.statuses, 1)
		assert.Equal(t, fez.ID, env.live.statuses[0].fezID)
		assert.True(t, env.live.statuses[0].cancelled)
	})

	t.Run("DeleteModeratorOnly", func(t *testing.T) {
		assert.ErrorIs(t, env.fez.Delete(ctx, owner, fez.ID), domain.ErrForbidden)
		require.NoError(t, env.fez.Delete(ctx, mod, fez.ID))

		_, _, err := env.fez.Get(ctx, b, fez.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestListJoinedUnreadCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")
	b := env.state.addUser("bob")

	fez := env.mustCreateFez(t, owner, domain.FezTypeOpen, 0, b.ID)
	for i := 0; i < 4; i++ {
		_, err := env.post.AddPost(ctx, owner, service.PostCreateInput{FezID: fez.ID, Text: "post"})
		require.NoError(t, err)
	}

	summaries, err := env.fez.ListJoined(ctx, b, domain.FezFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.NotNil(t, summaries[0].UnreadCount)
	assert.Equal(t, 4, *summaries[0].UnreadCount)

	// Reading the window brings unread back to zero.
	_, err = env.post.ListPosts(ctx, b, fez.ID, -1, 0)
	require.NoError(t, err)

	summaries, err = env.fez.ListJoined(ctx, b, domain.FezFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, *summaries[0].UnreadCount)
}

func TestListOpenHidesBlockedOwners(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.state.addUser("alice")
	other := env.state.addUser("dave")
	viewer := env.state.addUser("bob")

	env.mustCreateFez(t, owner, domain.FezTypeOpen, 0)
	env.mustCreateFez(t, other, domain.FezTypeOpen, 0)
	require.NoError(t, env.ident.Block(ctx, viewer.ID, owner.ID))

	summaries, err := env.fez.ListOpen(ctx, viewer, domain.FezFilter{})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, other.ID, summaries[0].Owner.ID)
}
