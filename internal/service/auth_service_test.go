package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"shipchat/internal/domain"
	"shipchat/internal/security"
	"shipchat/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

var _ domain.UserRepository = (*MockUserRepo)(nil)

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetHeaders(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserHeader, error) {
	return nil, nil // not used in auth tests
}

func (m *MockUserRepo) MatchUsernames(ctx context.Context, search string, limit int) ([]*domain.UserHeader, error) {
	return nil, nil
}

func (m *MockUserRepo) Update(ctx context.Context, u *domain.User) error {
	return nil
}

func (m *MockUserRepo) SetLastSeen(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func newAuthService(repo domain.UserRepository) *service.AuthService {
	tokens := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4) // low cost for tests
	return service.NewAuthService(repo, tokens, hasher)
}

func TestRegister(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		mockRepo.On("GetByUsername", mock.Anything, "newuser").Return(nil, nil)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "newuser"
		})).Return(nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "newuser",
			Password: "Password1!",
		})
		require.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "newuser", user.Username)
		assert.Equal(t, "newuser", user.DisplayName)
		assert.Equal(t, domain.AccessVerified, user.AccessLevel)
		assert.True(t, user.IsActive)
		assert.NotEqual(t, "Password1!", user.HashedPassword)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		existing := &domain.User{ID: uuid.New(), Username: "existing"}
		mockRepo.On("GetByUsername", mock.Anything, "existing").Return(existing, nil)

		user, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "existing",
			Password: "Password1!",
		})
		assert.Nil(t, user)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("EmailTaken", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		email := "taken@cruise.example"
		mockRepo.On("GetByUsername", mock.Anything, "newuser").Return(nil, nil)
		mockRepo.On("GetByEmail", mock.Anything, email).Return(&domain.User{ID: uuid.New()}, nil)

		_, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "newuser",
			Email:    &email,
			Password: "Password1!",
		})
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("EmptyFields", func(t *testing.T) {
		svc := newAuthService(new(MockUserRepo))

		_, err := svc.Register(context.Background(), service.RegisterInput{Username: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)

		_, err = svc.Register(context.Background(), service.RegisterInput{Password: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestLogin(t *testing.T) {
	hasher := security.NewPasswordHasher(4)
	hashed, err := hasher.Hash("Password1!")
	require.NoError(t, err)

	makeUser := func() *domain.User {
		return &domain.User{
			ID:             uuid.New(),
			Username:       "sailor",
			HashedPassword: hashed,
			AccessLevel:    domain.AccessVerified,
			IsActive:       true,
		}
	}

	t.Run("Success", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)
		user := makeUser()

		mockRepo.On("GetByUsername", mock.Anything, "sailor").Return(user, nil)
		mockRepo.On("SetLastSeen", mock.Anything, user.ID, mock.Anything).Return(nil)

		resp, err := svc.Login(context.Background(), service.LoginInput{Username: "sailor", Password: "Password1!"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.AccessToken)
		assert.Equal(t, "bearer", resp.TokenType)
		assert.Equal(t, user.ID, resp.User.ID)
		mockRepo.AssertCalled(t, "SetLastSeen", mock.Anything, user.ID, mock.Anything)
	})

	t.Run("WrongPassword", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		mockRepo.On("GetByUsername", mock.Anything, "sailor").Return(makeUser(), nil)

		_, err := svc.Login(context.Background(), service.LoginInput{Username: "sailor", Password: "nope"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("UnknownUsername", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		mockRepo.On("GetByUsername", mock.Anything, "ghost").Return(nil, nil)

		_, err := svc.Login(context.Background(), service.LoginInput{Username: "ghost", Password: "Password1!"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("InactiveOrBanned", func(t *testing.T) {
		mockRepo := new(MockUserRepo)
		svc := newAuthService(mockRepo)

		inactive := makeUser()
		inactive.IsActive = false
		mockRepo.On("GetByUsername", mock.Anything, "sailor").Return(inactive, nil).Once()

		_, err := svc.Login(context.Background(), service.LoginInput{Username: "sailor", Password: "Password1!"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)

		banned := makeUser()
		banned.AccessLevel = domain.AccessBanned
		mockRepo.On("GetByUsername", mock.Anything, "sailor").Return(banned, nil).Once()

		_, err = svc.Login(context.Background(), service.LoginInput{Username: "sailor", Password: "Password1!"})
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}
