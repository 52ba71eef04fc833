package service

import (
	"context"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"shipchat/internal/domain"
)

// IdentityService resolves user headers and block/mute sets, caching the sets
// in memory. Mutating a relationship invalidates the owning user's cache
// entry; other processes see the change on their next cache miss.
type IdentityService struct {
	users  domain.UserRepository
	blocks domain.BlockRepository

	mu        sync.RWMutex
	blockSets map[uuid.UUID]mapset.Set[uuid.UUID]
	muteSets  map[uuid.UUID]mapset.Set[uuid.UUID]
}

var _ domain.IdentityCache = (*IdentityService)(nil)

func NewIdentityService(users domain.UserRepository, blocks domain.BlockRepository) *IdentityService {
	return &IdentityService{
		users:     users,
		blocks:    blocks,
		blockSets: make(map[uuid.UUID]mapset.Set[uuid.UUID]),
		muteSets:  make(map[uuid.UUID]mapset.Set[uuid.UUID]),
	}
}

func (s *IdentityService) Header(ctx context.Context, id uuid.UUID) (*domain.UserHeader, error) {
	headers, err := s.users.GetHeaders(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	h, ok := headers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return h, nil
}

func (s *IdentityService) Headers(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserHeader, error) {
	return s.users.GetHeaders(ctx, ids)
}

func (s *IdentityService) Blocks(ctx context.Context, userID uuid.UUID) (mapset.Set[uuid.UUID], error) {
	s.mu.RLock()
	cached, ok := s.blockSets[userID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	ids, err := s.blocks.Blocks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}
	set := mapset.NewSet(ids...)

	s.mu.Lock()
	s.blockSets[userID] = set
	s.mu.Unlock()
	return set, nil
}

func (s *IdentityService) Mutes(ctx context.Context, userID uuid.UUID) (mapset.Set[uuid.UUID], error) {
	s.mu.RLock()
	cached, ok := s.muteSets[userID]
	s.mu.RUnlock()
	if ok {
		return cached, nil
	}

	ids, err := s.blocks.Mutes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load mutes: %w", err)
	}
	set := mapset.NewSet(ids...)

	s.mu.Lock()
	s.muteSets[userID] = set
	s.mu.Unlock()
	return set, nil
}

func (s *IdentityService) Invalidate(userID uuid.UUID) {
	s.mu.Lock()
	delete(s.blockSets, userID)
	delete(s.muteSets, userID)
	s.mu.Unlock()
}

// BlockedOrMuted returns the union of the user's block and mute sets.
func (s *IdentityService) BlockedOrMuted(ctx context.Context, userID uuid.UUID) (mapset.Set[uuid.UUID], error) {
	blocks, err := s.Blocks(ctx, userID)
	if err != nil {
		return nil, err
	}
	mutes, err := s.Mutes(ctx, userID)
	if err != nil {
		return nil, err
	}
	return blocks.Union(mutes), nil
}

// Block records that userID blocks targetID.
func (s *IdentityService) Block(ctx context.Context, userID, targetID uuid.UUID) error {
	if userID == targetID {
		return domain.ErrInvalidInput
	}
	if err := s.blocks.AddBlock(ctx, userID, targetID); err != nil {
		return err
	}
	s.Invalidate(userID)
	return nil
}

func (s *IdentityService) Unblock(ctx context.Context, userID, targetID uuid.UUID) error {
	if err := s.blocks.RemoveBlock(ctx, userID, targetID); err != nil {
		return err
	}
	s.Invalidate(userID)
	return nil
}

func (s *IdentityService) Mute(ctx context.Context, userID, targetID uuid.UUID) error {
	if userID == targetID {
		return domain.ErrInvalidInput
	}
	if err := s.blocks.AddMute(ctx, userID, targetID); err != nil {
		return err
	}
	s.Invalidate(userID)
	return nil
}

func (s *IdentityService) Unmute(ctx context.Context, userID, targetID uuid.UUID) error {
	if err := s.blocks.RemoveMute(ctx, userID, targetID); err != nil {
		return err
	}
	s.Invalidate(userID)
	return nil
}
