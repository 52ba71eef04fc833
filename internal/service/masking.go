package service

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"

	"shipchat/internal/domain"
)

// maskedUsername is the opaque identity shown in place of a blocked user.
const maskedUsername = "unavailable user"

// MaskedHeader returns the placeholder identity used when a viewer blocks a
// participant.
func MaskedHeader() *domain.UserHeader {
	return &domain.UserHeader{ID: uuid.Nil, Username: maskedUsername}
}

// MaskParticipants replaces every member the viewer blocks with a placeholder
// identity. The result preserves length and ordering so capacity and waitlist
// math downstream stays correct; the input slice is not modified.
func MaskParticipants(members []*domain.UserHeader, viewerBlocks mapset.Set[uuid.UUID]) []*domain.UserHeader {
	masked := make([]*domain.UserHeader, len(members))
	for i, m := range members {
		if viewerBlocks != nil && viewerBlocks.Contains(m.ID) {
			masked[i] = MaskedHeader()
		} else {
			masked[i] = m
		}
	}
	return masked
}

// SplitCapacity divides an ordered member list into active participants and
// waitlist. The first maxCapacity entries are active; with maxCapacity == 0
// everyone is active.
func SplitCapacity(members []*domain.UserHeader, maxCapacity int) (active, waitlist []*domain.UserHeader) {
	if maxCapacity <= 0 || len(members) <= maxCapacity {
		return members, nil
	}
	return members[:maxCapacity], members[maxCapacity:]
}
