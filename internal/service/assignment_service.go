package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// AssignmentTier selects which kind of support staff a match looks for.
type AssignmentTier int

const (
	// TierTechnician matches technicians who list the ticket category.
	TierTechnician AssignmentTier = iota
	// TierAdmin matches admins regardless of category.
	TierAdmin
)

// MatchCriteria describes the ticket being matched.
type MatchCriteria struct {
	Category   domain.TicketCategory
	Department string
	Tier       AssignmentTier
	// Exclude skips one user, typically the current assignee.
	Exclude string
}

// AssignmentService picks assignees from the Staff Directory by category,
// availability and load.
type AssignmentService struct {
	directory *Directory
	logger    *zap.Logger

	// claimMu serializes select-then-increment so two concurrent claims
	// never see the same least-loaded technician.
	claimMu sync.Mutex
}

// NewAssignmentService creates the service.
func NewAssignmentService(directory *Directory, logger *zap.Logger) *AssignmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{directory: directory, logger: logger}
}

// FindAvailableTechnician returns the best available technician for category,
// or nil when nobody qualifies. Department is a preference, not a filter.
func (s *AssignmentService) FindAvailableTechnician(ctx context.Context, category domain.TicketCategory, department string) (*domain.User, error) {
	return s.find(ctx, MatchCriteria{Category: category, Department: department, Tier: TierTechnician})
}

// FindEscalationHandler returns the target for an escalation level:
// technicians below the top level, an admin at the top.
func (s *AssignmentService) FindEscalationHandler(ctx context.Context, level int, category domain.TicketCategory, department, exclude string) (*domain.User, error) {
	return s.find(ctx, escalationCriteria(level, category, department, exclude))
}

func escalationCriteria(level int, category domain.TicketCategory, department, exclude string) MatchCriteria {
	tier := TierTechnician
	if level >= domain.MaxEscalationLevel {
		tier = TierAdmin
	}
	return MatchCriteria{Category: category, Department: department, Tier: tier, Exclude: exclude}
}

func (s *AssignmentService) find(ctx context.Context, criteria MatchCriteria) (*domain.User, error) {
	staff, err := s.directory.ListSupportStaff(ctx)
	if err != nil {
		return nil, err
	}
	return selectCandidate(staff, criteria), nil
}

// Claim selects a match and counts the ticket against that user's load in
// one step. Callers that fail to persist the assignment must Release.
func (s *AssignmentService) Claim(ctx context.Context, criteria MatchCriteria, at time.Time) (*domain.User, error) {
	s.claimMu.Lock()
	defer s.claimMu.Unlock()

	user, err := s.find(ctx, criteria)
	if err != nil || user == nil {
		return nil, err
	}
	if err := s.directory.AdjustLoad(ctx, user.ID, 1, at); err != nil {
		return nil, err
	}
	user.CurrentTickets++
	stamp := at
	user.LastAssignedAt = &stamp
	return user, nil
}

// Acquire counts one more active ticket against userID.
func (s *AssignmentService) Acquire(ctx context.Context, userID string, at time.Time) {
	s.adjust(ctx, userID, 1, at)
}

// Release drops one active ticket from userID's load.
func (s *AssignmentService) Release(ctx context.Context, userID string, at time.Time) {
	s.adjust(ctx, userID, -1, at)
}

func (s *AssignmentService) adjust(ctx context.Context, userID string, delta int, at time.Time) {
	if err := s.directory.AdjustLoad(ctx, userID, delta, at); err != nil {
		s.logger.Warn("failed to adjust technician load",
			zap.String("user_id", userID),
			zap.Int("delta", delta),
			zap.Error(err))
	}
}

// selectCandidate applies the matching rules to a directory snapshot:
// eligibility, then department preference, then lowest load, then the
// longest wait since the last assignment.
func selectCandidate(staff []domain.User, criteria MatchCriteria) *domain.User {
	eligible := make([]domain.User, 0, len(staff))
	for _, u := range staff {
		if !u.Assignable() || u.ID == criteria.Exclude {
			continue
		}
		switch criteria.Tier {
		case TierAdmin:
			if u.Role != domain.RoleAdmin {
				continue
			}
		default:
			if u.Role != domain.RoleTechnician || !u.Supports(criteria.Category) {
				continue
			}
		}
		eligible = append(eligible, u)
	}
	if len(eligible) == 0 {
		return nil
	}

	if criteria.Department != "" {
		sameDept := make([]domain.User, 0, len(eligible))
		for _, u := range eligible {
			if u.Department == criteria.Department {
				sameDept = append(sameDept, u)
			}
		}
		if len(sameDept) > 0 {
			eligible = sameDept
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.CurrentTickets != b.CurrentTickets {
			return a.CurrentTickets < b.CurrentTickets
		}
		switch {
		case a.LastAssignedAt == nil && b.LastAssignedAt != nil:
			return true
		case a.LastAssignedAt != nil && b.LastAssignedAt == nil:
			return false
		case a.LastAssignedAt != nil && !a.LastAssignedAt.Equal(*b.LastAssignedAt):
			return a.LastAssignedAt.Before(*b.LastAssignedAt)
		}
		return a.ID < b.ID
	})
	chosen := eligible[0]
	return &chosen
}
