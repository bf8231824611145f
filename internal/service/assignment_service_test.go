package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func TestSelectCandidate(t *testing.T) {
	earlier := baseTime.Add(-2 * time.Hour)
	later := baseTime.Add(-time.Hour)

	busy := technician("busy", domain.CategoryNetwork)
	busy.CurrentTickets = 4
	recent := technician("recent", domain.CategoryNetwork)
	recent.LastAssignedAt = &later
	waiting := technician("waiting", domain.CategoryNetwork)
	waiting.LastAssignedAt = &earlier
	away := technician("away", domain.CategoryNetwork)
	away.Availability = domain.AvailabilityBusy
	inactive := technician("inactive", domain.CategoryNetwork)
	inactive.Active = false
	wrongArea := technician("printers", domain.CategoryPrinter)
	boss := admin("boss")
	student := requester("student")

	staff := []domain.User{busy, recent, waiting, away, inactive, wrongArea, boss, student}

	tests := []struct {
		name     string
		staff    []domain.User
		criteria MatchCriteria
		want     string
	}{
		{
			name:     "longest idle among least loaded",
			staff:    staff,
			criteria: MatchCriteria{Category: domain.CategoryNetwork, Tier: TierTechnician},
			want:     "waiting",
		},
		{
			name:     "excluded user is skipped",
			staff:    staff,
			criteria: MatchCriteria{Category: domain.CategoryNetwork, Tier: TierTechnician, Exclude: "waiting"},
			want:     "recent",
		},
		{
			name:     "admin tier ignores category",
			staff:    staff,
			criteria: MatchCriteria{Category: domain.CategoryPhone, Tier: TierAdmin},
			want:     "boss",
		},
		{
			name:     "nobody supports the category",
			staff:    staff,
			criteria: MatchCriteria{Category: domain.CategoryPhone, Tier: TierTechnician},
			want:     "",
		},
		{
			name:     "admins are not technicians",
			staff:    []domain.User{boss},
			criteria: MatchCriteria{Category: domain.CategoryNetwork, Tier: TierTechnician},
			want:     "",
		},
		{
			name:     "id breaks full ties",
			staff:    []domain.User{technician("b", domain.CategoryEmail), technician("a", domain.CategoryEmail)},
			criteria: MatchCriteria{Category: domain.CategoryEmail, Tier: TierTechnician},
			want:     "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := selectCandidate(tt.staff, tt.criteria)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ID)
		})
	}
}

func TestSelectCandidate_DepartmentIsAPreference(t *testing.T) {
	local := technician("local", domain.CategorySoftware)
	local.Department = "FINANCE"
	local.CurrentTickets = 5
	remote := technician("remote", domain.CategorySoftware)

	got := selectCandidate([]domain.User{local, remote}, MatchCriteria{Category: domain.CategorySoftware, Department: "FINANCE"})
	require.NotNil(t, got)
	assert.Equal(t, "local", got.ID)

	local.Availability = domain.AvailabilityOffline
	got = selectCandidate([]domain.User{local, remote}, MatchCriteria{Category: domain.CategorySoftware, Department: "FINANCE"})
	require.NotNil(t, got)
	assert.Equal(t, "remote", got.ID)
}

func TestEscalationCriteria(t *testing.T) {
	assert.Equal(t, TierTechnician, escalationCriteria(1, domain.CategoryEmail, "", "x").Tier)
	assert.Equal(t, TierTechnician, escalationCriteria(2, domain.CategoryEmail, "", "x").Tier)
	top := escalationCriteria(domain.MaxEscalationLevel, domain.CategoryEmail, "IT", "x")
	assert.Equal(t, TierAdmin, top.Tier)
	assert.Equal(t, "x", top.Exclude)
	assert.Equal(t, "IT", top.Department)
}
