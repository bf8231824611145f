package sla

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Targets holds the response and resolution commitments for one priority.
type Targets struct {
	ResponseMinutes   int `yaml:"response_minutes" json:"response_minutes"`
	ResolutionMinutes int `yaml:"resolution_minutes" json:"resolution_minutes"`
}

// Response returns the response target as a duration.
func (t Targets) Response() time.Duration {
	return time.Duration(t.ResponseMinutes) * time.Minute
}

// Resolution returns the resolution target as a duration.
func (t Targets) Resolution() time.Duration {
	return time.Duration(t.ResolutionMinutes) * time.Minute
}

// DefaultAtRiskRatio is the elapsed fraction after which a running target is
// reported as at risk.
const DefaultAtRiskRatio = 0.75

// Policy is the priority -> targets table.
type Policy struct {
	Targets     map[domain.TicketPriority]Targets `yaml:"priorities" json:"priorities"`
	AtRiskRatio float64                           `yaml:"at_risk_ratio" json:"at_risk_ratio"`
}

// DefaultPolicy returns the stock help-desk table.
func DefaultPolicy() *Policy {
	return &Policy{
		Targets: map[domain.TicketPriority]Targets{
			domain.TicketPriorityCritical: {ResponseMinutes: 30, ResolutionMinutes: 240},
			domain.TicketPriorityHigh:     {ResponseMinutes: 120, ResolutionMinutes: 1440},
			domain.TicketPriorityMedium:   {ResponseMinutes: 480, ResolutionMinutes: 4320},
			domain.TicketPriorityLow:      {ResponseMinutes: 1440, ResolutionMinutes: 10080},
		},
		AtRiskRatio: DefaultAtRiskRatio,
	}
}

// For returns the targets for priority p.
func (p *Policy) For(priority domain.TicketPriority) (Targets, error) {
	targets, ok := p.Targets[priority]
	if !ok {
		return Targets{}, fmt.Errorf("no sla targets for priority %q", priority)
	}
	return targets, nil
}

// Validate checks the table is complete and internally consistent: each
// response target is shorter than its resolution target, and both strictly
// increase from CRITICAL down to LOW.
func (p *Policy) Validate() error {
	if p.AtRiskRatio <= 0 || p.AtRiskRatio >= 1 {
		return fmt.Errorf("at_risk_ratio must be between 0 and 1, got %v", p.AtRiskRatio)
	}
	var prev *Targets
	// Walk the ladder from the most urgent tier down.
	for i := len(domain.PriorityLadder) - 1; i >= 0; i-- {
		priority := domain.PriorityLadder[i]
		targets, ok := p.Targets[priority]
		if !ok {
			return fmt.Errorf("missing sla targets for priority %s", priority)
		}
		if targets.ResponseMinutes <= 0 || targets.ResolutionMinutes <= 0 {
			return fmt.Errorf("sla targets for %s must be positive", priority)
		}
		if targets.ResponseMinutes >= targets.ResolutionMinutes {
			return fmt.Errorf("sla response target for %s must be below its resolution target", priority)
		}
		if prev != nil {
			if targets.ResponseMinutes <= prev.ResponseMinutes {
				return fmt.Errorf("sla response target for %s must exceed the next more urgent tier", priority)
			}
			if targets.ResolutionMinutes <= prev.ResolutionMinutes {
				return fmt.Errorf("sla resolution target for %s must exceed the next more urgent tier", priority)
			}
		}
		t := targets
		prev = &t
	}
	for priority := range p.Targets {
		if !priority.Valid() {
			return fmt.Errorf("unknown priority %q in sla policy", priority)
		}
	}
	return nil
}

// LoadPolicy reads a YAML policy file. Priorities missing from the file keep
// their default targets.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sla policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes a YAML policy document over the defaults and validates
// the result.
func ParsePolicy(data []byte) (*Policy, error) {
	var override Policy
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("failed to parse sla policy: %w", err)
	}

	policy := DefaultPolicy()
	for priority, targets := range override.Targets {
		policy.Targets[priority] = targets
	}
	if override.AtRiskRatio != 0 {
		policy.AtRiskRatio = override.AtRiskRatio
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}
