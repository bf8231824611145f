package audit

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

// Recorder turns ticket mutations into chained audit entries.
type Recorder struct{}

// NewRecorder constructs a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record diffs before and after, builds the entry chained onto before's audit
// head and advances after.AuditHead. before is nil for creation. The entry
// sequence equals the ticket version after the mutation, so callers bump the
// version first.
func (r *Recorder) Record(before, after *domain.Ticket, action domain.AuditAction, actorID, note string, at time.Time) (*domain.AuditEntry, error) {
	if after == nil {
		return nil, fmt.Errorf("audit: ticket required")
	}
	prev := ""
	if before != nil {
		prev = before.AuditHead
	}
	// Storage keeps microseconds; truncate so the hash survives a round trip.
	ts := at.UTC().Truncate(time.Microsecond)
	entry := &domain.AuditEntry{
		ID:          uuid.NewString(),
		TicketID:    after.ID,
		Sequence:    after.Version,
		Action:      action,
		PerformedBy: actorID,
		Timestamp:   ts,
		Changes:     Diff(before, after),
		Note:        note,
		PrevHash:    prev,
	}
	hash, err := Hash(entry)
	if err != nil {
		return nil, err
	}
	entry.Hash = hash
	after.AuditHead = hash
	return entry, nil
}

// Hash computes the BLAKE2b-256 chain hash of an entry: the previous hash
// followed by the entry's canonical JSON encoding.
func Hash(entry *domain.AuditEntry) (string, error) {
	canonical := *entry
	canonical.Timestamp = entry.Timestamp.UTC()
	if canonical.Changes == nil {
		canonical.Changes = []domain.FieldChange{}
	}
	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("audit: encode entry: %w", err)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	h.Write([]byte(entry.PrevHash))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks that entries form an unbroken chain in sequence order and
// that no entry was altered after it was written.
func Verify(entries []domain.AuditEntry) error {
	prev := ""
	for i := range entries {
		entry := &entries[i]
		if i > 0 && entry.Sequence <= entries[i-1].Sequence {
			return fmt.Errorf("audit: entry %s out of order", entry.ID)
		}
		if entry.PrevHash != prev {
			return fmt.Errorf("audit: entry %s (seq %d) does not link to its predecessor", entry.ID, entry.Sequence)
		}
		hash, err := Hash(entry)
		if err != nil {
			return err
		}
		if hash != entry.Hash {
			return fmt.Errorf("audit: entry %s (seq %d) has been modified", entry.ID, entry.Sequence)
		}
		prev = entry.Hash
	}
	return nil
}

// AsOf replays entries written at or before at and returns the value of every
// tracked field at that instant. Absent fields map to nil.
func AsOf(entries []domain.AuditEntry, at time.Time) map[string]*string {
	ordered := append([]domain.AuditEntry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Sequence < ordered[j].Sequence })

	state := make(map[string]*string)
	for _, entry := range ordered {
		if entry.Timestamp.After(at) {
			break
		}
		for _, change := range entry.Changes {
			state[change.Field] = change.After
		}
	}
	return state
}

// Diff lists the material fields that differ between before and after, in
// field-name order.
func Diff(before, after *domain.Ticket) []domain.FieldChange {
	var old map[string]string
	if before != nil {
		old = snapshot(before)
	}
	current := snapshot(after)

	fields := make([]string, 0, len(current))
	seen := make(map[string]struct{}, len(current))
	for field := range current {
		fields = append(fields, field)
		seen[field] = struct{}{}
	}
	for field := range old {
		if _, ok := seen[field]; !ok {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)

	changes := make([]domain.FieldChange, 0)
	for _, field := range fields {
		b, hadBefore := old[field]
		a, hasAfter := current[field]
		if hadBefore == hasAfter && b == a {
			continue
		}
		change := domain.FieldChange{Field: field}
		if hadBefore {
			change.Before = &b
		}
		if hasAfter {
			change.After = &a
		}
		changes = append(changes, change)
	}
	return changes
}

// snapshot flattens the audited fields of a ticket. Unset optional fields are
// omitted so they diff as absent rather than empty.
func snapshot(t *domain.Ticket) map[string]string {
	s := map[string]string{
		"title":                   t.Title,
		"description":             t.Description,
		"category":                string(t.Category),
		"priority":                string(t.Priority),
		"status":                  string(t.Status),
		"sla.response.deadline":   formatTime(t.SLA.Response.Deadline),
		"sla.response.breached":   strconv.FormatBool(t.SLA.Response.Breached),
		"sla.resolution.deadline": formatTime(t.SLA.Resolution.Deadline),
		"sla.resolution.breached": strconv.FormatBool(t.SLA.Resolution.Breached),
		"escalation.level":        strconv.Itoa(t.Escalation.Level),
		"reopen_count":            strconv.Itoa(t.ReopenCount),
		"comments":                strconv.Itoa(len(t.Comments)),
		"attachments":             strconv.Itoa(len(t.Attachments)),
		"deleted":                 strconv.FormatBool(t.Deleted),
	}
	if t.Department != "" {
		s["department"] = t.Department
	}
	putString(s, "assigned_to", t.AssignedTo)
	putString(s, "assigned_by", t.AssignedBy)
	putTime(s, "assigned_at", t.AssignedAt)
	putTime(s, "sla.first_response_at", t.SLA.FirstResponseAt)
	putString(s, "escalation.escalated_by", t.Escalation.EscalatedBy)
	putTime(s, "escalation.escalated_at", t.Escalation.EscalatedAt)
	if t.Resolution.Description != "" {
		s["resolution.description"] = t.Resolution.Description
	}
	putString(s, "resolution.resolved_by", t.Resolution.ResolvedBy)
	putTime(s, "resolution.resolved_at", t.Resolution.ResolvedAt)
	if t.Resolution.ResolutionTime != nil {
		s["resolution.resolution_time"] = t.Resolution.ResolutionTime.String()
	}
	if t.Resolution.Rating != nil {
		s["resolution.rating"] = strconv.Itoa(*t.Resolution.Rating)
	}
	putTime(s, "closed_at", t.ClosedAt)
	putTime(s, "cancelled_at", t.CancelledAt)
	putTime(s, "reopened_at", t.ReopenedAt)
	return s
}

func putString(s map[string]string, key string, v *string) {
	if v != nil {
		s[key] = *v
	}
}

func putTime(s map[string]string, key string, v *time.Time) {
	if v != nil {
		s[key] = formatTime(*v)
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
