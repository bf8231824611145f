package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTicket() *Ticket {
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return &Ticket{
		ID:           "t-1",
		TicketNumber: FormatTicketNumber(at, 1),
		Title:        "Printer jam",
		Description:  "Second floor printer is jammed",
		Category:     CategoryPrinter,
		Priority:     TicketPriorityMedium,
		Status:       TicketStatusOpen,
		CreatedBy:    "u-1",
		CreatedAt:    at,
		UpdatedAt:    at,
	}
}

func TestPriority_Bump(t *testing.T) {
	assert.Equal(t, TicketPriorityMedium, TicketPriorityLow.Bump())
	assert.Equal(t, TicketPriorityHigh, TicketPriorityMedium.Bump())
	assert.Equal(t, TicketPriorityCritical, TicketPriorityHigh.Bump())
	assert.Equal(t, TicketPriorityCritical, TicketPriorityCritical.Bump())
}

func TestTicket_Validate(t *testing.T) {
	tk := validTicket()
	require.NoError(t, tk.Validate())

	tk.AssignedTo = ptr("tech-1")
	assert.Error(t, tk.Validate(), "partial assignment triple")

	tk.SetAssignment("tech-1", "admin", tk.CreatedAt)
	assert.NoError(t, tk.Validate())

	tk.Escalation.Level = MaxEscalationLevel + 1
	assert.Error(t, tk.Validate())
}

func TestTicket_CloneIsDeep(t *testing.T) {
	tk := validTicket()
	tk.SetAssignment("tech-1", "admin", tk.CreatedAt)
	tk.Metadata = map[string]string{"source": "portal"}
	tk.Comments = []Comment{{ID: "c1", Content: "hi"}}

	c := tk.Clone()
	*c.AssignedTo = "tech-2"
	c.Metadata["source"] = "email"
	c.Comments[0].Content = "changed"

	assert.Equal(t, "tech-1", *tk.AssignedTo)
	assert.Equal(t, "portal", tk.Metadata["source"])
	assert.Equal(t, "hi", tk.Comments[0].Content)
}

func TestTicket_IsEscalatedDerivedFromLevel(t *testing.T) {
	tk := validTicket()
	assert.False(t, tk.IsEscalated())
	tk.Escalation.Level = 1
	assert.True(t, tk.IsEscalated())
}

func TestVisibleComments(t *testing.T) {
	comments := []Comment{
		{ID: "1", Content: "public"},
		{ID: "2", Content: "notes", Internal: true},
	}
	assert.Len(t, VisibleComments(comments, true), 2)
	visible := VisibleComments(comments, false)
	require.Len(t, visible, 1)
	assert.Equal(t, "1", visible[0].ID)
}

func TestTicket_ViewFor(t *testing.T) {
	ticket := validTicket()
	ticket.Comments = []Comment{
		{ID: "c1", Content: "public"},
		{ID: "c2", Content: "staff note", Internal: true},
		{ID: "c3", Content: "Ticket reopened", System: true},
	}

	requesterView := ticket.ViewFor(false)
	require.Len(t, requesterView.Comments, 2)
	assert.Equal(t, "c1", requesterView.Comments[0].ID)
	assert.Equal(t, "c3", requesterView.Comments[1].ID)
	assert.Len(t, ticket.Comments, 3, "source ticket untouched")

	staffView := ticket.ViewFor(true)
	assert.Len(t, staffView.Comments, 3)
	staffView.Comments[0].Content = "edited"
	assert.Equal(t, "public", ticket.Comments[0].Content)

	var none *Ticket
	assert.Nil(t, none.ViewFor(false))
}

func TestCloneString(t *testing.T) {
	assert.Nil(t, CloneString(nil))
	s := "tech-1"
	c := CloneString(&s)
	require.NotNil(t, c)
	s = "tech-2"
	assert.Equal(t, "tech-1", *c)
}

func TestTicketNumber_RoundTrip(t *testing.T) {
	at := time.Date(2026, 1, 31, 23, 59, 0, 0, time.FixedZone("X", 3*3600))
	number := FormatTicketNumber(at, 7)
	// 23:59 at +03:00 is still Jan 31 in UTC.
	assert.Equal(t, "TKT-20260131-0007", number)

	day, seq, err := ParseTicketNumber(number)
	require.NoError(t, err)
	assert.Equal(t, 7, seq)
	assert.Equal(t, "20260131", TicketDay(day))
}

func TestTicketNumber_WidensPastFourDigits(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	number := FormatTicketNumber(at, 10000)
	assert.Equal(t, "TKT-20260101-10000", number)
	_, seq, err := ParseTicketNumber(number)
	require.NoError(t, err)
	assert.Equal(t, 10000, seq)
}

func TestParseTicketNumber_Rejects(t *testing.T) {
	for _, in := range []string{"", "TKT-2026-0001", "ABC-20260101-0001", "TKT-20260101-01", "TKT-20260101-0000"} {
		_, _, err := ParseTicketNumber(in)
		assert.Error(t, err, in)
	}
}

func ptr(s string) *string { return &s }
