package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	ticketNumberPrefix = "TKT-"
	ticketDayLayout    = "20060102"
)

// TicketDay returns the UTC calendar day a ticket number is issued for.
func TicketDay(t time.Time) string {
	return t.UTC().Format(ticketDayLayout)
}

// FormatTicketNumber renders TKT-YYYYMMDD-NNNN. Sequences above 9999 widen
// the numeric part rather than wrapping.
func FormatTicketNumber(at time.Time, seq int) string {
	return fmt.Sprintf("%s%s-%04d", ticketNumberPrefix, TicketDay(at), seq)
}

// ParseTicketNumber splits a ticket number into its day and sequence.
func ParseTicketNumber(number string) (day time.Time, seq int, err error) {
	rest, ok := strings.CutPrefix(number, ticketNumberPrefix)
	if !ok {
		return time.Time{}, 0, fmt.Errorf("ticket number %q: missing prefix", number)
	}
	datePart, seqPart, ok := strings.Cut(rest, "-")
	if !ok || len(datePart) != len(ticketDayLayout) || len(seqPart) < 4 {
		return time.Time{}, 0, fmt.Errorf("ticket number %q: malformed", number)
	}
	day, err = time.ParseInLocation(ticketDayLayout, datePart, time.UTC)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("ticket number %q: %w", number, err)
	}
	seq, err = strconv.Atoi(seqPart)
	if err != nil || seq <= 0 {
		return time.Time{}, 0, fmt.Errorf("ticket number %q: bad sequence", number)
	}
	return day, seq, nil
}
