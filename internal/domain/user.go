package domain

import "time"

// Role enumerates the roles the Staff Directory assigns to users.
type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleStaff      Role = "STAFF"
	RoleTechnician Role = "TECHNICIAN"
	RoleAdmin      Role = "ADMIN"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleStaff, RoleTechnician, RoleAdmin:
		return true
	default:
		return false
	}
}

// SupportStaff reports whether the role works tickets (technicians and admins).
func (r Role) SupportStaff() bool {
	return r == RoleTechnician || r == RoleAdmin
}

// Availability is the directory-owned presence state of a user.
type Availability string

const (
	AvailabilityAvailable Availability = "AVAILABLE"
	AvailabilityBusy      Availability = "BUSY"
	AvailabilityAway      Availability = "AWAY"
	AvailabilityOffline   Availability = "OFFLINE"
)

// User is the directory record for requesters and support staff.
type User struct {
	ID             string
	Name           string
	Email          string
	Role           Role
	Department     string
	SupportAreas   []TicketCategory
	Availability   Availability
	CurrentTickets int
	LastAssignedAt *time.Time
	Active         bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Supports reports whether the user declared category as a support area.
func (u *User) Supports(category TicketCategory) bool {
	for _, area := range u.SupportAreas {
		if area == category {
			return true
		}
	}
	return false
}

// Assignable reports whether the user may receive new work right now.
func (u *User) Assignable() bool {
	return u.Active && u.Role.SupportStaff() && u.Availability == AvailabilityAvailable
}
