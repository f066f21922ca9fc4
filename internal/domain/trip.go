package domain

import "time"

// Role is a participant's role on a trip.
type Role string

const (
	// RoleOwner created the trip and may change its visibility.
	RoleOwner Role = "owner"
	// RoleMember collaborates on the itinerary.
	RoleMember Role = "member"
)

// Participant is a user attached to a trip.
type Participant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Role   Role   `json:"role"`
}

// IsOwner reports whether the participant owns the trip.
func (p Participant) IsOwner() bool {
	return p.Role == RoleOwner
}

// Author returns the denormalized author snapshot used on events.
func (p Participant) Author() Author {
	return Author{ID: p.ID, Name: p.Name, Avatar: p.Avatar}
}

// Trip is a multi-day itinerary shared by its participants.
// Creation belongs to the trip wizard; this service only flips IsPublic.
type Trip struct {
	CreatedAt    time.Time     `json:"created_at"`
	StartDate    time.Time     `json:"start_date"`
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Participants []Participant `json:"participants"`
	NumberOfDays int           `json:"number_of_days"`
	IsPublic     bool          `json:"is_public"`
}

// Participant looks up a participant by user ID.
func (t *Trip) Participant(userID string) (Participant, bool) {
	for _, p := range t.Participants {
		if p.ID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// HasDay reports whether dayIndex falls inside [0, NumberOfDays).
func (t *Trip) HasDay(dayIndex int) bool {
	return dayIndex >= 0 && dayIndex < t.NumberOfDays
}

// DayDate returns the calendar date of a trip day.
func (t *Trip) DayDate(dayIndex int) time.Time {
	return t.StartDate.AddDate(0, 0, dayIndex)
}
