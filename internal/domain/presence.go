package domain

import "time"

// Presence describes a participant currently connected to a trip's live session.
type Presence struct {
	ConnectedAt time.Time `json:"connected_at"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Avatar      string    `json:"avatar,omitempty"`
	Color       string    `json:"color"`
	// ViewingDay is the day the user last reported looking at, -1 when unknown.
	ViewingDay int  `json:"viewing_day"`
	EditMode   bool `json:"edit_mode"`
}
