package model

import "time"

// Event is a sellable event with a fixed sales window.  Tiers hang off an
// event; once EndsAt has passed no new checkout sessions may be opened
// against any of its tiers.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name of the event.
//  StartsAt  – when the event begins.
//  EndsAt    – end of the event; sales close at this instant.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type Event struct {
	ID        uint64    // events.id
	Name      string    // events.name
	StartsAt  time.Time // events.starts_at
	EndsAt    time.Time // events.ends_at
	CreatedAt time.Time // events.created_at
	UpdatedAt time.Time // events.updated_at
}

// Ended reports whether the event's sales window has closed at the given
// instant.  Comparisons are done in UTC.
func (e Event) Ended(now time.Time) bool {
	return !e.EndsAt.After(now)
}
