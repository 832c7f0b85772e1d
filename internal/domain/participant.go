// Package domain contains entities without logic, just meta-data
package domain

type UserID string

// Participant is one member of the joined group, as announced by the
// server's presence events. The roster is keyed by ID; a repeated join
// for the same ID overwrites the previous entry.
type Participant struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}
