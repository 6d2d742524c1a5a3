package app

import "github.com/google/uuid"

// newID returns a fresh game identifier.
func newID() string { return uuid.NewString() }

// ValidID reports whether id has the shape of a game or player identifier.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
