package repository

import "fmt"

// PersistenceError is returned when writing one entity tree failed.
// The tree is left in its last committed state.
type PersistenceError struct {
	EventID string
	Op      string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s for event %s: %v", e.Op, e.EventID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
