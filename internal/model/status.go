package model

// Project status constants.
const (
	StatusCreated   = "created"
	StatusActive    = "active"
	StatusSuspended = "suspended"
	StatusDeleting  = "deleting"
	StatusDeleted   = "deleted"
)

// projectTransitions is the project lifecycle transition table. A status
// missing from the map is terminal.
var projectTransitions = map[string][]string{
	StatusCreated:   {StatusActive, StatusDeleting},
	StatusActive:    {StatusSuspended, StatusDeleting},
	StatusSuspended: {StatusActive, StatusDeleting},
	StatusDeleting:  {StatusDeleted},
}

// CanTransition reports whether the project lifecycle permits moving from
// one status to another.
func CanTransition(from, to string) bool {
	for _, allowed := range projectTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}
