package motion

import "fmt"

// InsufficientDataError is returned when a trajectory does not contain enough
// usable samples for the requested computation.
type InsufficientDataError struct {
	EntityID string
	Got      int
	Need     int
}

func (e *InsufficientDataError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("insufficient data for entity %s: %d usable samples, need %d", e.EntityID, e.Got, e.Need)
	}
	return fmt.Sprintf("insufficient data: %d usable samples, need %d", e.Got, e.Need)
}
