package compare

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned when a comparison is triggered while a run
// for the same id is still active. Duplicate triggers are rejected, not
// queued.
var ErrAlreadyRunning = errors.New("comparison already running")

// DependencyNotReadyError is returned when a source analysis has not
// completed yet.
type DependencyNotReadyError struct {
	AnalysisID string
	Status     string
}

func (e *DependencyNotReadyError) Error() string {
	return fmt.Sprintf("analysis %s is not ready: status %s", e.AnalysisID, e.Status)
}
