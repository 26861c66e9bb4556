package resolver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoPlayableStream marks a profile that resolved cleanly but had nothing
// playable. The caller tries the next profile.
var ErrNoPlayableStream = errors.New("no playable stream")

// AttemptError captures one profile attempt failure.
type AttemptError struct {
	Client string
	Err    error
}

// AllClientsFailedError is returned when every non-excluded profile either
// returned nothing or failed. It aggregates each profile's failure reason
// for diagnostics.
type AllClientsFailedError struct {
	TrackID  string
	Attempts []AttemptError
}

func (e *AllClientsFailedError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("all clients failed for track %s", e.TrackID)
	}
	reasons := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		reasons = append(reasons, a.Client+": "+a.Err.Error())
	}
	return fmt.Sprintf("all clients failed for track %s: %s", e.TrackID, strings.Join(reasons, "; "))
}
