package innertube

import "fmt"

// HTTPStatusError indicates a non-200 response from the upstream endpoint.
type HTTPStatusError struct {
	Client     string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("upstream http status=%d client=%s", e.StatusCode, e.Client)
}

// PlayabilityError indicates an unplayable metadata response.
type PlayabilityError struct {
	Client string
	Status string
	Reason string
}

func (e *PlayabilityError) Error() string {
	return fmt.Sprintf("unplayable status=%s client=%s reason=%s", e.Status, e.Client, e.Reason)
}
