package metrics

import "time"

// RequestOutcome is the result of a single request as seen by a virtual
// user. Once recorded it is never mutated.
type RequestOutcome struct {
	// Label is the group/request name the outcome is aggregated under.
	Label  string
	Method string

	// StatusCode is 0 when the request never produced a response.
	StatusCode int
	Duration   time.Duration
	Bytes      int64

	// Checks maps check name to pass/fail.
	Checks map[string]bool

	// ExpectedStatuses lists the status codes that count as success.
	// Empty means any 2xx.
	ExpectedStatuses []int

	// Err is set for transport failures (refused, timeout, DNS).
	Err error

	Timestamp time.Time
}

// Failed reports whether the outcome counts towards the error rate.
func (o RequestOutcome) Failed() bool {
	if o.Err != nil || o.StatusCode == 0 {
		return true
	}
	if len(o.ExpectedStatuses) == 0 {
		return o.StatusCode < 200 || o.StatusCode > 299
	}
	for _, s := range o.ExpectedStatuses {
		if s == o.StatusCode {
			return false
		}
	}
	return true
}
