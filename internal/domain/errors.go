package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyResult signals that zero records matched the request filters.
// Callers performing boundary queries must treat this as a valid-but-empty
// outcome, not a failure, so spatial filtering can degrade gracefully.
var ErrEmptyResult = errors.New("no records matched the request")

// MalformedResponseError wraps a payload that could not be parsed into the
// expected provider structure. It carries the failing request context so
// network and parse failures surface with station and range attached.
type MalformedResponseError struct {
	Provider string
	Context  string
	Err      error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response (%s): %v", e.Provider, e.Context, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// RangeEmptyError signals that a series request produced no rows after
// assembly, e.g. because the provider holds no data for the interval.
type RangeEmptyError struct {
	Provider string
	Station  string
	Start    time.Time
	End      time.Time
}

func (e *RangeEmptyError) Error() string {
	return fmt.Sprintf("%s: station %s returned no data between %s and %s",
		e.Provider, e.Station, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}
