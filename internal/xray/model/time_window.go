package model

import (
	"errors"
	"time"
)

var ErrNonPositiveInterval = errors.New("polling interval must be greater than zero")

// TimeWindow is the half-open range [Start, End) queried during a single poll cycle.
type TimeWindow struct {
	Start time.Time
	End   time.Time
}

// NewTimeWindow returns the window ending at now and spanning interval.
func NewTimeWindow(now time.Time, interval time.Duration) (TimeWindow, error) {
	if interval <= 0 {
		return TimeWindow{}, ErrNonPositiveInterval
	}
	return TimeWindow{
		Start: now.Add(-interval),
		End:   now,
	}, nil
}

func (tw TimeWindow) Duration() time.Duration {
	return tw.End.Sub(tw.Start)
}
