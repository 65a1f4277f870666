package services

import "time"

// Clock supplies server timestamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// SystemClock returns the wall clock in UTC.
func SystemClock() Clock {
	return systemClock{}
}
