package download

import "sync/atomic"

// Stats tracks process-wide download outcomes. The counters only ever grow;
// they exist so the platform can report how many image fetches ran and how
// many of them failed over the lifetime of the process.
type Stats struct {
	attempts atomic.Int64
	failures atomic.Int64
}

// RecordAttempt increments the attempt counter.
func (s *Stats) RecordAttempt() {
	s.attempts.Add(1)
}

// RecordFailure increments the failure counter.
func (s *Stats) RecordFailure() {
	s.failures.Add(1)
}

// Attempts returns the total number of download attempts so far.
func (s *Stats) Attempts() int64 {
	return s.attempts.Load()
}

// Failures returns the total number of failed downloads so far.
func (s *Stats) Failures() int64 {
	return s.failures.Load()
}
