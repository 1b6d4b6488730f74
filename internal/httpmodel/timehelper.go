package httpmodel

import "time"

// NowMs returns the current wall-clock time in Unix milliseconds, the
// unit used for TaskMonitor heartbeat scores and the wire-format
// duration fields' source timestamps.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// Elapsed returns the number of seconds elapsed since start, for the
// "duration (seconds)" field on Response and Error.
func Elapsed(start time.Time) float64 {
	return time.Since(start).Seconds()
}
