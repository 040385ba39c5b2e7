package entity

import "time"

// StatResult is the outcome of a liveness/freshness probe against a source
// or a cache entry. Both fields are optional.
type StatResult struct {
	LastModified *time.Time
	Size         *int64
}

func NewStatResult(lastModified time.Time, size int64) *StatResult {
	return &StatResult{LastModified: &lastModified, Size: &size}
}
