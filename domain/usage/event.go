// Package usage provides usage event value types and time-window derivation.
// All functions are pure - no side effects.
package usage

import "time"

// Category identifies the kind of tokens a data point reports.
type Category string

const (
	CategoryInput      Category = "input"
	CategoryOutput     Category = "output"
	CategoryCacheRead  Category = "cache_read"
	CategoryCacheWrite Category = "cache_write"
)

// KnownCategory reports whether c is one of the enumerated token categories.
func KnownCategory(c Category) bool {
	switch c {
	case CategoryInput, CategoryOutput, CategoryCacheRead, CategoryCacheWrite:
		return true
	}
	return false
}

// Deltas holds per-category token increments. All values are non-negative.
type Deltas struct {
	Input      int64
	Output     int64
	CacheRead  int64
	CacheWrite int64
}

// Categorized returns the sum of all attributed token deltas.
func (d Deltas) Categorized() int64 {
	return d.Input + d.Output + d.CacheRead + d.CacheWrite
}

// Add returns the element-wise sum of two delta sets.
func (d Deltas) Add(o Deltas) Deltas {
	return Deltas{
		Input:      d.Input + o.Input,
		Output:     d.Output + o.Output,
		CacheRead:  d.CacheRead + o.CacheRead,
		CacheWrite: d.CacheWrite + o.CacheWrite,
	}
}

// Event is one normalized batch of token deltas extracted from a telemetry
// submission (immutable value type). Unattributed holds token counts whose
// data point carried an unrecognized or missing token_type attribute; they
// count toward the event total but no category.
type Event struct {
	Handle       string
	Deltas       Deltas
	Unattributed int64
	Timestamp    time.Time
}

// Total returns the full token count of the event, including unattributed
// tokens. This is the value applied to ranking windows and the usage log.
func (e Event) Total() int64 {
	return e.Deltas.Categorized() + e.Unattributed
}

// Entry is one immutable usage-log record. Write-once; never mutated.
type Entry struct {
	ID         string
	UserID     string
	Handle     string
	TokenCount int64
	Deltas     Deltas
	Timestamp  time.Time
}

// HourlyBucket aggregates logged tokens for one wall-clock hour.
type HourlyBucket struct {
	Hour        time.Time
	Tokens      int64
	ActiveUsers int64
}
