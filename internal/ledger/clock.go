package ledger

import (
	"time"

	"github.com/rmedina/go-requisition-backend/internal/domain"
)

// ElapsedMinutes returns the age of a record in whole minutes.
//
// A frozen value always wins: once a record entered a terminal status its
// metric stops advancing. Otherwise the value is floor(now - created_at),
// truncated toward zero. A record whose created_at could not be parsed
// (zero time) reports 0 rather than a bogus multi-year age.
func ElapsedMinutes(r domain.Requisition, now time.Time) int {
	if r.FrozenElapsedMinutes != nil {
		return *r.FrozenElapsedMinutes
	}
	if r.CreatedAt.IsZero() {
		return 0
	}
	m := int(now.Sub(r.CreatedAt).Minutes())
	if m < 0 {
		return 0
	}
	return m
}

// ApplyStatus sets the record's status and runs the freeze rule:
// every transition into the terminal set fixes the elapsed metric exactly
// once, and every transition out of it clears the frozen value so a later
// terminal entry recomputes it. Non-terminal to non-terminal transitions
// leave the metric live.
func ApplyStatus(r *domain.Requisition, status domain.Status, now time.Time) {
	r.Status = status
	if status.Terminal() {
		if r.FrozenElapsedMinutes == nil {
			m := ElapsedMinutes(*r, now)
			r.FrozenElapsedMinutes = &m
		}
		return
	}
	r.FrozenElapsedMinutes = nil
}

// Bucket is the traffic-light age classification shown on the warehouse
// board.
type Bucket string

const (
	BucketGreen Bucket = "green"
	BucketAmber Bucket = "amber"
	BucketRed   Bucket = "red"
)

// BucketFor classifies an elapsed-minutes value against the two configured
// thresholds: green strictly under the first, amber strictly under the
// second, red beyond.
func BucketFor(elapsedMinutes int, green, amber time.Duration) Bucket {
	d := time.Duration(elapsedMinutes) * time.Minute
	switch {
	case d < green:
		return BucketGreen
	case d < amber:
		return BucketAmber
	default:
		return BucketRed
	}
}
