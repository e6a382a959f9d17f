// Package domain defines the canonical requisition record and its value
// types. The same struct backs both ledger backends: the flat-file store
// serializes it to CSV columns, and the SQLite store maps it with GORM.
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format persisted in the ledger file. It is the
// layout the original requisition sheets used, kept for interoperability with
// existing ledgers.
const TimeLayout = "2006-01-02 15:04:05"

// IDPrefix prefixes every requisition identifier (e.g. "REQ-00042").
const IDPrefix = "REQ-"

// Status is the workflow state of a requisition.
type Status string

// Workflow states. Delivered, Cancelled, and NotFound are terminal: once a
// record enters one of them its elapsed-time metric is frozen.
const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Process"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
	StatusNotFound   Status = "Not Found"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusDelivered, StatusCancelled, StatusNotFound}

// Valid reports whether s is one of the known workflow states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusDelivered, StatusCancelled, StatusNotFound:
		return true
	}
	return false
}

// Terminal reports whether s ends the elapsed-time clock.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusNotFound:
		return true
	}
	return false
}

// ParseStatus matches a status value case-insensitively.
func ParseStatus(v string) (Status, bool) {
	for _, s := range Statuses {
		if strings.EqualFold(strings.TrimSpace(v), string(s)) {
			return s, true
		}
	}
	return "", false
}

// Reason is the declared motive for a requisition.
type Reason string

// Accepted requisition reasons.
const (
	ReasonProcess Reason = "Process"
	ReasonExtra   Reason = "Extra"
	ReasonScrap   Reason = "Scrap"
	ReasonBlades  Reason = "Blades"
	ReasonTooling Reason = "Tooling"
)

// Reasons lists every valid reason in display order.
var Reasons = []Reason{ReasonProcess, ReasonExtra, ReasonScrap, ReasonBlades, ReasonTooling}

// Valid reports whether r is one of the accepted reasons.
func (r Reason) Valid() bool {
	switch r {
	case ReasonProcess, ReasonExtra, ReasonScrap, ReasonBlades, ReasonTooling:
		return true
	}
	return false
}

// ParseReason matches a reason value case-insensitively.
func ParseReason(v string) (Reason, bool) {
	for _, r := range Reasons {
		if strings.EqualFold(strings.TrimSpace(v), string(r)) {
			return r, true
		}
	}
	return "", false
}

// Requisition is one row of the ledger.
//
// Fields:
//   - ID: human-readable sequential identifier ("REQ-00001"); unique,
//     monotonically increasing per ledger, gap-tolerant.
//   - DedupToken: opaque caller-supplied string; one per submission attempt.
//     Retries carrying the same token collapse into a single stored record.
//   - CreatedAt: fixed at append time, never mutated afterwards.
//   - Room/WorkOrder/PartNumber/LotNumber: free text, stored as given (minus
//     line breaks, which the flat-file layout cannot carry).
//   - Quantity: always >= 1.
//   - FrozenElapsedMinutes: nil until the record first reaches a terminal
//     status; cleared again if the status is edited back to a live state.
type Requisition struct {
	ID                   string    `json:"id"                     gorm:"type:TEXT;primaryKey"`
	DedupToken           string    `json:"dedup_token"            gorm:"type:TEXT NOT NULL;uniqueIndex:ux_req_dedup"`
	CreatedAt            time.Time `json:"created_at"             gorm:"type:DATETIME NOT NULL"`
	Room                 string    `json:"room"                   gorm:"type:TEXT NOT NULL"`
	WorkOrder            string    `json:"work_order"             gorm:"type:TEXT NOT NULL"`
	PartNumber           string    `json:"part_number"            gorm:"type:TEXT NOT NULL"`
	LotNumber            string    `json:"lot_number"             gorm:"type:TEXT"`
	Quantity             int       `json:"quantity"               gorm:"type:INTEGER NOT NULL"`
	Reason               Reason    `json:"reason"                 gorm:"type:TEXT NOT NULL"`
	Status               Status    `json:"status"                 gorm:"type:TEXT NOT NULL"`
	Assignee             string    `json:"assignee"               gorm:"type:TEXT"`
	Issue                bool      `json:"issue"                  gorm:"type:BOOLEAN NOT NULL"`
	FrozenElapsedMinutes *int      `json:"frozen_elapsed_minutes,omitempty" gorm:"type:INTEGER"`
}

// TableName implements the GORM tabler interface for the SQLite backend.
func (Requisition) TableName() string { return "requisitions" }

// ErrInvalid is the sentinel wrapped by every validation failure. Callers
// reject such input before taking any lock.
var ErrInvalid = errors.New("invalid requisition")

// ValidateNew checks the fields a caller must supply for a new record.
// ID, CreatedAt, and Status are assigned by the store, not validated here.
func (r Requisition) ValidateNew() error {
	if strings.TrimSpace(r.DedupToken) == "" {
		return fmt.Errorf("%w: dedup token is required", ErrInvalid)
	}
	if strings.TrimSpace(r.Room) == "" {
		return fmt.Errorf("%w: room is required", ErrInvalid)
	}
	if strings.TrimSpace(r.WorkOrder) == "" {
		return fmt.Errorf("%w: work order is required", ErrInvalid)
	}
	if strings.TrimSpace(r.PartNumber) == "" {
		return fmt.Errorf("%w: part number is required", ErrInvalid)
	}
	if r.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be >= 1", ErrInvalid)
	}
	if !r.Reason.Valid() {
		return fmt.Errorf("%w: unknown reason %q", ErrInvalid, r.Reason)
	}
	return nil
}

// Normalize trims free-text fields and collapses any line breaks, since the
// ledger file is line-oriented.
func (r *Requisition) Normalize() {
	r.DedupToken = flatten(r.DedupToken)
	r.Room = flatten(r.Room)
	r.WorkOrder = flatten(r.WorkOrder)
	r.PartNumber = flatten(r.PartNumber)
	r.LotNumber = flatten(r.LotNumber)
	r.Assignee = flatten(r.Assignee)
}

func flatten(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// FormatID renders the canonical identifier for sequence number n.
func FormatID(n int) string {
	return fmt.Sprintf("%s%05d", IDPrefix, n)
}

// IDSequence extracts the numeric suffix of an identifier. It tolerates the
// shorter zero padding used by earlier ledgers ("REQ-0001"). The second
// return value is false when id does not carry a numeric suffix.
func IDSequence(id string) (int, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(id), IDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
