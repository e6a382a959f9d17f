// Package ledger implements the authoritative requisition record store: a
// crash-safe flat file guarded by a cross-process lock, with pre-write
// backups, idempotent append, corruption-tolerant loading, and a bounded
// staleness read cache.
//
// The Store interface abstracts the backing medium so the flat file can be
// swapped for an embedded database (see internal/repo for the SQLite
// implementation) without changing callers.
package ledger

import (
	"context"
	"errors"

	"github.com/rmedina/go-requisition-backend/internal/domain"
)

// Store is the persistence contract shared by every ledger backend.
//
// Implementations serialize writes: two concurrent Append calls never both
// observe the other's uncommitted state, and never assign the same id.
// Reads are not linearizable across processes; callers that need fresher
// data than the read cache provides must force a reload.
type Store interface {
	// Load returns every committed record, newest-created-first. Structurally
	// invalid entries are skipped and counted, never fatal.
	Load(ctx context.Context) (LoadResult, error)

	// Append inserts candidate unless its dedup token is already present.
	// On a duplicate it returns the existing record and inserted=false; the
	// call is a successful idempotent no-op, not an error. The store assigns
	// ID, CreatedAt, and the initial status.
	Append(ctx context.Context, candidate domain.Requisition) (domain.Requisition, bool, error)

	// Update applies the mutable fields (status, assignee, issue) to the
	// record with the given id, running the freeze rule on every terminal
	// transition. Returns ErrNotFound when id is unknown.
	Update(ctx context.Context, id string, change Change) (domain.Requisition, error)
}

// Change carries the mutable fields of an update. Everything else on a
// record is fixed at append time.
type Change struct {
	Status   domain.Status
	Assignee string
	Issue    bool
}

// LoadResult is the outcome of a recovery-aware load. Skipped counts ledger
// entries that could not be parsed; when it is non-zero a "corrupt" backup
// of the offending file has already been taken.
type LoadResult struct {
	Records []domain.Requisition
	Skipped int
}

// Sentinel errors shared by ledger backends.
var (
	// ErrNotFound reports an update referencing an unknown record id.
	// No partial mutation is applied.
	ErrNotFound = errors.New("requisition not found")

	// ErrLockTimeout reports that the ledger lock could not be acquired
	// within the configured bound. Callers treat it as retryable.
	ErrLockTimeout = errors.New("ledger lock timeout")
)
