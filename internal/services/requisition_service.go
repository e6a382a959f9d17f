// Package services – RequisitionService
//
// The service validates input before any lock is taken, drives the ledger
// store for writes, maintains the bounded-staleness read cache, and notifies
// the external tracking mirror after each successful commit. The mirror is
// strictly an observer: its failure is logged and never affects the result
// the caller sees.
package services

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rmedina/go-requisition-backend/internal/domain"
	"github.com/rmedina/go-requisition-backend/internal/ledger"
)

// Mirror receives a copy of each committed record, fire-and-forget.
type Mirror interface {
	Push(ctx context.Context, rec domain.Requisition) error
}

// BackupLister is implemented by backends that keep operator-facing
// point-in-time copies (the flat-file store).
type BackupLister interface {
	Backups() *ledger.Backups
}

// RequisitionService wires the ledger store, read cache, display thresholds,
// and the optional mirror into the three boundary operations.
type RequisitionService struct {
	Store ledger.Store
	Cache *ledger.Cache

	// Mirror is optional; nil disables mirroring.
	Mirror        Mirror
	MirrorTimeout time.Duration

	// GreenThreshold and AmberThreshold bound the traffic-light buckets.
	GreenThreshold time.Duration
	AmberThreshold time.Duration

	now func() time.Time
}

// NewRequisitionService constructs a service with the board defaults the
// warehouse has always used: green under 20 minutes, amber under 40.
func NewRequisitionService(store ledger.Store, cacheTTL time.Duration) *RequisitionService {
	return &RequisitionService{
		Store:          store,
		Cache:          ledger.NewCache(cacheTTL),
		MirrorTimeout:  5 * time.Second,
		GreenThreshold: 20 * time.Minute,
		AmberThreshold: 40 * time.Minute,
		now:            time.Now,
	}
}

// CreateInput is the caller-supplied portion of a new requisition. The
// dedup token identifies the submission attempt: retries reusing it are
// collapsed into the original record.
type CreateInput struct {
	DedupToken string
	Room       string
	WorkOrder  string
	PartNumber string
	LotNumber  string
	Quantity   int
	Reason     string
}

// Create validates and appends a requisition. Validation failures (wrapping
// domain.ErrInvalid) are rejected before the ledger lock is touched. The
// returned bool is false for an idempotent replay of an earlier submission.
func (s *RequisitionService) Create(ctx context.Context, in CreateInput) (ledger.View, bool, error) {
	reason := domain.Reason(strings.TrimSpace(in.Reason))
	if parsed, ok := domain.ParseReason(in.Reason); ok {
		reason = parsed
	}
	candidate := domain.Requisition{
		DedupToken: in.DedupToken,
		Room:       in.Room,
		WorkOrder:  in.WorkOrder,
		PartNumber: in.PartNumber,
		LotNumber:  in.LotNumber,
		Quantity:   in.Quantity,
		Reason:     reason,
	}
	candidate.Normalize()
	if err := candidate.ValidateNew(); err != nil {
		return ledger.View{}, false, err
	}

	rec, inserted, err := s.Store.Append(ctx, candidate)
	if err != nil {
		return ledger.View{}, false, err
	}
	if inserted {
		s.Cache.Invalidate()
		s.notifyMirror(rec)
	}
	return s.view(rec), inserted, nil
}

// UpdateStatus applies a status/assignee/issue edit to an existing record.
// It returns ledger.ErrNotFound for an unknown id and ErrUnknownStatus for a
// status outside the workflow set.
func (s *RequisitionService) UpdateStatus(ctx context.Context, id, status, assignee string, issue bool) (ledger.View, error) {
	parsed, ok := domain.ParseStatus(status)
	if !ok {
		return ledger.View{}, ErrUnknownStatus
	}

	rec, err := s.Store.Update(ctx, strings.TrimSpace(id), ledger.Change{
		Status:   parsed,
		Assignee: strings.TrimSpace(assignee),
		Issue:    issue,
	})
	if err != nil {
		return ledger.View{}, err
	}
	s.Cache.Invalidate()
	s.notifyMirror(rec)
	return s.view(rec), nil
}

// Board returns the derived snapshot, optionally bypassing the cache and
// filtered by status and a free-text needle over work order, part number,
// and reason. Filtering never mutates the cached snapshot.
func (s *RequisitionService) Board(ctx context.Context, force bool, statusFilter, q string) (*ledger.Snapshot, error) {
	snap, err := s.Cache.Get(ctx, force, s.buildSnapshot)
	if err != nil {
		return nil, err
	}
	if statusFilter == "" && strings.TrimSpace(q) == "" {
		return snap, nil
	}

	status, haveStatus := domain.ParseStatus(statusFilter)
	needle := strings.ToLower(strings.TrimSpace(q))

	out := &ledger.Snapshot{
		StatusCounts: snap.StatusCounts,
		Skipped:      snap.Skipped,
		GeneratedAt:  snap.GeneratedAt,
	}
	for _, v := range snap.Records {
		if haveStatus && v.Status != status {
			continue
		}
		if needle != "" && !matches(v, needle) {
			continue
		}
		out.Records = append(out.Records, v)
	}
	return out, nil
}

// ListBackups reports the available ledger backups, newest first. Backends
// without a backup directory (SQLite) report none.
func (s *RequisitionService) ListBackups(ctx context.Context) ([]ledger.BackupInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bl, ok := s.Store.(BackupLister)
	if !ok {
		return nil, nil
	}
	return bl.Backups().List()
}

// buildSnapshot reloads the ledger and recomputes every derived value.
func (s *RequisitionService) buildSnapshot(ctx context.Context) (*ledger.Snapshot, error) {
	res, err := s.Store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if res.Skipped > 0 {
		log.Warn().Int("skipped", res.Skipped).Msg("ledger load skipped malformed entries")
	}

	now := s.now()
	snap := &ledger.Snapshot{
		Records:      make([]ledger.View, 0, len(res.Records)),
		StatusCounts: make(map[domain.Status]int, len(domain.Statuses)),
		Skipped:      res.Skipped,
		GeneratedAt:  now,
	}
	for _, rec := range res.Records {
		snap.Records = append(snap.Records, s.viewAt(rec, now))
		snap.StatusCounts[rec.Status]++
	}
	return snap, nil
}

func (s *RequisitionService) view(rec domain.Requisition) ledger.View {
	return s.viewAt(rec, s.now())
}

func (s *RequisitionService) viewAt(rec domain.Requisition, now time.Time) ledger.View {
	elapsed := ledger.ElapsedMinutes(rec, now)
	return ledger.View{
		Requisition:    rec,
		ElapsedMinutes: elapsed,
		Bucket:         ledger.BucketFor(elapsed, s.GreenThreshold, s.AmberThreshold),
	}
}

// notifyMirror forwards a committed record to the tracking mirror. Errors
// are logged and dropped: the mirror must never roll back or block a commit
// that already succeeded.
func (s *RequisitionService) notifyMirror(rec domain.Requisition) {
	if s.Mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.MirrorTimeout)
	defer cancel()
	if err := s.Mirror.Push(ctx, rec); err != nil {
		log.Warn().Err(err).Str("id", rec.ID).Msg("mirror push failed")
	}
}

func matches(v ledger.View, needle string) bool {
	return strings.Contains(strings.ToLower(v.WorkOrder), needle) ||
		strings.Contains(strings.ToLower(v.PartNumber), needle) ||
		strings.Contains(strings.ToLower(string(v.Reason)), needle)
}
