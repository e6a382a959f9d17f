// Requisition HTTP handlers.
//
// This file exposes the REST endpoints for the requisition ledger:
//   - POST /requisitions              (submit, dedup-aware)
//   - GET  /requisitions              (board snapshot, filterable)
//   - PUT  /requisitions/{id}/status  (workflow transition)
//   - GET  /requisitions/backups      (operator backup inventory)
//
// Handlers are transport-thin: they bind and sanity-check input, call the
// application service, and translate errors into the envelope in
// response.go.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/rmedina/go-requisition-backend/internal/domain"
	"github.com/rmedina/go-requisition-backend/internal/http/middleware"
	"github.com/rmedina/go-requisition-backend/internal/ledger"
	"github.com/rmedina/go-requisition-backend/internal/services"
	"github.com/rmedina/go-requisition-backend/internal/sysutil"
)

// RequisitionService defines the ledger operations consumed by the HTTP
// layer. Implementations must be safe for concurrent use and honor the
// provided context.
type RequisitionService interface {
	// Create appends a requisition; the bool is false for an idempotent
	// replay of a token already in the ledger.
	Create(ctx context.Context, in services.CreateInput) (ledger.View, bool, error)
	// UpdateStatus applies a status, assignee, and issue-flag edit.
	UpdateStatus(ctx context.Context, id, status, assignee string, issue bool) (ledger.View, error)
	// Board returns the derived snapshot, optionally bypassing the cache.
	Board(ctx context.Context, force bool, statusFilter, q string) (*ledger.Snapshot, error)
	// ListBackups reports available ledger backups, newest first.
	ListBackups(ctx context.Context) ([]ledger.BackupInfo, error)
}

// Handlers groups the requisition endpoints behind their service contract.
type Handlers struct {
	svc RequisitionService
}

// New constructs a Handlers bound to the given service.
func New(svc RequisitionService) *Handlers {
	return &Handlers{svc: svc}
}

//
// DTOs
//

// CreateRequisitionRequest is the JSON payload for submitting a requisition.
type CreateRequisitionRequest struct {
	Room       string `json:"room"`
	WorkOrder  string `json:"work_order"`
	PartNumber string `json:"part_number"`
	LotNumber  string `json:"lot_number"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason"`
}

// CreateRequisitionResponse wraps the stored record plus the dedup verdict.
type CreateRequisitionResponse struct {
	Record ledger.View `json:"record"`
	// Inserted is false when the dedup token matched an earlier submission
	// and the original record was returned instead.
	Inserted bool `json:"inserted"`
}

// UpdateStatusRequest is the JSON payload for a workflow transition.
type UpdateStatusRequest struct {
	Status   string `json:"status" binding:"required"`
	Assignee string `json:"assignee"`
	Issue    bool   `json:"issue"`
}

// ListBackupsResponse wraps the backup inventory.
type ListBackupsResponse struct {
	Backups []ledger.BackupInfo `json:"backups"`
}

//
// Handlers
//

// CreateRequisition handles POST /requisitions. A fresh insert returns 201;
// a replay of a known Idempotency-Key returns 200 with the original record.
func (h *Handlers) CreateRequisition(c *gin.Context) {
	var req CreateRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	token, okTok := middleware.GetDedupToken(c)
	if !okTok {
		// Middleware not mounted (direct wiring in tests); a per-request
		// token means no replay protection for this attempt.
		token = uuid.NewString()
	}

	rec, inserted, err := h.svc.Create(c.Request.Context(), services.CreateInput{
		DedupToken: token,
		Room:       req.Room,
		WorkOrder:  req.WorkOrder,
		PartNumber: req.PartNumber,
		LotNumber:  req.LotNumber,
		Quantity:   req.Quantity,
		Reason:     req.Reason,
	})
	if err != nil {
		failFromError(c, err)
		return
	}

	status := http.StatusCreated
	if !inserted {
		status = http.StatusOK
	}
	ok(c, status, CreateRequisitionResponse{Record: rec, Inserted: inserted})
}

// ListRequisitions handles GET /requisitions. Query params: force=1 bypasses
// the read cache, status filters by workflow status, q is a free-text needle
// over work order, part number, and reason.
func (h *Handlers) ListRequisitions(c *gin.Context) {
	force := sysutil.IsTruthy(c.Query("force"))

	statusFilter := strings.TrimSpace(c.Query("status"))
	if statusFilter != "" {
		if _, okS := domain.ParseStatus(statusFilter); !okS {
			fail(c, http.StatusUnprocessableEntity, ErrCodeUnknownStatus, "unknown status filter")
			return
		}
	}

	snap, err := h.svc.Board(c.Request.Context(), force, statusFilter, c.Query("q"))
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, snap)
}

// UpdateStatus handles PUT /requisitions/{id}/status.
func (h *Handlers) UpdateStatus(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if _, okID := domain.IDSequence(id); !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed requisition id")
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	rec, err := h.svc.UpdateStatus(c.Request.Context(), id, req.Status, req.Assignee, req.Issue)
	if err != nil {
		failFromError(c, err)
		return
	}
	ok(c, http.StatusOK, rec)
}

// ListBackups handles GET /requisitions/backups.
func (h *Handlers) ListBackups(c *gin.Context) {
	infos, err := h.svc.ListBackups(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	if infos == nil {
		infos = []ledger.BackupInfo{}
	}
	ok(c, http.StatusOK, ListBackupsResponse{Backups: infos})
}

// failFromError maps service errors onto the HTTP error taxonomy.
func failFromError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalid):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, err.Error())
	case errors.Is(err, services.ErrUnknownStatus):
		fail(c, http.StatusUnprocessableEntity, ErrCodeUnknownStatus, err.Error())
	case errors.Is(err, ledger.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "requisition not found")
	case errors.Is(err, ledger.ErrLockTimeout):
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeLockTimeout,
			"ledger busy, retry with the same Idempotency-Key")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}
