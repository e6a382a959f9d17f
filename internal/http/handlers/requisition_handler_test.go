package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rmedina/go-requisition-backend/internal/domain"
	"github.com/rmedina/go-requisition-backend/internal/http/middleware"
	"github.com/rmedina/go-requisition-backend/internal/ledger"
	"github.com/rmedina/go-requisition-backend/internal/services"
)

type fakeService struct {
	createView ledger.View
	inserted   bool
	createErr  error
	createIn   services.CreateInput

	updateView ledger.View
	updateErr  error
	updatedID  string

	snap     *ledger.Snapshot
	boardErr error
	lastQ    string

	backups    []ledger.BackupInfo
	backupsErr error
}

func (f *fakeService) Create(_ context.Context, in services.CreateInput) (ledger.View, bool, error) {
	f.createIn = in
	return f.createView, f.inserted, f.createErr
}

func (f *fakeService) UpdateStatus(_ context.Context, id, status, assignee string, issue bool) (ledger.View, error) {
	f.updatedID = id
	return f.updateView, f.updateErr
}

func (f *fakeService) Board(_ context.Context, force bool, statusFilter, q string) (*ledger.Snapshot, error) {
	f.lastQ = q
	return f.snap, f.boardErr
}

func (f *fakeService) ListBackups(context.Context) ([]ledger.BackupInfo, error) {
	return f.backups, f.backupsErr
}

func newRouter(svc RequisitionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.DedupToken(middleware.DedupOptions{}))
	h := New(svc)
	r.POST("/requisitions", h.CreateRequisition)
	r.GET("/requisitions", h.ListRequisitions)
	r.PUT("/requisitions/:id/status", h.UpdateStatus)
	r.GET("/requisitions/backups", h.ListBackups)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sampleView() ledger.View {
	return ledger.View{
		Requisition: domain.Requisition{
			ID:         "REQ-00003",
			DedupToken: "tok-1",
			CreatedAt:  time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			Room:       "Clean Room 2",
			WorkOrder:  "WO-5521",
			PartNumber: "PN-100-A",
			Quantity:   4,
			Reason:     domain.ReasonProcess,
			Status:     domain.StatusPending,
		},
		ElapsedMinutes: 12,
		Bucket:         ledger.BucketGreen,
	}
}

func TestCreateRequisition_InsertedIs201(t *testing.T) {
	svc := &fakeService{createView: sampleView(), inserted: true}
	r := newRouter(svc)

	w := postJSON(t, r, "/requisitions", CreateRequisitionRequest{
		Room: "Clean Room 2", WorkOrder: "WO-5521", PartNumber: "PN-100-A",
		Quantity: 4, Reason: "Process",
	}, map[string]string{middleware.HeaderIdempotencyKey: "tok-1"})

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201; body %s", w.Code, w.Body.String())
	}
	var resp CreateRequisitionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Inserted || resp.Record.ID != "REQ-00003" {
		t.Fatalf("resp = %+v", resp)
	}
	if svc.createIn.DedupToken != "tok-1" {
		t.Fatalf("service got token %q, want header value", svc.createIn.DedupToken)
	}
}

func TestCreateRequisition_ReplayIs200(t *testing.T) {
	svc := &fakeService{createView: sampleView(), inserted: false}
	r := newRouter(svc)

	w := postJSON(t, r, "/requisitions", CreateRequisitionRequest{
		Room: "Clean Room 2", WorkOrder: "WO-5521", PartNumber: "PN-100-A",
		Quantity: 4, Reason: "Process",
	}, map[string]string{middleware.HeaderIdempotencyKey: "tok-1"})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp CreateRequisitionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Inserted {
		t.Fatalf("expected inserted=false in replay response")
	}
}

func TestCreateRequisition_MissingHeaderTokenGenerated(t *testing.T) {
	svc := &fakeService{createView: sampleView(), inserted: true}
	r := newRouter(svc)

	w := postJSON(t, r, "/requisitions", CreateRequisitionRequest{
		Room: "A", WorkOrder: "B", PartNumber: "C", Quantity: 1, Reason: "Extra",
	}, nil)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", w.Code)
	}
	if svc.createIn.DedupToken == "" {
		t.Fatalf("expected generated dedup token for headerless submit")
	}
}

func TestCreateRequisition_BadJSON(t *testing.T) {
	r := newRouter(&fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/requisitions", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateRequisition_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", fmt.Errorf("quantity: %w", domain.ErrInvalid), http.StatusUnprocessableEntity, ErrCodeValidation},
		{"lock timeout", ledger.ErrLockTimeout, http.StatusServiceUnavailable, ErrCodeLockTimeout},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newRouter(&fakeService{createErr: tc.err})
			w := postJSON(t, r, "/requisitions", CreateRequisitionRequest{
				Room: "A", WorkOrder: "B", PartNumber: "C", Quantity: 1, Reason: "Scrap",
			}, nil)
			if w.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantStatus)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Code != tc.wantCode {
				t.Fatalf("code = %q, want %q", resp.Code, tc.wantCode)
			}
			if tc.err == ledger.ErrLockTimeout && w.Header().Get("Retry-After") == "" {
				t.Fatalf("missing Retry-After on 503")
			}
		})
	}
}

func TestListRequisitions_ReturnsSnapshot(t *testing.T) {
	snap := &ledger.Snapshot{
		Records:      []ledger.View{sampleView()},
		StatusCounts: map[domain.Status]int{domain.StatusPending: 1},
		GeneratedAt:  time.Now(),
	}
	svc := &fakeService{snap: snap}
	r := newRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requisitions?q=pn-100", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.lastQ != "pn-100" {
		t.Fatalf("q = %q, not forwarded", svc.lastQ)
	}
	var got ledger.Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Records) != 1 || got.Records[0].ID != "REQ-00003" {
		t.Fatalf("snapshot = %+v", got)
	}
}

func TestListRequisitions_UnknownStatusFilter(t *testing.T) {
	r := newRouter(&fakeService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requisitions?status=Teleported", nil))
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
}

func TestUpdateStatus_Paths(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		svc := &fakeService{updateView: sampleView()}
		r := newRouter(svc)
		raw, _ := json.Marshal(UpdateStatusRequest{Status: "Delivered", Assignee: "maria"})
		req := httptest.NewRequest(http.MethodPut, "/requisitions/REQ-00003/status", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d; body %s", w.Code, w.Body.String())
		}
		if svc.updatedID != "REQ-00003" {
			t.Fatalf("service got id %q", svc.updatedID)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		r := newRouter(&fakeService{})
		raw, _ := json.Marshal(UpdateStatusRequest{Status: "Delivered"})
		req := httptest.NewRequest(http.MethodPut, "/requisitions/banana/status", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", w.Code)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		r := newRouter(&fakeService{updateErr: ledger.ErrNotFound})
		raw, _ := json.Marshal(UpdateStatusRequest{Status: "Delivered"})
		req := httptest.NewRequest(http.MethodPut, "/requisitions/REQ-09999/status", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", w.Code)
		}
	})

	t.Run("unknown status", func(t *testing.T) {
		r := newRouter(&fakeService{updateErr: services.ErrUnknownStatus})
		raw, _ := json.Marshal(UpdateStatusRequest{Status: "Vanished"})
		req := httptest.NewRequest(http.MethodPut, "/requisitions/REQ-00003/status", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnprocessableEntity {
			t.Fatalf("status = %d, want 422", w.Code)
		}
	})
}

func TestListBackups_EmptyIsArrayNotNull(t *testing.T) {
	r := newRouter(&fakeService{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requisitions/backups", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := w.Body.String(); got != `{"backups":[]}` {
		t.Fatalf("body = %s", got)
	}
}

func TestListBackups_ReturnsInventory(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := &fakeService{backups: []ledger.BackupInfo{{
		Name: "requisitions-20260501T080000.000-pre-write.csv", Tag: "pre-write", TakenAt: now, SizeBytes: 512,
	}}}
	r := newRouter(svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/requisitions/backups", nil))
	var resp ListBackupsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Backups) != 1 || resp.Backups[0].Tag != "pre-write" {
		t.Fatalf("resp = %+v", resp)
	}
}
