// Package mirror forwards committed requisition records to an external
// tracking service. The mirror is a write-only observer: the ledger is the
// source of truth, pushes happen after the commit has already succeeded, and
// a failed push is logged by the caller and otherwise ignored.
package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rmedina/go-requisition-backend/internal/domain"
)

// Client posts records to a tracking-service rows endpoint with bearer-token
// auth, one row per committed record.
type Client struct {
	url   string
	token string
	http  *http.Client
}

// New returns a client for the given rows endpoint. A zero timeout defaults
// to 5 seconds so a slow tracker can never stall a writer for long.
func New(url, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		url:   url,
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// row is the wire shape the tracking service expects: the ledger columns,
// newest rows pinned to the top of the sheet.
type row struct {
	ToTop bool           `json:"toTop"`
	Cells map[string]any `json:"cells"`
}

type pushPayload struct {
	Rows []row `json:"rows"`
}

// Push mirrors one committed record. It returns an error for logging
// purposes only; callers must never let it affect ledger state.
func (c *Client) Push(ctx context.Context, rec domain.Requisition) error {
	created := ""
	if !rec.CreatedAt.IsZero() {
		created = rec.CreatedAt.Format(domain.TimeLayout)
	}
	payload := pushPayload{Rows: []row{{
		ToTop: true,
		Cells: map[string]any{
			"id":          rec.ID,
			"created_at":  created,
			"room":        rec.Room,
			"work_order":  rec.WorkOrder,
			"part_number": rec.PartNumber,
			"lot_number":  rec.LotNumber,
			"quantity":    rec.Quantity,
			"reason":      string(rec.Reason),
			"status":      string(rec.Status),
			"assignee":    rec.Assignee,
			"issue":       rec.Issue,
		},
	}}}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode mirror row: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build mirror request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push to tracker: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("tracker responded %s", resp.Status)
	}
	return nil
}
