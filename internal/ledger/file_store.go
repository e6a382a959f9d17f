package ledger

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rmedina/go-requisition-backend/internal/domain"
)

// ledgerHeader is the fixed column schema of the persisted file. The order
// is part of the on-disk contract and matches the original requisition
// sheets, extended with the dedup token and the frozen elapsed metric.
var ledgerHeader = []string{
	"id", "dedup_token", "created_at", "room", "work_order", "part_number",
	"lot_number", "quantity", "reason", "status", "assignee", "issue",
	"frozen_elapsed_minutes",
}

// renameFile is a seam so tests can simulate a crash between preparing the
// new ledger content and the atomic replace.
var renameFile = os.Rename

// FileStore is the flat-file ledger backend. Every write runs the full
// lock → load → mutate → backup → commit sequence under the cross-process
// lock; the commit is an atomic rename, so a reader never observes a
// partially written file and a crash mid-write leaves the previous version
// intact.
type FileStore struct {
	path        string
	lock        *FileLock
	backups     *Backups
	lockTimeout time.Duration

	// now is a seam for freeze-clock tests.
	now func() time.Time
}

// NewFileStore returns a store over the ledger file at path. The lock marker
// is a ".lock" sidecar next to the ledger; backups land in backupDir.
func NewFileStore(path, backupDir string, lockTimeout time.Duration) *FileStore {
	return &FileStore{
		path:        path,
		lock:        NewFileLock(path + ".lock"),
		backups:     NewBackups(backupDir),
		lockTimeout: lockTimeout,
		now:         time.Now,
	}
}

// Backups exposes the backup manager for operator-facing listing.
func (s *FileStore) Backups() *Backups { return s.backups }

// Load implements Store. It never fails on malformed content: offending
// entries are skipped and counted, and a "corrupt" backup of the file is
// taken so the bad bytes stay available for inspection.
func (s *FileStore) Load(ctx context.Context) (LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return LoadResult{}, err
	}
	res, err := s.load()
	if err != nil {
		return LoadResult{}, err
	}
	if res.Skipped > 0 {
		corruptRows.Add(float64(res.Skipped))
		if _, err := s.backups.Snapshot(s.path, "corrupt"); err != nil {
			return res, fmt.Errorf("snapshot corrupt ledger: %w", err)
		}
	}
	return res, nil
}

// Append implements Store. Submitting a token that is already in the ledger
// is an idempotent no-op: the existing record comes back with inserted=false
// and no second write happens.
func (s *FileStore) Append(ctx context.Context, candidate domain.Requisition) (domain.Requisition, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	release, err := s.lock.Acquire(ctx)
	if err != nil {
		return domain.Requisition{}, false, err
	}
	defer release()

	res, err := s.Load(ctx)
	if err != nil {
		return domain.Requisition{}, false, err
	}

	idx := buildDedupIndex(res.Records)
	if i, ok := idx.contains(candidate.DedupToken); ok {
		appendsTotal.WithLabelValues("duplicate").Inc()
		return res.Records[i], false, nil
	}

	maxSeq := 0
	for _, r := range res.Records {
		if n, ok := domain.IDSequence(r.ID); ok && n > maxSeq {
			maxSeq = n
		}
	}
	candidate.ID = domain.FormatID(maxSeq + 1)
	candidate.CreatedAt = s.now().Truncate(time.Second)
	if candidate.Status == "" {
		candidate.Status = domain.StatusPending
	}
	candidate.FrozenElapsedMinutes = nil

	// Newest-created-first is the persisted presentation order.
	records := append([]domain.Requisition{candidate}, res.Records...)

	if _, err := s.backups.Snapshot(s.path, "pre-write"); err != nil {
		return domain.Requisition{}, false, err
	}
	if err := s.commit(records); err != nil {
		return domain.Requisition{}, false, err
	}
	appendsTotal.WithLabelValues("inserted").Inc()
	return candidate, true, nil
}

// Update implements Store. Only status, assignee, and issue are mutable;
// the freeze rule runs on every terminal transition and the frozen metric
// is cleared when the status leaves the terminal set.
func (s *FileStore) Update(ctx context.Context, id string, change Change) (domain.Requisition, error) {
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	release, err := s.lock.Acquire(ctx)
	if err != nil {
		return domain.Requisition{}, err
	}
	defer release()

	res, err := s.Load(ctx)
	if err != nil {
		return domain.Requisition{}, err
	}

	pos := -1
	for i, r := range res.Records {
		if r.ID == id {
			pos = i
			break
		}
	}
	if pos < 0 {
		return domain.Requisition{}, ErrNotFound
	}

	rec := res.Records[pos]
	ApplyStatus(&rec, change.Status, s.now())
	rec.Assignee = change.Assignee
	rec.Issue = change.Issue
	res.Records[pos] = rec

	if _, err := s.backups.Snapshot(s.path, "pre-write"); err != nil {
		return domain.Requisition{}, err
	}
	if err := s.commit(res.Records); err != nil {
		return domain.Requisition{}, err
	}
	return rec, nil
}

// maxLineBytes bounds a single ledger line. Valid rows are a few hundred
// bytes; anything past this is junk from a corrupted write and is skipped
// like any other malformed entry.
const maxLineBytes = 1 << 20

// load reads and parses the ledger file. A missing file is an empty ledger.
// Corruption is never fatal here: malformed and oversized lines alike are
// counted and skipped so the surviving entries stay writable.
func (s *FileStore) load() (LoadResult, error) {
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return LoadResult{}, nil
	}
	if err != nil {
		return LoadResult{}, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var res LoadResult
	br := bufio.NewReaderSize(f, 64*1024)
	first := true
	for {
		line, oversized, err := readLine(br)
		if err != nil && !errors.Is(err, io.EOF) {
			return LoadResult{}, fmt.Errorf("read ledger: %w", err)
		}
		atEOF := errors.Is(err, io.EOF)

		switch {
		case oversized:
			first = false
			res.Skipped++
		case strings.TrimSpace(line) == "":
		default:
			line = strings.TrimRight(line, "\r")
			if first {
				first = false
				if line == strings.Join(ledgerHeader, ",") {
					break
				}
				// Headerless legacy file: parse the first line as a record.
			}
			if rec, ok := parseRow(line); ok {
				res.Records = append(res.Records, rec)
			} else {
				res.Skipped++
			}
		}

		if atEOF {
			return res, nil
		}
	}
}

// readLine returns the next line without its newline terminator. A line
// exceeding maxLineBytes is drained up to its newline and reported as
// oversized with no content, so the caller resumes at the next line.
func readLine(br *bufio.Reader) (line string, oversized bool, err error) {
	var b strings.Builder
	for {
		chunk, err := br.ReadString('\n')
		if !oversized {
			b.WriteString(chunk)
			if b.Len() > maxLineBytes {
				oversized = true
				b.Reset()
			}
		}
		if err != nil {
			return strings.TrimSuffix(b.String(), "\n"), oversized, err
		}
		if strings.HasSuffix(chunk, "\n") {
			return strings.TrimSuffix(b.String(), "\n"), oversized, nil
		}
	}
}

// commit writes the complete new ledger to a temporary file in the same
// directory and renames it over the live path in one step.
func (s *FileStore) commit(records []domain.Requisition) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ledgerHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(marshalRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".requisitions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := renameFile(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit ledger: %w", err)
	}
	return nil
}

func marshalRow(r domain.Requisition) []string {
	frozen := ""
	if r.FrozenElapsedMinutes != nil {
		frozen = strconv.Itoa(*r.FrozenElapsedMinutes)
	}
	created := ""
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.Format(domain.TimeLayout)
	}
	return []string{
		r.ID,
		r.DedupToken,
		created,
		r.Room,
		r.WorkOrder,
		r.PartNumber,
		r.LotNumber,
		strconv.Itoa(r.Quantity),
		string(r.Reason),
		string(r.Status),
		r.Assignee,
		strconv.FormatBool(r.Issue),
		frozen,
	}
}

// parseRow decodes one ledger line. Structural problems (wrong column
// count, non-numeric quantity, unknown status) disqualify the entry; an
// unparsable timestamp does not, it just yields a zero CreatedAt so the
// freeze clock reports 0.
func parseRow(line string) (domain.Requisition, bool) {
	cr := csv.NewReader(strings.NewReader(line))
	cr.FieldsPerRecord = len(ledgerHeader)
	fields, err := cr.Read()
	if err != nil {
		return domain.Requisition{}, false
	}

	qty, err := strconv.Atoi(strings.TrimSpace(fields[7]))
	if err != nil || qty < 1 {
		return domain.Requisition{}, false
	}
	status, ok := domain.ParseStatus(fields[9])
	if !ok {
		return domain.Requisition{}, false
	}
	if strings.TrimSpace(fields[0]) == "" {
		return domain.Requisition{}, false
	}

	rec := domain.Requisition{
		ID:         strings.TrimSpace(fields[0]),
		DedupToken: fields[1],
		Room:       fields[3],
		WorkOrder:  fields[4],
		PartNumber: fields[5],
		LotNumber:  fields[6],
		Quantity:   qty,
		Reason:     domain.Reason(fields[8]),
		Status:     status,
		Assignee:   fields[10],
	}
	if t, err := time.ParseInLocation(domain.TimeLayout, strings.TrimSpace(fields[2]), time.Local); err == nil {
		rec.CreatedAt = t
	}
	// Legacy sheets wrote Python-style "True"/"False".
	if b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(fields[11]))); err == nil {
		rec.Issue = b
	}
	if v := strings.TrimSpace(fields[12]); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m >= 0 {
			rec.FrozenElapsedMinutes = &m
		}
	}
	return rec, true
}
