package ledger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// backupStampLayout orders backup names chronologically when sorted
// lexically, which keeps listing cheap.
const backupStampLayout = "20060102T150405.000"

// Backups takes timestamped point-in-time copies of the ledger file.
// Snapshots are write-only from the core's perspective: nothing here ever
// restores one automatically. Retention is an operator concern.
type Backups struct {
	dir string
	now func() time.Time
}

// NewBackups returns a backup manager writing into dir. The directory is
// created on first snapshot.
func NewBackups(dir string) *Backups {
	return &Backups{dir: dir, now: time.Now}
}

// Snapshot copies src into the backup directory under a name embedding the
// current timestamp and the reason tag (e.g. "pre-write", "corrupt").
// A missing src is not an error: there is simply nothing to preserve yet.
// It returns the path of the written backup, or "" when src did not exist.
func (b *Backups) Snapshot(src, tag string) (string, error) {
	in, err := os.Open(src)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open ledger for backup: %w", err)
	}
	defer in.Close()

	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	name := fmt.Sprintf("requisitions-%s-%s.csv", b.now().UTC().Format(backupStampLayout), sanitizeTag(tag))
	dst := filepath.Join(b.dir, name)

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create backup file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", fmt.Errorf("copy ledger to backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	backupsTaken.WithLabelValues(sanitizeTag(tag)).Inc()
	return dst, nil
}

// BackupInfo describes one snapshot in the backup directory.
type BackupInfo struct {
	Name      string    `json:"name"`
	Tag       string    `json:"tag"`
	TakenAt   time.Time `json:"taken_at"`
	SizeBytes int64     `json:"size_bytes"`
}

// List returns the available backups, newest first. Files that do not match
// the snapshot naming scheme are ignored.
func (b *Backups) List() ([]BackupInfo, error) {
	entries, err := os.ReadDir(b.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []BackupInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		stamp, tag, ok := parseBackupName(e.Name())
		if !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, BackupInfo{
			Name:      e.Name(),
			Tag:       tag,
			TakenAt:   stamp,
			SizeBytes: info.Size(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name > out[j].Name })
	return out, nil
}

func parseBackupName(name string) (time.Time, string, bool) {
	rest, ok := strings.CutPrefix(name, "requisitions-")
	if !ok {
		return time.Time{}, "", false
	}
	rest, ok = strings.CutSuffix(rest, ".csv")
	if !ok || len(rest) < len(backupStampLayout)+2 {
		return time.Time{}, "", false
	}
	stamp, err := time.Parse(backupStampLayout, rest[:len(backupStampLayout)])
	if err != nil {
		return time.Time{}, "", false
	}
	return stamp, rest[len(backupStampLayout)+1:], true
}

// sanitizeTag keeps reason tags filename-safe.
func sanitizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return "manual"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, tag)
}
