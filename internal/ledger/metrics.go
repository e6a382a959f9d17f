// Prometheus collectors for ledger activity. Label cardinality is kept to
// the small fixed sets below so dashboards stay cheap.
package ledger

import "github.com/prometheus/client_golang/prometheus"

var (
	// appendsTotal counts committed appends by outcome ("inserted" or
	// "duplicate"); duplicates are idempotent no-ops, not failures.
	appendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_appends_total",
			Help: "Total append operations by outcome.",
		},
		[]string{"outcome"},
	)

	// corruptRows counts ledger entries skipped by the recovery-aware loader.
	corruptRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_corrupt_rows_skipped_total",
			Help: "Total malformed ledger entries skipped during load.",
		},
	)

	// lockTimeouts counts writers that gave up waiting for the ledger lock.
	lockTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_lock_timeouts_total",
			Help: "Total lock acquisitions abandoned at the timeout bound.",
		},
	)

	// backupsTaken counts snapshots by reason tag ("pre-write", "corrupt", ...).
	backupsTaken = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_backups_taken_total",
			Help: "Total ledger backups taken by reason tag.",
		},
		[]string{"tag"},
	)
)

func init() {
	prometheus.MustRegister(appendsTotal, corruptRows, lockTimeouts, backupsTaken)
}
