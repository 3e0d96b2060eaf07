package observability

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics menghitung hasil impor CoA dan transisi jurnal. Semua method
// aman dipanggil pada receiver nil.
type LedgerMetrics struct {
	imports     *prometheus.CounterVec
	importRows  *prometheus.CounterVec
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
}

// NewLedgerMetrics mendaftarkan kolektor ledger ke registerer.
func NewLedgerMetrics(registerer prometheus.Registerer) *LedgerMetrics {
	imports := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_coa_imports_total",
		Help: "CoA imports by result (applied, dry_run, rejected, conflict, failed).",
	}, []string{"result"})
	importRows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_coa_import_rows_total",
		Help: "Accounts touched by applied imports, by action.",
	}, []string{"action"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_journal_transitions_total",
		Help: "Journal entry lifecycle transitions by target status.",
	}, []string{"status"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_journal_validation_failures_total",
		Help: "Journal entries rejected by validation, by kind.",
	}, []string{"kind"})
	registerer.MustRegister(imports, importRows, transitions, rejections)
	return &LedgerMetrics{imports: imports, importRows: importRows, transitions: transitions, rejections: rejections}
}

// ImportFinished mencatat satu impor beserta jumlah baris per aksi.
func (m *LedgerMetrics) ImportFinished(result string, created, updated, retired, skipped int) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(result).Inc()
	m.importRows.WithLabelValues("create").Add(float64(created))
	m.importRows.WithLabelValues("update").Add(float64(updated))
	m.importRows.WithLabelValues("retire").Add(float64(retired))
	m.importRows.WithLabelValues("skip").Add(float64(skipped))
}

// EntryTransition mencatat perubahan status jurnal.
func (m *LedgerMetrics) EntryTransition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// ValidationRejected mencatat jurnal yang ditolak validator.
func (m *LedgerMetrics) ValidationRejected(kind string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(kind).Inc()
}
