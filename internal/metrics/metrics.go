// Package metrics exports vault accounting and backup events as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vault-go/internal/vault"
)

const namespace = "vault"

// Result label values.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultSuccess  = "success"
	ResultFailure  = "failure"
)

// Metrics holds all Prometheus collectors for the vault.
type Metrics struct {
	UploadsTotal       *prometheus.CounterVec // vault_uploads_total{result}
	UploadedBytes      prometheus.Counter     // vault_uploaded_bytes_total
	DeletionsTotal     prometheus.Counter     // vault_deletions_total
	DeletedBytes       prometheus.Counter     // vault_deleted_bytes_total
	RecalculationTotal prometheus.Counter     // vault_usage_recalculations_total
	BackupsTotal       *prometheus.CounterVec // vault_backups_total{result}
	BackupBytes        prometheus.Counter     // vault_backup_bytes_total
	RemovedBackups     prometheus.Counter     // vault_backups_removed_total
}

// New registers the vault collectors on registry.
// A nil registry falls back to prometheus.DefaultRegisterer.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Upload tracking attempts by result",
		}, []string{"result"}),

		UploadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes added to account usage by tracked uploads",
		}),

		DeletionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletions_total",
			Help:      "Tracked file deletions",
		}),

		DeletedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deleted_bytes_total",
			Help:      "Bytes released from account usage by tracked deletions",
		}),

		RecalculationTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "usage_recalculations_total",
			Help:      "Usage recalculations from disk",
		}),

		BackupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_total",
			Help:      "Backup attempts by result",
		}, []string{"result"}),

		BackupBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backup_bytes_total",
			Help:      "Bytes written to backup archives",
		}),

		RemovedBackups: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_removed_total",
			Help:      "Backups deleted explicitly or by cleanup",
		}),
	}

	// Pre-create label combinations so they are exported at zero.
	for _, r := range []string{ResultAccepted, ResultRejected} {
		m.UploadsTotal.WithLabelValues(r)
	}
	for _, r := range []string{ResultSuccess, ResultFailure} {
		m.BackupsTotal.WithLabelValues(r)
	}
	return m
}

func (m *Metrics) UploadTracked(size int64) {
	m.UploadsTotal.WithLabelValues(ResultAccepted).Inc()
	m.UploadedBytes.Add(float64(size))
}

func (m *Metrics) UploadRejected() {
	m.UploadsTotal.WithLabelValues(ResultRejected).Inc()
}

func (m *Metrics) DeletionTracked(size int64) {
	m.DeletionsTotal.Inc()
	if size > 0 {
		m.DeletedBytes.Add(float64(size))
	}
}

func (m *Metrics) UsageRecalculated() {
	m.RecalculationTotal.Inc()
}

func (m *Metrics) BackupCreated(size int64) {
	m.BackupsTotal.WithLabelValues(ResultSuccess).Inc()
	m.BackupBytes.Add(float64(size))
}

func (m *Metrics) BackupFailed() {
	m.BackupsTotal.WithLabelValues(ResultFailure).Inc()
}

func (m *Metrics) BackupsRemoved(n int) {
	if n > 0 {
		m.RemovedBackups.Add(float64(n))
	}
}

var _ vault.Observer = (*Metrics)(nil)
