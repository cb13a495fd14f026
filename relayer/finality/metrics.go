package finality

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics carries the relay's metric vectors and the private
// registry they are registered on. A nil *PrometheusMetrics disables
// metric updates entirely.
type PrometheusMetrics struct {
	Registry             *prometheus.Registry
	BestSourceBlock      *prometheus.GaugeVec
	BestTargetBlock      *prometheus.GaugeVec
	SubmittedProofs      *prometheus.CounterVec
	RejectedProofs       *prometheus.CounterVec
	ConnectionErrors     *prometheus.CounterVec
	MandatoryHeadersSeen *prometheus.CounterVec
}

func (m *PrometheusMetrics) SetBestSourceBlock(pipeline string, number uint64) {
	m.BestSourceBlock.WithLabelValues(pipeline).Set(float64(number))
}

func (m *PrometheusMetrics) SetBestTargetBlock(pipeline string, number uint64) {
	m.BestTargetBlock.WithLabelValues(pipeline).Set(float64(number))
}

func (m *PrometheusMetrics) IncSubmittedProofs(pipeline string, mandatory bool) {
	m.SubmittedProofs.WithLabelValues(pipeline, boolLabel(mandatory)).Inc()
}

func (m *PrometheusMetrics) IncRejectedProofs(pipeline string) {
	m.RejectedProofs.WithLabelValues(pipeline).Inc()
}

func (m *PrometheusMetrics) IncConnectionErrors(pipeline, chain string) {
	m.ConnectionErrors.WithLabelValues(pipeline, chain).Inc()
}

func (m *PrometheusMetrics) IncMandatoryHeadersSeen(pipeline string) {
	m.MandatoryHeadersSeen.WithLabelValues(pipeline).Inc()
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func NewPrometheusMetrics() *PrometheusMetrics {
	pipelineLabels := []string{"pipeline"}
	submitLabels := []string{"pipeline", "mandatory"}
	connLabels := []string{"pipeline", "chain"}
	registry := prometheus.NewRegistry()
	registerer := promauto.With(registry)
	return &PrometheusMetrics{
		Registry: registry,
		BestSourceBlock: registerer.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finality_relayer_best_source_block",
			Help: "The highest finalized source block observed from the proof stream",
		}, pipelineLabels),
		BestTargetBlock: registerer.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finality_relayer_best_target_block",
			Help: "The best finalized source block known to the target chain's bridge",
		}, pipelineLabels),
		SubmittedProofs: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "finality_relayer_submitted_proofs_total",
			Help: "The total number of finality proofs submitted to the target chain",
		}, submitLabels),
		RejectedProofs: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "finality_relayer_rejected_proofs_total",
			Help: "The total number of finality proofs rejected by the target chain",
		}, pipelineLabels),
		ConnectionErrors: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "finality_relayer_connection_errors_total",
			Help: "The total number of transient connection failures, per chain",
		}, connLabels),
		MandatoryHeadersSeen: registerer.NewCounterVec(prometheus.CounterOpts{
			Name: "finality_relayer_mandatory_headers_total",
			Help: "The total number of mandatory headers observed on the source chain",
		}, pipelineLabels),
	}
}
