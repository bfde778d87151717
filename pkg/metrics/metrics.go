package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry 业务指标
type Registry struct {
	reg *prometheus.Registry

	EditionRuns     *prometheus.CounterVec // result: ok, error, oversold
	EditionAssigned prometheus.Counter
	Reconcile       *prometheus.CounterVec // source: raw_payload, warehouse, crm, none
	NfcPair         *prometheus.CounterVec // result: success, conflict, error
	HTTPDuration    *prometheus.HistogramVec
}

// NewRegistry 创建指标注册表
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	editionRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coa_edition_runs_total",
		Help: "Edition assignment runs by result.",
	}, []string{"result"})
	editionAssigned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coa_edition_numbers_assigned_total",
		Help: "Edition numbers written.",
	})
	reconcile := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coa_reconcile_total",
		Help: "Identity reconciliation outcomes by source.",
	}, []string{"source"})
	nfcPair := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "coa_nfc_pair_total",
		Help: "NFC pairing attempts by result.",
	}, []string{"result"})
	httpDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "coa_http_request_duration_seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	r.MustRegister(
		editionRuns, editionAssigned, reconcile, nfcPair, httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{
		reg:             r,
		EditionRuns:     editionRuns,
		EditionAssigned: editionAssigned,
		Reconcile:       reconcile,
		NfcPair:         nfcPair,
		HTTPDuration:    httpDuration,
	}
}

// Handler /metrics 处理器
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveHTTP 记录请求耗时
func (r *Registry) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	r.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
