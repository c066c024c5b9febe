package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements the race table's Metrics interface on Prometheus.
type Collector struct {
	betsPlaced     *prometheus.CounterVec
	betsRejected   *prometheus.CounterVec
	betsCancelled  prometheus.Counter
	amountWagered  prometheus.Counter
	payoutsTotal   prometheus.Counter
	settleWinners  prometheus.Histogram
	settleDuration prometheus.Histogram
	cyclesTotal    prometheus.Counter
}

// NewCollector registers the table collectors on the default registry.
func NewCollector() *Collector {
	return &Collector{
		betsPlaced: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "derby_bets_placed_total",
			Help: "Accepted bets by type.",
		}, []string{"bet_type"}),
		betsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "derby_bets_rejected_total",
			Help: "Rejected bets by reason.",
		}, []string{"reason"}),
		betsCancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "derby_bets_cancelled_total",
			Help: "Cancelled bets.",
		}),
		amountWagered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "derby_amount_wagered_total",
			Help: "Total credits wagered.",
		}),
		payoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "derby_payouts_total",
			Help: "Total credits paid out.",
		}),
		settleWinners: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "derby_settlement_winners",
			Help:    "Winning bets per settlement run.",
			Buckets: prometheus.LinearBuckets(0, 5, 10),
		}),
		settleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "derby_settlement_duration_seconds",
			Help:    "Settlement run duration.",
			Buckets: prometheus.DefBuckets,
		}),
		cyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "derby_cycles_total",
			Help: "Completed race cycles.",
		}),
	}
}

func (c *Collector) BetPlaced(betType string, amount int64) {
	c.betsPlaced.WithLabelValues(betType).Inc()
	c.amountWagered.Add(float64(amount))
}

func (c *Collector) BetRejected(reason string) {
	c.betsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) BetCancelled() {
	c.betsCancelled.Inc()
}

func (c *Collector) SettlementRan(winners int, totalPaid int64, took time.Duration) {
	c.settleWinners.Observe(float64(winners))
	c.settleDuration.Observe(took.Seconds())
	c.payoutsTotal.Add(float64(totalPaid))
}

func (c *Collector) CycleCompleted() {
	c.cyclesTotal.Inc()
}

// RegisterConnectionsGauge exposes the live websocket connection count,
// sampled from the gateway on every scrape.
func RegisterConnectionsGauge(fn func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "derby_ws_connections",
		Help: "Open websocket connections.",
	}, func() float64 { return float64(fn()) })
}

// HealthFunc reports service health for /healthz.
type HealthFunc func(ctx context.Context) error

// StartServer runs a lightweight HTTP server for /metrics and /healthz in
// a background goroutine, one per process.
func StartServer(port string, healthFn HealthFunc) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if healthFn != nil {
			if err := healthFn(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintf(w, "unhealthy: %v", err)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: ":" + port, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
