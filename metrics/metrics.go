// metrics/metrics.go
//
// Prometheus metrics the bot updates during operation:
//   - bot_ticks_total{result}        – control loop ticks (active|idle|error)
//   - bot_decisions_total{outcome}   – decision cycles (trade|no_opportunity|error)
//   - bot_orders_total{direction}    – market orders placed (buy|sell)
//   - bot_commands_total{command}    – operator commands processed
//   - bot_risk_breaches_total{kind}  – risk limit breaches (daily|capital)
//   - bot_capital                    – latest account balance (gauge)
//
// Served at /metrics in Prometheus text exposition format.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"fx_sentinel_go/logs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Ticks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_ticks_total",
			Help: "Control loop ticks by result",
		},
		[]string{"result"},
	)

	Decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_decisions_total",
			Help: "Decision cycles by outcome",
		},
		[]string{"outcome"},
	)

	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Market orders placed",
		},
		[]string{"direction"},
	)

	Commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Operator commands processed",
		},
		[]string{"command"},
	)

	RiskBreaches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_risk_breaches_total",
			Help: "Risk limit breaches detected",
		},
		[]string{"kind"},
	)

	Capital = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_capital",
			Help: "Latest account balance",
		},
	)
)

func init() {
	prometheus.MustRegister(Ticks, Decisions, Orders, Commands, RiskBreaches, Capital)
}

// Serve exposes /metrics on addr in the background. Returns the server so
// the caller can shut it down.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("[Metrics] Server error: %v", err)
		}
	}()
	logs.Infof("[Metrics] Serving Prometheus metrics at %s/metrics", addr)
	return srv
}
