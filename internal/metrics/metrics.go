// Package metrics exposes Prometheus instrumentation for the bot.
//
// Primary metrics updated during operation:
//   - bot_orders_total{kind,side,status}  – order placements by outcome
//   - bot_order_updates_total{kind,status} – stream lifecycle events
//   - bot_active_close_orders             – current resting take-profit orders
//   - bot_position_size                   – net position (absolute)
//   - bot_best_bid / bot_best_ask         – top of book
//   - bot_open_cycles_total{result}       – open cycles by result (filled|canceled|noop)
//
// Registered in init() and served at /metrics by the optional HTTP listener
// started from main (port 0 disables it). /healthz answers liveness probes.
package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_orders_total",
			Help: "Orders placed, by kind, side, and resulting status",
		},
		[]string{"kind", "side", "status"},
	)

	orderUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_order_updates_total",
			Help: "Order lifecycle events received from the venue stream",
		},
		[]string{"kind", "status"},
	)

	activeCloseOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_active_close_orders",
			Help: "Currently resting take-profit orders",
		},
	)

	positionSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_position_size",
			Help: "Absolute net position size",
		},
	)

	bestBid = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_best_bid",
			Help: "Best bid price",
		},
	)

	bestAsk = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_best_ask",
			Help: "Best ask price",
		},
	)

	openCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_open_cycles_total",
			Help: "Open cycles by result (filled|canceled|noop)",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(ordersTotal, orderUpdatesTotal)
	prometheus.MustRegister(activeCloseOrders, positionSize, bestBid, bestAsk)
	prometheus.MustRegister(openCyclesTotal)
}

// Helper setters used by the engine and adapters.

func IncOrder(kind, side, status string) { ordersTotal.WithLabelValues(kind, side, status).Inc() }
func IncOrderUpdate(kind, status string) { orderUpdatesTotal.WithLabelValues(kind, status).Inc() }
func IncOpenCycle(result string)         { openCyclesTotal.WithLabelValues(result).Inc() }

func SetActiveCloseOrders(n int)       { activeCloseOrders.Set(float64(n)) }
func SetPosition(size decimal.Decimal) { positionSize.Set(size.InexactFloat64()) }

func SetBBO(bid, ask decimal.Decimal) {
	bestBid.Set(bid.InexactFloat64())
	bestAsk.Set(ask.InexactFloat64())
}

// Server serves /metrics and /healthz. Disabled when port is 0.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer builds the listener; returns nil when port is 0.
func NewServer(port int, logger *slog.Logger) *Server {
	if port == 0 {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Start runs the listener in a goroutine.
func (s *Server) Start() {
	if s == nil {
		return
	}
	go func() {
		s.logger.Info("metrics listener started", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics listener failed", "error", err)
		}
	}()
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
