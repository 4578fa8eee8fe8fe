package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhooks_total", Help: "Webhook requests by outcome"},
		[]string{"outcome"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals relayed to Telegram"},
		[]string{"action", "symbol"},
	)
	TelegramSendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "telegram_sends_total", Help: "Telegram sendMessage attempts by outcome"},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(WebhooksTotal, SignalsTotal, TelegramSendsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{ Addr: addr, Handler: mux }
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
