package metrics

import (
	"log/slog"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTPHandler serves reg for scraping. A collector error is logged and the
// remaining metrics are still served. Scrapes of the handler itself are
// counted in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:          scrapeLogger{},
		ErrorHandling:     promhttp.ContinueOnError,
		Registry:          reg,
		EnableOpenMetrics: true,
	})
	return promhttp.InstrumentMetricHandler(reg, h)
}

type scrapeLogger struct{}

func (scrapeLogger) Println(v ...any) {
	slog.Warn("Metrics scrape error", slog.Any("detail", v))
}
