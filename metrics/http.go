package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"errorwatch/util/goroutine"
)

// Serve exposes the default registry on addr in the background. An
// empty addr disables exposition; a listener failure is logged, not
// fatal, since metrics are advisory.
func Serve(addr string, logger *zap.SugaredLogger) {
	if addr == "" {
		return
	}
	go func() {
		defer goroutine.Recover("metrics", logger)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Infof("Serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warnw("Metrics listener stopped", "error", err)
		}
	}()
}
