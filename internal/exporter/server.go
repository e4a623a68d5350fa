package exporter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

const landingPage = `<html>
<head><title>Eaton UPS Exporter</title></head>
<body>
<h1>Eaton UPS Exporter</h1>
<p><a href="%s">Metrics</a></p>
</body>
</html>
`

// NewHandler returns the HTTP handler serving metrics from gatherer at
// telemetryPath and a landing page at "/".
func NewHandler(gatherer prometheus.Gatherer, telemetryPath string, logger *zap.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(telemetryPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: zap.NewStdLog(logger),
	}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, landingPage, telemetryPath)
	})
	return mux
}

// Serve listens on host:port and serves handler until ctx is cancelled,
// then shuts the server down gracefully.
func Serve(ctx context.Context, host, port string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(host, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting Eaton UPS exporter", zap.String("address", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving metrics: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		logger.Info("Eaton UPS exporter shut down")
		return nil
	}
}
