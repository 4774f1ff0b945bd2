package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"carteira/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Data(map[string]interface{}{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if s.store == nil {
		checks["store"] = "not_configured"
		ready = false
	} else if err := s.store.Ping(ctx); err != nil {
		s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err.Error())
		checks["store"] = "failed: " + err.Error()
		ready = false
	} else {
		checks["store"] = "ok"
	}

	if !ready {
		ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, "not ready").Write(w)
		return
	}
	NewJSONResponse().Data(map[string]interface{}{
		"status": "ready",
		"checks": checks,
	}).Write(w)
}

// handleMetrics provides request, security and relay metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()
	uptime := time.Since(s.startedAt)

	w.WriteHeader(http.StatusOK)

	// Prometheus text exposition
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Responses with a 5xx status\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP http_response_time_avg_seconds Average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_avg_seconds gauge\n")
	fmt.Fprintf(w, "http_response_time_avg_seconds %.6f\n\n", traceMetrics.AverageResponseTime.Seconds())

	fmt.Fprintf(w, "# HELP rate_limit_rejected_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_rejected_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejected_total %d\n\n", rateLimitMetrics.Rejected)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", rateLimitMetrics.ClientCount)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	if s.realtime != nil {
		fmt.Fprintf(w, "# HELP websocket_clients Connected ledger feed clients\n")
		fmt.Fprintf(w, "# TYPE websocket_clients gauge\n")
		fmt.Fprintf(w, "websocket_clients %d\n\n", s.realtime.Count())
	}

	if s.outbox != nil {
		stats, err := s.outbox.Stats(r.Context())
		if err != nil {
			s.logger.WarnContext(r.Context(), "Outbox stats unavailable", log.FieldError, err.Error())
		} else {
			fmt.Fprintf(w, "# HELP outbox_messages Ledger events by outbox status\n")
			fmt.Fprintf(w, "# TYPE outbox_messages gauge\n")
			fmt.Fprintf(w, "outbox_messages{status=\"pending\"} %d\n", stats.Pending)
			fmt.Fprintf(w, "outbox_messages{status=\"processing\"} %d\n", stats.Processing)
			fmt.Fprintf(w, "outbox_messages{status=\"completed\"} %d\n", stats.Completed)
			fmt.Fprintf(w, "outbox_messages{status=\"failed\"} %d\n\n", stats.Failed)
		}
	}

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n", uptime.Seconds())
}
