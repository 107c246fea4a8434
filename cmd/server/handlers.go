package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/aggregate"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/journal"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/units"
)

// maxRequestBytes caps operation request bodies.
const maxRequestBytes = 64 << 10

// handleOperation decodes, executes and reports one operation request
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.rateLimit != nil && !s.rateLimit.Allow() {
		s.errorResponse(w, "operations", http.StatusTooManyRequests, kindRateLimited, "Rate limit exceeded")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		s.errorResponse(w, "operations", http.StatusBadRequest, errs.KindInvalidParameter, "Invalid request body")
		return
	}

	req, err := model.DecodeRequest(body)
	if err != nil {
		kind := errs.KindOf(err)
		s.errorResponse(w, "operations", statusForKind(kind), kind, err.Error())
		return
	}

	// the operation outlives a disconnecting client
	ctx := context.WithoutCancel(r.Context())
	res := s.deps.ops.Execute(ctx, req)
	s.deps.reporter.Report(ctx, res)

	status := http.StatusOK
	if !res.Success {
		status = statusForKind(res.ErrorKind)
	}

	if s.metrics != nil {
		result := "success"
		if !res.Success {
			result = "failure"
		}
		s.metrics.operationCounter.WithLabelValues(string(res.Kind), result, string(res.ErrorKind)).Inc()
		s.metrics.operationDuration.WithLabelValues(string(res.Kind)).Observe(time.Since(start).Seconds())
		if res.ApprovalHash != "" {
			s.metrics.approvalCounter.WithLabelValues(string(res.Kind)).Inc()
		}
	}

	s.writeJSON(w, "operations", status, res)
}

// handleGetOperation returns the journal record of one operation
func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, err := s.deps.ops.Journal().Get(r.Context(), id)
	if errors.Is(err, journal.ErrNotFound) {
		s.errorResponse(w, "operation", http.StatusNotFound, errs.KindInvalidParameter, "Unknown operation "+id)
		return
	}
	if err != nil {
		s.errorResponse(w, "operation", http.StatusInternalServerError, errs.KindInternal, err.Error())
		return
	}
	s.writeJSON(w, "operation", http.StatusOK, rec)
}

// handlePendingOperations lists operations stopped between approval and
// settlement
func (s *Server) handlePendingOperations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.deps.ops.Journal().Pending(r.Context())
	if err != nil {
		s.errorResponse(w, "pending", http.StatusInternalServerError, errs.KindInternal, err.Error())
		return
	}
	s.writeJSON(w, "pending", http.StatusOK, map[string]interface{}{
		"count":      len(recs),
		"operations": recs,
	})
}

// handleOpportunities lists the catalog filtered, sorted and limited by the
// query string
func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.errorResponse(w, "opportunities", http.StatusBadRequest, errs.KindOf(err), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	opps, err := s.deps.catalog.List(ctx, q)
	if err != nil {
		s.catalogError(w, "opportunities", err)
		return
	}
	s.writeOpportunities(w, r, "opportunities", opps, q.Filter)
}

// handleTopOpportunities returns the best LIVE opportunities by APR
func (s *Server) handleTopOpportunities(w http.ResponseWriter, r *http.Request) {
	limit, err := parseInt(r.URL.Query(), "limit")
	if err != nil {
		s.errorResponse(w, "top", http.StatusBadRequest, errs.KindInvalidParameter, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	opps, err := s.deps.catalog.TopByApr(ctx, limit)
	if err != nil {
		s.catalogError(w, "top", err)
		return
	}
	s.writeOpportunities(w, r, "top", opps, "")
}

// handleOpportunitySummary returns catalog statistics for the query criteria
func (s *Server) handleOpportunitySummary(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		s.errorResponse(w, "summary", http.StatusBadRequest, errs.KindOf(err), err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	opps, err := s.deps.catalog.Filter(ctx, q.Criteria)
	if err != nil {
		s.catalogError(w, "summary", err)
		return
	}
	s.writeJSON(w, "summary", http.StatusOK, map[string]interface{}{
		"summary":   aggregate.Summarize(opps),
		"fetchedAt": s.deps.catalog.FetchedAt(),
	})
}

// handleOpportunity returns one catalog entry
func (s *Server) handleOpportunity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	id := r.PathValue("id")
	opp, found, err := s.deps.catalog.ByID(ctx, id)
	if err != nil {
		s.catalogError(w, "opportunity", err)
		return
	}
	if !found {
		s.errorResponse(w, "opportunity", http.StatusNotFound, errs.KindInvalidParameter, "Unknown opportunity "+id)
		return
	}
	s.writeJSON(w, "opportunity", http.StatusOK, opp)
}

// handleRefreshOpportunities replaces the catalog cache
func (s *Server) handleRefreshOpportunities(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	opps, err := s.deps.catalog.FetchAll(ctx)
	if err != nil {
		s.catalogError(w, "refresh", err)
		return
	}
	if s.metrics != nil {
		s.metrics.opportunityCount.Set(float64(len(opps)))
	}
	s.writeJSON(w, "refresh", http.StatusOK, map[string]interface{}{
		"count":     len(opps),
		"fetchedAt": s.deps.catalog.FetchedAt(),
	})
}

// handleWallets reports the configured signers and their native balances
func (s *Server) handleWallets(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	out := make([]map[string]interface{}, 0, len(s.deps.wallets))
	for _, wallet := range s.deps.wallets {
		entry := map[string]interface{}{
			"network": wallet.Network(),
			"address": wallet.Address().Hex(),
		}
		bal, err := wallet.Balance(ctx)
		if err != nil {
			logrus.WithError(err).WithField("network", wallet.Network()).Warn("Failed to read wallet balance")
			entry["error"] = err.Error()
		} else {
			entry["balance"] = units.FormatUnits(bal, 18)
		}
		out = append(out, entry)
	}
	s.writeJSON(w, "wallets", http.StatusOK, map[string]interface{}{"wallets": out})
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, "health", http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMetrics exposes Prometheus metrics
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.updateCircuitGauges()
	promhttp.Handler().ServeHTTP(w, r)
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	networks := make([]string, 0, len(s.deps.wallets))
	for _, wallet := range s.deps.wallets {
		networks = append(networks, string(wallet.Network()))
	}

	status := map[string]interface{}{
		"status":  "operational",
		"uptime":  time.Since(startTime).String(),
		"version": version,
		"configuration": map[string]interface{}{
			"profile":              s.config.Profile,
			"approval_policy":      s.config.ApprovalPolicy,
			"confirmation_timeout": s.config.ConfirmationTimeout.String(),
			"rate_limited":         s.rateLimit != nil,
			"swaps_enabled":        s.config.NeptuneAPIBase != "",
		},
		"wallets":  networks,
		"circuits": s.circuitSnapshots(),
	}
	if fetchedAt := s.deps.catalog.FetchedAt(); !fetchedAt.IsZero() {
		status["catalog_fetched_at"] = fetchedAt.UTC().Format(time.RFC3339)
	}
	if s.deps.webhook != nil {
		status["webhook"] = s.deps.webhook.Status()
	}

	s.writeJSON(w, "status", http.StatusOK, status)
}

// handleCircuitStatus allows viewing and resetting the upstream breakers
func (s *Server) handleCircuitStatus(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{}

	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if r.URL.Query().Get("action") != "reset" {
			s.errorResponse(w, "circuit", http.StatusBadRequest, errs.KindInvalidParameter, "Unsupported action")
			return
		}
		upstream := r.URL.Query().Get("upstream")
		reset := make([]string, 0, len(s.deps.breakers))
		for _, b := range s.deps.breakers {
			if upstream == "" || strings.EqualFold(upstream, b.Name()) {
				b.Reset()
				reset = append(reset, b.Name())
			}
		}
		if len(reset) == 0 {
			s.errorResponse(w, "circuit", http.StatusNotFound, errs.KindInvalidParameter, "Unknown upstream "+upstream)
			return
		}
		response["reset"] = reset
		response["message"] = "Circuit breaker reset"
	default:
		s.errorResponse(w, "circuit", http.StatusMethodNotAllowed, errs.KindInvalidParameter, "Method not allowed")
		return
	}

	s.updateCircuitGauges()
	response["circuits"] = s.circuitSnapshots()
	s.writeJSON(w, "circuit", http.StatusOK, response)
}
