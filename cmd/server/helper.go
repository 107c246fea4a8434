package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/circuitbreaker"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/opportunity"
)

// Helper functions for responses and query parsing

// kindRateLimited marks requests rejected by the rate limiter
const kindRateLimited errs.Kind = "RateLimited"

// errorBody is the error payload for requests that never reached an operation
type errorBody struct {
	Success   bool      `json:"success"`
	Error     string    `json:"error"`
	ErrorKind errs.Kind `json:"errorKind,omitempty"`
}

// statusForKind maps an error kind to the HTTP status reported for it
func statusForKind(kind errs.Kind) int {
	switch kind {
	case errs.KindMissingParameter, errs.KindInvalidParameter, errs.KindUnknownNetwork,
		errs.KindUnknownToken, errs.KindUnsupportedBridgeToken, errs.KindUnsupportedPair,
		errs.KindDecimalsMismatch:
		return http.StatusBadRequest
	case errs.KindInsufficientBalance, errs.KindApprovalFailed, errs.KindTransactionReverted:
		return http.StatusUnprocessableEntity
	case errs.KindUpstreamUnavailable:
		return http.StatusBadGateway
	case errs.KindNotConfigured:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v with status and counts the request
func (s *Server) writeJSON(w http.ResponseWriter, endpoint string, status int, v interface{}) {
	if s.metrics != nil {
		s.metrics.requestCounter.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

// errorResponse returns a formatted error response
func (s *Server) errorResponse(w http.ResponseWriter, endpoint string, status int, kind errs.Kind, msg string) {
	logrus.WithFields(logrus.Fields{
		"endpoint": endpoint,
		"status":   status,
		"kind":     kind,
	}).Warn(msg)
	s.writeJSON(w, endpoint, status, errorBody{Error: msg, ErrorKind: kind})
}

// catalogError reports a failed catalog lookup
func (s *Server) catalogError(w http.ResponseWriter, endpoint string, err error) {
	kind := errs.KindOf(err)
	s.errorResponse(w, endpoint, statusForKind(kind), kind, err.Error())
}

// writeOpportunities renders opps as JSON, or as the emoji summary when
// format=text is requested
func (s *Server) writeOpportunities(w http.ResponseWriter, r *http.Request, endpoint string, opps []model.Opportunity, filter string) {
	if r.URL.Query().Get("format") == "text" {
		if s.metrics != nil {
			s.metrics.requestCounter.WithLabelValues(endpoint, strconv.Itoa(http.StatusOK)).Inc()
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(opportunity.Format(opps, filter)))
		return
	}
	s.writeJSON(w, endpoint, http.StatusOK, map[string]interface{}{
		"count":         len(opps),
		"opportunities": opps,
		"fetchedAt":     s.deps.catalog.FetchedAt(),
	})
}

// circuitSnapshots collects every breaker's state
func (s *Server) circuitSnapshots() []circuitbreaker.Snapshot {
	out := make([]circuitbreaker.Snapshot, 0, len(s.deps.breakers))
	for _, b := range s.deps.breakers {
		out = append(out, b.Snapshot())
	}
	return out
}

// updateCircuitGauges mirrors breaker states into Prometheus
func (s *Server) updateCircuitGauges() {
	if s.metrics == nil {
		return
	}
	for _, b := range s.deps.breakers {
		s.metrics.circuitBreaker.WithLabelValues(b.Name()).Set(float64(b.GetState()))
	}
}

// parseQuery builds a catalog query from URL parameters
func parseQuery(v url.Values) (opportunity.Query, error) {
	q := opportunity.Query{
		Criteria: opportunity.Criteria{
			Filter:   strings.TrimSpace(v.Get("filter")),
			Status:   strings.ToUpper(strings.TrimSpace(v.Get("status"))),
			Action:   strings.ToUpper(strings.TrimSpace(v.Get("action"))),
			Protocol: strings.TrimSpace(v.Get("protocol")),
		},
		SortBy: strings.TrimSpace(v.Get("sortBy")),
	}

	if raw := v.Get("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				q.Tags = append(q.Tags, t)
			}
		}
	}
	if raw := v.Get("chainId"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return q, errs.New(errs.KindInvalidParameter, "chainId must be an unsigned integer, got %q", raw)
		}
		q.ChainID = id
	}
	if raw := v.Get("minApr"); raw != "" {
		apr, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, errs.New(errs.KindInvalidParameter, "minApr must be a number, got %q", raw)
		}
		q.MinAPR = &apr
	}
	if raw := v.Get("ascending"); raw != "" {
		asc, err := strconv.ParseBool(raw)
		if err != nil {
			return q, errs.New(errs.KindInvalidParameter, "ascending must be a boolean, got %q", raw)
		}
		q.Ascending = asc
	}
	limit, err := parseInt(v, "limit")
	if err != nil {
		return q, err
	}
	q.Limit = limit
	return q, nil
}

// parseInt reads a non-negative integer parameter; absent means zero
func parseInt(v url.Values, key string) (int, error) {
	raw := v.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errs.New(errs.KindInvalidParameter, "%s must be a non-negative integer, got %q", key, raw)
	}
	return n, nil
}
