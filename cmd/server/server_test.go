package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/swell-ops-ea/internal/circuitbreaker"
	"github.com/yourorg/swell-ops-ea/internal/config"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/journal"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/opportunity"
)

const recipient = "0x8F8afB12402C9a4bD9678Bec363E51360142f844"

type fakeRunner struct {
	store    *journal.MemoryStore
	result   model.Result
	requests []model.OperationRequest
}

func (f *fakeRunner) Execute(_ context.Context, req model.OperationRequest) model.Result {
	f.requests = append(f.requests, req)
	res := f.result
	res.Kind = req.Kind()
	return res
}

func (f *fakeRunner) Journal() journal.Store { return f.store }

type fakeCatalog struct {
	opps      []model.Opportunity
	err       error
	lastQuery opportunity.Query
	fetchedAt time.Time
}

func (f *fakeCatalog) FetchAll(context.Context) ([]model.Opportunity, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.fetchedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return f.opps, nil
}

func (f *fakeCatalog) Filter(_ context.Context, c opportunity.Criteria) ([]model.Opportunity, error) {
	if f.err != nil {
		return nil, f.err
	}
	return opportunity.Filter(f.opps, c), nil
}

func (f *fakeCatalog) List(_ context.Context, q opportunity.Query) ([]model.Opportunity, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, f.err
	}
	return opportunity.Filter(f.opps, q.Criteria), nil
}

func (f *fakeCatalog) TopByApr(_ context.Context, limit int) ([]model.Opportunity, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.opps) {
		return f.opps[:limit], nil
	}
	return f.opps, nil
}

func (f *fakeCatalog) ByID(_ context.Context, id string) (model.Opportunity, bool, error) {
	if f.err != nil {
		return model.Opportunity{}, false, f.err
	}
	for _, o := range f.opps {
		if o.ID == id {
			return o, true, nil
		}
	}
	return model.Opportunity{}, false, nil
}

func (f *fakeCatalog) FetchedAt() time.Time { return f.fetchedAt }

func testOpportunities() []model.Opportunity {
	return []model.Opportunity{
		{ID: "a", Name: "LEND USDC", ChainID: 1923, Status: model.StatusLive, Action: "LEND", APR: 12.3, TVL: 1000, Protocol: &model.Protocol{Name: "Euler"}},
		{ID: "b", Name: "POOL ETH", ChainID: 1923, Status: model.StatusLive, Action: "POOL", APR: 4, TVL: 3000},
	}
}

func newTestServer(t *testing.T, cfg config.Config) (*Server, *fakeRunner, *fakeCatalog) {
	t.Helper()
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = time.Second
	}
	runner := &fakeRunner{
		store:  journal.NewMemoryStore(),
		result: model.Result{Success: true, OperationID: "op-1", Hash: "0xabc", Message: "done"},
	}
	catalog := &fakeCatalog{opps: testOpportunities()}
	deps := dependencies{
		ops:     runner,
		catalog: catalog,
		breakers: []*circuitbreaker.CircuitBreaker{
			circuitbreaker.New("neptune", circuitbreaker.Thresholds{MaxConsecutiveFailures: 1}),
			circuitbreaker.New("merkl", circuitbreaker.Thresholds{MaxConsecutiveFailures: 1}),
		},
	}
	return NewServer(cfg, deps, registerMetrics(prometheus.NewRegistry())), runner, catalog
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandleOperation(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		result     *model.Result
		wantStatus int
		wantKind   string
	}{
		{
			name:       "executed transfer",
			body:       `{"kind":"transfer","params":{"recipient":"` + recipient + `","amount":"0.1"}}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed json",
			body:       `{"kind":`,
			wantStatus: http.StatusBadRequest,
			wantKind:   string(errs.KindInvalidParameter),
		},
		{
			name:       "missing kind",
			body:       `{"params":{}}`,
			wantStatus: http.StatusBadRequest,
			wantKind:   string(errs.KindMissingParameter),
		},
		{
			name:       "failed operation maps error kind",
			body:       `{"kind":"transfer","params":{"recipient":"` + recipient + `","amount":"0.1"}}`,
			result:     &model.Result{OperationID: "op-2", Error: "not enough", ErrorKind: errs.KindInsufficientBalance},
			wantStatus: http.StatusUnprocessableEntity,
			wantKind:   string(errs.KindInsufficientBalance),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, runner, _ := newTestServer(t, config.Config{})
			if tt.result != nil {
				runner.result = *tt.result
			}

			rec := do(t, s, http.MethodPost, "/operations", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)

			body := decode(t, rec)
			if tt.wantKind == "" {
				assert.Equal(t, true, body["success"])
				assert.Equal(t, "transfer", body["kind"])
				require.Len(t, runner.requests, 1)
				return
			}
			assert.Equal(t, tt.wantKind, body["errorKind"])
		})
	}
}

func TestHandleOperationRateLimited(t *testing.T) {
	s, runner, _ := newTestServer(t, config.Config{RateLimitEnabled: true, RateLimitRPS: 0.001, RateLimitBurst: 1})
	body := `{"kind":"price","params":{"tradingPair":"ETH/USD"}}`

	first := do(t, s, http.MethodPost, "/operations", body)
	assert.NotEqual(t, http.StatusTooManyRequests, first.Code)

	second := do(t, s, http.MethodPost, "/operations", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, string(kindRateLimited), decode(t, second)["errorKind"])
	assert.Len(t, runner.requests, 1)
}

func TestHandleGetOperation(t *testing.T) {
	s, runner, _ := newTestServer(t, config.Config{})
	ctx := context.Background()
	require.NoError(t, runner.store.Put(ctx, journal.Record{ID: "op-1", Kind: "bridge", State: journal.StateAwaitingPrimaryConfirmation}))

	rec := do(t, s, http.MethodGet, "/operations/op-1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "op-1", decode(t, rec)["id"])

	rec = do(t, s, http.MethodGet, "/operations/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/operations/pending", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])
}

func TestHandleOpportunities(t *testing.T) {
	s, _, catalog := newTestServer(t, config.Config{})

	rec := do(t, s, http.MethodGet, "/opportunities?filter=LEND&sortBy=tvl&ascending=true&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, "LEND", catalog.lastQuery.Filter)
	assert.Equal(t, "tvl", catalog.lastQuery.SortBy)
	assert.True(t, catalog.lastQuery.Ascending)
	assert.Equal(t, 5, catalog.lastQuery.Limit)

	rec = do(t, s, http.MethodGet, "/opportunities?format=text&filter=LEND", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "LEND USDC")

	rec = do(t, s, http.MethodGet, "/opportunities?minApr=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleOpportunityLookups(t *testing.T) {
	s, _, catalog := newTestServer(t, config.Config{})

	rec := do(t, s, http.MethodGet, "/opportunities/a", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "LEND USDC", decode(t, rec)["name"])

	rec = do(t, s, http.MethodGet, "/opportunities/zzz", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/opportunities/top?limit=1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["count"])

	rec = do(t, s, http.MethodGet, "/opportunities/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["count"])

	rec = do(t, s, http.MethodPost, "/opportunities/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, catalog.fetchedAt.IsZero())

	catalog.err = errs.New(errs.KindUpstreamUnavailable, "merkl down")
	rec = do(t, s, http.MethodPost, "/opportunities/refresh", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, string(errs.KindUpstreamUnavailable), decode(t, rec)["errorKind"])
}

func TestHandleCircuitStatus(t *testing.T) {
	s, _, _ := newTestServer(t, config.Config{})
	s.deps.breakers[0].RecordFailure("boom")
	require.Equal(t, circuitbreaker.StateOpen, s.deps.breakers[0].GetState())

	rec := do(t, s, http.MethodGet, "/circuit", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/circuit?action=reset&upstream=NEPTUNE", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"neptune"}, decode(t, rec)["reset"])
	assert.Equal(t, circuitbreaker.StateClosed, s.deps.breakers[0].GetState())

	rec = do(t, s, http.MethodPost, "/circuit?action=reset&upstream=other", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodPost, "/circuit?action=trip", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodDelete, "/circuit", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHealthAndStatus(t *testing.T) {
	s, _, _ := newTestServer(t, config.Config{Profile: "mainnet", NeptuneAPIBase: "https://quotes.example"})

	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decode(t, rec)["status"])

	rec = do(t, s, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decode(t, rec)["configuration"].(map[string]interface{})
	assert.Equal(t, true, cfg["swaps_enabled"])
	assert.Equal(t, false, cfg["rate_limited"])

	rec = do(t, s, http.MethodGet, "/wallets", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForKind(t *testing.T) {
	tests := []struct {
		kind errs.Kind
		want int
	}{
		{errs.KindMissingParameter, http.StatusBadRequest},
		{errs.KindUnsupportedPair, http.StatusBadRequest},
		{errs.KindDecimalsMismatch, http.StatusBadRequest},
		{errs.KindInsufficientBalance, http.StatusUnprocessableEntity},
		{errs.KindTransactionReverted, http.StatusUnprocessableEntity},
		{errs.KindUpstreamUnavailable, http.StatusBadGateway},
		{errs.KindNotConfigured, http.StatusServiceUnavailable},
		{errs.KindInternal, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, statusForKind(tt.kind))
		})
	}
}

func TestParseQuery(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, q opportunity.Query)
	}{
		{
			name: "upper-cases status and action",
			raw:  "status=live&action=lend&chainId=1923&minApr=2.5",
			check: func(t *testing.T, q opportunity.Query) {
				assert.Equal(t, "LIVE", q.Status)
				assert.Equal(t, "LEND", q.Action)
				assert.Equal(t, uint64(1923), q.ChainID)
				require.NotNil(t, q.MinAPR)
				assert.Equal(t, 2.5, *q.MinAPR)
			},
		},
		{
			name: "empty tags dropped",
			raw:  "tags=,restaking,,",
			check: func(t *testing.T, q opportunity.Query) {
				assert.Equal(t, []string{"restaking"}, q.Tags)
			},
		},
		{name: "bad chain id", raw: "chainId=-1", wantErr: true},
		{name: "bad ascending", raw: "ascending=maybe", wantErr: true},
		{name: "negative limit", raw: "limit=-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := url.ParseQuery(tt.raw)
			require.NoError(t, err)

			q, err := parseQuery(v)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, errs.KindInvalidParameter, errs.KindOf(err))
				return
			}
			require.NoError(t, err)
			tt.check(t, q)
		})
	}
}
