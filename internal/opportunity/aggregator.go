// Package opportunity caches the yield opportunity catalog and answers
// filtered, sorted and ranked queries over it.
package opportunity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/model"
)

// DefaultTopLimit is used by TopByApr when no positive limit is given.
const DefaultTopLimit = 5

// Fetcher retrieves the full normalized catalog.
type Fetcher interface {
	Fetch(ctx context.Context) ([]model.Opportunity, error)
}

// Query is a list request: criteria, ordering and an optional limit.
type Query struct {
	Criteria
	SortBy    string `json:"sortBy,omitempty"`
	Ascending bool   `json:"ascending,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// Aggregator holds the last fetched catalog. The cache has no TTL; it is
// replaced only by FetchAll, and loaded lazily until the first successful
// fetch. An empty catalog counts as loaded.
type Aggregator struct {
	fetcher Fetcher
	now     func() time.Time

	// serializes upstream fetches
	fetchMu sync.Mutex

	mu        sync.RWMutex
	cache     []model.Opportunity
	loaded    bool
	fetchedAt time.Time
}

// New creates an aggregator over f.
func New(f Fetcher) *Aggregator {
	return &Aggregator{fetcher: f, now: time.Now}
}

// FetchAll retrieves the catalog and replaces the cache. On error the previous
// cache is kept.
func (a *Aggregator) FetchAll(ctx context.Context) ([]model.Opportunity, error) {
	a.fetchMu.Lock()
	defer a.fetchMu.Unlock()
	return a.fetchLocked(ctx)
}

func (a *Aggregator) fetchLocked(ctx context.Context) ([]model.Opportunity, error) {
	start := a.now()
	opps, err := a.fetcher.Fetch(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to fetch opportunity catalog")
		return nil, err
	}

	a.mu.Lock()
	a.cache = opps
	a.loaded = true
	a.fetchedAt = a.now()
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"count":    len(opps),
		"duration": a.now().Sub(start).String(),
	}).Info("Opportunity catalog refreshed")
	return copyOf(opps), nil
}

// All returns the cached catalog, fetching it first when nothing has been
// loaded yet.
func (a *Aggregator) All(ctx context.Context) ([]model.Opportunity, error) {
	if opps, ok := a.cached(); ok {
		return opps, nil
	}

	a.fetchMu.Lock()
	defer a.fetchMu.Unlock()
	// another caller may have loaded it meanwhile
	if opps, ok := a.cached(); ok {
		return opps, nil
	}
	return a.fetchLocked(ctx)
}

func (a *Aggregator) cached() ([]model.Opportunity, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return copyOf(a.cache), a.loaded
}

// FetchedAt reports when the cache was last replaced.
func (a *Aggregator) FetchedAt() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fetchedAt
}

// Filter returns the catalog entries matching c.
func (a *Aggregator) Filter(ctx context.Context, c Criteria) ([]model.Opportunity, error) {
	opps, err := a.All(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(opps, c), nil
}

// List filters, sorts (APR descending when SortBy is empty) and limits.
func (a *Aggregator) List(ctx context.Context, q Query) ([]model.Opportunity, error) {
	opps, err := a.Filter(ctx, q.Criteria)
	if err != nil {
		return nil, err
	}
	by := q.SortBy
	if by == "" {
		by = SortAPR
	}
	opps = Sort(opps, by, q.Ascending)
	if q.Limit > 0 && len(opps) > q.Limit {
		opps = opps[:q.Limit]
	}
	return opps, nil
}

// TopByApr returns up to limit LIVE opportunities by APR descending.
func (a *Aggregator) TopByApr(ctx context.Context, limit int) ([]model.Opportunity, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	return a.List(ctx, Query{
		Criteria: Criteria{Status: model.StatusLive},
		SortBy:   SortAPR,
		Limit:    limit,
	})
}

// ByID looks up one opportunity in the catalog.
func (a *Aggregator) ByID(ctx context.Context, id string) (model.Opportunity, bool, error) {
	opps, err := a.All(ctx)
	if err != nil {
		return model.Opportunity{}, false, err
	}
	for _, o := range opps {
		if o.ID == id {
			return o, true, nil
		}
	}
	return model.Opportunity{}, false, nil
}

// ByProtocol returns the opportunities of a protocol, case-insensitively.
func (a *Aggregator) ByProtocol(ctx context.Context, name string) ([]model.Opportunity, error) {
	opps, err := a.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.Opportunity, 0)
	for _, o := range opps {
		if strings.EqualFold(o.ProtocolName(), name) {
			out = append(out, o)
		}
	}
	return out, nil
}

func copyOf(opps []model.Opportunity) []model.Opportunity {
	if opps == nil {
		return nil
	}
	return append([]model.Opportunity(nil), opps...)
}
