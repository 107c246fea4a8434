package opportunity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/swell-ops-ea/internal/model"
)

type fakeFetcher struct {
	mu    sync.Mutex
	opps  []model.Opportunity
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]model.Opportunity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.Opportunity(nil), f.opps...), nil
}

func (f *fakeFetcher) set(opps []model.Opportunity, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opps, f.err = opps, err
}

func floatPtr(v float64) *float64 { return &v }

func catalog() []model.Opportunity {
	return []model.Opportunity{
		{
			ID: "a", ChainID: 1923, Name: "Lend USDC", Status: model.StatusLive, Action: "LEND",
			APR: 5, TVL: 1000, DailyRewards: 10, Tags: []string{"swell", "euler"},
			Protocol: &model.Protocol{Name: "Euler"},
		},
		{
			ID: "b", ChainID: 1923, Name: "Pool swETH/ETH", Status: model.StatusLive, Action: "POOL",
			APR: 12, TVL: 5000, DailyRewards: 3, Tags: []string{"swell"},
			Protocol: &model.Protocol{Name: "Ambient"},
		},
		{
			ID: "c", ChainID: 1, Name: "Hold rswETH", Status: model.StatusPaused, Action: "HOLD",
			APR: 20, TVL: 200, DailyRewards: 50, Tags: []string{"restaking"},
		},
	}
}

func ids(opps []model.Opportunity) []string {
	out := make([]string, 0, len(opps))
	for _, o := range opps {
		out = append(out, o.ID)
	}
	return out
}

func TestTopByApr_ExcludesNonLive(t *testing.T) {
	agg := New(&fakeFetcher{opps: catalog()})

	top, err := agg.TopByApr(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "b", top[0].ID)
	assert.Equal(t, 12.0, top[0].APR)

	top, err = agg.TopByApr(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(top))
}

func TestFilter_Criteria(t *testing.T) {
	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{name: "empty criteria", criteria: Criteria{}, want: []string{"a", "b", "c"}},
		{name: "ALL keyword", criteria: Criteria{Filter: FilterAll}, want: []string{"a", "b", "c"}},
		{name: "keyword matches action", criteria: Criteria{Filter: "LEND"}, want: []string{"a"}},
		{name: "keyword matches status", criteria: Criteria{Filter: model.StatusPaused}, want: []string{"c"}},
		{name: "keyword matches tag", criteria: Criteria{Filter: "restaking"}, want: []string{"c"}},
		{name: "chain id", criteria: Criteria{ChainID: 1923}, want: []string{"a", "b"}},
		{name: "min apr inclusive", criteria: Criteria{MinAPR: floatPtr(12)}, want: []string{"b", "c"}},
		{name: "tags any", criteria: Criteria{Tags: []string{"euler", "restaking"}}, want: []string{"a", "c"}},
		{name: "protocol case-insensitive", criteria: Criteria{Protocol: "ambient"}, want: []string{"b"}},
		{
			name:     "conjunctive",
			criteria: Criteria{Status: model.StatusLive, MinAPR: floatPtr(6), Tags: []string{"swell"}},
			want:     []string{"b"},
		},
		{name: "no match", criteria: Criteria{Action: "BORROW"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Filter(catalog(), tt.criteria)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestSort_Keys(t *testing.T) {
	tests := []struct {
		name      string
		by        string
		ascending bool
		want      []string
	}{
		{name: "apr descending", by: SortAPR, want: []string{"c", "b", "a"}},
		{name: "apr ascending", by: SortAPR, ascending: true, want: []string{"a", "b", "c"}},
		{name: "tvl descending", by: SortTVL, want: []string{"b", "a", "c"}},
		{name: "daily rewards ascending", by: SortDailyRewards, ascending: true, want: []string{"b", "a", "c"}},
		{name: "rewards alias", by: "Rewards", want: []string{"c", "a", "b"}},
		{name: "unknown key falls back to apr descending", by: "name", ascending: true, want: []string{"c", "b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := catalog()
			got := Sort(in, tt.by, tt.ascending)
			assert.Equal(t, tt.want, ids(got))
			// input order is untouched
			assert.Equal(t, []string{"a", "b", "c"}, ids(in))
		})
	}
}

func TestAggregator_CacheLifecycle(t *testing.T) {
	f := &fakeFetcher{opps: catalog()}
	agg := New(f)
	ctx := context.Background()

	assert.True(t, agg.FetchedAt().IsZero())

	all, err := agg.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 1, f.calls)
	assert.False(t, agg.FetchedAt().IsZero())

	// cached, no second fetch
	_, err = agg.List(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)

	f.set(catalog()[:1], nil)
	refreshed, err := agg.FetchAll(ctx)
	require.NoError(t, err)
	assert.Len(t, refreshed, 1)
	assert.Equal(t, 2, f.calls)

	f.set(nil, errors.New("upstream down"))
	_, err = agg.FetchAll(ctx)
	require.Error(t, err)

	all, err = agg.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(all))
}

func TestAggregator_EmptyCatalogFetchedOnce(t *testing.T) {
	f := &fakeFetcher{}
	agg := New(f)
	ctx := context.Background()

	all, err := agg.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	top, err := agg.TopByApr(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, top)

	_, err = agg.List(ctx, Query{SortBy: "apr"})
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls)
	assert.False(t, agg.FetchedAt().IsZero())
}

func TestAggregator_LazyLoadError(t *testing.T) {
	agg := New(&fakeFetcher{err: errors.New("boom")})

	_, err := agg.All(context.Background())
	assert.EqualError(t, err, "boom")

	_, err = agg.TopByApr(context.Background(), 3)
	assert.Error(t, err)
}

func TestAggregator_List(t *testing.T) {
	agg := New(&fakeFetcher{opps: catalog()})

	got, err := agg.List(context.Background(), Query{
		Criteria:  Criteria{ChainID: 1923},
		SortBy:    SortTVL,
		Ascending: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))

	got, err = agg.List(context.Background(), Query{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, ids(got))
}

func TestAggregator_Lookups(t *testing.T) {
	agg := New(&fakeFetcher{opps: catalog()})
	ctx := context.Background()

	o, found, err := agg.ByID(ctx, "b")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Pool swETH/ETH", o.Name)

	_, found, err = agg.ByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	byProto, err := agg.ByProtocol(ctx, "EULER")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(byProto))

	byProto, err = agg.ByProtocol(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, byProto)
}

func TestFormat(t *testing.T) {
	opps := []model.Opportunity{
		{
			Name:         "Lend USDC",
			APR:          12.34,
			TVL:          1234567.89,
			DailyRewards: 420.5,
			Protocol:     &model.Protocol{Name: "Euler"},
			Tokens:       []model.EarnToken{{Symbol: "USDC"}, {Symbol: "ETH"}},
			DepositURL:   "https://app.example.org/lend",
			Tags:         []string{"LEND", "swell"},
		},
		{
			Name: "hold swETH",
			APR:  3,
			TVL:  999.4,
		},
	}
	before := append([]model.Opportunity(nil), opps...)

	want := "🔍 Here are the current lending opportunities on Swellchain:\n\n" +
		"💼 1. LEND USDC - 12.3% APR on Euler\n" +
		"   📊 TVL: 1,234,568 | 💰 Daily rewards: 420.5\n" +
		"   🪙 Tokens: USDC, ETH\n" +
		"   🔗 https://app.example.org/lend\n" +
		"   🏷️ LEND | swell\n\n" +
		"💼 2. HOLD SWETH - 3.0% APR\n" +
		"   📊 TVL: 999\n\n" +
		formatFooter

	assert.Equal(t, want, Format(opps, "lend"))
	assert.Equal(t, before, opps)

	assert.Contains(t, Format(opps, FilterAll), "🔍 Here are the opportunities on Swellchain:")
}

func TestGroupDigits(t *testing.T) {
	tests := []struct {
		in     float64
		places int32
		want   string
	}{
		{in: 0, places: 0, want: "0"},
		{in: 999, places: 0, want: "999"},
		{in: 1000, places: 0, want: "1,000"},
		{in: 1234567.5, places: 0, want: "1,234,568"},
		{in: 12345.678, places: 2, want: "12,345.68"},
		{in: 10.10, places: 2, want: "10.1"},
		{in: -4321, places: 0, want: "-4,321"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, groupDigits(tt.in, tt.places))
		})
	}
}
