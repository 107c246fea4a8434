package fetch

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/circuitbreaker"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/model"
)

// DefaultOpportunitiesURL is the public Merkl catalog filtered to Swell.
const DefaultOpportunitiesURL = "https://api.merkl.xyz/v4/opportunities?tags=swell"

// OpportunityClient retrieves the yield opportunity catalog.
type OpportunityClient struct {
	upstream
	url string
}

// NewOpportunityClient creates a catalog client. An empty catalogURL uses
// DefaultOpportunitiesURL.
func NewOpportunityClient(catalogURL string, httpClient *http.Client, breaker *circuitbreaker.CircuitBreaker) *OpportunityClient {
	if catalogURL == "" {
		catalogURL = DefaultOpportunitiesURL
	}
	return &OpportunityClient{
		upstream: newUpstream("opportunities", httpClient, breaker),
		url:      catalogURL,
	}
}

// Breaker exposes the breaker guarding the catalog.
func (c *OpportunityClient) Breaker() *circuitbreaker.CircuitBreaker { return c.breaker }

type upstreamToken struct {
	ID       flexString `json:"id"`
	Name     string     `json:"name"`
	ChainID  flexFloat  `json:"chainId"`
	Address  string     `json:"address"`
	Decimals flexFloat  `json:"decimals"`
	Symbol   string     `json:"symbol"`
	Price    flexFloat  `json:"price"`
	Verified bool       `json:"verified"`
}

func (t upstreamToken) normalize() model.EarnToken {
	return model.EarnToken{
		ID:       string(t.ID),
		Name:     t.Name,
		ChainID:  uint64(t.ChainID),
		Address:  t.Address,
		Decimals: uint8(t.Decimals),
		Symbol:   t.Symbol,
		Price:    float64(t.Price),
		Verified: t.Verified,
	}
}

type upstreamOpportunity struct {
	ID              flexString      `json:"id"`
	ChainID         flexFloat       `json:"chainId"`
	Type            string          `json:"type"`
	Name            string          `json:"name"`
	Status          string          `json:"status"`
	Action          string          `json:"action"`
	TVL             flexFloat       `json:"tvl"`
	APR             flexFloat       `json:"apr"`
	DailyRewards    flexFloat       `json:"dailyRewards"`
	Tags            []string        `json:"tags"`
	DepositURL      string          `json:"depositUrl"`
	ExplorerAddress string          `json:"explorerAddress"`
	Tokens          []upstreamToken `json:"tokens"`
	Chain           *struct {
		ID   flexFloat `json:"id"`
		Name string    `json:"name"`
	} `json:"chain"`
	Protocol *struct {
		ID          flexString `json:"id"`
		Name        string     `json:"name"`
		Tags        []string   `json:"tags"`
		Description string     `json:"description"`
		URL         string     `json:"url"`
	} `json:"protocol"`
	RewardsRecord *struct {
		Breakdowns []struct {
			Token            upstreamToken `json:"token"`
			Amount           flexString    `json:"amount"`
			Value            flexFloat     `json:"value"`
			DistributionType string        `json:"distributionType"`
		} `json:"breakdowns"`
	} `json:"rewardsRecord"`
}

// normalize applies zero and empty defaults so downstream code never sees
// nil slices for tags, tokens or breakdowns.
func (o upstreamOpportunity) normalize() model.Opportunity {
	out := model.Opportunity{
		ID:               string(o.ID),
		ChainID:          uint64(o.ChainID),
		Name:             o.Name,
		Type:             o.Type,
		Status:           o.Status,
		Action:           o.Action,
		TVL:              float64(o.TVL),
		APR:              float64(o.APR),
		DailyRewards:     float64(o.DailyRewards),
		Tags:             []string{},
		Tokens:           []model.EarnToken{},
		RewardsBreakdown: []model.RewardBreakdown{},
		DepositURL:       o.DepositURL,
		ExplorerAddress:  o.ExplorerAddress,
	}
	if o.Tags != nil {
		out.Tags = o.Tags
	}
	for _, t := range o.Tokens {
		out.Tokens = append(out.Tokens, t.normalize())
	}
	if o.Chain != nil {
		out.Chain = &model.ChainRef{ID: uint64(o.Chain.ID), Name: o.Chain.Name}
	}
	if o.Protocol != nil {
		out.Protocol = &model.Protocol{
			ID:          string(o.Protocol.ID),
			Name:        o.Protocol.Name,
			Tags:        o.Protocol.Tags,
			Description: o.Protocol.Description,
			URL:         o.Protocol.URL,
		}
	}
	if o.RewardsRecord != nil {
		for _, b := range o.RewardsRecord.Breakdowns {
			out.RewardsBreakdown = append(out.RewardsBreakdown, model.RewardBreakdown{
				Token:            b.Token.normalize(),
				Amount:           string(b.Amount),
				Value:            float64(b.Value),
				DistributionType: b.DistributionType,
			})
		}
	}
	return out
}

// Fetch retrieves and normalizes the full catalog in a single request.
func (c *OpportunityClient) Fetch(ctx context.Context) ([]model.Opportunity, error) {
	if _, err := url.Parse(c.url); err != nil {
		return nil, errs.Wrap(errs.KindNotConfigured, err, "invalid opportunity catalog URL")
	}

	var resp []upstreamOpportunity
	if err := c.getJSON(ctx, "opportunities", c.url, &resp); err != nil {
		return nil, err
	}

	out := make([]model.Opportunity, 0, len(resp))
	for _, o := range resp {
		out = append(out, o.normalize())
	}
	logrus.WithFields(logrus.Fields{"upstream": c.name, "count": len(out)}).Debug("Fetched opportunity catalog")
	return out, nil
}
