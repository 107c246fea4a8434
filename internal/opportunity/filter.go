package opportunity

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/model"
)

// FilterAll disables the simple filter keyword.
const FilterAll = "ALL"

// Criteria narrows the catalog. Every set field must match.
type Criteria struct {
	// Filter matches status, action or tag, e.g. "LIVE" or "LEND"
	Filter string `json:"filter,omitempty"`

	// ChainID of zero matches every chain
	ChainID uint64 `json:"chainId,omitempty"`

	Status string `json:"status,omitempty"`
	Action string `json:"action,omitempty"`

	// MinAPR is inclusive
	MinAPR *float64 `json:"minApr,omitempty"`

	// Tags matches opportunities carrying any of the tags
	Tags []string `json:"tags,omitempty"`

	// Protocol is compared case-insensitively
	Protocol string `json:"protocol,omitempty"`
}

// Sort keys accepted by Sort.
const (
	SortAPR          = "apr"
	SortTVL          = "tvl"
	SortRewards      = "rewards"
	SortDailyRewards = "dailyrewards"
)

// Filter returns the opportunities matching c, preserving order.
func Filter(opps []model.Opportunity, c Criteria) []model.Opportunity {
	out := make([]model.Opportunity, 0, len(opps))
	for _, o := range opps {
		if matches(o, c) {
			out = append(out, o)
		}
	}
	logrus.WithFields(logrus.Fields{
		"total":   len(opps),
		"matched": len(out),
	}).Debug("Filtered opportunities")
	return out
}

// matches checks a single opportunity against every set criterion
func matches(o model.Opportunity, c Criteria) bool {
	if c.Filter != "" && c.Filter != FilterAll {
		if o.Status != c.Filter && o.Action != c.Filter && !o.HasTag(c.Filter) {
			return false
		}
	}
	if c.ChainID != 0 && o.ChainID != c.ChainID {
		return false
	}
	if c.Status != "" && o.Status != c.Status {
		return false
	}
	if c.Action != "" && o.Action != c.Action {
		return false
	}
	if c.MinAPR != nil && o.APR < *c.MinAPR {
		return false
	}
	if len(c.Tags) > 0 {
		found := false
		for _, t := range c.Tags {
			if o.HasTag(t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.Protocol != "" && !strings.EqualFold(o.ProtocolName(), c.Protocol) {
		return false
	}
	return true
}

// Sort orders a copy of opps by apr, tvl or rewards/dailyrewards. Unknown
// keys sort by APR descending regardless of ascending.
func Sort(opps []model.Opportunity, by string, ascending bool) []model.Opportunity {
	out := append([]model.Opportunity(nil), opps...)

	var key func(model.Opportunity) float64
	switch strings.ToLower(by) {
	case SortAPR:
		key = func(o model.Opportunity) float64 { return o.APR }
	case SortTVL:
		key = func(o model.Opportunity) float64 { return o.TVL }
	case SortRewards, SortDailyRewards:
		key = func(o model.Opportunity) float64 { return o.DailyRewards }
	default:
		key = func(o model.Opportunity) float64 { return o.APR }
		ascending = false
	}

	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return key(out[i]) < key(out[j])
		}
		return key(out[i]) > key(out[j])
	})
	return out
}
