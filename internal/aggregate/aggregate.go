// Package aggregate computes catalog-wide statistics over yield
// opportunities.
package aggregate

import (
	"math"
	"sort"
	"strings"

	"github.com/yourorg/swell-ops-ea/internal/model"
)

// DefaultTrimPercent is the share cut from each end by Summarize.
const DefaultTrimPercent = 0.1

// Summary describes a set of opportunities.
type Summary struct {
	Count             int     `json:"count"`
	Protocols         int     `json:"protocols"`
	TotalTVL          float64 `json:"totalTvl"`
	TotalDailyRewards float64 `json:"totalDailyRewards"`
	WeightedAPR       float64 `json:"weightedApr"`
	MedianAPR         float64 `json:"medianApr"`
	TrimmedAPR        float64 `json:"trimmedApr"`
	MaxAPR            float64 `json:"maxApr"`
	Outliers          int     `json:"outliers"`
}

// usable excludes entries that cannot carry weight.
func usable(o model.Opportunity) bool {
	return o.TVL > 0 && o.APR >= 0 && !math.IsNaN(o.APR) && !math.IsNaN(o.TVL)
}

// Weighted returns the TVL-weighted APR and the TVL it was weighted over.
func Weighted(opps []model.Opportunity) (apr, tvl float64) {
	var weighted float64
	for _, o := range opps {
		if !usable(o) {
			continue
		}
		tvl += o.TVL
		weighted += o.APR * o.TVL
	}
	if tvl <= 0 || math.IsNaN(weighted) {
		return 0, 0
	}
	return weighted / tvl, tvl
}

// Median of selector over entries with positive TVL.
func Median(opps []model.Opportunity, selector func(model.Opportunity) float64) float64 {
	values := make([]float64, 0, len(opps))
	for _, o := range opps {
		if o.TVL > 0 {
			values = append(values, selector(o))
		}
	}
	if len(values) == 0 {
		return 0
	}

	sort.Float64s(values)
	n := len(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// TrimmedMeanAPR drops trimPercent of the entries from each end of the APR
// range and returns the TVL-weighted APR of the rest. Small sets and
// out-of-range percentages fall back to Weighted.
func TrimmedMeanAPR(opps []model.Opportunity, trimPercent float64) float64 {
	valid := make([]model.Opportunity, 0, len(opps))
	for _, o := range opps {
		if usable(o) {
			valid = append(valid, o)
		}
	}
	if len(valid) < 3 || trimPercent <= 0 || trimPercent >= 0.5 {
		apr, _ := Weighted(valid)
		return apr
	}

	sort.SliceStable(valid, func(i, j int) bool { return valid[i].APR < valid[j].APR })
	trim := int(float64(len(valid)) * trimPercent)
	apr, _ := Weighted(valid[trim : len(valid)-trim])
	return apr
}

// FilterOutliers removes entries whose APR lies outside 1.5 IQR of the
// quartiles. Fewer than four usable entries are returned unchanged.
func FilterOutliers(opps []model.Opportunity) []model.Opportunity {
	aprs := make([]float64, 0, len(opps))
	for _, o := range opps {
		if usable(o) {
			aprs = append(aprs, o.APR)
		}
	}
	if len(aprs) < 4 {
		return opps
	}

	sort.Float64s(aprs)
	n := len(aprs)
	q1, q3 := aprs[n/4], aprs[n*3/4]
	iqr := q3 - q1
	lower, upper := q1-1.5*iqr, q3+1.5*iqr

	out := make([]model.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.APR >= lower && o.APR <= upper {
			out = append(out, o)
		}
	}
	return out
}

// Summarize computes every statistic of Summary for opps.
func Summarize(opps []model.Opportunity) Summary {
	s := Summary{Count: len(opps)}
	if len(opps) == 0 {
		return s
	}

	protocols := make(map[string]struct{})
	for _, o := range opps {
		s.TotalDailyRewards += o.DailyRewards
		if o.APR > s.MaxAPR {
			s.MaxAPR = o.APR
		}
		if name := strings.ToLower(o.ProtocolName()); name != "" {
			protocols[name] = struct{}{}
		}
	}
	s.Protocols = len(protocols)

	s.WeightedAPR, s.TotalTVL = Weighted(opps)
	s.MedianAPR = Median(opps, func(o model.Opportunity) float64 { return o.APR })
	s.TrimmedAPR = TrimmedMeanAPR(opps, DefaultTrimPercent)
	s.Outliers = len(opps) - len(FilterOutliers(opps))
	return s
}
