package opportunity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourorg/swell-ops-ea/internal/model"
)

const formatFooter = "ℹ️ These rates adjust based on market conditions. Want me to filter for specific types of opportunities?"

// Format renders opportunities as the emoji summary shown to users. filter
// is the simple filter keyword of the query; "lend" changes the title.
func Format(opps []model.Opportunity, filter string) string {
	title := "🔍 Here are the opportunities on Swellchain:"
	if strings.EqualFold(filter, "lend") {
		title = "🔍 Here are the current lending opportunities on Swellchain:"
	}

	entries := make([]string, 0, len(opps))
	for i, o := range opps {
		entries = append(entries, formatEntry(i+1, o))
	}
	return title + "\n\n" + strings.Join(entries, "\n\n") + "\n\n" + formatFooter
}

func formatEntry(n int, o model.Opportunity) string {
	main := fmt.Sprintf("💼 %d. %s - %.1f%% APR", n, strings.ToUpper(o.Name), o.APR)
	if name := o.ProtocolName(); name != "" {
		main += " on " + name
	}
	lines := []string{main}

	tvl := "   📊 TVL: " + groupDigits(o.TVL, 0)
	if o.DailyRewards > 0 {
		tvl += " | 💰 Daily rewards: " + groupDigits(o.DailyRewards, 2)
	}
	lines = append(lines, tvl)

	if len(o.Tokens) > 0 {
		symbols := make([]string, 0, len(o.Tokens))
		for _, t := range o.Tokens {
			symbols = append(symbols, t.Symbol)
		}
		lines = append(lines, "   🪙 Tokens: "+strings.Join(symbols, ", "))
	}
	if o.DepositURL != "" {
		lines = append(lines, "   🔗 "+o.DepositURL)
	}
	if len(o.Tags) > 0 {
		lines = append(lines, "   🏷️ "+strings.Join(o.Tags, " | "))
	}
	return strings.Join(lines, "\n")
}

// groupDigits rounds v to at most places fraction digits, drops trailing
// zeros and groups the integer part by thousands.
func groupDigits(v float64, places int32) string {
	s := decimal.NewFromFloat(v).Round(places).String()
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteString(frac)
	return b.String()
}
