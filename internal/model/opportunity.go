package model

// Opportunity is one normalized entry of the external yield catalog.
type Opportunity struct {
	ID           string   `json:"id"`
	ChainID      uint64   `json:"chainId"`
	Name         string   `json:"name"`
	Type         string   `json:"type,omitempty"`
	Status       string   `json:"status,omitempty"`
	Action       string   `json:"action,omitempty"`
	TVL          float64  `json:"tvl"`
	APR          float64  `json:"apr"`
	DailyRewards float64  `json:"dailyRewards"`
	Tags         []string `json:"tags"`

	Tokens           []EarnToken       `json:"tokens"`
	Chain            *ChainRef         `json:"chain,omitempty"`
	Protocol         *Protocol         `json:"protocol,omitempty"`
	RewardsBreakdown []RewardBreakdown `json:"rewardsBreakdown"`

	DepositURL      string `json:"depositUrl,omitempty"`
	ExplorerAddress string `json:"explorerAddress,omitempty"`
}

// Opportunity statuses used by the catalog.
const (
	StatusLive   = "LIVE"
	StatusPaused = "PAUSED"
)

// HasTag reports whether tag is among the opportunity's tags.
func (o Opportunity) HasTag(tag string) bool {
	for _, t := range o.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ProtocolName returns the protocol name or an empty string.
func (o Opportunity) ProtocolName() string {
	if o.Protocol == nil {
		return ""
	}
	return o.Protocol.Name
}

// EarnToken is a token involved in an opportunity.
type EarnToken struct {
	ID       string  `json:"id,omitempty"`
	Name     string  `json:"name"`
	ChainID  uint64  `json:"chainId,omitempty"`
	Address  string  `json:"address"`
	Decimals uint8   `json:"decimals"`
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price,omitempty"`
	Verified bool    `json:"verified,omitempty"`
}

// ChainRef identifies the chain an opportunity lives on.
type ChainRef struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Protocol names the project behind an opportunity.
type Protocol struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	Tags        []string `json:"tags,omitempty"`
	Description string   `json:"description,omitempty"`
	URL         string   `json:"url,omitempty"`
}

// RewardBreakdown is one reward stream of an opportunity.
type RewardBreakdown struct {
	Token            EarnToken `json:"token"`
	Amount           string    `json:"amount"`
	Value            float64   `json:"value,omitempty"`
	DistributionType string    `json:"distributionType,omitempty"`
}
