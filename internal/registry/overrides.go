package registry

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

// Overrides models the optional registry YAML file. Every field is optional;
// present fields replace the built-in value and unknown tokens or feeds are
// added.
type Overrides struct {
	Networks   map[types.SupportedNetwork]NetworkOverride `yaml:"networks"`
	Tokens     map[string]TokenOverride                   `yaml:"tokens"`
	Vault      *VaultOverride                             `yaml:"vault"`
	PriceFeeds map[string]FeedOverride                    `yaml:"price_feeds"`
}

// NetworkOverride replaces individual network fields.
type NetworkOverride struct {
	DisplayName   string `yaml:"display_name"`
	ChainID       uint64 `yaml:"chain_id"`
	BridgeAddress string `yaml:"bridge_address"`
	RPCURL        string `yaml:"rpc_url"`
	BlockExplorer string `yaml:"block_explorer"`
}

// TokenOverride adds a token or replaces fields of a built-in one.
type TokenOverride struct {
	Decimals   uint8  `yaml:"decimals"`
	L1Address  string `yaml:"l1_address"`
	L2Address  string `yaml:"l2_address"`
	L1Decimals *uint8 `yaml:"l1_decimals"`
	L2Decimals *uint8 `yaml:"l2_decimals"`
	Native     bool   `yaml:"native"`
}

// VaultOverride replaces the vault deployment.
type VaultOverride struct {
	Name           string   `yaml:"name"`
	Teller         string   `yaml:"teller"`
	ShareToken     string   `yaml:"share_token"`
	ShareDecimals  uint8    `yaml:"share_decimals"`
	AcceptedAssets []string `yaml:"accepted_assets"`
	DefaultAsset   string   `yaml:"default_asset"`
}

// FeedOverride points a trading pair at an oracle.
type FeedOverride struct {
	Address string                 `yaml:"address"`
	Network types.SupportedNetwork `yaml:"network"`
}

// LoadOverrides parses the registry YAML file. An empty path yields empty
// overrides.
func LoadOverrides(path string) (Overrides, error) {
	if strings.TrimSpace(path) == "" {
		return Overrides{}, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read registry file: %w", err)
	}
	var o Overrides
	if err := yaml.Unmarshal(content, &o); err != nil {
		return Overrides{}, fmt.Errorf("parse registry file: %w", err)
	}
	return o, nil
}

// Merge layers other on top of o.
func (o Overrides) Merge(other Overrides) Overrides {
	out := Overrides{
		Networks:   make(map[types.SupportedNetwork]NetworkOverride),
		Tokens:     make(map[string]TokenOverride),
		PriceFeeds: make(map[string]FeedOverride),
		Vault:      o.Vault,
	}
	for _, src := range []Overrides{o, other} {
		for k, v := range src.Networks {
			out.Networks[k] = mergeNetwork(out.Networks[k], v)
		}
		for k, v := range src.Tokens {
			out.Tokens[k] = v
		}
		for k, v := range src.PriceFeeds {
			out.PriceFeeds[k] = v
		}
	}
	if other.Vault != nil {
		out.Vault = other.Vault
	}
	return out
}

func mergeNetwork(base, top NetworkOverride) NetworkOverride {
	if top.DisplayName != "" {
		base.DisplayName = top.DisplayName
	}
	if top.ChainID != 0 {
		base.ChainID = top.ChainID
	}
	if top.BridgeAddress != "" {
		base.BridgeAddress = top.BridgeAddress
	}
	if top.RPCURL != "" {
		base.RPCURL = top.RPCURL
	}
	if top.BlockExplorer != "" {
		base.BlockExplorer = top.BlockExplorer
	}
	return base
}

// Apply returns a copy of t with the overrides applied.
func (o Overrides) Apply(t Tables) (Tables, error) {
	out := Tables{
		Networks:   append([]model.NetworkDescriptor(nil), t.Networks...),
		Tokens:     append([]model.TokenDescriptor(nil), t.Tokens...),
		PriceFeeds: append([]model.PriceFeed(nil), t.PriceFeeds...),
		Vault:      t.Vault,
	}

	for name, n := range o.Networks {
		idx := -1
		for i := range out.Networks {
			if out.Networks[i].Name == name {
				idx = i
			}
		}
		if idx < 0 {
			return Tables{}, fmt.Errorf("override for unknown network %q", name)
		}
		d := &out.Networks[idx]
		if n.DisplayName != "" {
			d.DisplayName = n.DisplayName
		}
		if n.ChainID != 0 {
			d.ChainID = n.ChainID
		}
		if n.BridgeAddress != "" {
			addr, err := parseAddress("bridge_address", n.BridgeAddress)
			if err != nil {
				return Tables{}, err
			}
			d.BridgeAddress = addr
		}
		if n.RPCURL != "" {
			d.RPCURL = n.RPCURL
		}
		if n.BlockExplorer != "" {
			d.BlockExplorer = n.BlockExplorer
		}
	}

	for symbol, tok := range o.Tokens {
		idx := -1
		for i := range out.Tokens {
			if out.Tokens[i].Symbol == symbol {
				idx = i
			}
		}
		if idx < 0 {
			out.Tokens = append(out.Tokens, model.TokenDescriptor{Symbol: symbol})
			idx = len(out.Tokens) - 1
		}
		if err := applyToken(&out.Tokens[idx], tok); err != nil {
			return Tables{}, err
		}
	}

	if o.Vault != nil {
		v, err := buildVault(*o.Vault)
		if err != nil {
			return Tables{}, err
		}
		out.Vault = &v
	}

	for pair, f := range o.PriceFeeds {
		addr, err := parseAddress("price feed "+pair, f.Address)
		if err != nil {
			return Tables{}, err
		}
		feed := model.PriceFeed{Pair: pair, Address: addr, Network: f.Network}
		replaced := false
		for i := range out.PriceFeeds {
			if strings.EqualFold(out.PriceFeeds[i].Pair, pair) {
				out.PriceFeeds[i] = feed
				replaced = true
			}
		}
		if !replaced {
			out.PriceFeeds = append(out.PriceFeeds, feed)
		}
	}

	return out, nil
}

func applyToken(d *model.TokenDescriptor, o TokenOverride) error {
	if o.Decimals != 0 {
		d.Decimals = o.Decimals
	}
	if o.L1Decimals != nil {
		d.L1Decimals = o.L1Decimals
	}
	if o.L2Decimals != nil {
		d.L2Decimals = o.L2Decimals
	}
	if o.Native {
		d.CanonicalAddress = model.NativeAddress
	}
	if o.L1Address != "" {
		addr, err := parseAddress(d.Symbol+" l1_address", o.L1Address)
		if err != nil {
			return err
		}
		d.L1Address = addr
	}
	if o.L2Address != "" {
		addr, err := parseAddress(d.Symbol+" l2_address", o.L2Address)
		if err != nil {
			return err
		}
		d.L2Address = addr
	}
	if d.CanonicalAddress == "" {
		switch {
		case d.L1Address != (common.Address{}):
			d.CanonicalAddress = d.L1Address.Hex()
		case d.L2Address != (common.Address{}):
			d.CanonicalAddress = d.L2Address.Hex()
		}
	}
	return nil
}

func buildVault(o VaultOverride) (model.VaultDescriptor, error) {
	teller, err := parseAddress("vault teller", o.Teller)
	if err != nil {
		return model.VaultDescriptor{}, err
	}
	share, err := parseAddress("vault share_token", o.ShareToken)
	if err != nil {
		return model.VaultDescriptor{}, err
	}
	v := model.VaultDescriptor{
		Name:           o.Name,
		Teller:         teller,
		ShareToken:     share,
		ShareDecimals:  o.ShareDecimals,
		AcceptedAssets: o.AcceptedAssets,
		DefaultAsset:   o.DefaultAsset,
	}
	if v.ShareDecimals == 0 {
		v.ShareDecimals = 18
	}
	return v, nil
}

func parseAddress(field, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", field, s)
	}
	return common.HexToAddress(s), nil
}

// Load builds the registry for a profile with file and environment
// overrides layered on top of the built-in tables.
func Load(profile types.Profile, path string, env Overrides) (*Registry, error) {
	file, err := LoadOverrides(path)
	if err != nil {
		return nil, err
	}
	tables, err := file.Merge(env).Apply(Builtin(profile))
	if err != nil {
		return nil, err
	}
	return New(tables)
}
