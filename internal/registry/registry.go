// Package registry holds the immutable network, token, vault and price feed
// tables the orchestrator resolves requests against.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

// Registry resolves network and token metadata. It is built once and never
// mutated, so it is safe for concurrent use.
type Registry struct {
	networks map[types.SupportedNetwork]model.NetworkDescriptor
	tokens   map[string]model.TokenDescriptor
	folded   map[string]string
	vault    *model.VaultDescriptor
	feeds    map[string]model.PriceFeed
}

// New validates the tables and builds a registry.
func New(t Tables) (*Registry, error) {
	r := &Registry{
		networks: make(map[types.SupportedNetwork]model.NetworkDescriptor, len(t.Networks)),
		tokens:   make(map[string]model.TokenDescriptor, len(t.Tokens)),
		folded:   make(map[string]string, len(t.Tokens)),
		feeds:    make(map[string]model.PriceFeed, len(t.PriceFeeds)),
	}

	chainIDs := make(map[uint64]types.SupportedNetwork)
	for _, n := range t.Networks {
		if _, err := types.Counterpart(n.Name); err != nil {
			return nil, errs.Wrap(errs.KindUnknownNetwork, err, "invalid network table")
		}
		if _, dup := r.networks[n.Name]; dup {
			return nil, fmt.Errorf("network %s declared twice", n.Name)
		}
		if n.ChainID == 0 {
			return nil, fmt.Errorf("network %s has no chain id", n.Name)
		}
		if other, dup := chainIDs[n.ChainID]; dup {
			return nil, fmt.Errorf("chain id %d used by both %s and %s", n.ChainID, other, n.Name)
		}
		if n.BridgeAddress == (common.Address{}) {
			return nil, errs.New(errs.KindNotConfigured, "network %s has no bridge address", n.Name)
		}
		chainIDs[n.ChainID] = n.Name
		r.networks[n.Name] = n
	}
	for _, name := range types.Networks() {
		if _, ok := r.networks[name]; !ok {
			return nil, errs.New(errs.KindNotConfigured, "network %s is missing from the registry", name)
		}
	}

	for _, tok := range t.Tokens {
		if err := validateToken(tok); err != nil {
			return nil, err
		}
		key := strings.ToLower(tok.Symbol)
		if prev, dup := r.folded[key]; dup {
			return nil, fmt.Errorf("token %s collides with %s", tok.Symbol, prev)
		}
		r.tokens[tok.Symbol] = tok
		r.folded[key] = tok.Symbol
	}

	if t.Vault != nil {
		v := *t.Vault
		if v.Teller == (common.Address{}) || v.ShareToken == (common.Address{}) {
			return nil, errs.New(errs.KindNotConfigured, "vault %s needs teller and share token addresses", v.Name)
		}
		for _, asset := range v.AcceptedAssets {
			tok, err := r.Token(asset, types.NetworkSwellchain)
			if err != nil {
				return nil, fmt.Errorf("vault asset: %w", err)
			}
			if tok.IsNative() {
				return nil, fmt.Errorf("vault asset %s must be an ERC-20 token", asset)
			}
		}
		r.vault = &v
	}

	for _, f := range t.PriceFeeds {
		if f.Address == (common.Address{}) {
			return nil, errs.New(errs.KindNotConfigured, "price feed %s has no address", f.Pair)
		}
		if f.Network == "" {
			f.Network = types.NetworkSwellchain
		}
		if _, ok := r.networks[f.Network]; !ok {
			return nil, errs.New(errs.KindUnknownNetwork, "price feed %s targets unknown network %s", f.Pair, f.Network)
		}
		r.feeds[strings.ToUpper(f.Pair)] = f
	}

	return r, nil
}

// validateToken enforces positive decimals and cross-chain decimals
// consistency for bridged tokens.
func validateToken(tok model.TokenDescriptor) error {
	if tok.Symbol == "" {
		return fmt.Errorf("token without symbol")
	}
	if tok.Decimals == 0 {
		return fmt.Errorf("token %s has zero decimals", tok.Symbol)
	}
	if tok.L1Decimals != nil && *tok.L1Decimals != tok.Decimals {
		return errs.New(errs.KindDecimalsMismatch, "token %s declares %d decimals on ethereum but %d overall",
			tok.Symbol, *tok.L1Decimals, tok.Decimals)
	}
	if tok.L2Decimals != nil && *tok.L2Decimals != tok.Decimals {
		return errs.New(errs.KindDecimalsMismatch, "token %s declares %d decimals on swellchain but %d overall",
			tok.Symbol, *tok.L2Decimals, tok.Decimals)
	}
	if tok.CanonicalAddress != model.NativeAddress &&
		tok.L1Address == (common.Address{}) && tok.L2Address == (common.Address{}) {
		return fmt.Errorf("token %s has no contract address", tok.Symbol)
	}
	return nil
}

// Network resolves a network descriptor by name.
func (r *Registry) Network(name types.SupportedNetwork) (model.NetworkDescriptor, error) {
	n, ok := r.networks[name]
	if !ok {
		return model.NetworkDescriptor{}, errs.New(errs.KindUnknownNetwork, "unknown network %q", name)
	}
	return n, nil
}

// Networks returns both descriptors in a stable order.
func (r *Registry) Networks() []model.NetworkDescriptor {
	out := make([]model.NetworkDescriptor, 0, len(r.networks))
	for _, name := range types.Networks() {
		out = append(out, r.networks[name])
	}
	return out
}

// Counterpart returns the other end of the bridge pair.
func (r *Registry) Counterpart(name types.SupportedNetwork) (model.NetworkDescriptor, error) {
	other, err := types.Counterpart(name)
	if err != nil {
		return model.NetworkDescriptor{}, errs.Wrap(errs.KindUnknownNetwork, err, "resolve counterpart")
	}
	return r.Network(other)
}

// Token resolves a symbol on a network. The symbol is matched exactly first,
// then case-insensitively. A registered token that is not deployed on the
// network is reported as unknown there.
func (r *Registry) Token(symbol string, network types.SupportedNetwork) (model.TokenDescriptor, error) {
	if _, err := r.Network(network); err != nil {
		return model.TokenDescriptor{}, err
	}
	tok, ok := r.tokens[symbol]
	if !ok {
		canonical, found := r.folded[strings.ToLower(symbol)]
		if !found {
			return model.TokenDescriptor{}, errs.New(errs.KindUnknownToken, "unknown token %q", symbol)
		}
		tok = r.tokens[canonical]
	}
	if tok.IsNative() {
		return tok, nil
	}
	if _, deployed := tok.AddressOn(network); !deployed {
		return model.TokenDescriptor{}, errs.New(errs.KindUnknownToken, "token %s is not available on %s", tok.Symbol, network)
	}
	return tok, nil
}

// Tokens lists every registered token sorted by symbol.
func (r *Registry) Tokens() []model.TokenDescriptor {
	out := make([]model.TokenDescriptor, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// RemoteAddress returns the token's address on the other side of the bridge
// after checking it is deployed on both sides.
func (r *Registry) RemoteAddress(symbol string, source types.SupportedNetwork) (common.Address, error) {
	tok, err := r.Token(symbol, source)
	if err != nil {
		return common.Address{}, err
	}
	dest, err := types.Counterpart(source)
	if err != nil {
		return common.Address{}, errs.Wrap(errs.KindUnknownNetwork, err, "resolve remote address")
	}
	_, localOK := tok.AddressOn(source)
	remote, remoteOK := tok.AddressOn(dest)
	if tok.IsNative() || !localOK || !remoteOK {
		return common.Address{}, errs.New(errs.KindUnsupportedBridgeToken,
			"token %s cannot be bridged from %s to %s", tok.Symbol, source, dest)
	}
	return remote, nil
}

// Vault returns the earnETH vault descriptor.
func (r *Registry) Vault() (model.VaultDescriptor, error) {
	if r.vault == nil {
		return model.VaultDescriptor{}, errs.New(errs.KindNotConfigured, "no vault is configured for this profile")
	}
	return *r.vault, nil
}

// PriceFeed resolves the oracle for a trading pair, case-insensitively.
func (r *Registry) PriceFeed(pair string) (model.PriceFeed, error) {
	f, ok := r.feeds[strings.ToUpper(strings.TrimSpace(pair))]
	if !ok {
		return model.PriceFeed{}, errs.New(errs.KindUnsupportedPair, "no oracle address found for %s", pair)
	}
	return f, nil
}
