package chain

import (
	"sort"

	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

// Pool holds at most one wallet per network.
type Pool struct {
	wallets map[types.SupportedNetwork]Wallet
}

// NewPool indexes wallets by network. A later wallet for the same network
// replaces an earlier one.
func NewPool(wallets ...Wallet) *Pool {
	p := &Pool{wallets: make(map[types.SupportedNetwork]Wallet, len(wallets))}
	for _, w := range wallets {
		if w != nil {
			p.wallets[w.Network()] = w
		}
	}
	return p
}

// Wallet returns the signer for network.
func (p *Pool) Wallet(network types.SupportedNetwork) (Wallet, error) {
	w, ok := p.wallets[network]
	if !ok {
		return nil, errs.New(errs.KindNotConfigured, "no wallet configured for %s", network)
	}
	return w, nil
}

// All returns the configured wallets ordered by network name.
func (p *Pool) All() []Wallet {
	out := make([]Wallet, 0, len(p.wallets))
	for _, w := range p.wallets {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Network() < out[j].Network() })
	return out
}
