// Package model defines the core data structures for the swell-ops-ea.
package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/swell-ops-ea/internal/types"
)

// NativeAddress marks the chain's gas asset in TokenDescriptor.CanonicalAddress.
const NativeAddress = "native"

// NetworkDescriptor holds the immutable metadata of one supported chain.
type NetworkDescriptor struct {
	// Name is the registry key, "ethereum" or "swellchain"
	Name types.SupportedNetwork `json:"name"`

	// DisplayName is the human-facing chain name, e.g. "Sepolia"
	DisplayName string `json:"displayName"`

	ChainID       uint64         `json:"chainId"`
	BridgeAddress common.Address `json:"bridgeAddress"`
	RPCURL        string         `json:"rpcUrl"`
	BlockExplorer string         `json:"blockExplorer"`
}

// TxURL links a transaction hash on the network's block explorer.
func (n NetworkDescriptor) TxURL(hash string) string {
	if n.BlockExplorer == "" || hash == "" {
		return ""
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(n.BlockExplorer, "/"), hash)
}

// TokenDescriptor describes a token and its per-chain deployment.
type TokenDescriptor struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`

	// CanonicalAddress is the bridge pairing key; "native" for the gas asset
	CanonicalAddress string `json:"canonicalAddress"`

	// Zero addresses mean the token is not deployed on that side
	L1Address common.Address `json:"l1Address,omitempty"`
	L2Address common.Address `json:"l2Address,omitempty"`

	// Per-chain decimals when they were declared separately; validated equal
	// to Decimals by the registry
	L1Decimals *uint8 `json:"l1Decimals,omitempty"`
	L2Decimals *uint8 `json:"l2Decimals,omitempty"`
}

// IsNative reports whether the token is the chain's gas asset: a "native"
// canonical address with no per-chain deployment.
func (t TokenDescriptor) IsNative() bool {
	return t.CanonicalAddress == NativeAddress &&
		t.L1Address == (common.Address{}) &&
		t.L2Address == (common.Address{})
}

// AddressOn returns the token's contract address on the given network.
func (t TokenDescriptor) AddressOn(network types.SupportedNetwork) (common.Address, bool) {
	var addr common.Address
	switch network {
	case types.NetworkEthereum:
		addr = t.L1Address
	case types.NetworkSwellchain:
		addr = t.L2Address
	}
	return addr, addr != (common.Address{})
}

// DecimalsOn returns the decimals declared for a network, falling back to
// the symbol-wide value.
func (t TokenDescriptor) DecimalsOn(network types.SupportedNetwork) uint8 {
	if network == types.NetworkEthereum && t.L1Decimals != nil {
		return *t.L1Decimals
	}
	if network == types.NetworkSwellchain && t.L2Decimals != nil {
		return *t.L2Decimals
	}
	return t.Decimals
}

// VaultDescriptor describes the earnETH BoringVault deployment on Swellchain.
type VaultDescriptor struct {
	Name           string         `json:"name"`
	Teller         common.Address `json:"teller"`
	ShareToken     common.Address `json:"shareToken"`
	ShareDecimals  uint8          `json:"shareDecimals"`
	AcceptedAssets []string       `json:"acceptedAssets"`
	DefaultAsset   string         `json:"defaultAsset"`
}

// Accepts reports whether symbol is one of the vault's deposit assets.
func (v VaultDescriptor) Accepts(symbol string) bool {
	for _, s := range v.AcceptedAssets {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// PriceFeed maps a trading pair to an oracle contract.
type PriceFeed struct {
	Pair    string                 `json:"pair"`
	Address common.Address         `json:"address"`
	Network types.SupportedNetwork `json:"network"`
}
