// Package types contains shared type definitions used across multiple packages
package types

import "fmt"

// SupportedNetwork names one side of the Ethereum/Swellchain bridge pair.
type SupportedNetwork string

// Supported networks
const (
	NetworkEthereum   SupportedNetwork = "ethereum"
	NetworkSwellchain SupportedNetwork = "swellchain"
)

// Profile selects which built-in registry tables are loaded.
type Profile string

const (
	ProfileMainnet Profile = "mainnet"
	ProfileTestnet Profile = "testnet"
)

// Networks lists the closed pair in a stable order.
func Networks() []SupportedNetwork {
	return []SupportedNetwork{NetworkEthereum, NetworkSwellchain}
}

// Counterpart returns the other side of the bridge pair.
func Counterpart(n SupportedNetwork) (SupportedNetwork, error) {
	switch n {
	case NetworkEthereum:
		return NetworkSwellchain, nil
	case NetworkSwellchain:
		return NetworkEthereum, nil
	default:
		return "", fmt.Errorf("network %q is not part of the bridge pair", n)
	}
}

// IsL1 reports whether n is the parent chain.
func (n SupportedNetwork) IsL1() bool {
	return n == NetworkEthereum
}
