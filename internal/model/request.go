package model

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/types"
	"github.com/yourorg/swell-ops-ea/internal/units"
)

// OperationKind tags the OperationRequest variants.
type OperationKind string

const (
	KindTransfer      OperationKind = "transfer"
	KindBridge        OperationKind = "bridge"
	KindSwap          OperationKind = "swap"
	KindVaultDeposit  OperationKind = "vault_deposit"
	KindVaultWithdraw OperationKind = "vault_withdraw"
	KindPrice         OperationKind = "price"
)

// Defaults applied when the extraction step leaves a field empty.
const (
	DefaultBridgeToken    = "ETH"
	DefaultSwapSlippage   = "0.5"
	DefaultVaultSlippage  = "1.0"
	DefaultVaultAsset     = "ezETH"
	DefaultPriceNetwork   = types.NetworkSwellchain
	DefaultTransferTarget = types.NetworkSwellchain
)

// OperationRequest is one validated user intent.
type OperationRequest interface {
	Kind() OperationKind
	Validate() error
}

// TransferRequest sends the native asset to a recipient.
type TransferRequest struct {
	Recipient string                 `json:"recipient"`
	Amount    string                 `json:"amount"`
	Network   types.SupportedNetwork `json:"network,omitempty"`
}

func (TransferRequest) Kind() OperationKind { return KindTransfer }

func (r TransferRequest) Validate() error {
	if r.Recipient == "" {
		return errs.New(errs.KindMissingParameter, "recipient is required")
	}
	if !common.IsHexAddress(r.Recipient) {
		return errs.New(errs.KindInvalidParameter, "recipient %q is not a hex address", r.Recipient)
	}
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	return validateNetwork(r.Network)
}

// BridgeRequest moves an asset across the Ethereum/Swellchain pair.
type BridgeRequest struct {
	Token              string                 `json:"token,omitempty"`
	Amount             string                 `json:"amount"`
	SourceNetwork      types.SupportedNetwork `json:"sourceNetwork,omitempty"`
	DestinationNetwork types.SupportedNetwork `json:"destinationNetwork,omitempty"`
}

func (BridgeRequest) Kind() OperationKind { return KindBridge }

func (r BridgeRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	_, _, err := r.ResolvePair()
	return err
}

// ResolvePair derives both ends of the bridge. The source forces the
// destination; a destination alone forces the source.
func (r BridgeRequest) ResolvePair() (types.SupportedNetwork, types.SupportedNetwork, error) {
	if err := validateNetwork(r.SourceNetwork); err != nil {
		return "", "", err
	}
	if err := validateNetwork(r.DestinationNetwork); err != nil {
		return "", "", err
	}
	switch {
	case r.SourceNetwork != "":
		dst, err := types.Counterpart(r.SourceNetwork)
		if err != nil {
			return "", "", errs.Wrap(errs.KindUnknownNetwork, err, "resolve destination")
		}
		return r.SourceNetwork, dst, nil
	case r.DestinationNetwork != "":
		src, err := types.Counterpart(r.DestinationNetwork)
		if err != nil {
			return "", "", errs.Wrap(errs.KindUnknownNetwork, err, "resolve source")
		}
		return src, r.DestinationNetwork, nil
	default:
		return "", "", errs.New(errs.KindMissingParameter, "source or destination network is required")
	}
}

// SwapRequest exchanges one Swellchain token for another via the quote service.
type SwapRequest struct {
	TokenIn  string `json:"tokenIn"`
	TokenOut string `json:"tokenOut"`
	Amount   string `json:"amount"`
	Slippage string `json:"slippage,omitempty"`
}

func (SwapRequest) Kind() OperationKind { return KindSwap }

func (r SwapRequest) Validate() error {
	if r.TokenIn == "" || r.TokenOut == "" {
		return errs.New(errs.KindMissingParameter, "tokenIn and tokenOut are required")
	}
	if strings.EqualFold(r.TokenIn, r.TokenOut) {
		return errs.New(errs.KindInvalidParameter, "cannot swap %s for itself", r.TokenIn)
	}
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	_, err := units.ParseSlippage(r.Slippage)
	return err
}

// VaultDepositRequest deposits an accepted asset into the earnETH vault.
type VaultDepositRequest struct {
	Token    string `json:"token,omitempty"`
	Amount   string `json:"amount"`
	Slippage string `json:"slippage,omitempty"`
}

func (VaultDepositRequest) Kind() OperationKind { return KindVaultDeposit }

func (r VaultDepositRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	_, err := units.ParseSlippage(r.Slippage)
	return err
}

// VaultWithdrawRequest redeems earnETH shares for an accepted asset. Amount is
// denominated in shares.
type VaultWithdrawRequest struct {
	Token    string `json:"token,omitempty"`
	Amount   string `json:"amount"`
	Slippage string `json:"slippage,omitempty"`
	Receiver string `json:"receiver,omitempty"`
}

func (VaultWithdrawRequest) Kind() OperationKind { return KindVaultWithdraw }

func (r VaultWithdrawRequest) Validate() error {
	if err := validateAmount(r.Amount); err != nil {
		return err
	}
	if r.Receiver != "" && !common.IsHexAddress(r.Receiver) {
		return errs.New(errs.KindInvalidParameter, "receiver %q is not a hex address", r.Receiver)
	}
	_, err := units.ParseSlippage(r.Slippage)
	return err
}

// PriceRequest reads an oracle for a configured trading pair.
type PriceRequest struct {
	Pair    string                 `json:"tradingPair"`
	Network types.SupportedNetwork `json:"network,omitempty"`
}

func (PriceRequest) Kind() OperationKind { return KindPrice }

func (r PriceRequest) Validate() error {
	if strings.TrimSpace(r.Pair) == "" {
		return errs.New(errs.KindMissingParameter, "tradingPair is required")
	}
	return validateNetwork(r.Network)
}

// envelope is the wire shape produced by the parameter extraction step.
type envelope struct {
	Kind   OperationKind   `json:"kind"`
	Params json.RawMessage `json:"params"`
}

// DecodeRequest parses and validates an untrusted request envelope. Unknown
// fields are rejected and defaults are filled before validation.
func DecodeRequest(data []byte) (OperationRequest, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errs.Wrap(errs.KindInvalidParameter, err, "decode request")
	}
	if env.Kind == "" {
		return nil, errs.New(errs.KindMissingParameter, "operation kind is required")
	}
	if len(env.Params) == 0 {
		env.Params = json.RawMessage("{}")
	}

	var req OperationRequest
	var err error
	switch env.Kind {
	case KindTransfer:
		var r TransferRequest
		err = decodeStrict(env.Params, &r)
		req = r
	case KindBridge:
		var r BridgeRequest
		err = decodeStrict(env.Params, &r)
		req = r
	case KindSwap:
		var r SwapRequest
		err = decodeStrict(env.Params, &r)
		req = r
	case KindVaultDeposit:
		var r VaultDepositRequest
		err = decodeStrict(env.Params, &r)
		req = r
	case KindVaultWithdraw:
		var r VaultWithdrawRequest
		err = decodeStrict(env.Params, &r)
		req = r
	case KindPrice:
		var r PriceRequest
		err = decodeStrict(env.Params, &r)
		req = r
	default:
		return nil, errs.New(errs.KindInvalidParameter, "unsupported operation kind %q", env.Kind)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidParameter, err, "decode %s params", env.Kind)
	}
	req = ApplyDefaults(req)
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// ApplyDefaults fills optional fields the extraction step may leave empty.
func ApplyDefaults(req OperationRequest) OperationRequest {
	switch r := req.(type) {
	case TransferRequest:
		if r.Network == "" {
			r.Network = DefaultTransferTarget
		}
		return r
	case BridgeRequest:
		if r.Token == "" {
			r.Token = DefaultBridgeToken
		}
		return r
	case SwapRequest:
		if r.Slippage == "" {
			r.Slippage = DefaultSwapSlippage
		}
		return r
	case VaultDepositRequest:
		if r.Token == "" {
			r.Token = DefaultVaultAsset
		}
		if r.Slippage == "" {
			r.Slippage = DefaultVaultSlippage
		}
		return r
	case VaultWithdrawRequest:
		if r.Token == "" {
			r.Token = DefaultVaultAsset
		}
		if r.Slippage == "" {
			r.Slippage = DefaultVaultSlippage
		}
		return r
	case PriceRequest:
		if r.Network == "" {
			r.Network = DefaultPriceNetwork
		}
		return r
	}
	return req
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func validateAmount(amount string) error {
	d, err := units.ParseDecimal(amount)
	if err != nil {
		return err
	}
	if d.IsZero() {
		return errs.New(errs.KindInvalidParameter, "amount must be greater than zero")
	}
	return nil
}

// validateNetwork accepts an empty name; callers fill defaults.
func validateNetwork(n types.SupportedNetwork) error {
	if n == "" {
		return nil
	}
	if _, err := types.Counterpart(n); err != nil {
		return errs.Wrap(errs.KindUnknownNetwork, err, "unknown network %q", n)
	}
	return nil
}
