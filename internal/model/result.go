package model

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

// TransactionPlan is the side-effect free description of what the
// orchestrator is about to submit.
type TransactionPlan struct {
	To    common.Address `json:"to"`
	Value *big.Int       `json:"value"`
	Data  []byte         `json:"data"`

	// RequiresApproval is set when the live allowance does not cover
	// ApprovalAmount
	RequiresApproval bool           `json:"requiresApproval"`
	ApprovalToken    common.Address `json:"approvalToken,omitempty"`
	ApprovalTarget   common.Address `json:"approvalTarget,omitempty"`
	ApprovalAmount   *big.Int       `json:"approvalAmount,omitempty"`
}

// Receipt status values.
const (
	ReceiptStatusFailed  uint64 = 0
	ReceiptStatusSuccess uint64 = 1
)

// Receipt is returned only after the transaction was mined.
type Receipt struct {
	Hash        common.Hash `json:"hash"`
	Status      uint64      `json:"status"`
	BlockNumber uint64      `json:"blockNumber"`

	Amount             string                 `json:"amount,omitempty"`
	Token              string                 `json:"token,omitempty"`
	SourceNetwork      types.SupportedNetwork `json:"sourceNetwork,omitempty"`
	DestinationNetwork types.SupportedNetwork `json:"destinationNetwork,omitempty"`
}

// Succeeded reports whether the transaction executed without reverting.
func (r Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccess
}

// Result starts a success payload from the receipt and its context.
func (r Receipt) Result() Result {
	return Result{
		Hash:               r.Hash.Hex(),
		Amount:             r.Amount,
		Token:              r.Token,
		SourceNetwork:      r.SourceNetwork,
		DestinationNetwork: r.DestinationNetwork,
	}
}

// SwapQuote is the quote service's answer, kept in raw base units.
type SwapQuote struct {
	TokenIn      common.Address `json:"tokenIn"`
	TokenOut     common.Address `json:"tokenOut"`
	AmountIn     string         `json:"amountIn"`
	AmountInUSD  float64        `json:"amountInUsd"`
	AmountOut    string         `json:"amountOut"`
	AmountOutUSD float64        `json:"amountOutUsd"`
	MinAmountOut string         `json:"minAmountOut"`
	Splits       []SwapSplit    `json:"splits,omitempty"`
}

// SwapSplit is one leg of a routed quote.
type SwapSplit struct {
	AmountIn  string      `json:"amountIn"`
	AmountOut string      `json:"amountOut"`
	Swaps     []SwapRoute `json:"swaps,omitempty"`
}

// SwapRoute is one pool hop inside a split.
type SwapRoute struct {
	TokenIn  common.Address `json:"tokenIn"`
	TokenOut common.Address `json:"tokenOut"`
	Pool     string         `json:"pool"`
	Protocol string         `json:"protocol,omitempty"`
}

// SwapTx is the final payload returned by the quote service.
type SwapTx struct {
	Quote  SwapQuote      `json:"quote"`
	Router common.Address `json:"router"`
	Data   []byte         `json:"data"`
}

// QuoteSummary is the user-facing rendering of a swap quote.
type QuoteSummary struct {
	AmountIn     string  `json:"amountIn"`
	AmountOut    string  `json:"amountOut"`
	MinAmountOut string  `json:"minAmountOut"`
	AmountInUSD  float64 `json:"amountInUsd"`
	AmountOutUSD float64 `json:"amountOutUsd"`
	PriceImpact  float64 `json:"priceImpact"`
	Router       string  `json:"router"`
}

// Result is the payload handed to the reporting adapter.
type Result struct {
	Success     bool          `json:"success"`
	OperationID string        `json:"operationId"`
	Kind        OperationKind `json:"kind"`

	Hash         string `json:"hash,omitempty"`
	ApprovalHash string `json:"approvalHash,omitempty"`

	Amount             string                 `json:"amount,omitempty"`
	Token              string                 `json:"token,omitempty"`
	SourceNetwork      types.SupportedNetwork `json:"sourceNetwork,omitempty"`
	DestinationNetwork types.SupportedNetwork `json:"destinationNetwork,omitempty"`
	Recipient          string                 `json:"recipient,omitempty"`
	ExplorerURL        string                 `json:"explorerUrl,omitempty"`

	Price     string        `json:"price,omitempty"`
	UpdatedAt *time.Time    `json:"updatedAt,omitempty"`
	Quote     *QuoteSummary `json:"quote,omitempty"`

	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	ErrorKind errs.Kind `json:"errorKind,omitempty"`
}

// FailedResult renders err into a failure payload, keeping any transaction
// hashes the error carries.
func FailedResult(id string, kind OperationKind, err error) Result {
	res := Result{
		OperationID: id,
		Kind:        kind,
		Error:       err.Error(),
		ErrorKind:   errs.KindOf(err),
	}
	var e *errs.Error
	if errors.As(err, &e) {
		res.Hash = e.Hash
		res.ApprovalHash = e.ApprovalHash
	}
	return res
}
