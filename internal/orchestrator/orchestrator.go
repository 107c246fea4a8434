// Package orchestrator turns validated operation requests into confirmed
// on-chain transactions: registry resolution, an optional approval step, the
// primary transaction and a structured result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/swell-ops-ea/internal/chain"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/journal"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/otel"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

// nativeSymbol is the gas asset symbol on both networks.
const nativeSymbol = "ETH"

// DefaultConfirmationTimeout bounds a receipt wait when Options leaves it
// unset. An approval and its primary transaction together fit in the
// server's write timeout.
const DefaultConfirmationTimeout = 4 * time.Minute

// Registry is the read-only metadata the orchestrator resolves against.
type Registry interface {
	Network(name types.SupportedNetwork) (model.NetworkDescriptor, error)
	Token(symbol string, network types.SupportedNetwork) (model.TokenDescriptor, error)
	RemoteAddress(symbol string, source types.SupportedNetwork) (common.Address, error)
	Vault() (model.VaultDescriptor, error)
	PriceFeed(pair string) (model.PriceFeed, error)
}

// WalletProvider hands out the signer for a network.
type WalletProvider interface {
	Wallet(network types.SupportedNetwork) (chain.Wallet, error)
}

// QuoteService is the external swap aggregator.
type QuoteService interface {
	Quote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (model.SwapQuote, error)
	Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int, slippage string, receiver common.Address) (model.SwapTx, error)
}

// ApprovalPolicy decides how much allowance an approval grants.
type ApprovalPolicy string

const (
	// ApprovalMax grants an unlimited allowance so later operations on the
	// same token and spender skip the approval step.
	ApprovalMax ApprovalPolicy = "max"
	// ApprovalExact grants exactly the amount of the current operation.
	ApprovalExact ApprovalPolicy = "exact"
)

// ParseApprovalPolicy accepts "max" or "exact"; empty means max.
func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch ApprovalPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ApprovalMax:
		return ApprovalMax, nil
	case ApprovalExact:
		return ApprovalExact, nil
	default:
		return "", fmt.Errorf("unknown approval policy %q", s)
	}
}

// Options tunes an Orchestrator. Zero values are usable.
type Options struct {
	Policy ApprovalPolicy

	// ConfirmationTimeout bounds every receipt wait; zero or negative means
	// DefaultConfirmationTimeout
	ConfirmationTimeout time.Duration

	Quotes  QuoteService
	Journal journal.Store

	NewID func() string
	Now   func() time.Time
}

// Orchestrator executes operation requests. It is safe for concurrent use,
// but operations sharing a signer rely on the signer for nonce ordering.
type Orchestrator struct {
	registry Registry
	wallets  WalletProvider
	quotes   QuoteService
	store    journal.Store

	policy         ApprovalPolicy
	confirmTimeout time.Duration
	approvals      *approvalCache

	newID func() string
	now   func() time.Time
}

// New creates an orchestrator.
func New(reg Registry, wallets WalletProvider, opts Options) *Orchestrator {
	o := &Orchestrator{
		registry:       reg,
		wallets:        wallets,
		quotes:         opts.Quotes,
		store:          opts.Journal,
		policy:         opts.Policy,
		confirmTimeout: opts.ConfirmationTimeout,
		approvals:      newApprovalCache(),
		newID:          opts.NewID,
		now:            opts.Now,
	}
	if o.store == nil {
		o.store = journal.NewMemoryStore()
	}
	if o.policy == "" {
		o.policy = ApprovalMax
	}
	if o.confirmTimeout <= 0 {
		o.confirmTimeout = DefaultConfirmationTimeout
	}
	if o.newID == nil {
		o.newID = uuid.NewString
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Journal exposes the store operations are recorded in.
func (o *Orchestrator) Journal() journal.Store { return o.store }

// Execute runs one request end to end and renders the outcome. It never
// returns a nil-message result: failures carry the error text, its kind and
// any transaction hashes already known.
func (o *Orchestrator) Execute(ctx context.Context, req model.OperationRequest) model.Result {
	id := o.newID()
	kind := req.Kind()

	ctx, span := otel.Tracer().Start(ctx, "operation."+string(kind), trace.WithAttributes(
		attribute.String("operation.id", id),
		attribute.String("operation.kind", string(kind)),
	))
	defer span.End()

	log := logrus.WithFields(logrus.Fields{"operation_id": id, "kind": kind})
	log.Info("Executing operation")
	start := o.now()

	res, err := o.dispatch(ctx, id, req)
	if err != nil {
		err = errs.WithOp(string(kind), err)
		otel.RecordError(ctx, err)
		res = model.FailedResult(id, kind, err)
		res.Message = failureMessage(kind, err)
		log.WithFields(logrus.Fields{
			"error_kind":    errs.KindOf(err),
			"hash":          res.Hash,
			"approval_hash": res.ApprovalHash,
		}).WithError(err).Warn("Operation failed")
		return res
	}

	res.Success = true
	res.OperationID = id
	res.Kind = kind
	span.SetAttributes(attribute.String("tx.hash", res.Hash))
	log.WithFields(logrus.Fields{
		"hash":     res.Hash,
		"duration": o.now().Sub(start).String(),
	}).Info("Operation settled")
	return res
}

func (o *Orchestrator) dispatch(ctx context.Context, id string, req model.OperationRequest) (model.Result, error) {
	req = model.ApplyDefaults(req)
	if err := req.Validate(); err != nil {
		return model.Result{}, err
	}
	switch r := req.(type) {
	case model.TransferRequest:
		return o.transfer(ctx, id, r)
	case model.BridgeRequest:
		return o.bridge(ctx, id, r)
	case model.SwapRequest:
		return o.swap(ctx, id, r)
	case model.VaultDepositRequest:
		return o.vaultDeposit(ctx, id, r)
	case model.VaultWithdrawRequest:
		return o.vaultWithdraw(ctx, id, r)
	case model.PriceRequest:
		return o.price(ctx, r)
	default:
		return model.Result{}, errs.New(errs.KindInvalidParameter, "unsupported operation %T", req)
	}
}

func failureMessage(kind model.OperationKind, err error) string {
	var e *errs.Error
	msg := fmt.Sprintf("Error executing %s: %s", strings.ReplaceAll(string(kind), "_", " "), err.Error())
	if errors.As(err, &e) && e.ApprovalHash != "" && e.Kind != errs.KindApprovalFailed {
		msg += fmt.Sprintf(". The approval transaction %s was confirmed; only the primary transaction needs to be resubmitted", e.ApprovalHash)
	}
	return msg
}
