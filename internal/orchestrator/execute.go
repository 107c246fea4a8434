package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/chain"
	"github.com/yourorg/swell-ops-ea/internal/contracts"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/journal"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

type approvalKey struct {
	network types.SupportedNetwork
	token   common.Address
	spender common.Address
}

// approvalCache remembers allowances granted during this process. It only
// feeds logging; the live allowance decides whether to approve.
type approvalCache struct {
	mu      sync.Mutex
	granted map[approvalKey]*big.Int
}

func newApprovalCache() *approvalCache {
	return &approvalCache{granted: make(map[approvalKey]*big.Int)}
}

func (c *approvalCache) get(k approvalKey) (*big.Int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.granted[k]
	return v, ok
}

func (c *approvalCache) put(k approvalKey, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.granted[k] = new(big.Int).Set(amount)
}

// requireApproval fills the approval fields of plan when the live allowance
// of owner towards spender does not cover amount.
func (o *Orchestrator) requireApproval(ctx context.Context, w chain.Wallet, plan *model.TransactionPlan, token, spender common.Address, amount *big.Int) error {
	allowance, err := contracts.Allowance(ctx, w, token, w.Address(), spender)
	if err != nil {
		return errs.Wrap(errs.KindUpstreamUnavailable, err, "read allowance")
	}
	key := approvalKey{network: w.Network(), token: token, spender: spender}
	log := logrus.WithFields(logrus.Fields{
		"network": w.Network(),
		"token":   token.Hex(),
		"spender": spender.Hex(),
	})
	if allowance.Cmp(amount) >= 0 {
		log.Debug("Existing allowance covers amount, skipping approval")
		return nil
	}
	if granted, ok := o.approvals.get(key); ok && granted.Cmp(amount) >= 0 {
		log.WithField("allowance", allowance.String()).Warn("Allowance granted earlier in this session has been consumed or revoked")
	}

	approve := new(big.Int).Set(amount)
	if o.policy == ApprovalMax {
		approve = new(big.Int).Set(math.MaxBig256)
	}
	plan.RequiresApproval = true
	plan.ApprovalToken = token
	plan.ApprovalTarget = spender
	plan.ApprovalAmount = approve
	return nil
}

// operation is the journal-backed execution of one transaction plan.
type operation struct {
	o       *Orchestrator
	tracker *journal.Tracker
	log     *logrus.Entry

	network     types.SupportedNetwork
	destination types.SupportedNetwork
	token       string
	amount      string
}

func (o *Orchestrator) begin(ctx context.Context, id string, kind model.OperationKind, network types.SupportedNetwork, token, amount string) *operation {
	log := logrus.WithFields(logrus.Fields{"operation_id": id, "kind": kind, "network": network})
	tracker, err := journal.Begin(ctx, o.store, journal.Record{
		ID:      id,
		Kind:    string(kind),
		Network: string(network),
		Token:   token,
		Amount:  amount,
	})
	if err != nil {
		log.WithError(err).Warn("Failed to journal planned operation")
	}
	return &operation{o: o, tracker: tracker, log: log, network: network, token: token, amount: amount}
}

func (op *operation) advance(ctx context.Context, to journal.State, mutate func(*journal.Record)) {
	if err := op.tracker.Advance(ctx, to, mutate); err != nil {
		op.log.WithError(err).WithField("state", to).Warn("Failed to journal state transition")
		return
	}
	op.log.WithField("state", to).Debug("Operation state changed")
}

// run submits the optional approval and then the primary transaction of
// plan, each waited on before the next step. Errors carry every hash known.
func (op *operation) run(ctx context.Context, w chain.Wallet, plan model.TransactionPlan) (model.Receipt, string, error) {
	var approvalHash string
	if plan.RequiresApproval {
		hash, err := op.approve(ctx, w, plan)
		if err != nil {
			op.fail(ctx, err)
			return model.Receipt{}, hash, err
		}
		approvalHash = hash
	}

	var primaryHash string
	receipt, err := op.o.submit(ctx, w, plan.To, plan.Value, plan.Data, func(hash string) {
		primaryHash = hash
		op.advance(ctx, journal.StateAwaitingPrimaryConfirmation, func(r *journal.Record) { r.PrimaryHash = hash })
	})
	if err != nil {
		var typed *errs.Error
		e := errs.WithOp("", err)
		if primaryHash == "" && !errors.As(err, &typed) {
			// untyped wallet failure before broadcast
			e = errs.Wrap(errs.KindUpstreamUnavailable, err, "submit transaction")
		}
		e.ApprovalHash = approvalHash
		op.fail(ctx, e)
		return receipt, approvalHash, e
	}
	op.advance(ctx, journal.StateSettled, nil)

	receipt.Amount = op.amount
	receipt.Token = op.token
	receipt.SourceNetwork = op.network
	receipt.DestinationNetwork = op.destination
	return receipt, approvalHash, nil
}

func (op *operation) approve(ctx context.Context, w chain.Wallet, plan model.TransactionPlan) (string, error) {
	data, err := contracts.PackApprove(plan.ApprovalTarget, plan.ApprovalAmount)
	if err != nil {
		return "", errs.Wrap(errs.KindInternal, err, "encode approval")
	}
	op.log.WithFields(logrus.Fields{
		"token":   plan.ApprovalToken.Hex(),
		"spender": plan.ApprovalTarget.Hex(),
		"policy":  op.o.policy,
	}).Info("Submitting approval")

	var hash string
	_, err = op.o.submit(ctx, w, plan.ApprovalToken, new(big.Int), data, func(h string) {
		hash = h
		op.advance(ctx, journal.StateAwaitingApproval, func(r *journal.Record) { r.ApprovalHash = h })
	})
	if err != nil {
		e := errs.Wrap(errs.KindApprovalFailed, err, "approve %s for %s", plan.ApprovalToken.Hex(), plan.ApprovalTarget.Hex())
		e.ApprovalHash = hash
		return hash, e
	}
	op.o.approvals.put(approvalKey{network: w.Network(), token: plan.ApprovalToken, spender: plan.ApprovalTarget}, plan.ApprovalAmount)
	return hash, nil
}

func (op *operation) fail(ctx context.Context, err error) {
	op.advance(ctx, journal.StateFailed, func(r *journal.Record) {
		r.Error = err.Error()
		r.ErrorKind = string(errs.KindOf(err))
	})
}

// submit sends one transaction, reports its hash through onSent and waits for
// the receipt. A reverted receipt is a TransactionReverted error carrying the
// hash.
func (o *Orchestrator) submit(ctx context.Context, w chain.Wallet, to common.Address, value *big.Int, data []byte, onSent func(hash string)) (model.Receipt, error) {
	if value == nil {
		value = new(big.Int)
	}
	pending, err := w.SendTransaction(ctx, to, value, data)
	if err != nil {
		return model.Receipt{}, err
	}
	hash := pending.Hash().Hex()
	if onSent != nil {
		onSent(hash)
	}

	waitCtx, cancel := chain.WithTimeout(ctx, o.confirmTimeout)
	defer cancel()
	receipt, err := pending.Wait(waitCtx)
	if err != nil {
		e := errs.Wrap(errs.KindUpstreamUnavailable, err, "confirmation not observed")
		e.Hash = hash
		return receipt, e
	}
	if !receipt.Succeeded() {
		e := errs.New(errs.KindTransactionReverted, "transaction reverted in block %d", receipt.BlockNumber)
		e.Hash = hash
		return receipt, e
	}
	return receipt, nil
}
