package orchestrator

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/chain"
	"github.com/yourorg/swell-ops-ea/internal/contracts"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/registry"
	"github.com/yourorg/swell-ops-ea/internal/types"
	"github.com/yourorg/swell-ops-ea/internal/units"
)

func (o *Orchestrator) transfer(ctx context.Context, id string, req model.TransferRequest) (model.Result, error) {
	network, err := o.registry.Network(req.Network)
	if err != nil {
		return model.Result{}, err
	}
	native, err := o.registry.Token(nativeSymbol, req.Network)
	if err != nil {
		return model.Result{}, err
	}
	w, err := o.wallets.Wallet(req.Network)
	if err != nil {
		return model.Result{}, err
	}
	amount, err := units.ParseUnits(req.Amount, native.Decimals)
	if err != nil {
		return model.Result{}, err
	}
	if err := o.checkNative(ctx, w, native, amount); err != nil {
		return model.Result{}, err
	}

	recipient := common.HexToAddress(req.Recipient)
	plan := model.TransactionPlan{To: recipient, Value: amount}
	op := o.begin(ctx, id, model.KindTransfer, req.Network, native.Symbol, req.Amount)
	receipt, _, err := op.run(ctx, w, plan)
	if err != nil {
		return model.Result{}, err
	}

	res := receipt.Result()
	res.Recipient = recipient.Hex()
	res.ExplorerURL = network.TxURL(res.Hash)
	res.Message = fmt.Sprintf("Successfully transferred %s %s to %s on %s. Transaction hash: %s",
		req.Amount, native.Symbol, recipient.Hex(), network.DisplayName, res.Hash)
	return res, nil
}

func (o *Orchestrator) bridge(ctx context.Context, id string, req model.BridgeRequest) (model.Result, error) {
	src, dst, err := req.ResolvePair()
	if err != nil {
		return model.Result{}, err
	}
	srcNet, err := o.registry.Network(src)
	if err != nil {
		return model.Result{}, err
	}
	dstNet, err := o.registry.Network(dst)
	if err != nil {
		return model.Result{}, err
	}
	if srcNet.BridgeAddress == (common.Address{}) {
		return model.Result{}, errs.New(errs.KindNotConfigured, "no bridge contract configured on %s", src)
	}
	tok, err := o.registry.Token(req.Token, src)
	if err != nil {
		return model.Result{}, err
	}
	w, err := o.wallets.Wallet(src)
	if err != nil {
		return model.Result{}, err
	}
	amount, err := units.ParseUnits(req.Amount, tok.DecimalsOn(src))
	if err != nil {
		return model.Result{}, err
	}

	var plan model.TransactionPlan
	if tok.IsNative() {
		if err := o.checkNative(ctx, w, tok, amount); err != nil {
			return model.Result{}, err
		}
		data, err := contracts.PackBridgeETH(contracts.DefaultMinGasLimit, []byte{})
		if err != nil {
			return model.Result{}, errs.Wrap(errs.KindInternal, err, "encode bridgeETH")
		}
		plan = model.TransactionPlan{To: srcNet.BridgeAddress, Value: amount, Data: data}
	} else {
		local, _ := tok.AddressOn(src)
		remote, err := o.registry.RemoteAddress(tok.Symbol, src)
		if err != nil {
			return model.Result{}, err
		}
		onChain, err := contracts.Decimals(ctx, w, local)
		if err != nil {
			return model.Result{}, errs.Wrap(errs.KindUpstreamUnavailable, err, "read %s decimals", tok.Symbol)
		}
		if onChain != tok.DecimalsOn(src) {
			return model.Result{}, errs.New(errs.KindDecimalsMismatch,
				"%s reports %d decimals on %s, registry declares %d", tok.Symbol, onChain, src, tok.DecimalsOn(src))
		}
		if err := o.checkToken(ctx, w, tok, local, amount, tok.DecimalsOn(src)); err != nil {
			return model.Result{}, err
		}
		data, err := contracts.PackBridgeERC20(local, remote, amount, contracts.DefaultMinGasLimit, []byte{})
		if err != nil {
			return model.Result{}, errs.Wrap(errs.KindInternal, err, "encode bridgeERC20")
		}
		plan = model.TransactionPlan{To: srcNet.BridgeAddress, Value: new(big.Int), Data: data}
		if err := o.requireApproval(ctx, w, &plan, local, srcNet.BridgeAddress, amount); err != nil {
			return model.Result{}, err
		}
	}

	op := o.begin(ctx, id, model.KindBridge, src, tok.Symbol, req.Amount)
	op.destination = dst
	receipt, approvalHash, err := op.run(ctx, w, plan)
	if err != nil {
		return model.Result{}, err
	}

	res := receipt.Result()
	res.ApprovalHash = approvalHash
	res.ExplorerURL = srcNet.TxURL(res.Hash)
	res.Message = fmt.Sprintf("Successfully bridged %s %s from %s to %s. Transaction hash: %s",
		req.Amount, tok.Symbol, srcNet.DisplayName, dstNet.DisplayName, res.Hash)
	return res, nil
}

func (o *Orchestrator) swap(ctx context.Context, id string, req model.SwapRequest) (model.Result, error) {
	if o.quotes == nil {
		return model.Result{}, errs.New(errs.KindNotConfigured, "no quote service configured")
	}
	const network = types.NetworkSwellchain
	net, err := o.registry.Network(network)
	if err != nil {
		return model.Result{}, err
	}
	tokIn, err := o.registry.Token(req.TokenIn, network)
	if err != nil {
		return model.Result{}, err
	}
	tokOut, err := o.registry.Token(req.TokenOut, network)
	if err != nil {
		return model.Result{}, err
	}
	w, err := o.wallets.Wallet(network)
	if err != nil {
		return model.Result{}, err
	}
	amountIn, err := units.ParseUnits(req.Amount, tokIn.Decimals)
	if err != nil {
		return model.Result{}, err
	}
	addrIn := swapAddress(tokIn, network)
	addrOut := swapAddress(tokOut, network)

	if tokIn.IsNative() {
		err = o.checkNative(ctx, w, tokIn, amountIn)
	} else {
		err = o.checkToken(ctx, w, tokIn, addrIn, amountIn, tokIn.Decimals)
	}
	if err != nil {
		return model.Result{}, err
	}

	quote, err := o.quotes.Quote(ctx, addrIn, addrOut, amountIn)
	if err != nil {
		return model.Result{}, err
	}
	logrus.WithFields(logrus.Fields{
		"operation_id": id,
		"amount_out":   quote.AmountOut,
		"usd_in":       quote.AmountInUSD,
		"usd_out":      quote.AmountOutUSD,
	}).Info("Received swap quote")

	fraction, err := units.SlippageFraction(req.Slippage)
	if err != nil {
		return model.Result{}, err
	}
	payload, err := o.quotes.Swap(ctx, addrIn, addrOut, amountIn, fraction, w.Address())
	if err != nil {
		return model.Result{}, err
	}

	// the built transaction must spend exactly the balance-checked amount
	if raw := payload.Quote.AmountIn; raw != "" {
		quotedIn, ok := new(big.Int).SetString(raw, 10)
		if !ok || quotedIn.Cmp(amountIn) != 0 {
			return model.Result{}, errs.New(errs.KindUpstreamUnavailable,
				"swap payload spends %s base units, requested %s", raw, amountIn.String())
		}
	}
	plan := model.TransactionPlan{To: payload.Router, Value: new(big.Int), Data: payload.Data}
	if tokIn.IsNative() {
		plan.Value = amountIn
	} else if err := o.requireApproval(ctx, w, &plan, addrIn, payload.Router, amountIn); err != nil {
		return model.Result{}, err
	}

	op := o.begin(ctx, id, model.KindSwap, network, tokIn.Symbol, req.Amount)
	receipt, approvalHash, err := op.run(ctx, w, plan)
	if err != nil {
		return model.Result{}, err
	}

	summary := summarizeQuote(quote, payload, tokIn, tokOut)
	res := receipt.Result()
	res.ApprovalHash = approvalHash
	res.ExplorerURL = net.TxURL(res.Hash)
	res.Quote = summary
	res.Message = fmt.Sprintf("Swapped %s %s for approximately %s %s (price impact %.2f%%). Transaction hash: %s",
		summary.AmountIn, tokIn.Symbol, summary.AmountOut, tokOut.Symbol, summary.PriceImpact, res.Hash)
	return res, nil
}

// swapAddress is the address the quote service knows a token by.
func swapAddress(tok model.TokenDescriptor, network types.SupportedNetwork) common.Address {
	if tok.IsNative() {
		return registry.NativeSentinel
	}
	addr, _ := tok.AddressOn(network)
	return addr
}

func summarizeQuote(quote model.SwapQuote, payload model.SwapTx, tokIn, tokOut model.TokenDescriptor) *model.QuoteSummary {
	format := func(raw string, decimals uint8) string {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok {
			return raw
		}
		return units.FormatUnits(v, decimals)
	}
	minOut := payload.Quote.MinAmountOut
	if minOut == "" {
		minOut = quote.MinAmountOut
	}
	return &model.QuoteSummary{
		AmountIn:     format(quote.AmountIn, tokIn.Decimals),
		AmountOut:    format(quote.AmountOut, tokOut.Decimals),
		MinAmountOut: format(minOut, tokOut.Decimals),
		AmountInUSD:  quote.AmountInUSD,
		AmountOutUSD: quote.AmountOutUSD,
		PriceImpact:  units.PriceImpact(quote.AmountInUSD, quote.AmountOutUSD),
		Router:       payload.Router.Hex(),
	}
}

// vaultAsset resolves an accepted vault asset on Swellchain.
func (o *Orchestrator) vaultAsset(symbol string) (model.VaultDescriptor, model.TokenDescriptor, common.Address, error) {
	vault, err := o.registry.Vault()
	if err != nil {
		return model.VaultDescriptor{}, model.TokenDescriptor{}, common.Address{}, err
	}
	if !vault.Accepts(symbol) {
		return model.VaultDescriptor{}, model.TokenDescriptor{}, common.Address{},
			errs.New(errs.KindUnknownToken, "token %s is not accepted by the %s vault", symbol, vault.Name)
	}
	tok, err := o.registry.Token(symbol, types.NetworkSwellchain)
	if err != nil {
		return model.VaultDescriptor{}, model.TokenDescriptor{}, common.Address{}, err
	}
	addr, ok := tok.AddressOn(types.NetworkSwellchain)
	if !ok {
		return model.VaultDescriptor{}, model.TokenDescriptor{}, common.Address{},
			errs.New(errs.KindUnknownToken, "token %s has no Swellchain deployment", tok.Symbol)
	}
	return vault, tok, addr, nil
}

func (o *Orchestrator) vaultDeposit(ctx context.Context, id string, req model.VaultDepositRequest) (model.Result, error) {
	const network = types.NetworkSwellchain
	net, err := o.registry.Network(network)
	if err != nil {
		return model.Result{}, err
	}
	vault, tok, asset, err := o.vaultAsset(req.Token)
	if err != nil {
		return model.Result{}, err
	}
	w, err := o.wallets.Wallet(network)
	if err != nil {
		return model.Result{}, err
	}
	amount, err := units.ParseUnits(req.Amount, tok.Decimals)
	if err != nil {
		return model.Result{}, err
	}
	if err := o.checkToken(ctx, w, tok, asset, amount, tok.Decimals); err != nil {
		return model.Result{}, err
	}
	minMint, err := units.MinOutput(req.Amount, req.Slippage, tok.Decimals)
	if err != nil {
		return model.Result{}, err
	}
	data, err := contracts.PackDeposit(asset, amount, minMint)
	if err != nil {
		return model.Result{}, errs.Wrap(errs.KindInternal, err, "encode deposit")
	}
	plan := model.TransactionPlan{To: vault.Teller, Value: new(big.Int), Data: data}
	if err := o.requireApproval(ctx, w, &plan, asset, vault.Teller, amount); err != nil {
		return model.Result{}, err
	}

	op := o.begin(ctx, id, model.KindVaultDeposit, network, tok.Symbol, req.Amount)
	receipt, approvalHash, err := op.run(ctx, w, plan)
	if err != nil {
		return model.Result{}, err
	}

	res := receipt.Result()
	res.ApprovalHash = approvalHash
	res.ExplorerURL = net.TxURL(res.Hash)
	res.Message = fmt.Sprintf("Successfully deposited %s %s into %s (minimum %s shares). Transaction hash: %s",
		req.Amount, tok.Symbol, vault.Name, units.FormatUnits(minMint, tok.Decimals), res.Hash)
	return res, nil
}

func (o *Orchestrator) vaultWithdraw(ctx context.Context, id string, req model.VaultWithdrawRequest) (model.Result, error) {
	const network = types.NetworkSwellchain
	net, err := o.registry.Network(network)
	if err != nil {
		return model.Result{}, err
	}
	vault, tok, asset, err := o.vaultAsset(req.Token)
	if err != nil {
		return model.Result{}, err
	}
	w, err := o.wallets.Wallet(network)
	if err != nil {
		return model.Result{}, err
	}
	shares, err := units.ParseUnits(req.Amount, vault.ShareDecimals)
	if err != nil {
		return model.Result{}, err
	}
	held, err := contracts.BalanceOf(ctx, w, vault.ShareToken, w.Address())
	if err != nil {
		return model.Result{}, errs.Wrap(errs.KindUpstreamUnavailable, err, "read %s balance", vault.Name)
	}
	if held.Cmp(shares) < 0 {
		return model.Result{}, insufficient(vault.Name, held, shares, vault.ShareDecimals)
	}
	minOut, err := units.MinOutput(req.Amount, req.Slippage, tok.Decimals)
	if err != nil {
		return model.Result{}, err
	}
	receiver := w.Address()
	if req.Receiver != "" {
		receiver = common.HexToAddress(req.Receiver)
	}
	data, err := contracts.PackBulkWithdraw(asset, shares, minOut, receiver)
	if err != nil {
		return model.Result{}, errs.Wrap(errs.KindInternal, err, "encode bulkWithdraw")
	}
	plan := model.TransactionPlan{To: vault.Teller, Value: new(big.Int), Data: data}

	op := o.begin(ctx, id, model.KindVaultWithdraw, network, vault.Name, req.Amount)
	receipt, _, err := op.run(ctx, w, plan)
	if err != nil {
		return model.Result{}, err
	}

	res := receipt.Result()
	res.Recipient = receiver.Hex()
	res.ExplorerURL = net.TxURL(res.Hash)
	res.Message = fmt.Sprintf("Successfully withdrew %s %s to %s (minimum %s %s). Transaction hash: %s",
		req.Amount, vault.Name, tok.Symbol, units.FormatUnits(minOut, tok.Decimals), tok.Symbol, res.Hash)
	return res, nil
}

func (o *Orchestrator) price(ctx context.Context, req model.PriceRequest) (model.Result, error) {
	feed, err := o.registry.PriceFeed(req.Pair)
	if err != nil {
		return model.Result{}, err
	}
	network := feed.Network
	if network == "" {
		network = req.Network
	}
	w, err := o.wallets.Wallet(network)
	if err != nil {
		return model.Result{}, err
	}

	res := model.Result{SourceNetwork: network, Token: feed.Pair}
	round, roundErr := contracts.LatestRoundData(ctx, w, feed.Address)
	var dec uint8
	if roundErr == nil {
		dec, roundErr = contracts.OracleDecimals(ctx, w, feed.Address)
	}
	if roundErr == nil {
		res.Price = units.FormatUnits(round.Answer, dec)
		updated := round.UpdatedTime()
		res.UpdatedAt = &updated
		res.Message = fmt.Sprintf("The current %s price is %s, last updated at %s",
			feed.Pair, res.Price, updated.Format(time.RFC3339))
		return res, nil
	}

	logrus.WithFields(logrus.Fields{"pair": feed.Pair, "feed": feed.Address.Hex()}).
		WithError(roundErr).Debug("Round data unavailable, falling back to latestAnswer")
	answer, err := contracts.LatestAnswer(ctx, w, feed.Address)
	if err != nil {
		return model.Result{}, errs.Wrap(errs.KindUpstreamUnavailable, err, "read %s oracle", feed.Pair)
	}
	dec, err = contracts.OracleDecimals(ctx, w, feed.Address)
	if err != nil {
		return model.Result{}, errs.Wrap(errs.KindUpstreamUnavailable, err, "read %s oracle decimals", feed.Pair)
	}
	res.Price = units.FormatUnits(answer, dec)
	res.Message = fmt.Sprintf("The current %s price is %s", feed.Pair, res.Price)
	return res, nil
}

func (o *Orchestrator) checkNative(ctx context.Context, w chain.Wallet, tok model.TokenDescriptor, amount *big.Int) error {
	bal, err := w.Balance(ctx)
	if err != nil {
		return errs.Wrap(errs.KindUpstreamUnavailable, err, "read %s balance", tok.Symbol)
	}
	if bal.Cmp(amount) < 0 {
		return insufficient(tok.Symbol, bal, amount, tok.Decimals)
	}
	return nil
}

func (o *Orchestrator) checkToken(ctx context.Context, w chain.Wallet, tok model.TokenDescriptor, addr common.Address, amount *big.Int, decimals uint8) error {
	bal, err := contracts.BalanceOf(ctx, w, addr, w.Address())
	if err != nil {
		return errs.Wrap(errs.KindUpstreamUnavailable, err, "read %s balance", tok.Symbol)
	}
	if bal.Cmp(amount) < 0 {
		return insufficient(tok.Symbol, bal, amount, decimals)
	}
	return nil
}

func insufficient(symbol string, have, need *big.Int, decimals uint8) error {
	return errs.New(errs.KindInsufficientBalance, "insufficient %s balance: have %s, need %s",
		symbol, units.FormatUnits(have, decimals), units.FormatUnits(need, decimals))
}
