package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/swell-ops-ea/internal/chain"
	"github.com/yourorg/swell-ops-ea/internal/contracts"
	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/journal"
	"github.com/yourorg/swell-ops-ea/internal/model"
	"github.com/yourorg/swell-ops-ea/internal/registry"
	"github.com/yourorg/swell-ops-ea/internal/types"
)

var (
	l1Bridge   = common.HexToAddress("0xb100000000000000000000000000000000000001")
	l2Bridge   = common.HexToAddress("0x4200000000000000000000000000000000000010")
	usdcL1     = common.HexToAddress("0xa100000000000000000000000000000000000001")
	usdcL2     = common.HexToAddress("0xa200000000000000000000000000000000000002")
	ezETHL1    = common.HexToAddress("0xe100000000000000000000000000000000000001")
	ezETHL2    = common.HexToAddress("0xe200000000000000000000000000000000000002")
	earnETH    = common.HexToAddress("0xea00000000000000000000000000000000000003")
	teller     = common.HexToAddress("0x7e00000000000000000000000000000000000004")
	ethUSDFeed = common.HexToAddress("0xfe00000000000000000000000000000000000005")
	swapRouter = common.HexToAddress("0x5000000000000000000000000000000000000006")
	owner      = common.HexToAddress("0x0a00000000000000000000000000000000000007")
	recipient  = "0x000000000000000000000000000000000000dEaD"
)

func ether(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic(s)
	}
	return v
}

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Tables{
		Networks: []model.NetworkDescriptor{
			{Name: types.NetworkEthereum, DisplayName: "Ethereum", ChainID: 1, BridgeAddress: l1Bridge, BlockExplorer: "https://etherscan.io"},
			{Name: types.NetworkSwellchain, DisplayName: "Swellchain", ChainID: 1923, BridgeAddress: l2Bridge, BlockExplorer: "https://explorer.swellnetwork.io"},
		},
		Tokens: []model.TokenDescriptor{
			{Symbol: "ETH", Decimals: 18, CanonicalAddress: model.NativeAddress},
			{Symbol: "USDC", Decimals: 6, CanonicalAddress: usdcL1.Hex(), L1Address: usdcL1, L2Address: usdcL2},
			{Symbol: "ezETH", Decimals: 18, CanonicalAddress: ezETHL1.Hex(), L1Address: ezETHL1, L2Address: ezETHL2},
			{Symbol: "earnETH", Decimals: 18, CanonicalAddress: earnETH.Hex(), L2Address: earnETH},
		},
		Vault: &model.VaultDescriptor{
			Name:           "earnETH",
			Teller:         teller,
			ShareToken:     earnETH,
			ShareDecimals:  18,
			AcceptedAssets: []string{"ezETH"},
			DefaultAsset:   "ezETH",
		},
		PriceFeeds: []model.PriceFeed{{Pair: "ETH/USDC", Address: ethUSDFeed, Network: types.NetworkSwellchain}},
	})
	require.NoError(t, err)
	return reg
}

type sentTx struct {
	to    common.Address
	value *big.Int
	data  []byte
}

// fakeWallet emulates the ERC-20, oracle and teller contracts the
// orchestrator talks to.
type fakeWallet struct {
	mu      sync.Mutex
	network types.SupportedNetwork

	native     *big.Int
	balances   map[common.Address]*big.Int
	allowances map[[2]common.Address]*big.Int
	decimals   map[common.Address]uint8

	answer     *big.Int
	updatedAt  int64
	roundFails bool

	revertCall int // 1-based index of the send that reverts
	sendErr    error
	blockWait  bool
	sent       []sentTx
}

func newFakeWallet(network types.SupportedNetwork) *fakeWallet {
	return &fakeWallet{
		network:    network,
		native:     ether("1000000000000000000"),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[[2]common.Address]*big.Int),
		decimals:   map[common.Address]uint8{usdcL1: 6, usdcL2: 6, ezETHL1: 18, ezETHL2: 18, ethUSDFeed: 8},
		answer:     big.NewInt(157487000000),
		updatedAt:  1700000000,
	}
}

func (f *fakeWallet) Address() common.Address { return owner }

func (f *fakeWallet) Network() types.SupportedNetwork { return f.network }

func (f *fakeWallet) Balance(context.Context) (*big.Int, error) { return f.native, nil }

func (f *fakeWallet) sends() []sentTx {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentTx(nil), f.sent...)
}

func methodOf(parsed abi.ABI, data []byte) (*abi.Method, []interface{}, bool) {
	if len(data) < 4 {
		return nil, nil, false
	}
	m, err := parsed.MethodById(data[:4])
	if err != nil {
		return nil, nil, false
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, false
	}
	return m, args, true
}

func (f *fakeWallet) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	to := *msg.To

	if to == ethUSDFeed {
		m, _, ok := methodOf(contracts.Oracle, msg.Data)
		if !ok {
			return nil, errors.New("execution reverted")
		}
		switch m.Name {
		case "latestRoundData":
			if f.roundFails {
				return nil, errors.New("execution reverted")
			}
			return m.Outputs.Pack(big.NewInt(7), f.answer, big.NewInt(f.updatedAt), big.NewInt(f.updatedAt), big.NewInt(7))
		case "latestAnswer":
			return m.Outputs.Pack(f.answer)
		case "decimals":
			return m.Outputs.Pack(f.decimals[to])
		}
		return nil, errors.New("execution reverted")
	}

	m, args, ok := methodOf(contracts.ERC20, msg.Data)
	if !ok {
		return nil, errors.New("execution reverted")
	}
	switch m.Name {
	case "balanceOf":
		bal := f.balances[to]
		if bal == nil {
			bal = new(big.Int)
		}
		return m.Outputs.Pack(bal)
	case "allowance":
		a := f.allowances[[2]common.Address{to, args[1].(common.Address)}]
		if a == nil {
			a = new(big.Int)
		}
		return m.Outputs.Pack(a)
	case "decimals":
		return m.Outputs.Pack(f.decimals[to])
	}
	return nil, fmt.Errorf("unexpected call %s", m.Name)
}

func (f *fakeWallet) SendTransaction(_ context.Context, to common.Address, value *big.Int, data []byte) (chain.PendingTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentTx{to: to, value: new(big.Int).Set(value), data: append([]byte(nil), data...)})
	n := len(f.sent)

	status := model.ReceiptStatusSuccess
	if n == f.revertCall {
		status = model.ReceiptStatusFailed
	} else if m, args, ok := methodOf(contracts.ERC20, data); ok && m.Name == "approve" {
		f.allowances[[2]common.Address{to, args[0].(common.Address)}] = args[1].(*big.Int)
	} else if m, args, ok := methodOf(contracts.Teller, data); ok && m.Name == "deposit" && to == teller {
		key := [2]common.Address{args[0].(common.Address), teller}
		f.allowances[key] = new(big.Int).Sub(f.allowances[key], args[1].(*big.Int))
	}
	return &fakePending{hash: common.BigToHash(big.NewInt(int64(n))), status: status, block: f.blockWait}, nil
}

type fakePending struct {
	hash   common.Hash
	status uint64
	block  bool // Wait never observes a receipt
}

func (p *fakePending) Hash() common.Hash { return p.hash }

func (p *fakePending) Wait(ctx context.Context) (model.Receipt, error) {
	if p.block {
		<-ctx.Done()
		return model.Receipt{}, ctx.Err()
	}
	return model.Receipt{Hash: p.hash, Status: p.status, BlockNumber: 42}, nil
}

type fakeQuotes struct {
	quote    model.SwapQuote
	slippage string
	receiver common.Address
}

func (q *fakeQuotes) Quote(_ context.Context, _, _ common.Address, _ *big.Int) (model.SwapQuote, error) {
	return q.quote, nil
}

func (q *fakeQuotes) Swap(_ context.Context, _, _ common.Address, _ *big.Int, slippage string, receiver common.Address) (model.SwapTx, error) {
	q.slippage = slippage
	q.receiver = receiver
	return model.SwapTx{Quote: q.quote, Router: swapRouter, Data: []byte{0xca, 0xfe}}, nil
}

func newTestOrchestrator(t *testing.T, policy ApprovalPolicy, wallets ...chain.Wallet) (*Orchestrator, *journal.MemoryStore) {
	t.Helper()
	store := journal.NewMemoryStore()
	n := 0
	o := New(testRegistry(t), chain.NewPool(wallets...), Options{
		Policy:  policy,
		Journal: store,
		Quotes: &fakeQuotes{quote: model.SwapQuote{
			AmountIn: "1000000", AmountOut: "400000000000000", MinAmountOut: "398000000000000",
			AmountInUSD: 1.0, AmountOutUSD: 0.99,
		}},
		NewID: func() string { n++; return fmt.Sprintf("op-%d", n) },
	})
	return o, store
}

func TestTransferEndToEnd(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	o, store := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.TransferRequest{Recipient: recipient, Amount: "0.00001"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "op-1", res.OperationID)
	assert.Equal(t, types.NetworkSwellchain, res.SourceNetwork)
	assert.NotEmpty(t, res.Hash)
	assert.Contains(t, res.ExplorerURL, res.Hash)
	assert.Contains(t, res.Message, "0.00001 ETH")

	sent := w.sends()
	require.Len(t, sent, 1)
	assert.Equal(t, common.HexToAddress(recipient), sent[0].to)
	assert.Equal(t, big.NewInt(10000000000000), sent[0].value)
	assert.Empty(t, sent[0].data)

	rec, err := store.Get(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Equal(t, journal.StateSettled, rec.State)
	assert.Equal(t, res.Hash, rec.PrimaryHash)
}

func TestTransferUnderfundedSubmitsNothing(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	o, _ := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.TransferRequest{Recipient: recipient, Amount: "1000"})
	assert.False(t, res.Success)
	assert.Equal(t, errs.KindInsufficientBalance, res.ErrorKind)
	assert.Contains(t, res.Error, "transfer failed")
	assert.Empty(t, res.Hash)
	assert.Empty(t, w.sends())
}

func TestValidationFailsBeforeSubmission(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	o, _ := newTestOrchestrator(t, ApprovalMax, w)

	tests := []struct {
		name string
		req  model.OperationRequest
		want errs.Kind
	}{
		{"bad recipient", model.TransferRequest{Recipient: "bob", Amount: "1"}, errs.KindInvalidParameter},
		{"missing amount", model.TransferRequest{Recipient: recipient}, errs.KindMissingParameter},
		{"bridge without networks", model.BridgeRequest{Amount: "1"}, errs.KindMissingParameter},
		{"unknown token", model.BridgeRequest{Token: "DOGE", Amount: "1", SourceNetwork: types.NetworkSwellchain}, errs.KindUnknownToken},
		{"l2-only token", model.BridgeRequest{Token: "earnETH", Amount: "1", SourceNetwork: types.NetworkSwellchain}, errs.KindUnsupportedBridgeToken},
		{"unaccepted vault asset", model.VaultDepositRequest{Token: "USDC", Amount: "1"}, errs.KindUnknownToken},
		{"unknown pair", model.PriceRequest{Pair: "BTC/EUR"}, errs.KindUnsupportedPair},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := o.Execute(context.Background(), tt.req)
			assert.False(t, res.Success)
			assert.Equal(t, tt.want, res.ErrorKind, res.Error)
			assert.NotEmpty(t, res.Message)
		})
	}
	assert.Empty(t, w.sends())
}

func TestApprovalIdempotence(t *testing.T) {
	tests := []struct {
		name      string
		policy    ApprovalPolicy
		preset    *big.Int
		wantSends int
		approvals int
	}{
		{"max policy approves once", ApprovalMax, nil, 3, 1},
		{"exact policy approves every time", ApprovalExact, nil, 4, 2},
		{"existing allowance skips approval", ApprovalExact, math.MaxBig256, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWallet(types.NetworkSwellchain)
			w.balances[ezETHL2] = ether("5000000000000000000")
			if tt.preset != nil {
				w.allowances[[2]common.Address{ezETHL2, teller}] = new(big.Int).Set(tt.preset)
			}
			o, _ := newTestOrchestrator(t, tt.policy, w)

			for i := 0; i < 2; i++ {
				res := o.Execute(context.Background(), model.VaultDepositRequest{Amount: "1"})
				require.True(t, res.Success, res.Error)
				assert.Equal(t, "ezETH", res.Token)
			}

			sent := w.sends()
			assert.Len(t, sent, tt.wantSends)
			approvals := 0
			for _, tx := range sent {
				if bytes.HasPrefix(tx.data, contracts.ERC20.Methods["approve"].ID) {
					approvals++
					assert.Equal(t, ezETHL2, tx.to)
				}
			}
			assert.Equal(t, tt.approvals, approvals)
		})
	}
}

func TestVaultWithdrawSlippageGuard(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	w.balances[earnETH] = ether("2000000000000000000")
	o, _ := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.VaultWithdrawRequest{Amount: "1.2", Slippage: "0.5"})
	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.ApprovalHash)

	sent := w.sends()
	require.Len(t, sent, 1)
	assert.Equal(t, teller, sent[0].to)
	m, args, ok := methodOf(contracts.Teller, sent[0].data)
	require.True(t, ok)
	assert.Equal(t, "bulkWithdraw", m.Name)
	assert.Equal(t, ezETHL2, args[0])
	assert.Equal(t, ether("1200000000000000000"), args[1])
	assert.Equal(t, ether("1194000000000000000"), args[2])
	assert.Equal(t, owner, args[3])
}

func TestVaultWithdrawInsufficientShares(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	o, _ := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.VaultWithdrawRequest{Amount: "1"})
	assert.Equal(t, errs.KindInsufficientBalance, res.ErrorKind)
	assert.Empty(t, w.sends())
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name        string
		roundFails  bool
		wantUpdated bool
	}{
		{"round data", false, true},
		{"latestAnswer fallback", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newFakeWallet(types.NetworkSwellchain)
			w.roundFails = tt.roundFails
			o, _ := newTestOrchestrator(t, ApprovalMax, w)

			res := o.Execute(context.Background(), model.PriceRequest{Pair: "eth/usdc"})
			require.True(t, res.Success, res.Error)
			assert.Equal(t, "1574.87", res.Price)
			if tt.wantUpdated {
				require.NotNil(t, res.UpdatedAt)
				assert.Equal(t, int64(1700000000), res.UpdatedAt.Unix())
			} else {
				assert.Nil(t, res.UpdatedAt)
			}
			assert.Empty(t, w.sends())
		})
	}
}

func TestBridgeNative(t *testing.T) {
	w := newFakeWallet(types.NetworkEthereum)
	o, _ := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.BridgeRequest{Amount: "0.1", SourceNetwork: types.NetworkEthereum})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, types.NetworkSwellchain, res.DestinationNetwork)
	assert.Equal(t, types.NetworkEthereum, res.SourceNetwork)
	assert.Equal(t, "ETH", res.Token)
	assert.Equal(t, "0.1", res.Amount)

	sent := w.sends()
	require.Len(t, sent, 1)
	assert.Equal(t, l1Bridge, sent[0].to)
	assert.Equal(t, ether("100000000000000000"), sent[0].value)
	m, args, ok := methodOf(contracts.Bridge, sent[0].data)
	require.True(t, ok)
	assert.Equal(t, "bridgeETH", m.Name)
	assert.Equal(t, contracts.DefaultMinGasLimit, args[0])
}

func TestBridgeToken(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	w.balances[usdcL2] = big.NewInt(50_000_000)
	o, store := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.BridgeRequest{Token: "usdc", Amount: "25.5", DestinationNetwork: types.NetworkEthereum})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, types.NetworkSwellchain, res.SourceNetwork)
	assert.NotEmpty(t, res.ApprovalHash)

	sent := w.sends()
	require.Len(t, sent, 2)
	assert.Equal(t, usdcL2, sent[0].to)
	assert.Equal(t, l2Bridge, sent[1].to)
	m, args, ok := methodOf(contracts.Bridge, sent[1].data)
	require.True(t, ok)
	assert.Equal(t, "bridgeERC20", m.Name)
	assert.Equal(t, usdcL2, args[0])
	assert.Equal(t, usdcL1, args[1])
	assert.Equal(t, big.NewInt(25_500_000), args[2])

	rec, err := store.Get(context.Background(), res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, journal.StateSettled, rec.State)
	assert.Equal(t, res.ApprovalHash, rec.ApprovalHash)
}

func TestBridgeTokenDecimalsMismatch(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	w.balances[usdcL2] = big.NewInt(50_000_000)
	w.decimals[usdcL2] = 18
	o, _ := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.BridgeRequest{Token: "USDC", Amount: "1", SourceNetwork: types.NetworkSwellchain})
	assert.Equal(t, errs.KindDecimalsMismatch, res.ErrorKind)
	assert.Empty(t, w.sends())
}

func TestPrimaryRevertKeepsApprovalHash(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	w.balances[ezETHL2] = ether("1000000000000000000")
	w.revertCall = 2
	o, store := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.VaultDepositRequest{Amount: "0.5"})
	assert.False(t, res.Success)
	assert.Equal(t, errs.KindTransactionReverted, res.ErrorKind)
	assert.NotEmpty(t, res.ApprovalHash)
	assert.NotEmpty(t, res.Hash)
	assert.NotEqual(t, res.ApprovalHash, res.Hash)
	assert.Contains(t, res.Message, res.ApprovalHash)

	rec, err := store.Get(context.Background(), res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, journal.StateFailed, rec.State)
	assert.Equal(t, res.ApprovalHash, rec.ApprovalHash)
	assert.Equal(t, res.Hash, rec.PrimaryHash)
}

func TestApprovalRevert(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	w.balances[ezETHL2] = ether("1000000000000000000")
	w.revertCall = 1
	o, _ := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.VaultDepositRequest{Amount: "0.5"})
	assert.Equal(t, errs.KindApprovalFailed, res.ErrorKind)
	assert.NotEmpty(t, res.ApprovalHash)
	assert.Len(t, w.sends(), 1, "primary transaction must not follow a failed approval")
}

func TestSwap(t *testing.T) {
	t.Run("token input approves the quoted router", func(t *testing.T) {
		w := newFakeWallet(types.NetworkSwellchain)
		w.balances[usdcL2] = big.NewInt(5_000_000)
		o, _ := newTestOrchestrator(t, ApprovalMax, w)

		res := o.Execute(context.Background(), model.SwapRequest{TokenIn: "USDC", TokenOut: "ETH", Amount: "1"})
		require.True(t, res.Success, res.Error)
		require.NotNil(t, res.Quote)
		assert.Equal(t, "1", res.Quote.AmountIn)
		assert.Equal(t, "0.0004", res.Quote.AmountOut)
		assert.InDelta(t, 1.0, res.Quote.PriceImpact, 1e-9)

		q := o.quotes.(*fakeQuotes)
		assert.Equal(t, "0.005", q.slippage)
		assert.Equal(t, owner, q.receiver)

		sent := w.sends()
		require.Len(t, sent, 2)
		m, args, ok := methodOf(contracts.ERC20, sent[0].data)
		require.True(t, ok)
		assert.Equal(t, "approve", m.Name)
		assert.Equal(t, swapRouter, args[0])
		assert.Equal(t, swapRouter, sent[1].to)
		assert.Zero(t, sent[1].value.Sign())
	})

	t.Run("native input sends value", func(t *testing.T) {
		w := newFakeWallet(types.NetworkSwellchain)
		o, _ := newTestOrchestrator(t, ApprovalMax, w)
		o.quotes = &fakeQuotes{quote: model.SwapQuote{AmountIn: "100000000000000000", AmountOut: "250000000"}}

		res := o.Execute(context.Background(), model.SwapRequest{TokenIn: "ETH", TokenOut: "USDC", Amount: "0.1"})
		require.True(t, res.Success, res.Error)

		sent := w.sends()
		require.Len(t, sent, 1)
		assert.Equal(t, swapRouter, sent[0].to)
		assert.Equal(t, ether("100000000000000000"), sent[0].value)
	})
}

func TestSwapRejectsPayloadAmountMismatch(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	w.balances[usdcL2] = big.NewInt(5_000_000)
	o, store := newTestOrchestrator(t, ApprovalMax, w)
	o.quotes = &fakeQuotes{quote: model.SwapQuote{AmountIn: "2000000", AmountOut: "400000000000000"}}

	res := o.Execute(context.Background(), model.SwapRequest{TokenIn: "USDC", TokenOut: "ETH", Amount: "1"})
	assert.False(t, res.Success)
	assert.Equal(t, errs.KindUpstreamUnavailable, res.ErrorKind)
	assert.Contains(t, res.Error, "2000000")
	assert.Empty(t, w.sends())

	_, err := store.Get(context.Background(), res.OperationID)
	assert.ErrorIs(t, err, journal.ErrNotFound)
}

func TestConfirmationTimeout(t *testing.T) {
	t.Run("defaults when unset", func(t *testing.T) {
		o := New(testRegistry(t), chain.NewPool(), Options{})
		assert.Equal(t, DefaultConfirmationTimeout, o.confirmTimeout)
	})

	t.Run("unobserved receipt fails the operation", func(t *testing.T) {
		w := newFakeWallet(types.NetworkSwellchain)
		w.blockWait = true
		o, store := newTestOrchestrator(t, ApprovalMax, w)
		o.confirmTimeout = 20 * time.Millisecond

		done := make(chan model.Result, 1)
		go func() {
			done <- o.Execute(context.Background(), model.TransferRequest{Recipient: recipient, Amount: "0.00001"})
		}()

		var res model.Result
		select {
		case res = <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("operation did not return after the confirmation timeout")
		}
		assert.False(t, res.Success)
		assert.Equal(t, errs.KindUpstreamUnavailable, res.ErrorKind)
		assert.NotEmpty(t, res.Hash)
		assert.Len(t, w.sends(), 1)

		rec, err := store.Get(context.Background(), res.OperationID)
		require.NoError(t, err)
		assert.Equal(t, journal.StateFailed, rec.State)
		assert.Equal(t, res.Hash, rec.PrimaryHash)
	})
}

func TestSubmitFailureBeforeBroadcast(t *testing.T) {
	w := newFakeWallet(types.NetworkSwellchain)
	w.sendErr = errors.New("dial tcp 127.0.0.1:8545: connection refused")
	o, store := newTestOrchestrator(t, ApprovalMax, w)

	res := o.Execute(context.Background(), model.TransferRequest{Recipient: recipient, Amount: "0.00001"})
	assert.False(t, res.Success)
	assert.Equal(t, errs.KindUpstreamUnavailable, res.ErrorKind)
	assert.Empty(t, res.Hash)
	assert.Contains(t, res.Error, "connection refused")

	rec, err := store.Get(context.Background(), res.OperationID)
	require.NoError(t, err)
	assert.Equal(t, journal.StateFailed, rec.State)
	assert.Equal(t, string(errs.KindUpstreamUnavailable), rec.ErrorKind)
}

func TestMissingWallet(t *testing.T) {
	o, _ := newTestOrchestrator(t, ApprovalMax)
	res := o.Execute(context.Background(), model.TransferRequest{Recipient: recipient, Amount: "1"})
	assert.Equal(t, errs.KindNotConfigured, res.ErrorKind)
}

func TestParseApprovalPolicy(t *testing.T) {
	p, err := ParseApprovalPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ApprovalMax, p)
	p, err = ParseApprovalPolicy("EXACT")
	require.NoError(t, err)
	assert.Equal(t, ApprovalExact, p)
	_, err = ParseApprovalPolicy("sometimes")
	assert.Error(t, err)
}
