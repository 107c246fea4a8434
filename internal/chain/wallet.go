// Package chain provides the signer/connection provider the orchestrator
// submits transactions through.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/swell-ops-ea/internal/errs"
	"github.com/yourorg/swell-ops-ea/internal/model"
	nettypes "github.com/yourorg/swell-ops-ea/internal/types"
)

// gasBufferPercent is added on top of the node's gas estimate.
const gasBufferPercent = 20

// Wallet is one signer bound to one network.
type Wallet interface {
	Address() common.Address
	Network() nettypes.SupportedNetwork
	Balance(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (PendingTx, error)
}

// PendingTx is a submitted transaction that can be waited on.
type PendingTx interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined or ctx ends.
	Wait(ctx context.Context) (model.Receipt, error)
}

// Backend is the subset of ethclient.Client the keyed wallet needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// KeyedWallet signs with a private key supplied by configuration. Nonce
// assignment is serialized per wallet.
type KeyedWallet struct {
	network nettypes.SupportedNetwork
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int

	mu sync.Mutex
}

// ParseKey accepts a hex private key with or without 0x prefix.
func ParseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errs.New(errs.KindNotConfigured, "private key is empty")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errs.Wrap(errs.KindNotConfigured, err, "invalid private key")
	}
	return key, nil
}

// NewKeyedWallet binds key to backend and checks the node serves the chain
// the network descriptor expects.
func NewKeyedWallet(ctx context.Context, desc model.NetworkDescriptor, backend Backend, key *ecdsa.PrivateKey) (*KeyedWallet, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id for %s: %w", desc.Name, err)
	}
	if desc.ChainID != 0 && chainID.Uint64() != desc.ChainID {
		return nil, errs.New(errs.KindNotConfigured, "rpc for %s serves chain %d, expected %d",
			desc.Name, chainID.Uint64(), desc.ChainID)
	}
	return &KeyedWallet{
		network: desc.Name,
		backend: backend,
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

// Dial connects to the network's RPC endpoint and builds a keyed wallet.
func Dial(ctx context.Context, desc model.NetworkDescriptor, hexKey string) (*KeyedWallet, error) {
	if strings.TrimSpace(desc.RPCURL) == "" {
		return nil, errs.New(errs.KindNotConfigured, "no rpc url configured for %s", desc.Name)
	}
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, desc.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s rpc: %w", desc.Name, err)
	}
	w, err := NewKeyedWallet(ctx, desc, client, key)
	if err != nil {
		client.Close()
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"network":  desc.Name,
		"chain_id": w.chainID.Uint64(),
		"address":  w.address.Hex(),
	}).Info("Wallet connected")
	return w, nil
}

func (w *KeyedWallet) Address() common.Address { return w.address }

func (w *KeyedWallet) Network() nettypes.SupportedNetwork { return w.network }

// Balance returns the native balance at the latest block.
func (w *KeyedWallet) Balance(ctx context.Context) (*big.Int, error) {
	bal, err := w.backend.BalanceAt(ctx, w.address, nil)
	if err != nil {
		return nil, fmt.Errorf("balance of %s on %s: %w", w.address.Hex(), w.network, err)
	}
	return bal, nil
}

func (w *KeyedWallet) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if msg.From == (common.Address{}) {
		msg.From = w.address
	}
	return w.backend.CallContract(ctx, msg, blockNumber)
}

// SendTransaction estimates, signs and broadcasts a transaction. EIP-1559
// fees are used when the head block carries a base fee. A gas estimate that
// reverts is a TransactionReverted error; other node failures are
// UpstreamUnavailable.
func (w *KeyedWallet) SendTransaction(ctx context.Context, to common.Address, value *big.Int, data []byte) (PendingTx, error) {
	if value == nil {
		value = new(big.Int)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstreamUnavailable, err, "pending nonce")
	}

	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to, Value: value, Data: data})
	if err != nil {
		return nil, errs.Wrap(estimateKind(err), err, "estimate gas")
	}
	gas += gas * gasBufferPercent / 100

	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindUpstreamUnavailable, err, "latest header")
	}

	var txData types.TxData
	if head.BaseFee != nil {
		tip, err := w.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.KindUpstreamUnavailable, err, "suggest tip")
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		txData = &types.DynamicFeeTx{
			ChainID:   w.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
			Data:      data,
		}
	} else {
		price, err := w.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, errs.Wrap(errs.KindUpstreamUnavailable, err, "suggest gas price")
		}
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    value,
			Data:     data,
		}
	}

	tx, err := types.SignNewTx(w.key, types.LatestSignerForChainID(w.chainID), txData)
	if err != nil {
		return nil, errs.Wrap(errs.KindInternal, err, "sign transaction")
	}
	if err := w.backend.SendTransaction(ctx, tx); err != nil {
		return nil, errs.Wrap(errs.KindUpstreamUnavailable, err, "broadcast transaction")
	}

	logrus.WithFields(logrus.Fields{
		"network": w.network,
		"hash":    tx.Hash().Hex(),
		"to":      to.Hex(),
		"nonce":   nonce,
		"gas":     gas,
	}).Debug("Transaction submitted")

	return &pendingTx{tx: tx, backend: w.backend}, nil
}

// estimateKind classifies a failed gas estimate by the node's message.
func estimateKind(err error) errs.Kind {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "revert"):
		return errs.KindTransactionReverted
	case strings.Contains(msg, "insufficient funds"):
		return errs.KindInsufficientBalance
	default:
		return errs.KindUpstreamUnavailable
	}
}

type pendingTx struct {
	tx      *types.Transaction
	backend Backend
}

func (p *pendingTx) Hash() common.Hash { return p.tx.Hash() }

func (p *pendingTx) Wait(ctx context.Context) (model.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, p.backend, p.tx)
	if err != nil {
		return model.Receipt{Hash: p.tx.Hash()}, fmt.Errorf("wait for %s: %w", p.tx.Hash().Hex(), err)
	}
	out := model.Receipt{Hash: receipt.TxHash, Status: receipt.Status}
	if receipt.BlockNumber != nil {
		out.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return out, nil
}

// WithTimeout bounds ctx by d when d is positive.
func WithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
