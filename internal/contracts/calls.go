package contracts

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMinGasLimit is the L2 gas budget passed to bridge calls.
const DefaultMinGasLimit uint32 = 200000

// Caller executes read-only contract calls.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// RoundData is a Chainlink aggregator round.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       *big.Int
	UpdatedAt       *big.Int
	AnsweredInRound *big.Int
}

// UpdatedTime converts UpdatedAt to wall-clock time.
func (r RoundData) UpdatedTime() time.Time {
	if r.UpdatedAt == nil {
		return time.Time{}
	}
	return time.Unix(r.UpdatedAt.Int64(), 0).UTC()
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20.Pack("approve", spender, amount)
}

// PackBridgeETH encodes bridgeETH(minGasLimit, extraData).
func PackBridgeETH(minGasLimit uint32, extraData []byte) ([]byte, error) {
	return Bridge.Pack("bridgeETH", minGasLimit, nonNil(extraData))
}

// PackBridgeERC20 encodes bridgeERC20(local, remote, amount, minGasLimit, extraData).
func PackBridgeERC20(local, remote common.Address, amount *big.Int, minGasLimit uint32, extraData []byte) ([]byte, error) {
	return Bridge.Pack("bridgeERC20", local, remote, amount, minGasLimit, nonNil(extraData))
}

// PackDeposit encodes the teller's deposit(asset, amount, minimumMint).
func PackDeposit(asset common.Address, amount, minMint *big.Int) ([]byte, error) {
	return Teller.Pack("deposit", asset, amount, minMint)
}

// PackBulkWithdraw encodes the teller's bulkWithdraw(asset, shares, minimumAssets, to).
func PackBulkWithdraw(asset common.Address, shares, minOut *big.Int, receiver common.Address) ([]byte, error) {
	return Teller.Pack("bulkWithdraw", asset, shares, minOut, receiver)
}

// BalanceOf reads an ERC-20 balance.
func BalanceOf(ctx context.Context, c Caller, token, owner common.Address) (*big.Int, error) {
	out, err := call(ctx, c, token, ERC20, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBig(out, 0, "balanceOf")
}

// Allowance reads an ERC-20 allowance.
func Allowance(ctx context.Context, c Caller, token, owner, spender common.Address) (*big.Int, error) {
	out, err := call(ctx, c, token, ERC20, "allowance", owner, spender)
	if err != nil {
		return nil, err
	}
	return asBig(out, 0, "allowance")
}

// Decimals reads an ERC-20 decimals value.
func Decimals(ctx context.Context, c Caller, token common.Address) (uint8, error) {
	return decimals(ctx, c, token, ERC20)
}

// OracleDecimals reads a price feed's decimals.
func OracleDecimals(ctx context.Context, c Caller, feed common.Address) (uint8, error) {
	return decimals(ctx, c, feed, Oracle)
}

// LatestRoundData reads the full round from a price feed.
func LatestRoundData(ctx context.Context, c Caller, feed common.Address) (RoundData, error) {
	out, err := call(ctx, c, feed, Oracle, "latestRoundData")
	if err != nil {
		return RoundData{}, err
	}
	var rd RoundData
	fields := []**big.Int{&rd.RoundID, &rd.Answer, &rd.StartedAt, &rd.UpdatedAt, &rd.AnsweredInRound}
	for i, f := range fields {
		v, err := asBig(out, i, "latestRoundData")
		if err != nil {
			return RoundData{}, err
		}
		*f = v
	}
	return rd, nil
}

// LatestAnswer reads only the latest price from a feed.
func LatestAnswer(ctx context.Context, c Caller, feed common.Address) (*big.Int, error) {
	out, err := call(ctx, c, feed, Oracle, "latestAnswer")
	if err != nil {
		return nil, err
	}
	return asBig(out, 0, "latestAnswer")
}

func decimals(ctx context.Context, c Caller, to common.Address, parsed abi.ABI) (uint8, error) {
	out, err := call(ctx, c, to, parsed, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, fmt.Errorf("decimals: empty result")
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected type %T", out[0])
	}
	return d, nil
}

func call(ctx context.Context, c Caller, to common.Address, parsed abi.ABI, method string, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s from %s: %w", method, to.Hex(), err)
	}
	return out, nil
}

func asBig(out []any, i int, method string) (*big.Int, error) {
	if len(out) <= i {
		return nil, fmt.Errorf("%s: missing output %d", method, i)
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected type %T", method, out[i])
	}
	return v, nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
