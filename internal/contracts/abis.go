// Package contracts encodes and decodes calls to the on-chain surfaces the
// orchestrator touches: ERC-20 tokens, the OP-stack StandardBridge,
// Chainlink-style price oracles and the BoringVault teller.
package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20JSON = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"symbol","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"allowance","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

const bridgeJSON = `[
  {"type":"function","name":"bridgeETH","stateMutability":"payable",
   "inputs":[{"name":"_minGasLimit","type":"uint32"},{"name":"_extraData","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"bridgeETHTo","stateMutability":"payable",
   "inputs":[{"name":"_to","type":"address"},{"name":"_minGasLimit","type":"uint32"},{"name":"_extraData","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"bridgeERC20","stateMutability":"nonpayable",
   "inputs":[{"name":"_localToken","type":"address"},{"name":"_remoteToken","type":"address"},
             {"name":"_amount","type":"uint256"},{"name":"_minGasLimit","type":"uint32"},
             {"name":"_extraData","type":"bytes"}],
   "outputs":[]},
  {"type":"function","name":"bridgeERC20To","stateMutability":"nonpayable",
   "inputs":[{"name":"_localToken","type":"address"},{"name":"_remoteToken","type":"address"},
             {"name":"_to","type":"address"},{"name":"_amount","type":"uint256"},
             {"name":"_minGasLimit","type":"uint32"},{"name":"_extraData","type":"bytes"}],
   "outputs":[]}
]`

const oracleJSON = `[
  {"type":"function","name":"latestAnswer","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"int256"}]},
  {"type":"function","name":"decimals","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"latestRoundData","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},
              {"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},
              {"name":"answeredInRound","type":"uint80"}]}
]`

const tellerJSON = `[
  {"type":"function","name":"deposit","stateMutability":"payable",
   "inputs":[{"name":"depositAsset","type":"address"},{"name":"depositAmount","type":"uint256"},
             {"name":"minimumMint","type":"uint256"}],
   "outputs":[{"name":"shares","type":"uint256"}]},
  {"type":"function","name":"bulkWithdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"withdrawAsset","type":"address"},{"name":"shareAmount","type":"uint256"},
             {"name":"minimumAssets","type":"uint256"},{"name":"to","type":"address"}],
   "outputs":[{"name":"assetsOut","type":"uint256"}]}
]`

// Parsed ABIs.
var (
	ERC20  = mustParse(erc20JSON)
	Bridge = mustParse(bridgeJSON)
	Oracle = mustParse(oracleJSON)
	Teller = mustParse(tellerJSON)
)

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("contracts: invalid abi: " + err.Error())
	}
	return parsed
}
