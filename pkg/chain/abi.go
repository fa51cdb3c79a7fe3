package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const multicall3ABIJSON = `[
  {"type":"function","name":"aggregate3","stateMutability":"payable",
   "inputs":[{"name":"calls","type":"tuple[]","components":[
     {"name":"target","type":"address"},
     {"name":"allowFailure","type":"bool"},
     {"name":"callData","type":"bytes"}]}],
   "outputs":[{"name":"returnData","type":"tuple[]","components":[
     {"name":"success","type":"bool"},
     {"name":"returnData","type":"bytes"}]}]}
]`

const machineRegistryABIJSON = `[
  {"type":"function","name":"machines","stateMutability":"view",
   "inputs":[{"name":"id","type":"string"}],
   "outputs":[{"name":"machine","type":"tuple","components":[
     {"name":"id","type":"string"},
     {"name":"owner","type":"address"},
     {"name":"baseTokenAddress","type":"address"},
     {"name":"targetTokenAddress","type":"address"},
     {"name":"ammRouterAddress","type":"address"},
     {"name":"ammRouterVersion","type":"uint8"},
     {"name":"batchVolume","type":"uint256"},
     {"name":"frequency","type":"uint256"},
     {"name":"startAt","type":"uint256"},
     {"name":"nextScheduledExecutionAt","type":"uint256"},
     {"name":"openingPositionCondition","type":"tuple","components":[
       {"name":"operator","type":"uint8"},
       {"name":"value0","type":"uint256"},
       {"name":"value1","type":"uint256"}]},
     {"name":"stopLossCondition","type":"tuple","components":[
       {"name":"stopType","type":"uint8"},
       {"name":"value","type":"uint256"}]},
     {"name":"takeProfitCondition","type":"tuple","components":[
       {"name":"stopType","type":"uint8"},
       {"name":"value","type":"uint256"}]},
     {"name":"status","type":"uint8"},
     {"name":"executedBatchAmount","type":"uint256"},
     {"name":"totalDepositedBaseAmount","type":"uint256"},
     {"name":"totalSwappedBaseAmount","type":"uint256"},
     {"name":"totalReceivedTargetAmount","type":"uint256"},
     {"name":"totalClosedPositionInTargetTokenAmount","type":"uint256"},
     {"name":"totalReceivedFundInBaseTokenAmount","type":"uint256"},
     {"name":"baseTokenBalance","type":"uint256"},
     {"name":"targetTokenBalance","type":"uint256"}]}]},
  {"type":"function","name":"getStopConditionsOf","stateMutability":"view",
   "inputs":[{"name":"id","type":"string"}],
   "outputs":[{"name":"conditions","type":"tuple[]","components":[
     {"name":"operator","type":"uint8"},
     {"name":"value","type":"uint256"}]}]},
  {"type":"event","name":"MachineInitialized","anonymous":false,"inputs":[
     {"name":"actor","type":"address","indexed":false},
     {"name":"machineId","type":"string","indexed":false},
     {"name":"baseTokenAddress","type":"address","indexed":false},
     {"name":"targetTokenAddress","type":"address","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"MachineUpdated","anonymous":false,"inputs":[
     {"name":"actor","type":"address","indexed":false},
     {"name":"machineId","type":"string","indexed":false},
     {"name":"owner","type":"address","indexed":false},
     {"name":"memo","type":"string","indexed":false},
     {"name":"status","type":"uint8","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]}
]`

const machineVaultABIJSON = `[
  {"type":"function","name":"getCurrentQuote","stateMutability":"nonpayable",
   "inputs":[
     {"name":"baseTokenAddress","type":"address"},
     {"name":"targetTokenAddress","type":"address"},
     {"name":"ammRouterAddress","type":"address"},
     {"name":"amount","type":"uint256"},
     {"name":"fee","type":"uint24"}],
   "outputs":[
     {"name":"amountIn","type":"uint256"},
     {"name":"amountOut","type":"uint256"}]},
  {"type":"event","name":"Deposited","anonymous":false,"inputs":[
     {"name":"actor","type":"address","indexed":false},
     {"name":"machineId","type":"string","indexed":false},
     {"name":"tokenAddress","type":"address","indexed":false},
     {"name":"amount","type":"uint256","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"Withdrawn","anonymous":false,"inputs":[
     {"name":"actor","type":"address","indexed":false},
     {"name":"machineId","type":"string","indexed":false},
     {"name":"baseTokenAddress","type":"address","indexed":false},
     {"name":"baseTokenAmount","type":"uint256","indexed":false},
     {"name":"targetTokenAddress","type":"address","indexed":false},
     {"name":"targetTokenAmount","type":"uint256","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"Swapped","anonymous":false,"inputs":[
     {"name":"actor","type":"address","indexed":false},
     {"name":"machineId","type":"string","indexed":false},
     {"name":"baseTokenAddress","type":"address","indexed":false},
     {"name":"baseTokenAmount","type":"uint256","indexed":false},
     {"name":"targetTokenAddress","type":"address","indexed":false},
     {"name":"targetTokenAmount","type":"uint256","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]},
  {"type":"event","name":"ClosedPosition","anonymous":false,"inputs":[
     {"name":"actor","type":"address","indexed":false},
     {"name":"machineId","type":"string","indexed":false},
     {"name":"baseTokenAddress","type":"address","indexed":false},
     {"name":"baseTokenAmount","type":"uint256","indexed":false},
     {"name":"targetTokenAddress","type":"address","indexed":false},
     {"name":"targetTokenAmount","type":"uint256","indexed":false},
     {"name":"timestamp","type":"uint256","indexed":false}]}
]`

const machineChefABIJSON = `[
  {"type":"function","name":"tryMakingDCASwap","stateMutability":"nonpayable",
   "inputs":[
     {"name":"machineId","type":"string"},
     {"name":"fee","type":"uint24"},
     {"name":"slippage","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"tryClosingPosition","stateMutability":"nonpayable",
   "inputs":[
     {"name":"machineId","type":"string"},
     {"name":"fee","type":"uint24"},
     {"name":"slippage","type":"uint256"}],
   "outputs":[]}
]`

var (
	Multicall3ABI      = mustParseABI(multicall3ABIJSON)
	MachineRegistryABI = mustParseABI(machineRegistryABIJSON)
	MachineVaultABI    = mustParseABI(machineVaultABIJSON)
	MachineChefABI     = mustParseABI(machineChefABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}
