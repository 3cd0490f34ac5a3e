package service

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ABI of the delegated account's execution surface.
const accountABI = `[
	{"inputs":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"components":[{"name":"target","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"}],"name":"calls","type":"tuple[]"}],"name":"executeBatch","outputs":[],"stateMutability":"payable","type":"function"}
]`

var parsedAccountABI abi.ABI

func init() {
	var err error
	parsedAccountABI, err = abi.JSON(strings.NewReader(accountABI))
	if err != nil {
		panic(fmt.Sprintf("service: invalid account ABI: %v", err))
	}
}

// AccountCall mirrors the tuple layout of executeBatch.
type AccountCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// EncodeCalls builds the account calldata for an ordered set of calls: a
// single call encodes as execute, more than one as executeBatch with the
// input order preserved.
func EncodeCalls(calls []domain.Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("no calls to encode")
	}

	if len(calls) == 1 {
		call := calls[0]
		return parsedAccountABI.Pack("execute", call.To, callValue(call), []byte(call.Data))
	}

	accountCalls := make([]AccountCall, len(calls))
	for i, call := range calls {
		accountCalls[i] = AccountCall{
			Target: call.To,
			Value:  callValue(call),
			Data:   call.Data,
		}
	}
	return parsedAccountABI.Pack("executeBatch", accountCalls)
}

func callValue(call domain.Call) *big.Int {
	if call.Value == nil {
		return big.NewInt(0)
	}
	return (*big.Int)(call.Value)
}

// DecodeCalls reverses EncodeCalls, recognizing both execute and
// executeBatch calldata.
func DecodeCalls(calldata []byte) ([]domain.Call, error) {
	if len(calldata) < 4 {
		return nil, fmt.Errorf("calldata too short")
	}

	method, err := parsedAccountABI.MethodById(calldata[:4])
	if err != nil {
		return nil, fmt.Errorf("unknown account method: %w", err)
	}

	args, err := method.Inputs.Unpack(calldata[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method.Name, err)
	}

	switch method.Name {
	case "execute":
		return []domain.Call{{
			To:    args[0].(common.Address),
			Value: (*hexutil.Big)(args[1].(*big.Int)),
			Data:  args[2].([]byte),
		}}, nil
	case "executeBatch":
		accountCalls := *abi.ConvertType(args[0], new([]AccountCall)).(*[]AccountCall)
		calls := make([]domain.Call, len(accountCalls))
		for i, call := range accountCalls {
			calls[i] = domain.Call{
				To:    call.Target,
				Value: (*hexutil.Big)(call.Value),
				Data:  call.Data,
			}
		}
		return calls, nil
	default:
		return nil, fmt.Errorf("unexpected account method: %s", method.Name)
	}
}
