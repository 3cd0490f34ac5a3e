// Package erc20 provides ABI encoding helpers for the ERC-20 token standard.
package erc20

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const abiJSON = `[
	{"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"type":"function"},
	{"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"owner","type":"address"},{"indexed":true,"name":"spender","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Approval","type":"event"}
]`

var parsedABI abi.ABI

func init() {
	var err error
	parsedABI, err = abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		panic(fmt.Sprintf("erc20: invalid ABI: %v", err))
	}
}

// ABI returns the parsed ERC-20 contract ABI.
func ABI() abi.ABI {
	return parsedABI
}

// PackTransfer encodes a transfer(to, value) call.
func PackTransfer(to common.Address, value *big.Int) ([]byte, error) {
	return parsedABI.Pack("transfer", to, value)
}

// UnpackTransfer decodes the arguments of a transfer(to, value) call.
func UnpackTransfer(data []byte) (common.Address, *big.Int, error) {
	method := parsedABI.Methods["transfer"]
	if len(data) < 4 || string(data[:4]) != string(method.ID) {
		return common.Address{}, nil, fmt.Errorf("not a transfer call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return common.Address{}, nil, err
	}
	to := args[0].(common.Address)
	value := args[1].(*big.Int)
	return to, value, nil
}

// PackBalanceOf encodes a balanceOf(owner) call.
func PackBalanceOf(owner common.Address) ([]byte, error) {
	return parsedABI.Pack("balanceOf", owner)
}

// UnpackBalanceOf decodes the result of a balanceOf call.
func UnpackBalanceOf(data []byte) (*big.Int, error) {
	values, err := parsedABI.Unpack("balanceOf", data)
	if err != nil {
		return nil, err
	}
	return values[0].(*big.Int), nil
}

// PackDecimals encodes a decimals() call.
func PackDecimals() ([]byte, error) {
	return parsedABI.Pack("decimals")
}

// UnpackDecimals decodes the result of a decimals call.
func UnpackDecimals(data []byte) (uint8, error) {
	values, err := parsedABI.Unpack("decimals", data)
	if err != nil {
		return 0, err
	}
	return values[0].(uint8), nil
}

// PackSymbol encodes a symbol() call.
func PackSymbol() ([]byte, error) {
	return parsedABI.Pack("symbol")
}

// UnpackSymbol decodes the result of a symbol call.
func UnpackSymbol(data []byte) (string, error) {
	values, err := parsedABI.Unpack("symbol", data)
	if err != nil {
		return "", err
	}
	return values[0].(string), nil
}
