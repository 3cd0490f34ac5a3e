package erc4337

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

type GasEstimates struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit"`
	MaxFeePerGas                  *hexutil.Big `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big `json:"maxPriorityFeePerGas"`
}

// GasPrice holds the fee values a user operation is submitted with.
type GasPrice struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

type ParsedTransaction struct {
	BlockHash         common.Hash    `json:"blockHash"`
	BlockNumber       string         `json:"blockNumber"`
	From              common.Address `json:"from"`
	CumulativeGasUsed string         `json:"cumulativeGasUsed"`
	GasUsed           string         `json:"gasUsed"`
	Logs              []*types.Log   `json:"logs"`
	LogsBloom         types.Bloom    `json:"logsBloom"`
	TransactionHash   common.Hash    `json:"transactionHash"`
	TransactionIndex  string         `json:"transactionIndex"`
	EffectiveGasPrice string         `json:"effectiveGasPrice"`
}

type UserOperationReceipt struct {
	UserOpHash    common.Hash        `json:"userOpHash"`
	Sender        common.Address     `json:"sender"`
	Paymaster     common.Address     `json:"paymaster"`
	Nonce         string             `json:"nonce"`
	Success       bool               `json:"success"`
	Reason        string             `json:"reason"`
	ActualGasCost string             `json:"actualGasCost"`
	ActualGasUsed string             `json:"actualGasUsed"`
	From          common.Address     `json:"from"`
	Receipt       *ParsedTransaction `json:"receipt"`
	Logs          []*types.Log       `json:"logs"`
}

// TransactionHash returns the hash of the bundle transaction that included
// the user operation, if the receipt carries one.
func (r *UserOperationReceipt) TransactionHash() common.Hash {
	if r.Receipt == nil {
		return common.Hash{}
	}
	return r.Receipt.TransactionHash
}

type Bundler interface {
	ChainId(ctx context.Context) (*big.Int, error)
	EstimateUserOperationGas(ctx context.Context, op *UserOperation, entryPoint common.Address) (*GasEstimates, error)
	SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error)
	// GetUserOperationReceipt returns (nil, nil) while the operation is
	// still pending.
	GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error)
	GetGasPrice(ctx context.Context) (*GasPrice, error)
}

type BundlerClient struct {
	client *rpc.Client
}

func DialContext(ctx context.Context, rawurl string) (Bundler, error) {
	c, err := rpc.DialContext(ctx, rawurl)
	if err != nil {
		return nil, err
	}
	return NewBundlerClient(c), nil
}

func NewBundlerClient(c *rpc.Client) Bundler {
	return &BundlerClient{c}
}

func (b *BundlerClient) ChainId(ctx context.Context) (*big.Int, error) {
	var result hexutil.Big
	err := b.client.CallContext(ctx, &result, "eth_chainId", []interface{}{}...)
	if err != nil {
		return nil, err
	}
	return (*big.Int)(&result), nil
}

func (b *BundlerClient) EstimateUserOperationGas(ctx context.Context, op *UserOperation, entryPoint common.Address) (*GasEstimates, error) {
	var estimate GasEstimates
	err := b.client.CallContext(ctx, &estimate, "eth_estimateUserOperationGas", op, entryPoint)
	if err != nil {
		return nil, err
	}
	return &estimate, nil
}

func (b *BundlerClient) SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error) {
	var result common.Hash
	err := b.client.CallContext(ctx, &result, "eth_sendUserOperation", op, entryPoint)
	return result, err
}

func (b *BundlerClient) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	err := b.client.CallContext(ctx, &receipt, "eth_getUserOperationReceipt", userOpHash)
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// GetGasPrice fetches the latest base fee and the bundler's suggested
// priority fee in one batch, then pads the base fee by 50% so the operation
// survives base fee movement between submission and inclusion.
func (b *BundlerClient) GetGasPrice(ctx context.Context) (*GasPrice, error) {
	type blockResult struct {
		BaseFeePerGas string `json:"baseFeePerGas"`
	}

	var block blockResult
	var priorityFeeHex string

	batch := []rpc.BatchElem{
		{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{"latest", false},
			Result: &block,
		},
		{
			Method: "rundler_maxPriorityFeePerGas",
			Args:   []interface{}{},
			Result: &priorityFeeHex,
		},
	}

	if err := b.client.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch gas price call failed: %w", err)
	}
	for _, elem := range batch {
		if elem.Error != nil {
			return nil, fmt.Errorf("gas price call %s failed: %w", elem.Method, elem.Error)
		}
	}

	baseFee, err := parseHexBig(block.BaseFeePerGas)
	if err != nil {
		return nil, fmt.Errorf("invalid baseFeePerGas: %w", err)
	}
	priorityFee, err := parseHexBig(priorityFeeHex)
	if err != nil {
		return nil, fmt.Errorf("invalid priority fee: %w", err)
	}

	maxFee := new(big.Int).Mul(baseFee, big.NewInt(150))
	maxFee.Div(maxFee, big.NewInt(100))
	maxFee.Add(maxFee, priorityFee)

	return &GasPrice{
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: priorityFee,
	}, nil
}
