package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethaccount/delegation-demo/erc4337"
	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
)

const (
	DefaultReceiptTimeout = 120 * time.Second
	defaultPollInterval   = 2 * time.Second
)

type DispatcherConfig struct {
	ChainID        *big.Int
	EntryPoint     common.Address
	Delegation     common.Address
	ReceiptTimeout time.Duration
	PollInterval   time.Duration
}

// DispatcherService turns an ordered set of calls into one user operation:
// it checks whether the signer's account is already delegated, attaches a
// signed EIP-7702 authorization on first use, submits through the bundler
// and waits for inclusion. Dispatches are serialized per instance so
// concurrent callers cannot race the nonce reads.
type DispatcherService struct {
	client  ChainClient
	bundler erc4337.Bundler
	signer  *SignerService
	config  DispatcherConfig
	mu      sync.Mutex
}

func NewDispatcherService(client ChainClient, bundler erc4337.Bundler, signer *SignerService, config DispatcherConfig) (*DispatcherService, error) {
	if config.ChainID == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	if config.EntryPoint == (common.Address{}) {
		config.EntryPoint = erc4337.EntryPointV07
	}
	if config.Delegation == (common.Address{}) {
		config.Delegation = erc4337.Simple7702Implementation
	}
	if config.ReceiptTimeout == 0 {
		config.ReceiptTimeout = DefaultReceiptTimeout
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaultPollInterval
	}

	return &DispatcherService{
		client:  client,
		bundler: bundler,
		signer:  signer,
		config:  config,
	}, nil
}

// logger wraps the execution context with component info
func (d *DispatcherService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "dispatcher").Logger()
	return &l
}

// Dispatch executes the calls as one user operation from the signer's
// account and blocks until inclusion, rejection or timeout. Failures are
// classified: CONFIGURATION_ERROR for bad inputs before any network call,
// TRANSPORT_ERROR for RPC failures, EXECUTION_ERROR for bundler rejection
// or an on-chain revert, TIMEOUT_ERROR when the receipt never arrives.
// There are no retries; every failure aborts the invocation.
func (d *DispatcherService) Dispatch(ctx context.Context, calls []domain.Call) (*domain.SubmissionResult, error) {
	if len(calls) == 0 {
		return nil, domain.NewError(domain.ErrorCodeConfiguration,
			errors.New("no calls to dispatch"),
			domain.WithMsg("At least one call is required"))
	}
	for i, call := range calls {
		if call.To == (common.Address{}) {
			return nil, domain.NewError(domain.ErrorCodeConfiguration,
				fmt.Errorf("call %d has no target address", i),
				domain.WithMsg("Every call needs a target address"))
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	sender := d.signer.Address()

	d.logger(ctx).Info().
		Str("sender", sender.Hex()).
		Int("call_count", len(calls)).
		Msg("dispatching calls")

	deployed, err := IsDeployed(ctx, d.client, sender)
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeTransport, err,
			domain.WithMsg("Failed to check account deployment state"))
	}

	var auth *erc4337.Authorization
	if !deployed {
		// The authorization nonce is the signer's transaction nonce, not
		// the 4337 nonce from the EntryPoint.
		txNonce, err := d.client.NonceAt(ctx, sender, nil)
		if err != nil {
			return nil, domain.NewError(domain.ErrorCodeTransport, err,
				domain.WithMsg("Failed to get transaction nonce"))
		}

		auth, err = d.signer.SignAuthorization(d.config.ChainID, d.config.Delegation, txNonce)
		if err != nil {
			return nil, domain.NewError(domain.ErrorCodeConfiguration, err,
				domain.WithMsg("Failed to sign delegation authorization"))
		}

		d.logger(ctx).Info().
			Str("delegation", d.config.Delegation.Hex()).
			Uint64("tx_nonce", txNonce).
			Msg("account not delegated, attaching authorization")
	}

	entryPointNonce, err := GetEntryPointNonce(ctx, d.client, d.config.EntryPoint, sender)
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeTransport, err,
			domain.WithMsg("Failed to read entry point nonce"))
	}

	callData, err := EncodeCalls(calls)
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeConfiguration, err,
			domain.WithMsg("Failed to encode account calldata"))
	}

	gasPrice, err := d.bundler.GetGasPrice(ctx)
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeTransport, err,
			domain.WithMsg("Failed to get gas price"))
	}

	op := &erc4337.UserOperation{
		Sender:               sender,
		Nonce:                (*hexutil.Big)(entryPointNonce),
		CallData:             hexutil.Bytes(callData),
		MaxFeePerGas:         (*hexutil.Big)(gasPrice.MaxFeePerGas),
		MaxPriorityFeePerGas: (*hexutil.Big)(gasPrice.MaxPriorityFeePerGas),
		EIP7702Auth:          auth,
	}

	// Estimation needs a signature-shaped placeholder.
	dummySignature, err := d.signer.SignUserOpHash(common.Hash{})
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeConfiguration, err,
			domain.WithMsg("Failed to produce placeholder signature"))
	}
	op.Signature = dummySignature

	estimates, err := d.bundler.EstimateUserOperationGas(ctx, op, d.config.EntryPoint)
	if err != nil {
		return nil, classifyBundlerError(err, "gas estimation failed")
	}
	op.CallGasLimit = estimates.CallGasLimit
	op.VerificationGasLimit = estimates.VerificationGasLimit
	op.PreVerificationGas = estimates.PreVerificationGas

	userOpHash, err := op.GetUserOpHash(d.config.EntryPoint, d.config.ChainID)
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeConfiguration, err,
			domain.WithMsg("Failed to compute user operation hash"))
	}

	signature, err := d.signer.SignUserOpHash(userOpHash)
	if err != nil {
		return nil, domain.NewError(domain.ErrorCodeConfiguration, err,
			domain.WithMsg("Failed to sign user operation"))
	}
	op.Signature = signature

	sentHash, err := d.bundler.SendUserOperation(ctx, op, d.config.EntryPoint)
	if err != nil {
		return nil, classifyBundlerError(err, "user operation rejected")
	}

	d.logger(ctx).Info().
		Str("user_op_hash", sentHash.Hex()).
		Bool("authorization_attached", auth != nil).
		Msg("user operation submitted, waiting for receipt")

	receipt, err := d.waitForReceipt(ctx, sentHash)
	if err != nil {
		return nil, err
	}

	if !receipt.Success {
		reason := receipt.Reason
		if reason == "" {
			reason = "user operation reverted"
		}
		// A reverted batch fails as a whole; there is no partial success.
		return nil, domain.NewError(domain.ErrorCodeExecution,
			fmt.Errorf("user operation %s reverted: %s", sentHash.Hex(), reason),
			domain.WithMsg("Execution reverted on chain"),
			domain.WithDetail(map[string]interface{}{
				"userOpHash": sentHash.Hex(),
				"txHash":     receipt.TransactionHash().Hex(),
			}))
	}

	result := &domain.SubmissionResult{
		UserOpHash:            sentHash,
		TxHash:                receipt.TransactionHash(),
		Success:               true,
		AuthorizationAttached: auth != nil,
	}
	if gasUsed, err := parseHexQuantity(receipt.ActualGasUsed); err == nil {
		result.GasUsed = gasUsed
	}
	if receipt.Receipt != nil {
		if blockNumber, err := parseHexQuantity(receipt.Receipt.BlockNumber); err == nil {
			result.BlockNumber = blockNumber
		}
	}

	d.logger(ctx).Info().
		Str("user_op_hash", sentHash.Hex()).
		Str("tx_hash", result.TxHash.Hex()).
		Msg("user operation included")

	return result, nil
}

// waitForReceipt polls the bundler until the operation is included or the
// receipt timeout elapses. On timeout the outcome is unknown to the caller,
// not failed.
func (d *DispatcherService) waitForReceipt(ctx context.Context, userOpHash common.Hash) (*erc4337.UserOperationReceipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, d.config.ReceiptTimeout)
	defer cancel()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			return nil, domain.NewError(domain.ErrorCodeTimeout,
				fmt.Errorf("no receipt for %s within %s", userOpHash.Hex(), d.config.ReceiptTimeout),
				domain.WithMsg("Timed out waiting for inclusion; the outcome is unknown"),
				domain.WithDetail(map[string]interface{}{
					"userOpHash": userOpHash.Hex(),
				}))
		case <-ticker.C:
			receipt, err := d.bundler.GetUserOperationReceipt(waitCtx, userOpHash)
			if err != nil {
				if waitCtx.Err() != nil {
					continue
				}
				return nil, domain.NewError(domain.ErrorCodeTransport, err,
					domain.WithMsg("Failed to poll user operation receipt"))
			}
			if receipt == nil {
				continue
			}
			return receipt, nil
		}
	}
}

// classifyBundlerError separates a bundler's JSON-RPC rejection (the
// operation is invalid or would revert) from a transport failure.
func classifyBundlerError(err error, msg string) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return domain.NewError(domain.ErrorCodeExecution, err, domain.WithMsg("Bundler rejected the operation: "+msg))
	}
	return domain.NewError(domain.ErrorCodeTransport, err, domain.WithMsg("Bundler unreachable: "+msg))
}

func parseHexQuantity(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("empty quantity")
	}
	return hexutil.DecodeBig(value)
}
