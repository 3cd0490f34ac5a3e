package service

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethaccount/delegation-demo/erc4337"
	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeChainClient struct {
	code           []byte
	codeErr        error
	txNonce        uint64
	entryPointNonce *big.Int
	codeAtCalls    int
	nonceAtCalls   int
	callCalls      int
}

func (f *fakeChainClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	f.codeAtCalls++
	return f.code, f.codeErr
}

func (f *fakeChainClient) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	f.nonceAtCalls++
	return f.txNonce, nil
}

func (f *fakeChainClient) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.callCalls++
	result := make([]byte, 32)
	nonce := f.entryPointNonce
	if nonce == nil {
		nonce = big.NewInt(0)
	}
	nonceBytes := nonce.Bytes()
	copy(result[32-len(nonceBytes):], nonceBytes)
	return result, nil
}

type fakeBundler struct {
	sentOp      *erc4337.UserOperation
	sendErr     error
	estimateErr error
	receipts    []*erc4337.UserOperationReceipt
	receiptErr  error
	sendCalls   int
}

func (f *fakeBundler) ChainId(ctx context.Context) (*big.Int, error) {
	return big.NewInt(11155111), nil
}

func (f *fakeBundler) EstimateUserOperationGas(ctx context.Context, op *erc4337.UserOperation, entryPoint common.Address) (*erc4337.GasEstimates, error) {
	if f.estimateErr != nil {
		return nil, f.estimateErr
	}
	return &erc4337.GasEstimates{
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(50000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(200000)),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(100000)),
	}, nil
}

func (f *fakeBundler) SendUserOperation(ctx context.Context, op *erc4337.UserOperation, entryPoint common.Address) (common.Hash, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return common.Hash{}, f.sendErr
	}
	f.sentOp = op
	return common.HexToHash("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"), nil
}

func (f *fakeBundler) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*erc4337.UserOperationReceipt, error) {
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	if len(f.receipts) == 0 {
		return nil, nil
	}
	receipt := f.receipts[0]
	f.receipts = f.receipts[1:]
	return receipt, nil
}

func (f *fakeBundler) GetGasPrice(ctx context.Context) (*erc4337.GasPrice, error) {
	return &erc4337.GasPrice{
		MaxFeePerGas:         big.NewInt(2000000000),
		MaxPriorityFeePerGas: big.NewInt(1000000000),
	}, nil
}

type fakeRPCError struct {
	code int
	msg  string
}

func (e *fakeRPCError) Error() string  { return e.msg }
func (e *fakeRPCError) ErrorCode() int { return e.code }

func successReceipt() *erc4337.UserOperationReceipt {
	return &erc4337.UserOperationReceipt{
		Success:       true,
		ActualGasUsed: "0x5208",
		Receipt: &erc4337.ParsedTransaction{
			TransactionHash: common.HexToHash("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"),
			BlockNumber:     "0x10",
		},
	}
}

func newTestDispatcher(t *testing.T, client *fakeChainClient, bundler *fakeBundler) *DispatcherService {
	t.Helper()

	signer, err := NewSignerService(testPrivateKey)
	require.NoError(t, err)

	dispatcher, err := NewDispatcherService(client, bundler, signer, DispatcherConfig{
		ChainID:        big.NewInt(11155111),
		ReceiptTimeout: 2 * time.Second,
		PollInterval:   time.Millisecond,
	})
	require.NoError(t, err)
	return dispatcher
}

func transferCalls(n int) []domain.Call {
	calls := make([]domain.Call, n)
	for i := range calls {
		calls[i] = domain.Call{
			To:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Value: (*hexutil.Big)(big.NewInt(0)),
			Data:  []byte{0xa9, 0x05, 0x9c, 0xbb, byte(i)},
		}
	}
	return calls
}

func TestDispatchRejectsEmptyCalls(t *testing.T) {
	client := &fakeChainClient{}
	bundler := &fakeBundler{}
	dispatcher := newTestDispatcher(t, client, bundler)

	_, err := dispatcher.Dispatch(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodeConfiguration))

	// Rejected before any network interaction
	assert.Zero(t, client.codeAtCalls)
	assert.Zero(t, client.nonceAtCalls)
	assert.Zero(t, client.callCalls)
	assert.Zero(t, bundler.sendCalls)
}

func TestDispatchRejectsZeroTarget(t *testing.T) {
	client := &fakeChainClient{}
	dispatcher := newTestDispatcher(t, client, &fakeBundler{})

	_, err := dispatcher.Dispatch(context.Background(), []domain.Call{{}})
	require.Error(t, err)
	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodeConfiguration))
	assert.Zero(t, client.codeAtCalls)
}

func TestDispatchAttachesAuthorizationWhenUndeployed(t *testing.T) {
	client := &fakeChainClient{
		code:            nil, // no code: not yet delegated
		txNonce:         7,
		entryPointNonce: big.NewInt(42),
	}
	bundler := &fakeBundler{receipts: []*erc4337.UserOperationReceipt{successReceipt()}}
	dispatcher := newTestDispatcher(t, client, bundler)

	result, err := dispatcher.Dispatch(context.Background(), transferCalls(1))
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.True(t, result.AuthorizationAttached)

	require.NotNil(t, bundler.sentOp)
	auth := bundler.sentOp.EIP7702Auth
	require.NotNil(t, auth)

	// Authorization nonce is the signer's transaction nonce, while the
	// operation nonce comes from the EntryPoint.
	assert.Equal(t, uint64(7), uint64(auth.Nonce))
	assert.Equal(t, int64(42), (*big.Int)(bundler.sentOp.Nonce).Int64())
	assert.Equal(t, erc4337.Simple7702Implementation, auth.Address)

	key, err := crypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)
	authority, err := auth.Authority()
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), authority)
}

func TestDispatchOmitsAuthorizationWhenDeployed(t *testing.T) {
	client := &fakeChainClient{
		code:            []byte{0xef, 0x01, 0x00}, // delegation designator
		entryPointNonce: big.NewInt(1),
	}
	bundler := &fakeBundler{receipts: []*erc4337.UserOperationReceipt{successReceipt()}}
	dispatcher := newTestDispatcher(t, client, bundler)

	result, err := dispatcher.Dispatch(context.Background(), transferCalls(1))
	require.NoError(t, err)
	assert.False(t, result.AuthorizationAttached)

	require.NotNil(t, bundler.sentOp)
	assert.Nil(t, bundler.sentOp.EIP7702Auth)
	// The transaction nonce is never read when no authorization is needed.
	assert.Zero(t, client.nonceAtCalls)
}

func TestDispatchSingleCallEncodesExecute(t *testing.T) {
	client := &fakeChainClient{code: []byte{0x01}}
	bundler := &fakeBundler{receipts: []*erc4337.UserOperationReceipt{successReceipt()}}
	dispatcher := newTestDispatcher(t, client, bundler)

	calls := transferCalls(1)
	_, err := dispatcher.Dispatch(context.Background(), calls)
	require.NoError(t, err)

	decoded, err := DecodeCalls(bundler.sentOp.CallData)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, calls[0].To, decoded[0].To)
	assert.Equal(t, []byte(calls[0].Data), []byte(decoded[0].Data))
}

func TestDispatchBatchPreservesCallOrder(t *testing.T) {
	client := &fakeChainClient{code: []byte{0x01}}
	bundler := &fakeBundler{receipts: []*erc4337.UserOperationReceipt{successReceipt()}}
	dispatcher := newTestDispatcher(t, client, bundler)

	calls := transferCalls(3)
	_, err := dispatcher.Dispatch(context.Background(), calls)
	require.NoError(t, err)

	decoded, err := DecodeCalls(bundler.sentOp.CallData)
	require.NoError(t, err)
	require.Len(t, decoded, 3)
	for i := range calls {
		assert.Equal(t, []byte(calls[i].Data), []byte(decoded[i].Data), "call %d out of order", i)
	}
}

func TestDispatchSignatureRecoversToSigner(t *testing.T) {
	client := &fakeChainClient{code: []byte{0x01}}
	bundler := &fakeBundler{receipts: []*erc4337.UserOperationReceipt{successReceipt()}}
	dispatcher := newTestDispatcher(t, client, bundler)

	_, err := dispatcher.Dispatch(context.Background(), transferCalls(1))
	require.NoError(t, err)

	op := bundler.sentOp
	hash, err := op.GetUserOpHash(erc4337.EntryPointV07, big.NewInt(11155111))
	require.NoError(t, err)

	signature := make([]byte, len(op.Signature))
	copy(signature, op.Signature)
	require.Len(t, signature, 65)
	signature[64] -= 27

	pubkey, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), signature)
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(testPrivateKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pubkey))
}

func TestDispatchRevertedReceiptFailsWholeBatch(t *testing.T) {
	client := &fakeChainClient{code: []byte{0x01}}
	bundler := &fakeBundler{receipts: []*erc4337.UserOperationReceipt{{
		Success: false,
		Reason:  "ERC20: transfer amount exceeds balance",
	}}}
	dispatcher := newTestDispatcher(t, client, bundler)

	_, err := dispatcher.Dispatch(context.Background(), transferCalls(2))
	require.Error(t, err)
	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodeExecution))
	assert.Contains(t, err.Error(), "exceeds balance")
}

func TestDispatchBundlerRejectionIsExecutionError(t *testing.T) {
	client := &fakeChainClient{code: []byte{0x01}}
	bundler := &fakeBundler{sendErr: &fakeRPCError{code: -32500, msg: "AA23 reverted"}}
	dispatcher := newTestDispatcher(t, client, bundler)

	_, err := dispatcher.Dispatch(context.Background(), transferCalls(1))
	require.Error(t, err)
	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodeExecution))
}

func TestDispatchNetworkFailureIsTransportError(t *testing.T) {
	client := &fakeChainClient{code: []byte{0x01}}
	bundler := &fakeBundler{sendErr: errors.New("dial tcp: connection refused")}
	dispatcher := newTestDispatcher(t, client, bundler)

	_, err := dispatcher.Dispatch(context.Background(), transferCalls(1))
	require.Error(t, err)
	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodeTransport))
}

func TestDispatchCodeCheckFailureIsTransportError(t *testing.T) {
	client := &fakeChainClient{codeErr: errors.New("connection reset")}
	dispatcher := newTestDispatcher(t, client, &fakeBundler{})

	_, err := dispatcher.Dispatch(context.Background(), transferCalls(1))
	require.Error(t, err)
	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodeTransport))
}

func TestDispatchTimeoutWhenReceiptNeverArrives(t *testing.T) {
	client := &fakeChainClient{code: []byte{0x01}}
	bundler := &fakeBundler{} // receipts stay empty: never included

	signer, err := NewSignerService(testPrivateKey)
	require.NoError(t, err)
	dispatcher, err := NewDispatcherService(client, bundler, signer, DispatcherConfig{
		ChainID:        big.NewInt(11155111),
		ReceiptTimeout: 20 * time.Millisecond,
		PollInterval:   time.Millisecond,
	})
	require.NoError(t, err)

	_, err = dispatcher.Dispatch(context.Background(), transferCalls(1))
	require.Error(t, err)
	assert.True(t, domain.HasErrorCode(err, domain.ErrorCodeTimeout))
}

func TestIsDeployedIsStableAcrossReads(t *testing.T) {
	client := &fakeChainClient{code: []byte{0xef, 0x01, 0x00}}

	first, err := IsDeployed(context.Background(), client, common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)
	second, err := IsDeployed(context.Background(), client, common.HexToAddress("0x1111111111111111111111111111111111111111"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, client.codeAtCalls)
}

func TestDispatcherRequiresChainID(t *testing.T) {
	signer, err := NewSignerService(testPrivateKey)
	require.NoError(t, err)

	_, err = NewDispatcherService(&fakeChainClient{}, &fakeBundler{}, signer, DispatcherConfig{})
	assert.ErrorContains(t, err, "chain id")
}
