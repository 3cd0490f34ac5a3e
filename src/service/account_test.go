package service

import (
	"math/big"
	"testing"

	"github.com/ethaccount/delegation-demo/erc20"
	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeCallsSingle(t *testing.T) {
	transferData, err := erc20.PackTransfer(
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		big.NewInt(1000),
	)
	require.NoError(t, err)

	calls := []domain.Call{{
		To:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Value: (*hexutil.Big)(big.NewInt(0)),
		Data:  transferData,
	}}

	calldata, err := EncodeCalls(calls)
	require.NoError(t, err)

	// execute(address,uint256,bytes) selector
	assert.Equal(t, hexutil.MustDecode("0xb61d27f6"), calldata[:4])

	decoded, err := DecodeCalls(calldata)
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	assert.Equal(t, calls[0].To, decoded[0].To)
	assert.Equal(t, []byte(transferData), []byte(decoded[0].Data))
}

func TestEncodeCallsBatchPreservesOrder(t *testing.T) {
	calls := []domain.Call{
		{
			To:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Value: (*hexutil.Big)(big.NewInt(1)),
			Data:  []byte{0x01},
		},
		{
			To:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Value: (*hexutil.Big)(big.NewInt(2)),
			Data:  []byte{0x02},
		},
		{
			To:    common.HexToAddress("0x3333333333333333333333333333333333333333"),
			Value: nil,
			Data:  []byte{0x03},
		},
	}

	calldata, err := EncodeCalls(calls)
	require.NoError(t, err)

	decoded, err := DecodeCalls(calldata)
	require.NoError(t, err)
	require.Len(t, decoded, 3)

	for i, call := range calls {
		assert.Equal(t, call.To, decoded[i].To, "target %d", i)
		assert.Equal(t, []byte(call.Data), []byte(decoded[i].Data), "data %d", i)
	}
	assert.Equal(t, int64(1), (*big.Int)(decoded[0].Value).Int64())
	assert.Equal(t, int64(0), (*big.Int)(decoded[2].Value).Int64())
}

func TestEncodeCallsEmpty(t *testing.T) {
	_, err := EncodeCalls(nil)
	assert.Error(t, err)
}

func TestDecodeCallsRejectsUnknownSelector(t *testing.T) {
	_, err := DecodeCalls([]byte{0xde, 0xad, 0xbe, 0xef})
	assert.Error(t, err)
}
