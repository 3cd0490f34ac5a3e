package erc20

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackTransferSelector(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data, err := PackTransfer(to, big.NewInt(1000))
	require.NoError(t, err)

	// transfer(address,uint256) selector
	assert.Equal(t, hexutil.MustDecode("0xa9059cbb"), data[:4])
	assert.Len(t, data, 4+32+32)
}

func TestUnpackTransferRoundTrip(t *testing.T) {
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	amount := new(big.Int).SetUint64(123456789)

	data, err := PackTransfer(to, amount)
	require.NoError(t, err)

	decodedTo, decodedAmount, err := UnpackTransfer(data)
	require.NoError(t, err)
	assert.Equal(t, to, decodedTo)
	assert.Equal(t, amount, decodedAmount)
}

func TestUnpackTransferRejectsOtherCalls(t *testing.T) {
	data, err := PackBalanceOf(common.HexToAddress("0x3333333333333333333333333333333333333333"))
	require.NoError(t, err)

	_, _, err = UnpackTransfer(data)
	assert.ErrorContains(t, err, "not a transfer call")
}

func TestPackBalanceOfSelector(t *testing.T) {
	owner := common.HexToAddress("0x4444444444444444444444444444444444444444")
	data, err := PackBalanceOf(owner)
	require.NoError(t, err)

	// balanceOf(address) selector
	assert.Equal(t, hexutil.MustDecode("0x70a08231"), data[:4])
}
