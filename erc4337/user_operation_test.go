package erc4337

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUserOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Nonce:                (*hexutil.Big)(big.NewInt(7)),
		CallData:             hexutil.MustDecode("0xdeadbeef"),
		CallGasLimit:         (*hexutil.Big)(big.NewInt(100000)),
		VerificationGasLimit: (*hexutil.Big)(big.NewInt(200000)),
		PreVerificationGas:   (*hexutil.Big)(big.NewInt(50000)),
		MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(1000000000)),
		MaxFeePerGas:         (*hexutil.Big)(big.NewInt(2000000000)),
		Signature:            hexutil.MustDecode("0x01"),
	}
}

func TestPackUserOpGasFields(t *testing.T) {
	op := newTestUserOp()
	packed := op.PackUserOp()

	require.Len(t, packed.AccountGasLimits, 32)
	verification := new(big.Int).SetBytes(packed.AccountGasLimits[:16])
	call := new(big.Int).SetBytes(packed.AccountGasLimits[16:])
	assert.Equal(t, int64(200000), verification.Int64())
	assert.Equal(t, int64(100000), call.Int64())

	require.Len(t, packed.GasFees, 32)
	priority := new(big.Int).SetBytes(packed.GasFees[:16])
	maxFee := new(big.Int).SetBytes(packed.GasFees[16:])
	assert.Equal(t, int64(1000000000), priority.Int64())
	assert.Equal(t, int64(2000000000), maxFee.Int64())

	assert.Empty(t, packed.InitCode)
	assert.Empty(t, packed.PaymasterAndData)
}

func TestPackUserOpWithPaymaster(t *testing.T) {
	op := newTestUserOp()
	paymaster := common.HexToAddress("0x2222222222222222222222222222222222222222")
	op.Paymaster = &paymaster
	op.PaymasterVerificationGasLimit = (*hexutil.Big)(big.NewInt(30000))
	op.PaymasterPostOpGasLimit = (*hexutil.Big)(big.NewInt(40000))
	op.PaymasterData = hexutil.MustDecode("0xabcd")

	packed := op.PackUserOp()
	require.Len(t, packed.PaymasterAndData, 20+16+16+2)
	assert.Equal(t, paymaster.Bytes(), []byte(packed.PaymasterAndData[:20]))
	assert.Equal(t, int64(30000), new(big.Int).SetBytes(packed.PaymasterAndData[20:36]).Int64())
	assert.Equal(t, int64(40000), new(big.Int).SetBytes(packed.PaymasterAndData[36:52]).Int64())
}

func TestMarshalJSONNoncePadding(t *testing.T) {
	op := newTestUserOp()
	data, err := json.Marshal(op)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))

	var nonce string
	require.NoError(t, json.Unmarshal(raw["nonce"], &nonce))
	assert.Equal(t, "0x"+strings.Repeat("0", 63)+"7", nonce)

	_, hasAuth := raw["eip7702Auth"]
	assert.False(t, hasAuth, "eip7702Auth should be omitted when nil")
}

func TestMarshalJSONWithAuthorization(t *testing.T) {
	op := newTestUserOp()
	op.EIP7702Auth = &Authorization{
		ChainID: (*hexutil.Big)(big.NewInt(11155111)),
		Address: Simple7702Implementation,
		Nonce:   hexutil.Uint64(3),
		YParity: hexutil.Uint64(1),
		R:       (*hexutil.Big)(big.NewInt(1)),
		S:       (*hexutil.Big)(big.NewInt(2)),
	}

	data, err := json.Marshal(op)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Contains(t, raw, "eip7702Auth")

	var auth map[string]string
	require.NoError(t, json.Unmarshal(raw["eip7702Auth"], &auth))
	assert.Equal(t, "0xaa36a7", auth["chainId"])
	assert.Equal(t, "0x3", auth["nonce"])
	assert.Equal(t, "0x1", auth["yParity"])
}

func TestUnmarshalJSONRoundTrip(t *testing.T) {
	op := newTestUserOp()
	data, err := json.Marshal(op)
	require.NoError(t, err)

	var decoded UserOperation
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, op.Sender, decoded.Sender)
	assert.Equal(t, (*big.Int)(op.Nonce), (*big.Int)(decoded.Nonce))
	assert.Equal(t, (*big.Int)(op.CallGasLimit), (*big.Int)(decoded.CallGasLimit))
	assert.Equal(t, (*big.Int)(op.MaxFeePerGas), (*big.Int)(decoded.MaxFeePerGas))
	assert.Equal(t, op.CallData, decoded.CallData)
}

func TestGetUserOpHashV07Deterministic(t *testing.T) {
	op := newTestUserOp()
	chainId := big.NewInt(11155111)

	hash1, err := op.GetUserOpHashV07(chainId)
	require.NoError(t, err)
	hash2, err := op.GetUserOpHashV07(chainId)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)
	assert.NotEqual(t, common.Hash{}, hash1)

	hashOther, err := op.GetUserOpHashV07(big.NewInt(1))
	require.NoError(t, err)
	assert.NotEqual(t, hash1, hashOther)
}

func TestGetUserOpHashV08Deterministic(t *testing.T) {
	op := newTestUserOp()
	chainId := big.NewInt(11155111)

	hash1, err := op.GetUserOpHashV08(chainId)
	require.NoError(t, err)
	hash2, err := op.GetUserOpHashV08(chainId)
	require.NoError(t, err)
	assert.Equal(t, hash1, hash2)

	hashV07, err := op.GetUserOpHashV07(chainId)
	require.NoError(t, err)
	assert.NotEqual(t, hashV07, hash1)
}

func TestGetUserOpHashDispatch(t *testing.T) {
	op := newTestUserOp()
	chainId := big.NewInt(11155111)

	hash, err := op.GetUserOpHash(EntryPointV07, chainId)
	require.NoError(t, err)
	expected, err := op.GetUserOpHashV07(chainId)
	require.NoError(t, err)
	assert.Equal(t, expected, hash)

	hash, err = op.GetUserOpHash(EntryPointV08, chainId)
	require.NoError(t, err)
	expected, err = op.GetUserOpHashV08(chainId)
	require.NoError(t, err)
	assert.Equal(t, expected, hash)

	_, err = op.GetUserOpHash(common.HexToAddress("0x3333333333333333333333333333333333333333"), chainId)
	assert.ErrorContains(t, err, "unsupported entry point")
}

func TestParseHexBig(t *testing.T) {
	value, err := parseHexBig("0x1a")
	require.NoError(t, err)
	assert.Equal(t, int64(26), value.Int64())

	value, err = parseHexBig("")
	require.NoError(t, err)
	assert.Equal(t, int64(0), value.Int64())

	_, err = parseHexBig("0xzz")
	assert.Error(t, err)
}
