package domain

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorClassification(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	err := NewError(ErrorCodeTransport, base, WithMsg("Bundler unreachable"))

	assert.Equal(t, "TRANSPORT_ERROR", err.Name())
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus())
	assert.Equal(t, "Bundler unreachable", err.ClientMsg())
	assert.ErrorIs(t, err, base)

	wrapped := fmt.Errorf("dispatch failed: %w", err)
	assert.True(t, HasErrorCode(wrapped, ErrorCodeTransport))
	assert.False(t, HasErrorCode(wrapped, ErrorCodeTimeout))
	assert.Equal(t, "TRANSPORT_ERROR", ErrorName(wrapped))
}

func TestDomainErrorZeroValue(t *testing.T) {
	var err DomainError
	assert.Equal(t, "INTERNAL_PROCESS", err.Name())
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus())
}

func TestErrorNameUnclassified(t *testing.T) {
	assert.Equal(t, "INTERNAL_PROCESS", ErrorName(errors.New("boom")))
}

func TestSubmissionMode(t *testing.T) {
	call := Call{
		To:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Value: (*hexutil.Big)(big.NewInt(0)),
		Data:  hexutil.MustDecode("0xdeadbeef"),
	}

	single := Submission{Calls: []Call{call}}
	assert.Equal(t, SubmissionModeSingle, single.Mode())

	batch := Submission{Calls: []Call{call, call}}
	assert.Equal(t, SubmissionModeBatch, batch.Mode())
}

func TestSubmissionModelCallsRoundTrip(t *testing.T) {
	calls := []Call{
		{
			To:    common.HexToAddress("0x1111111111111111111111111111111111111111"),
			Value: (*hexutil.Big)(big.NewInt(5)),
			Data:  hexutil.MustDecode("0xa9059cbb"),
		},
		{
			To:    common.HexToAddress("0x2222222222222222222222222222222222222222"),
			Value: (*hexutil.Big)(big.NewInt(0)),
			Data:  hexutil.Bytes{},
		},
	}

	var model SubmissionModel
	require.NoError(t, model.SetCalls(calls))

	decoded, err := model.GetCalls()
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, calls[0].To, decoded[0].To)
	assert.Equal(t, calls[1].To, decoded[1].To)
	assert.Equal(t, int64(5), (*big.Int)(decoded[0].Value).Int64())
}
