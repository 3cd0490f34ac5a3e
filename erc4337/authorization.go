package erc4337

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// Simple7702Implementation is the canonical Simple7702Account delegate
// contract. An EOA that signs an authorization for this address executes
// user operations through its execute/executeBatch entry points.
var Simple7702Implementation = common.HexToAddress("0xe6Cae83BdE06E4c305530e199D7217f42808555B")

// Authorization is the signed EIP-7702 authorization tuple in the wire
// format bundlers accept alongside a user operation (the eip7702Auth field).
type Authorization struct {
	ChainID *hexutil.Big   `json:"chainId"`
	Address common.Address `json:"address"`
	Nonce   hexutil.Uint64 `json:"nonce"`
	YParity hexutil.Uint64 `json:"yParity"`
	R       *hexutil.Big   `json:"r"`
	S       *hexutil.Big   `json:"s"`
}

// SignAuthorization signs an EIP-7702 authorization delegating the signer's
// address to the given implementation contract. The nonce must be the
// signer's current transaction nonce, not an EntryPoint nonce.
func SignAuthorization(chainId *big.Int, implementation common.Address, nonce uint64, key *ecdsa.PrivateKey) (*Authorization, error) {
	if chainId == nil {
		return nil, fmt.Errorf("chain id is required")
	}
	chainIdU256, overflow := uint256.FromBig(chainId)
	if overflow {
		return nil, fmt.Errorf("chain id overflows uint256: %s", chainId.String())
	}

	signed, err := types.SignSetCode(key, types.SetCodeAuthorization{
		ChainID: *chainIdU256,
		Address: implementation,
		Nonce:   nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sign authorization: %w", err)
	}

	return &Authorization{
		ChainID: (*hexutil.Big)(chainId),
		Address: signed.Address,
		Nonce:   hexutil.Uint64(signed.Nonce),
		YParity: hexutil.Uint64(signed.V),
		R:       (*hexutil.Big)(signed.R.ToBig()),
		S:       (*hexutil.Big)(signed.S.ToBig()),
	}, nil
}

// Authority recovers the signer address from the authorization signature.
func (a *Authorization) Authority() (common.Address, error) {
	chainIdU256, overflow := uint256.FromBig((*big.Int)(a.ChainID))
	if overflow {
		return common.Address{}, fmt.Errorf("chain id overflows uint256")
	}
	r, overflow := uint256.FromBig((*big.Int)(a.R))
	if overflow {
		return common.Address{}, fmt.Errorf("r overflows uint256")
	}
	s, overflow := uint256.FromBig((*big.Int)(a.S))
	if overflow {
		return common.Address{}, fmt.Errorf("s overflows uint256")
	}

	auth := types.SetCodeAuthorization{
		ChainID: *chainIdU256,
		Address: a.Address,
		Nonce:   uint64(a.Nonce),
		V:       uint8(a.YParity),
		R:       *r,
		S:       *s,
	}
	return auth.Authority()
}
