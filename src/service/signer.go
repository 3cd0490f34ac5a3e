package service

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethaccount/delegation-demo/erc4337"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignerService holds the EOA key and produces the two kinds of signatures
// a dispatch needs: the EIP-7702 authorization tuple and the user operation
// hash signature.
type SignerService struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func NewSignerService(privateKeyHex string) (*SignerService, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return &SignerService{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the signer's EOA address. Under in-place delegation this
// is also the smart account address.
func (s *SignerService) Address() common.Address {
	return s.address
}

// SignAuthorization signs an EIP-7702 authorization for the delegation
// implementation. nonce must be the signer's current transaction nonce.
func (s *SignerService) SignAuthorization(chainId *big.Int, implementation common.Address, nonce uint64) (*erc4337.Authorization, error) {
	return erc4337.SignAuthorization(chainId, implementation, nonce, s.privateKey)
}

// SignUserOpHash signs a user operation hash with the eth_sign prefix, the
// format the account implementation validates. The recovery id is shifted
// to 27/28.
func (s *SignerService) SignUserOpHash(userOpHash common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(accounts.TextHash(userOpHash.Bytes()), s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign user operation hash: %w", err)
	}
	signature[64] += 27
	return signature, nil
}
