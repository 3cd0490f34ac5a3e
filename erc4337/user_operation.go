package erc4337

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Deployed EntryPoint addresses. The hash scheme differs between the two
// versions, see GetUserOpHash.
var (
	EntryPointV07 = common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	EntryPointV08 = common.HexToAddress("0x4337084D9E255Ff0702461CF8895CE9E3b5Ff108")
)

// UserOperation represents the ERC-4337 user operation structure (v0.7 wire
// format). EIP7702Auth carries the optional EIP-7702 authorization accepted
// by bundlers for in-place delegated accounts.
type UserOperation struct {
	Sender                        common.Address  `json:"sender"`
	Nonce                         *hexutil.Big    `json:"nonce"`
	Factory                       *common.Address `json:"factory"`
	FactoryData                   hexutil.Bytes   `json:"factoryData"`
	CallData                      hexutil.Bytes   `json:"callData"`
	CallGasLimit                  *hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big    `json:"preVerificationGas"`
	MaxPriorityFeePerGas          *hexutil.Big    `json:"maxPriorityFeePerGas"`
	MaxFeePerGas                  *hexutil.Big    `json:"maxFeePerGas"`
	Paymaster                     *common.Address `json:"paymaster"`
	PaymasterVerificationGasLimit *hexutil.Big    `json:"paymasterVerificationGasLimit"`
	PaymasterPostOpGasLimit       *hexutil.Big    `json:"paymasterPostOpGasLimit"`
	PaymasterData                 hexutil.Bytes   `json:"paymasterData"`
	EIP7702Auth                   *Authorization  `json:"eip7702Auth,omitempty"`
	Signature                     hexutil.Bytes   `json:"signature"`
}

// MarshalJSON implements custom JSON marshaling for UserOperation
func (uo *UserOperation) MarshalJSON() ([]byte, error) {
	type Alias UserOperation
	aux := struct {
		Nonce                         string `json:"nonce"`
		CallGasLimit                  string `json:"callGasLimit"`
		VerificationGasLimit          string `json:"verificationGasLimit"`
		PreVerificationGas            string `json:"preVerificationGas"`
		MaxPriorityFeePerGas          string `json:"maxPriorityFeePerGas"`
		MaxFeePerGas                  string `json:"maxFeePerGas"`
		PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit"`
		PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit"`
		*Alias
	}{
		Alias: (*Alias)(uo),
	}

	// Nonce is serialized with 32-byte padding
	if uo.Nonce != nil {
		nonceBytes := (*big.Int)(uo.Nonce).Bytes()
		paddedNonce := make([]byte, 32)
		copy(paddedNonce[32-len(nonceBytes):], nonceBytes)
		aux.Nonce = fmt.Sprintf("0x%064x", new(big.Int).SetBytes(paddedNonce))
	} else {
		aux.Nonce = "0x0000000000000000000000000000000000000000000000000000000000000000"
	}

	// Remaining numeric fields are plain hex quantities
	if uo.CallGasLimit != nil {
		aux.CallGasLimit = fmt.Sprintf("0x%x", (*big.Int)(uo.CallGasLimit))
	}
	if uo.VerificationGasLimit != nil {
		aux.VerificationGasLimit = fmt.Sprintf("0x%x", (*big.Int)(uo.VerificationGasLimit))
	}
	if uo.PreVerificationGas != nil {
		aux.PreVerificationGas = fmt.Sprintf("0x%x", (*big.Int)(uo.PreVerificationGas))
	}
	if uo.MaxPriorityFeePerGas != nil {
		aux.MaxPriorityFeePerGas = fmt.Sprintf("0x%x", (*big.Int)(uo.MaxPriorityFeePerGas))
	}
	if uo.MaxFeePerGas != nil {
		aux.MaxFeePerGas = fmt.Sprintf("0x%x", (*big.Int)(uo.MaxFeePerGas))
	}
	if uo.PaymasterVerificationGasLimit != nil {
		aux.PaymasterVerificationGasLimit = fmt.Sprintf("0x%x", (*big.Int)(uo.PaymasterVerificationGasLimit))
	}
	if uo.PaymasterPostOpGasLimit != nil {
		aux.PaymasterPostOpGasLimit = fmt.Sprintf("0x%x", (*big.Int)(uo.PaymasterPostOpGasLimit))
	}

	return json.Marshal(aux)
}

// UnmarshalJSON implements custom JSON unmarshaling for UserOperation
func (uo *UserOperation) UnmarshalJSON(data []byte) error {
	type Alias UserOperation
	aux := struct {
		Nonce                         string `json:"nonce"`
		CallGasLimit                  string `json:"callGasLimit"`
		VerificationGasLimit          string `json:"verificationGasLimit"`
		PreVerificationGas            string `json:"preVerificationGas"`
		MaxPriorityFeePerGas          string `json:"maxPriorityFeePerGas"`
		MaxFeePerGas                  string `json:"maxFeePerGas"`
		PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit"`
		PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit"`
		*Alias
	}{
		Alias: (*Alias)(uo),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	assign := func(dst **hexutil.Big, name, value string) error {
		if value == "" {
			return nil
		}
		parsed, err := parseHexBig(value)
		if err != nil {
			return fmt.Errorf("invalid %s: %v", name, err)
		}
		*dst = (*hexutil.Big)(parsed)
		return nil
	}

	if err := assign(&uo.Nonce, "nonce", aux.Nonce); err != nil {
		return err
	}
	if err := assign(&uo.CallGasLimit, "callGasLimit", aux.CallGasLimit); err != nil {
		return err
	}
	if err := assign(&uo.VerificationGasLimit, "verificationGasLimit", aux.VerificationGasLimit); err != nil {
		return err
	}
	if err := assign(&uo.PreVerificationGas, "preVerificationGas", aux.PreVerificationGas); err != nil {
		return err
	}
	if err := assign(&uo.MaxPriorityFeePerGas, "maxPriorityFeePerGas", aux.MaxPriorityFeePerGas); err != nil {
		return err
	}
	if err := assign(&uo.MaxFeePerGas, "maxFeePerGas", aux.MaxFeePerGas); err != nil {
		return err
	}
	if err := assign(&uo.PaymasterVerificationGasLimit, "paymasterVerificationGasLimit", aux.PaymasterVerificationGasLimit); err != nil {
		return err
	}
	if err := assign(&uo.PaymasterPostOpGasLimit, "paymasterPostOpGasLimit", aux.PaymasterPostOpGasLimit); err != nil {
		return err
	}

	return nil
}

// parseHexBig parses a hex quantity string ("0x..." or bare hex) to big.Int.
func parseHexBig(hexStr string) (*big.Int, error) {
	if hexStr == "" {
		return big.NewInt(0), nil
	}
	if len(hexStr) >= 2 && hexStr[:2] == "0x" {
		hexStr = hexStr[2:]
	}
	if hexStr == "" {
		return big.NewInt(0), nil
	}
	result := new(big.Int)
	_, ok := result.SetString(hexStr, 16)
	if !ok {
		return nil, fmt.Errorf("invalid hex string: %s", hexStr)
	}
	return result, nil
}

// PackedUserOp represents the packed version of UserOperation for ERC-4337
type PackedUserOp struct {
	Sender             common.Address `json:"sender"`
	Nonce              *big.Int       `json:"nonce"`
	InitCode           hexutil.Bytes  `json:"initCode"`
	CallData           hexutil.Bytes  `json:"callData"`
	AccountGasLimits   hexutil.Bytes  `json:"accountGasLimits"`
	PreVerificationGas *big.Int       `json:"preVerificationGas"`
	GasFees            hexutil.Bytes  `json:"gasFees"`
	PaymasterAndData   hexutil.Bytes  `json:"paymasterAndData"`
	Signature          hexutil.Bytes  `json:"signature"`
}

// PackUserOp packs a UserOperation into a PackedUserOp according to the
// ERC-4337 specification
func (uo *UserOperation) PackUserOp() *PackedUserOp {
	packed := &PackedUserOp{
		Sender:    uo.Sender,
		CallData:  uo.CallData,
		Signature: uo.Signature,
	}

	if uo.Nonce != nil {
		packed.Nonce = (*big.Int)(uo.Nonce)
	} else {
		packed.Nonce = big.NewInt(0)
	}

	// initCode = factory + factoryData when both exist
	if uo.Factory != nil && len(uo.FactoryData) > 0 {
		initCode := make([]byte, 0, 20+len(uo.FactoryData))
		initCode = append(initCode, uo.Factory.Bytes()...)
		initCode = append(initCode, uo.FactoryData...)
		packed.InitCode = initCode
	} else {
		packed.InitCode = hexutil.Bytes{}
	}

	// accountGasLimits = verificationGasLimit (16 bytes) + callGasLimit (16 bytes)
	accountGasLimits := make([]byte, 32)
	if uo.VerificationGasLimit != nil {
		verificationBytes := (*big.Int)(uo.VerificationGasLimit).Bytes()
		copy(accountGasLimits[16-len(verificationBytes):16], verificationBytes)
	}
	if uo.CallGasLimit != nil {
		callBytes := (*big.Int)(uo.CallGasLimit).Bytes()
		copy(accountGasLimits[32-len(callBytes):32], callBytes)
	}
	packed.AccountGasLimits = accountGasLimits

	if uo.PreVerificationGas != nil {
		packed.PreVerificationGas = (*big.Int)(uo.PreVerificationGas)
	} else {
		packed.PreVerificationGas = big.NewInt(0)
	}

	// gasFees = maxPriorityFeePerGas (16 bytes) + maxFeePerGas (16 bytes)
	gasFees := make([]byte, 32)
	if uo.MaxPriorityFeePerGas != nil {
		priorityBytes := (*big.Int)(uo.MaxPriorityFeePerGas).Bytes()
		copy(gasFees[16-len(priorityBytes):16], priorityBytes)
	}
	if uo.MaxFeePerGas != nil {
		maxFeeBytes := (*big.Int)(uo.MaxFeePerGas).Bytes()
		copy(gasFees[32-len(maxFeeBytes):32], maxFeeBytes)
	}
	packed.GasFees = gasFees

	// paymasterAndData = paymaster + both paymaster gas limits + paymasterData
	if uo.Paymaster != nil {
		paymasterAndData := make([]byte, 0, 52+len(uo.PaymasterData))
		paymasterAndData = append(paymasterAndData, uo.Paymaster.Bytes()...)

		verificationLimit := make([]byte, 16)
		if uo.PaymasterVerificationGasLimit != nil {
			verificationBytes := (*big.Int)(uo.PaymasterVerificationGasLimit).Bytes()
			copy(verificationLimit[16-len(verificationBytes):16], verificationBytes)
		}
		paymasterAndData = append(paymasterAndData, verificationLimit...)

		postOpLimit := make([]byte, 16)
		if uo.PaymasterPostOpGasLimit != nil {
			postOpBytes := (*big.Int)(uo.PaymasterPostOpGasLimit).Bytes()
			copy(postOpLimit[16-len(postOpBytes):16], postOpBytes)
		}
		paymasterAndData = append(paymasterAndData, postOpLimit...)

		paymasterAndData = append(paymasterAndData, uo.PaymasterData...)

		packed.PaymasterAndData = paymasterAndData
	} else {
		packed.PaymasterAndData = hexutil.Bytes{}
	}

	return packed
}

// GetUserOpHash computes the user operation hash for the given EntryPoint,
// selecting the hash scheme by EntryPoint address.
func (uo *UserOperation) GetUserOpHash(entryPoint common.Address, chainId *big.Int) (common.Hash, error) {
	switch strings.ToLower(entryPoint.Hex()) {
	case strings.ToLower(EntryPointV07.Hex()):
		return uo.GetUserOpHashV07(chainId)
	case strings.ToLower(EntryPointV08.Hex()):
		return uo.GetUserOpHashV08(chainId)
	default:
		return common.Hash{}, fmt.Errorf("unsupported entry point: %s", entryPoint.Hex())
	}
}

// GetUserOpHashV07 computes the user operation hash for ERC-4337 v0.7
func (uo *UserOperation) GetUserOpHashV07(chainId *big.Int) (common.Hash, error) {
	packed := uo.PackUserOp()
	hashedInitCode := crypto.Keccak256Hash(packed.InitCode)
	hashedCallData := crypto.Keccak256Hash(packed.CallData)
	hashedPaymasterAndData := crypto.Keccak256Hash(packed.PaymasterAndData)

	nonce := packed.Nonce
	if nonce == nil {
		nonce = big.NewInt(0)
	}

	addressType, _ := abi.NewType("address", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	bytes32Type, _ := abi.NewType("bytes32", "", nil)

	// First level encoding: the user operation fields
	userOpArgs := abi.Arguments{
		{Type: addressType}, // sender
		{Type: uint256Type}, // nonce
		{Type: bytes32Type}, // hashedInitCode
		{Type: bytes32Type}, // hashedCallData
		{Type: bytes32Type}, // accountGasLimits
		{Type: uint256Type}, // preVerificationGas
		{Type: bytes32Type}, // gasFees
		{Type: bytes32Type}, // hashedPaymasterAndData
	}

	var accountGasLimits [32]byte
	copy(accountGasLimits[:], packed.AccountGasLimits)

	var gasFees [32]byte
	copy(gasFees[:], packed.GasFees)

	preVerificationGas := packed.PreVerificationGas
	if preVerificationGas == nil {
		preVerificationGas = big.NewInt(0)
	}

	userOpEncoded, err := userOpArgs.Pack(
		packed.Sender,
		nonce,
		hashedInitCode,
		hashedCallData,
		accountGasLimits,
		preVerificationGas,
		gasFees,
		hashedPaymasterAndData,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode user operation: %v", err)
	}

	userOpHash := crypto.Keccak256Hash(userOpEncoded)

	// Second level encoding: the hash with EntryPoint and chainId
	finalArgs := abi.Arguments{
		{Type: bytes32Type}, // userOpHash
		{Type: addressType}, // entryPoint
		{Type: uint256Type}, // chainId
	}

	finalEncoded, err := finalArgs.Pack(
		userOpHash,
		EntryPointV07,
		chainId,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to encode final hash: %v", err)
	}

	return crypto.Keccak256Hash(finalEncoded), nil
}

// GetUserOpHashV08 computes the user operation hash for ERC-4337 v0.8,
// which switched to EIP-712 typed data.
func (uo *UserOperation) GetUserOpHashV08(chainId *big.Int) (common.Hash, error) {
	packed := uo.PackUserOp()

	domain := apitypes.TypedDataDomain{
		Name:              "ERC4337",
		Version:           "1",
		ChainId:           (*math.HexOrDecimal256)(chainId),
		VerifyingContract: EntryPointV08.Hex(),
	}

	typedTypes := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"PackedUserOperation": {
			{Name: "sender", Type: "address"},
			{Name: "nonce", Type: "uint256"},
			{Name: "initCode", Type: "bytes"},
			{Name: "callData", Type: "bytes"},
			{Name: "accountGasLimits", Type: "bytes32"},
			{Name: "preVerificationGas", Type: "uint256"},
			{Name: "gasFees", Type: "bytes32"},
			{Name: "paymasterAndData", Type: "bytes"},
		},
	}

	var accountGasLimits, gasFees [32]byte
	copy(accountGasLimits[:], packed.AccountGasLimits)
	copy(gasFees[:], packed.GasFees)

	message := map[string]interface{}{
		"sender":             packed.Sender.Hex(),
		"nonce":              packed.Nonce.String(),
		"initCode":           hexutil.Encode(packed.InitCode),
		"callData":           hexutil.Encode(packed.CallData),
		"accountGasLimits":   hexutil.Encode(accountGasLimits[:]),
		"preVerificationGas": packed.PreVerificationGas.String(),
		"gasFees":            hexutil.Encode(gasFees[:]),
		"paymasterAndData":   hexutil.Encode(packed.PaymasterAndData),
	}

	typedData := apitypes.TypedData{
		Types:       typedTypes,
		PrimaryType: "PackedUserOperation",
		Domain:      domain,
		Message:     message,
	}

	structHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash struct: %v", err)
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %v", err)
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparator...)
	rawData = append(rawData, structHash...)

	return crypto.Keccak256Hash(rawData), nil
}
