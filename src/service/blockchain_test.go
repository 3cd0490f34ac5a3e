package service

import (
	"context"
	"testing"

	"github.com/ethaccount/delegation-demo/erc4337"
	"github.com/ethaccount/delegation-demo/src/testutil"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getBlockchainService() *BlockchainService {
	sepoliaRpcUrl := testutil.GetEnv("SEPOLIA_RPC_URL")
	arbitrumSepoliaRpcUrl := testutil.GetEnv("ARBITRUM_SEPOLIA_RPC_URL")
	baseSepoliaRpcUrl := testutil.GetEnv("BASE_SEPOLIA_RPC_URL")
	optimismSepoliaRpcUrl := testutil.GetEnv("OPTIMISM_SEPOLIA_RPC_URL")

	return NewBlockchainService(BlockchainConfig{
		SepoliaRPCURL:         sepoliaRpcUrl,
		ArbitrumSepoliaRPCURL: arbitrumSepoliaRpcUrl,
		BaseSepoliaRPCURL:     baseSepoliaRpcUrl,
		OptimismSepoliaRPCURL: optimismSepoliaRpcUrl,
		BundlerAPIKey:         testutil.GetEnv("BUNDLER_API_KEY"),
	})
}

func TestGetBundlerURL(t *testing.T) {
	service := NewBlockchainService(BlockchainConfig{
		BundlerAPIKey: "test-key",
	})

	url, err := service.GetBundlerURL(11155111)
	require.NoError(t, err)
	assert.Equal(t, "https://api.pimlico.io/v2/11155111/rpc?apikey=test-key", url)

	// Explicit URL wins over the API key
	service = NewBlockchainService(BlockchainConfig{
		BundlerRPCURL: "http://localhost:4337",
		BundlerAPIKey: "test-key",
	})

	url, err = service.GetBundlerURL(11155111)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:4337", url)
}

func TestGetBundlerURL_NoConfig(t *testing.T) {
	service := NewBlockchainService(BlockchainConfig{})

	_, err := service.GetBundlerURL(11155111)
	assert.Error(t, err)
}

func TestGetClient_UnsupportedChain(t *testing.T) {
	service := NewBlockchainService(BlockchainConfig{
		SepoliaRPCURL: "https://ethereum-sepolia-rpc.publicnode.com",
	})

	_, err := service.GetClient(999999)
	assert.Error(t, err)
}

func TestIsDeployed(t *testing.T) {
	service := getBlockchainService()
	defer service.Close()

	ctx := context.Background()

	// EntryPoint v0.7 is deployed on Sepolia
	deployed, err := service.IsDeployed(ctx, 11155111, erc4337.EntryPointV07)
	require.NoError(t, err)
	assert.True(t, deployed)

	// A random address has no code
	deployed, err = service.IsDeployed(ctx, 11155111, common.HexToAddress("0x00000000000000000000000000000000DeaDBeef"))
	require.NoError(t, err)
	assert.False(t, deployed)
}

func TestGetEntryPointNonce(t *testing.T) {
	service := getBlockchainService()
	defer service.Close()

	ctx := context.Background()

	account := common.HexToAddress("0x47d6a8a65cba9b61b194dac740aa192a7a1e91e1")

	nonce, err := service.GetEntryPointNonce(ctx, 11155111, erc4337.EntryPointV07, account)
	require.NoError(t, err)
	require.NotNil(t, nonce)

	t.Logf("EntryPoint nonce for %s: %s", account.Hex(), nonce.String())
}
