package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethaccount/delegation-demo/erc20"
	"github.com/ethaccount/delegation-demo/erc4337"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type BlockchainConfig struct {
	SepoliaRPCURL         string
	ArbitrumSepoliaRPCURL string
	BaseSepoliaRPCURL     string
	OptimismSepoliaRPCURL string
	BundlerRPCURL         string
	BundlerAPIKey         string
}

// ChainClient is the subset of ethclient.Client the services read from.
type ChainClient interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type BlockchainService struct {
	config     BlockchainConfig
	clientPool map[int64]*ethclient.Client
	mu         sync.RWMutex
}

func NewBlockchainService(config BlockchainConfig) *BlockchainService {
	return &BlockchainService{
		config:     config,
		clientPool: make(map[int64]*ethclient.Client),
	}
}

// logger wraps the execution context with component info
func (b *BlockchainService) logger(ctx context.Context) *zerolog.Logger {
	l := zerolog.Ctx(ctx).With().Str("service", "blockchain").Logger()
	return &l
}

func (b *BlockchainService) GetClient(chainId int64) (*ethclient.Client, error) {
	b.mu.RLock()
	if client, exists := b.clientPool[chainId]; exists {
		b.mu.RUnlock()
		return client, nil
	}
	b.mu.RUnlock()

	b.mu.Lock()
	defer b.mu.Unlock()

	// Double-check pattern
	if client, exists := b.clientPool[chainId]; exists {
		return client, nil
	}

	rpcUrl, err := b.getRPCURL(chainId)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.Dial(rpcUrl)
	if err != nil {
		return nil, err
	}

	if b.clientPool == nil {
		b.clientPool = make(map[int64]*ethclient.Client)
	}
	b.clientPool[chainId] = client

	return client, nil
}

func (b *BlockchainService) getRPCURL(chainId int64) (string, error) {
	switch chainId {
	case 11155111:
		return b.config.SepoliaRPCURL, nil
	case 421614:
		return b.config.ArbitrumSepoliaRPCURL, nil
	case 84532:
		return b.config.BaseSepoliaRPCURL, nil
	case 11155420:
		return b.config.OptimismSepoliaRPCURL, nil
	default:
		return "", fmt.Errorf("unsupported chain id: %d", chainId)
	}
}

// Close closes all client connections and cleans up the connection pool
func (b *BlockchainService) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, client := range b.clientPool {
		client.Close()
	}
	b.clientPool = nil
}

// GetBundlerURL returns the bundler URL for a given chain ID. An explicit
// BUNDLER_RPC_URL wins; otherwise the URL is derived from the Pimlico API
// key.
func (b *BlockchainService) GetBundlerURL(chainId int64) (string, error) {
	if b.config.BundlerRPCURL != "" {
		return b.config.BundlerRPCURL, nil
	}
	if b.config.BundlerAPIKey != "" {
		return fmt.Sprintf("https://api.pimlico.io/v2/%d/rpc?apikey=%s", chainId, b.config.BundlerAPIKey), nil
	}
	return "", fmt.Errorf("no bundler endpoint configured for chain %d", chainId)
}

// GetBundlerClient returns a bundler client for a given chain ID
func (b *BlockchainService) GetBundlerClient(ctx context.Context, chainId int64) (erc4337.Bundler, error) {
	bundlerURL, err := b.GetBundlerURL(chainId)
	if err != nil {
		b.logger(ctx).Error().Err(err).
			Int64("chain_id", chainId).
			Msg("failed to get bundler URL")
		return nil, err
	}

	bundlerClient, err := erc4337.DialContext(ctx, bundlerURL)
	if err != nil {
		b.logger(ctx).Error().Err(err).
			Int64("chain_id", chainId).
			Msg("failed to create bundler client")
		return nil, fmt.Errorf("failed to create bundler client for chain %d: %w", chainId, err)
	}

	return bundlerClient, nil
}

// IsDeployed reports whether the account has code at the latest block. An
// EOA delegated via a set-code transaction has its designator bytecode and
// counts as deployed.
func (b *BlockchainService) IsDeployed(ctx context.Context, chainId int64, account common.Address) (bool, error) {
	client, err := b.GetClient(chainId)
	if err != nil {
		return false, err
	}
	return IsDeployed(ctx, client, account)
}

// IsDeployed checks code presence through any chain client.
func IsDeployed(ctx context.Context, client ChainClient, account common.Address) (bool, error) {
	code, err := client.CodeAt(ctx, account, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get code at %s: %w", account.Hex(), err)
	}
	return len(code) > 0, nil
}

// GetTransactionNonce returns the account's chain-level transaction nonce.
// This is the nonce an EIP-7702 authorization must be signed with.
func (b *BlockchainService) GetTransactionNonce(ctx context.Context, chainId int64, account common.Address) (uint64, error) {
	client, err := b.GetClient(chainId)
	if err != nil {
		return 0, err
	}
	nonce, err := client.NonceAt(ctx, account, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction nonce for %s: %w", account.Hex(), err)
	}
	return nonce, nil
}

// GetEntryPointNonce reads the account's 4337 nonce from the EntryPoint
// getNonce(address,uint192) view. This nonce goes into the user operation
// and must never be used for the authorization.
func (b *BlockchainService) GetEntryPointNonce(ctx context.Context, chainId int64, entryPoint, account common.Address) (*big.Int, error) {
	client, err := b.GetClient(chainId)
	if err != nil {
		return nil, err
	}
	return GetEntryPointNonce(ctx, client, entryPoint, account)
}

// GetEntryPointNonce reads the 4337 nonce through any chain client.
func GetEntryPointNonce(ctx context.Context, client ChainClient, entryPoint, account common.Address) (*big.Int, error) {
	// getNonce(address,uint192) selector
	calldata := make([]byte, 4+32+32)
	copy(calldata[:4], common.Hex2Bytes("35567e1a"))
	copy(calldata[4+12:4+32], account.Bytes())

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &entryPoint,
		Data: calldata,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getNonce on entry point: %w", err)
	}
	if len(result) != 32 {
		return nil, fmt.Errorf("unexpected getNonce result length: %d", len(result))
	}
	return new(big.Int).SetBytes(result), nil
}

// TokenBalance is one owner's balance of a token.
type TokenBalance struct {
	Owner   common.Address `json:"owner"`
	Balance *big.Int       `json:"balance"`
}

// GetTokenBalance reads a single ERC-20 balance.
func (b *BlockchainService) GetTokenBalance(ctx context.Context, chainId int64, token, owner common.Address) (*big.Int, error) {
	client, err := b.GetClient(chainId)
	if err != nil {
		return nil, err
	}

	calldata, err := erc20.PackBalanceOf(owner)
	if err != nil {
		return nil, err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: calldata,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf for %s: %w", owner.Hex(), err)
	}

	return erc20.UnpackBalanceOf(result)
}

// GetTokenBalances reads balances for several owners concurrently. Result
// order matches the input order.
func (b *BlockchainService) GetTokenBalances(ctx context.Context, chainId int64, token common.Address, owners []common.Address) ([]TokenBalance, error) {
	balances := make([]TokenBalance, len(owners))

	g, gctx := errgroup.WithContext(ctx)
	for i, owner := range owners {
		g.Go(func() error {
			balance, err := b.GetTokenBalance(gctx, chainId, token, owner)
			if err != nil {
				return err
			}
			balances[i] = TokenBalance{Owner: owner, Balance: balance}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	b.logger(ctx).Debug().
		Int64("chain_id", chainId).
		Str("token", token.Hex()).
		Int("owner_count", len(owners)).
		Msg("fetched token balances")

	return balances, nil
}

// GetTokenDecimals reads the token's decimals.
func (b *BlockchainService) GetTokenDecimals(ctx context.Context, chainId int64, token common.Address) (uint8, error) {
	client, err := b.GetClient(chainId)
	if err != nil {
		return 0, err
	}

	calldata, err := erc20.PackDecimals()
	if err != nil {
		return 0, err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: calldata,
	}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to call decimals on %s: %w", token.Hex(), err)
	}

	return erc20.UnpackDecimals(result)
}

func (b *BlockchainService) GetTokenSymbol(ctx context.Context, chainId int64, token common.Address) (string, error) {
	client, err := b.GetClient(chainId)
	if err != nil {
		return "", err
	}

	calldata, err := erc20.PackSymbol()
	if err != nil {
		return "", err
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: calldata,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to call symbol on %s: %w", token.Hex(), err)
	}

	return erc20.UnpackSymbol(result)
}
