package main

import (
	"context"
	"flag"
	"log"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/ethaccount/delegation-demo/erc20"
	"github.com/ethaccount/delegation-demo/src/app"
	"github.com/ethaccount/delegation-demo/src/domain"
	"github.com/ethaccount/delegation-demo/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// One-shot demo: send one or more ERC-20 transfers from the delegated EOA
// as a single user operation and wait for the receipt.
//
//	go run ./cmd/dispatch -to 0xabc...,0xdef... -amount 1.5,2
func main() {
	var (
		toFlag     = flag.String("to", "", "comma-separated recipient addresses")
		amountFlag = flag.String("amount", "", "comma-separated token amounts, one per recipient")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	logger := app.InitLogger(getEnv("LOG_LEVEL", "info"))
	ctx := logger.WithContext(context.Background())

	tokenAddressHex := os.Getenv("TOKEN_ADDRESS")
	if tokenAddressHex == "" {
		log.Fatalf("TOKEN_ADDRESS not set in environment")
	}
	token := common.HexToAddress(tokenAddressHex)

	privateKey := os.Getenv("PRIVATE_KEY")
	if privateKey == "" {
		log.Fatalf("PRIVATE_KEY not set in environment")
	}

	chainId := int64(11155111)
	if v := os.Getenv("CHAIN_ID"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatalf("Invalid CHAIN_ID: %v", err)
		}
		chainId = parsed
	}

	recipients := splitList(*toFlag)
	amounts := splitList(*amountFlag)
	if len(recipients) == 0 || len(recipients) != len(amounts) {
		log.Fatalf("Usage: dispatch -to <addr>[,<addr>...] -amount <amount>[,<amount>...]")
	}

	blockchainService := service.NewBlockchainService(service.BlockchainConfig{
		SepoliaRPCURL:         getEnv("SEPOLIA_RPC_URL", "https://ethereum-sepolia-rpc.publicnode.com"),
		ArbitrumSepoliaRPCURL: getEnv("ARBITRUM_SEPOLIA_RPC_URL", "https://arbitrum-sepolia-rpc.publicnode.com"),
		BaseSepoliaRPCURL:     getEnv("BASE_SEPOLIA_RPC_URL", "https://base-sepolia-rpc.publicnode.com"),
		OptimismSepoliaRPCURL: getEnv("OPTIMISM_SEPOLIA_RPC_URL", "https://optimism-sepolia-rpc.publicnode.com"),
		BundlerRPCURL:         os.Getenv("BUNDLER_RPC_URL"),
		BundlerAPIKey:         os.Getenv("BUNDLER_API_KEY"),
	})
	defer blockchainService.Close()

	signer, err := service.NewSignerService(privateKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create signer")
	}

	client, err := blockchainService.GetClient(chainId)
	if err != nil {
		logger.Fatal().Err(err).Int64("chain_id", chainId).Msg("Failed to connect to chain")
	}

	bundler, err := blockchainService.GetBundlerClient(ctx, chainId)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to bundler")
	}

	dispatcher, err := service.NewDispatcherService(client, bundler, signer, service.DispatcherConfig{
		ChainID: big.NewInt(chainId),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create dispatcher")
	}

	decimals, err := blockchainService.GetTokenDecimals(ctx, chainId, token)
	if err != nil {
		logger.Fatal().Err(err).Str("token", token.Hex()).Msg("Failed to read token decimals")
	}

	logger.Info().
		Str("account", signer.Address().Hex()).
		Str("token", token.Hex()).
		Int64("chain_id", chainId).
		Msg("Dispatching transfers")

	// Build one transfer call per recipient, order preserved
	calls := make([]domain.Call, 0, len(recipients))
	owners := []common.Address{signer.Address()}
	for i, recipient := range recipients {
		if !common.IsHexAddress(recipient) {
			logger.Fatal().Str("to", recipient).Msg("Invalid recipient address")
		}
		to := common.HexToAddress(recipient)

		amount, err := decimal.NewFromString(amounts[i])
		if err != nil {
			logger.Fatal().Err(err).Str("amount", amounts[i]).Msg("Invalid amount")
		}
		units := amount.Shift(int32(decimals))
		if !units.IsInteger() || units.Sign() <= 0 {
			logger.Fatal().Str("amount", amounts[i]).Msg("Amount must be positive and fit the token decimals")
		}

		data, err := erc20.PackTransfer(to, units.BigInt())
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to encode transfer")
		}

		calls = append(calls, domain.Call{To: token, Data: hexutil.Bytes(data)})
		owners = append(owners, to)
	}

	printBalances(ctx, blockchainService, chainId, token, owners, "Balances before")

	result, err := dispatcher.Dispatch(ctx, calls)
	if err != nil {
		logger.Fatal().Err(err).Str("error_name", domain.ErrorName(err)).Msg("Dispatch failed")
	}

	logger.Info().
		Str("user_op_hash", result.UserOpHash.Hex()).
		Str("tx_hash", result.TxHash.Hex()).
		Bool("authorization_attached", result.AuthorizationAttached).
		Str("gas_used", result.GasUsed.String()).
		Str("block_number", result.BlockNumber.String()).
		Msg("Transfers confirmed")

	printBalances(ctx, blockchainService, chainId, token, owners, "Balances after")
}

func printBalances(ctx context.Context, blockchainService *service.BlockchainService, chainId int64, token common.Address, owners []common.Address, msg string) {
	logger := zerolog.Ctx(ctx)

	balances, err := blockchainService.GetTokenBalances(ctx, chainId, token, owners)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to read token balances")
		return
	}

	for _, balance := range balances {
		logger.Info().
			Str("owner", balance.Owner.Hex()).
			Str("balance", balance.Balance.String()).
			Msg(msg)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
