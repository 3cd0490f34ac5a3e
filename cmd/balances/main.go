package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/ethaccount/delegation-demo/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Prints ERC-20 balances for a list of owners.
//
//	go run ./cmd/balances -owners 0xabc...,0xdef...
func main() {
	ownersFlag := flag.String("owners", "", "comma-separated owner addresses")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	tokenAddressHex := os.Getenv("TOKEN_ADDRESS")
	if tokenAddressHex == "" {
		log.Fatalf("TOKEN_ADDRESS not set in environment")
	}
	token := common.HexToAddress(tokenAddressHex)

	chainId := int64(11155111)
	if v := os.Getenv("CHAIN_ID"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatalf("Invalid CHAIN_ID: %v", err)
		}
		chainId = parsed
	}

	var owners []common.Address
	for _, part := range strings.Split(*ownersFlag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !common.IsHexAddress(part) {
			log.Fatalf("Invalid owner address: %s", part)
		}
		owners = append(owners, common.HexToAddress(part))
	}
	if len(owners) == 0 {
		log.Fatalf("Usage: balances -owners <addr>[,<addr>...]")
	}

	blockchainService := service.NewBlockchainService(service.BlockchainConfig{
		SepoliaRPCURL:         getEnv("SEPOLIA_RPC_URL", "https://ethereum-sepolia-rpc.publicnode.com"),
		ArbitrumSepoliaRPCURL: getEnv("ARBITRUM_SEPOLIA_RPC_URL", "https://arbitrum-sepolia-rpc.publicnode.com"),
		BaseSepoliaRPCURL:     getEnv("BASE_SEPOLIA_RPC_URL", "https://base-sepolia-rpc.publicnode.com"),
		OptimismSepoliaRPCURL: getEnv("OPTIMISM_SEPOLIA_RPC_URL", "https://optimism-sepolia-rpc.publicnode.com"),
	})
	defer blockchainService.Close()

	ctx := context.Background()

	symbol := "?"
	if s, err := blockchainService.GetTokenSymbol(ctx, chainId, token); err == nil {
		symbol = s
	}

	balances, err := blockchainService.GetTokenBalances(ctx, chainId, token, owners)
	if err != nil {
		log.Fatalf("Failed to read token balances: %v", err)
	}

	fmt.Printf("Token %s (%s) on chain %d\n", token.Hex(), symbol, chainId)
	for _, balance := range balances {
		fmt.Printf("%s  %s\n", balance.Owner.Hex(), balance.Balance.String())
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
