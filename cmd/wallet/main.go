package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/crypto"
)

// Generates a fresh EOA keypair for testing the delegation flow.
//
//	go run ./cmd/wallet [-out key.hex]
func main() {
	outFlag := flag.String("out", "", "optional file to save the private key to")
	flag.Parse()

	privateKey, err := crypto.GenerateKey()
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	fmt.Printf("Address:     %s\n", address.Hex())
	fmt.Printf("Private key: 0x%s\n", hex.EncodeToString(crypto.FromECDSA(privateKey)))

	if *outFlag != "" {
		if err := crypto.SaveECDSA(*outFlag, privateKey); err != nil {
			log.Fatalf("Failed to save private key: %v", err)
		}
		fmt.Printf("Saved to:    %s\n", *outFlag)
	}
}
