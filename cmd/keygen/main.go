package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

func main() {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
		os.Exit(1)
	}
	apiKey := "rk_dev_" + hex.EncodeToString(buf)

	fmt.Printf("API Key: %s\n", apiKey)
	fmt.Println("\nAdd this to your rdmini.yaml:")
	fmt.Printf("  api_key: \"%s\"\n", apiKey)
	fmt.Printf("  collector:\n")
	fmt.Printf("    api_key: \"%s\"\n", apiKey)
	fmt.Println("\nor export it:")
	fmt.Printf("  export RAINDROP_API_KEY=%s RAINDROP_COLLECTOR__API_KEY=%s\n", apiKey, apiKey)
}
