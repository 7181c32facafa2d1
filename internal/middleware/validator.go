package middleware

import (
	"fmt"
	"strings"

	"github.com/bryanwahyu/solidity-sentinel/internal/domain/contracts"
)

// Input validation and sanitization utilities

// ValidateContractCode applies cheap sanity checks before any AI call:
// non-empty, under the size cap, and plausibly Solidity.
func ValidateContractCode(code string, maxSizeKB int) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("contract code cannot be empty")
	}
	if maxSizeKB > 0 && len(code) > maxSizeKB*1024 {
		return fmt.Errorf("contract code exceeds %d KB limit", maxSizeKB)
	}
	lower := strings.ToLower(code)
	if !strings.Contains(lower, "pragma solidity") && !strings.Contains(lower, "contract ") {
		return fmt.Errorf("input does not look like Solidity source")
	}
	return nil
}

// ValidateNetwork checks the network against the supported list
func ValidateNetwork(network string) error {
	if network == "" {
		return nil // defaulted by the caller
	}
	if !contracts.ValidNetwork(strings.ToLower(network)) {
		return fmt.Errorf("unsupported network: %s (allowed: polygon, ethereum, arbitrum, optimism, base)", network)
	}
	return nil
}

// ValidateContractName bounds the display name
func ValidateContractName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("contract name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("contract name exceeds 255 characters")
	}
	return nil
}
