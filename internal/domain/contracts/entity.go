package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ContractID identifier type
type ContractID string

// Network enum
type Network string

const (
	NetworkPolygon  Network = "polygon"
	NetworkEthereum Network = "ethereum"
	NetworkArbitrum Network = "arbitrum"
	NetworkOptimism Network = "optimism"
	NetworkBase     Network = "base"
)

// ValidNetwork reports whether n is a supported network.
func ValidNetwork(n string) bool {
	switch Network(n) {
	case NetworkPolygon, NetworkEthereum, NetworkArbitrum, NetworkOptimism, NetworkBase:
		return true
	}
	return false
}

// Contract is a submitted source unit. Immutable after creation; two
// submissions with identical code always resolve to the same record via
// CodeHash (content-addressed dedup).
type Contract struct {
	ID              ContractID `json:"id"`
	Name            string     `json:"name"`
	Code            string     `json:"code"`
	CodeHash        string     `json:"code_hash"`
	Network         Network    `json:"network"`
	Address         string     `json:"address,omitempty"`
	Verified        bool       `json:"verified"`
	CompilerVersion string     `json:"compiler_version,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HashCode returns the sha256 hex digest of the code text. Stable and
// deterministic; used for dedup lookups before creating a new contract.
func HashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
