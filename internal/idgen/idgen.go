// Package idgen generates record identifiers.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// Prefixes for the record kinds the server stores.
const (
	PrefixWallet      = "wal_"
	PrefixTransaction = "tx_"
	PrefixRecipe      = "rcp_"
	PrefixStep        = "step_"
	PrefixRequest     = "req_"
)

// New generates a random (version 4) UUID string.
func New() string {
	return uuid.NewString()
}

// WithPrefix generates a random ID with a prefix (e.g. "wal_", "tx_").
// Result is prefix + 24 hex chars.
func WithPrefix(prefix string) string {
	return prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}

// HasPrefix reports whether id was generated with prefix.
func HasPrefix(id, prefix string) bool {
	return strings.HasPrefix(id, prefix) && len(id) == len(prefix)+24
}
