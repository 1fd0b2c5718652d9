// Package fingerprint derives a stable content hash of a board state.
// The save protocol uses it to skip redundant PUTs and the sync loop uses
// it to detect divergence without comparing full objects.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/corkline/corkboard/internal/domain"
)

// Sum returns the hex SHA-256 of the canonical JSON serialization of s.
// encoding/json writes struct fields in declaration order and map keys
// sorted, so equal states always hash equal.
func Sum(s *domain.BoardState) string {
	if s == nil {
		return ""
	}
	data, err := json.Marshal(s)
	if err != nil {
		// BoardState contains only marshalable types; this is unreachable
		// short of memory corruption.
		return ""
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
