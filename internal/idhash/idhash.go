// Package idhash computes deterministic identifiers.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-sniper/internal/domain"
)

// ComputeCandidateID computes a deterministic candidate id using SHA256.
// Formula: SHA256(network|address)
// Returns hex-encoded hash (64 characters).
func ComputeCandidateID(network domain.Network, address string) string {
	return sum(fmt.Sprintf("%s|%s", network, address))
}

// ComputePositionID computes a deterministic position id.
// Formula: SHA256(candidate_id|opened_at)
func ComputePositionID(candidateID string, openedAt int64) string {
	return sum(fmt.Sprintf("%s|%d", candidateID, openedAt))
}

// ComputeFillID computes a deterministic fill id.
// Formula: SHA256(position_id|side|reason|executed_at)
func ComputeFillID(positionID string, side domain.Side, reason string, executedAt int64) string {
	return sum(fmt.Sprintf("%s|%s|%s|%d", positionID, side, reason, executedAt))
}

// ComputeOrderID computes a deterministic client order id for one exit of a
// position. Formula: SHA256(position_id|side|reason)
func ComputeOrderID(positionID string, side domain.Side, reason string) string {
	return sum(fmt.Sprintf("%s|%s|%s", positionID, side, reason))
}

func sum(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
