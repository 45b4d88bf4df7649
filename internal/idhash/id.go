// Package idhash generates record identifiers.
package idhash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NewID returns a random 32-character hex identifier for orders, positions
// and strategies.
func NewID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("idhash: read random: %v", err))
	}
	return hex.EncodeToString(b[:])
}

// ComputeOrderID computes a deterministic order_id using SHA256.
// Formula: SHA256(owner_id|symbol|side|fill_time_ns)
// Used by the backtest path so replays produce stable IDs.
func ComputeOrderID(ownerID, symbol, side string, fillTimeNs int64) string {
	data := fmt.Sprintf("%s|%s|%s|%d", ownerID, symbol, side, fillTimeNs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
