package ir

import (
	"crypto/sha256"
	"encoding/hex"
)

// Domain prefixes for trace fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainLoop   = "tracejit/loop/v1"
	DomainBridge = "tracejit/bridge/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// LoopFingerprint identifies a loop trace by the hash of its canonical
// text. Box identity and display names do not contribute.
func LoopFingerprint(inputs []*Box, ops []*ResOp) string {
	return hashWithDomain(DomainLoop, []byte(CanonicalText(inputs, ops)))
}

// BridgeFingerprint identifies a bridge trace. A bridge and a loop with
// the same text never share a fingerprint.
func BridgeFingerprint(inputs []*Box, ops []*ResOp) string {
	return hashWithDomain(DomainBridge, []byte(CanonicalText(inputs, ops)))
}
