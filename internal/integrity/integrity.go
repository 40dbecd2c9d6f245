// Package integrity provides an opt-in, tamper-evident checkpoint layer
// on top of the audit journal. It never changes the journal's entry ID
// format (spec §9, "open question — audit integrity": the per-entry
// content hash is left as-is; this package adds chaining above it
// instead of inside it).
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tamalebot/tamalebot/internal/model"
)

// Checkpoint is a Merkle-batch commitment over a contiguous run of audit
// entries, chained to the previous checkpoint's root so that altering or
// dropping a past batch invalidates every checkpoint after it.
type Checkpoint struct {
	BatchRoot    string    `json:"batchRoot"`
	PrevRoot     string    `json:"prevRoot,omitempty"`
	EntryCount   int       `json:"entryCount"`
	FirstEntryID string    `json:"firstEntryId"`
	LastEntryID  string    `json:"lastEntryId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// leafHash produces SHA-256(0x00 || entryID) as a hex string. The 0x00
// prefix is a domain separator distinguishing leaves from internal nodes.
func leafHash(entryID string) string {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write([]byte(entryID))
	return hex.EncodeToString(h.Sum(nil))
}

// hashPair produces SHA-256(0x01 || a || b) as a hex string.
func hashPair(a, b string) string {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write([]byte(a))
	h.Write([]byte(b))
	return hex.EncodeToString(h.Sum(nil))
}

// BuildMerkleRoot constructs a Merkle tree over leaf hashes, in the given
// order, and returns the root. An odd trailing node is paired with itself.
func BuildMerkleRoot(leaves []string) string {
	if len(leaves) == 0 {
		return ""
	}
	if len(leaves) == 1 {
		return leaves[0]
	}

	level := make([]string, len(leaves))
	copy(level, leaves)

	for len(level) > 1 {
		var next []string
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, hashPair(level[i], level[i]))
			}
		}
		level = next
	}
	return level[0]
}

// BuildBatchRoot commits to entries, in the order given (journal append
// order), chained onto prevRoot. Empty entries produce an empty
// Checkpoint's zero value (BatchRoot == "").
func BuildBatchRoot(entries []model.AuditEntry, prevRoot string) Checkpoint {
	if len(entries) == 0 {
		return Checkpoint{}
	}

	leaves := make([]string, len(entries))
	for i, e := range entries {
		leaves[i] = leafHash(e.EntryID)
	}

	root := BuildMerkleRoot(leaves)
	if prevRoot != "" {
		root = hashPair(prevRoot, root)
	}

	return Checkpoint{
		BatchRoot:    root,
		PrevRoot:     prevRoot,
		EntryCount:   len(entries),
		FirstEntryID: entries[0].EntryID,
		LastEntryID:  entries[len(entries)-1].EntryID,
		CreatedAt:    time.Now().UTC(),
	}
}

// VerifyChain recomputes each checkpoint's batch root from its
// corresponding entry slice and confirms the prevRoot chain is unbroken.
// entryBatches must align positionally with checkpoints.
func VerifyChain(checkpoints []Checkpoint, entryBatches [][]model.AuditEntry) error {
	if len(checkpoints) != len(entryBatches) {
		return fmt.Errorf("integrity: checkpoint/batch count mismatch: %d vs %d", len(checkpoints), len(entryBatches))
	}

	prevRoot := ""
	for i, cp := range checkpoints {
		recomputed := BuildBatchRoot(entryBatches[i], prevRoot)
		if recomputed.BatchRoot != cp.BatchRoot {
			return fmt.Errorf("integrity: checkpoint %d root mismatch", i)
		}
		prevRoot = cp.BatchRoot
	}
	return nil
}
