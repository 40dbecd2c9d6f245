package integrity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/storage"
)

const checkpointKeyPrefix = "integrity/checkpoints/"

// Checkpointer commits the audit journal's entries into a chained sequence
// of checkpoints, persisted to a storage backend, each time Checkpoint is
// called. It is
// entirely optional: nothing in internal/audit or internal/tools depends
// on it.
type Checkpointer struct {
	Journal *audit.Journal
	Storage storage.Backend
	AgentID string
}

// New constructs a Checkpointer over journal, persisting checkpoints
// under backend.
func New(journal *audit.Journal, backend storage.Backend, agentID string) *Checkpointer {
	return &Checkpointer{Journal: journal, Storage: backend, AgentID: agentID}
}

// Checkpoint reads every entry currently in the journal for AgentID,
// commits a new checkpoint chained onto the most recent one on record,
// and persists it. Returns the new checkpoint.
func (c *Checkpointer) Checkpoint(ctx context.Context) (Checkpoint, error) {
	entries, err := c.Journal.GetEntries(model.AuditFilter{AgentID: c.AgentID})
	if err != nil {
		return Checkpoint{}, fmt.Errorf("integrity: read journal: %w", err)
	}
	if len(entries) == 0 {
		return Checkpoint{}, nil
	}

	prev, err := c.latest(ctx)
	if err != nil {
		return Checkpoint{}, err
	}

	cp := BuildBatchRoot(entries, prev.BatchRoot)

	data, err := json.Marshal(cp)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("integrity: marshal checkpoint: %w", err)
	}
	key := checkpointKeyPrefix + c.AgentID + "/" + cp.LastEntryID + ".json"
	if err := c.Storage.Put(ctx, key, data); err != nil {
		return Checkpoint{}, fmt.Errorf("integrity: persist checkpoint: %w", err)
	}

	return cp, nil
}

// latest returns the most recently persisted checkpoint for AgentID, or
// the zero Checkpoint if none exists yet.
func (c *Checkpointer) latest(ctx context.Context) (Checkpoint, error) {
	keys, err := c.Storage.List(ctx, checkpointKeyPrefix+c.AgentID+"/")
	if err != nil {
		return Checkpoint{}, fmt.Errorf("integrity: list checkpoints: %w", err)
	}
	if len(keys) == 0 {
		return Checkpoint{}, nil
	}

	// Keys are suffixed by entry ID, not a sequence number; without a
	// monotonic index the newest checkpoint is found by comparing
	// CreatedAt across all persisted checkpoints.
	var newest Checkpoint
	for _, key := range keys {
		data, err := c.Storage.Get(ctx, key)
		if err != nil || data == nil {
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		if cp.CreatedAt.After(newest.CreatedAt) {
			newest = cp
		}
	}
	return newest, nil
}
