// Package audit implements the append-only decision journal (spec §4.2).
//
// Entries are line-delimited JSON, one file per agent identifier. The file
// handle is opened lazily on first write with append semantics and kept
// open until Close. This is deliberately not a tamper-evident log — see
// internal/integrity for the opt-in checkpoint capability layered on top
// without changing the entry-identifier format.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tamalebot/tamalebot/internal/model"
)

// Journal is an append-only, line-delimited JSON decision log.
type Journal struct {
	dir string

	mu    sync.Mutex
	files map[string]*os.File
}

// New creates a Journal rooted at dir, creating the directory if absent.
func New(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create journal dir: %w", err)
	}
	return &Journal{dir: dir, files: make(map[string]*os.File)}, nil
}

// Log appends one entry for agentId and returns its entry ID. The entry ID
// is the first 16 hex characters of SHA-256 over
// "timestamp:actionType:target" — a content fingerprint, not a
// tamper-evident chain (spec §4.2).
func (j *Journal) Log(agentID string, actionType model.ActionType, target string, decision model.Decision, reason string, metadata map[string]any) (string, error) {
	ts := time.Now().UTC()
	entryID := computeEntryID(ts, actionType, target)

	entry := model.AuditEntry{
		Timestamp:  ts,
		EntryID:    entryID,
		AgentID:    agentID,
		ActionType: actionType,
		Target:     target,
		Decision:   decision,
		Reason:     reason,
		Metadata:   metadata,
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return "", fmt.Errorf("audit: marshal entry: %w", err)
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := j.fileForLocked(agentID)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(line); err != nil {
		return "", fmt.Errorf("audit: write entry: %w", err)
	}
	return entryID, nil
}

// GetEntries reads the entire journal file(s), filters, and returns the
// last N matching entries in insertion order. Absent files yield no
// entries for that agent.
func (j *Journal) GetEntries(filter model.AuditFilter) ([]model.AuditEntry, error) {
	agentIDs, err := j.agentIDsFor(filter.AgentID)
	if err != nil {
		return nil, err
	}

	var all []model.AuditEntry
	for _, agentID := range agentIDs {
		entries, err := j.readFile(agentID)
		if err != nil {
			return nil, err
		}
		all = append(all, entries...)
	}
	if len(agentIDs) > 1 {
		// Multiple per-agent files merged: order best-effort by timestamp
		// (spec §4.2 — ordering is best-effort by append time).
		sort.SliceStable(all, func(i, k int) bool {
			return all[i].Timestamp.Before(all[k].Timestamp)
		})
	}

	var filtered []model.AuditEntry
	for _, e := range all {
		if filter.Decision != "" && e.Decision != filter.Decision {
			continue
		}
		filtered = append(filtered, e)
	}

	if filter.Limit > 0 && len(filtered) > filter.Limit {
		filtered = filtered[len(filtered)-filter.Limit:]
	}
	return filtered, nil
}

// Close flushes and releases all open journal file handles.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	for agentID, f := range j.files {
		if err := f.Sync(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("audit: sync %s: %w", agentID, err)
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("audit: close %s: %w", agentID, err)
		}
		delete(j.files, agentID)
	}
	return firstErr
}

func (j *Journal) fileForLocked(agentID string) (*os.File, error) {
	if f, ok := j.files[agentID]; ok {
		return f, nil
	}
	f, err := os.OpenFile(j.pathFor(agentID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit: open journal file: %w", err)
	}
	j.files[agentID] = f
	return f, nil
}

func (j *Journal) pathFor(agentID string) string {
	return filepath.Join(j.dir, fmt.Sprintf("%s.jsonl", sanitizeAgentID(agentID)))
}

// sanitizeAgentID keeps the on-disk filename free of path separators
// without changing the agentId recorded inside each entry.
func sanitizeAgentID(agentID string) string {
	out := make([]rune, 0, len(agentID))
	for _, r := range agentID {
		switch r {
		case '/', '\\', '.', '\x00':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "_"
	}
	return string(out)
}

func (j *Journal) agentIDsFor(agentID string) ([]string, error) {
	if agentID != "" {
		return []string{agentID}, nil
	}
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: list journal dir: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ids = append(ids, name[:len(name)-len(filepath.Ext(name))])
	}
	return ids, nil
}

// readFile reads and parses one agent's journal file, skipping malformed
// lines rather than failing the whole read.
func (j *Journal) readFile(agentID string) ([]model.AuditEntry, error) {
	j.mu.Lock()
	// Flush any buffered writes for this agent before reading so a
	// read-back immediately after Log sees it.
	if f, ok := j.files[agentID]; ok {
		_ = f.Sync()
	}
	j.mu.Unlock()

	f, err := os.Open(j.pathFor(agentID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open journal file: %w", err)
	}
	defer f.Close()

	var entries []model.AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry model.AuditEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			continue // Malformed line: skip, per spec §4.2.
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan journal file: %w", err)
	}
	return entries, nil
}

func computeEntryID(ts time.Time, actionType model.ActionType, target string) string {
	sum := sha256.Sum256([]byte(ts.Format(time.RFC3339Nano) + ":" + string(actionType) + ":" + target))
	return hex.EncodeToString(sum[:])[:16]
}
