package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/storage"
)

const scheduleKeyPrefix = "schedules/"

var scheduleSchema = model.ToolSchema{
	Name:        "schedule",
	Description: "Manage scheduled future work: create, list, delete, pause, resume.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action": map[string]any{"type": "string", "enum": []string{"create", "list", "delete", "pause", "resume"}},
			"id":     map[string]any{"type": "string"},
			"name":   map[string]any{"type": "string"},
			"cron":   map[string]any{"type": "string"},
			"task":   map[string]any{"type": "string"},
		},
		"required": []string{"action"},
	},
}

type scheduleInput struct {
	Action string `mapstructure:"action"`
	ID     string `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	Cron   string `mapstructure:"cron"`
	Task   string `mapstructure:"task"`
}

func scheduleKey(id string) string {
	return scheduleKeyPrefix + id + ".json"
}

func (e *Executor) execSchedule(ctx context.Context, raw map[string]any) model.ToolResult {
	var in scheduleInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return errorResult("invalid schedule arguments: %v", err)
	}
	if in.Action == "" {
		return errorResult("schedule: \"action\" is required")
	}
	if e.Storage == nil {
		return errorResult("schedule: no storage backend configured")
	}

	target := strings.TrimSpace(in.Action + " " + in.ID)

	return e.mediate(model.ActionSchedule, target, func() (string, bool) {
		switch in.Action {
		case "create":
			return e.scheduleCreate(ctx, in)
		case "list":
			return e.scheduleList(ctx)
		case "delete":
			return e.scheduleToggleOrDelete(ctx, in, scheduleDelete)
		case "pause":
			return e.scheduleToggleOrDelete(ctx, in, scheduleSetEnabled(false))
		case "resume":
			return e.scheduleToggleOrDelete(ctx, in, scheduleSetEnabled(true))
		default:
			return fmt.Sprintf("schedule: unknown action %q", in.Action), true
		}
	})
}

func (e *Executor) scheduleCreate(ctx context.Context, in scheduleInput) (string, bool) {
	if in.Name == "" || in.Cron == "" || in.Task == "" {
		return "schedule create: \"name\", \"cron\" and \"task\" are required", true
	}
	if err := model.ValidateCron(in.Cron); err != nil {
		return fmt.Sprintf("schedule create: %v", err), true
	}

	entry := model.ScheduleEntry{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Cron:      in.Cron,
		Task:      in.Task,
		AgentName: e.AgentID,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf("schedule create: failed to marshal entry: %v", err), true
	}
	if err := e.Storage.Put(ctx, scheduleKey(entry.ID), data); err != nil {
		return fmt.Sprintf("schedule create failed: %v", err), true
	}
	return fmt.Sprintf("created schedule %s (%s)", entry.ID, entry.Name), false
}

func (e *Executor) scheduleList(ctx context.Context) (string, bool) {
	keys, err := e.Storage.List(ctx, scheduleKeyPrefix)
	if err != nil {
		return fmt.Sprintf("schedule list failed: %v", err), true
	}
	if len(keys) == 0 {
		return "no schedules", false
	}

	var lines []string
	for _, key := range keys {
		data, err := e.Storage.Get(ctx, key)
		if err != nil || data == nil {
			continue
		}
		var entry model.ScheduleEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		state := "enabled"
		if !entry.Enabled {
			state = "paused"
		}
		lines = append(lines, fmt.Sprintf("%s %s [%s] cron=%q (%s)", entry.ID, entry.Name, state, entry.Cron, entry.Task))
	}
	return strings.Join(lines, "\n"), false
}

type scheduleMutator func(entry *model.ScheduleEntry) error

func scheduleDelete(_ *model.ScheduleEntry) error { return errScheduleDeleted }

func scheduleSetEnabled(enabled bool) scheduleMutator {
	return func(entry *model.ScheduleEntry) error {
		entry.Enabled = enabled
		return nil
	}
}

var errScheduleDeleted = fmt.Errorf("tamalebot: schedule deleted")

func (e *Executor) scheduleToggleOrDelete(ctx context.Context, in scheduleInput, mutate scheduleMutator) (string, bool) {
	if in.ID == "" {
		return "schedule: \"id\" is required", true
	}
	key := scheduleKey(in.ID)

	data, err := e.Storage.Get(ctx, key)
	if err != nil {
		return fmt.Sprintf("schedule: failed to read %s: %v", in.ID, err), true
	}
	if data == nil {
		return fmt.Sprintf("schedule %s not found", in.ID), true
	}

	var entry model.ScheduleEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return fmt.Sprintf("schedule %s is corrupt: %v", in.ID, err), true
	}

	if err := mutate(&entry); err != nil {
		if err == errScheduleDeleted {
			if err := e.Storage.Delete(ctx, key); err != nil {
				return fmt.Sprintf("schedule delete failed: %v", err), true
			}
			return fmt.Sprintf("deleted schedule %s", in.ID), false
		}
		return fmt.Sprintf("schedule: %v", err), true
	}

	updated, err := json.Marshal(entry)
	if err != nil {
		return fmt.Sprintf("schedule: failed to marshal %s: %v", in.ID, err), true
	}
	if err := e.Storage.Put(ctx, key, updated); err != nil {
		return fmt.Sprintf("schedule: failed to store %s: %v", in.ID, err), true
	}
	state := "paused"
	if entry.Enabled {
		state = "resumed"
	}
	return fmt.Sprintf("%s schedule %s", state, in.ID), false
}

// WatchScheduleChanges watches for schedule files edited outside the
// executor (e.g. by hand, or by another process sharing the storage
// root) and logs an audit entry for each one, so externally-edited
// schedules are still observable in the journal (SPEC_FULL.md §11). It
// only does anything when Storage is a *storage.FileBackend; other
// backends have no filesystem to watch. Blocks until ctx is cancelled.
func (e *Executor) WatchScheduleChanges(ctx context.Context) error {
	fb, ok := e.Storage.(*storage.FileBackend)
	if !ok {
		<-ctx.Done()
		return nil
	}

	changes, stop, err := fb.WatchChanges()
	if err != nil {
		return fmt.Errorf("tools: watch schedule changes: %w", err)
	}
	defer func() { _ = stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-changes:
			if !ok {
				return nil
			}
			if !strings.HasPrefix(key, scheduleKeyPrefix) {
				continue
			}
			if e.Journal != nil {
				_, _ = e.Journal.Log(e.AgentID, model.ActionSchedule, key, model.DecisionAllowed, "external edit detected", nil)
			}
		}
	}
}
