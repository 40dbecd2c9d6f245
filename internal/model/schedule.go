package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ScheduleEntry is a persisted future-work descriptor (spec §3). Firing due
// schedules is out of scope for this core; only the store/list/pause/resume
// contract is specified.
type ScheduleEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Cron      string    `json:"cron"`
	Task      string    `json:"task"`
	AgentName string    `json:"agentName"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	LastResult *string   `json:"lastResult,omitempty"`
}

// cronFieldPattern matches one field of a five-field cron expression:
// "*", "n", "*/n", "n-n", "n,n,n" and combinations thereof.
var cronFieldPattern = regexp.MustCompile(`^(\*|[0-9]+)(/[0-9]+)?(-[0-9]+)?(,[0-9]+)*$`)

// ValidateCron enforces spec §4.5's cron shape: exactly five
// whitespace-separated fields, each matching the pattern above.
func ValidateCron(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return fmt.Errorf("model: cron expression must have exactly 5 fields, got %d", len(fields))
	}
	for i, f := range fields {
		if !cronFieldPattern.MatchString(f) {
			return fmt.Errorf("model: cron field %d (%q) is not a valid pattern", i, f)
		}
	}
	return nil
}
