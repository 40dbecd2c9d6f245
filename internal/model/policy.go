package model

// ActionType enumerates the kinds of mediated action the policy engine can
// evaluate (spec §4.1).
type ActionType string

const (
	ActionFileRead     ActionType = "file_read"
	ActionFileWrite    ActionType = "file_write"
	ActionCommand      ActionType = "command"
	ActionHTTPRequest  ActionType = "http_request"
	ActionSSHExec      ActionType = "ssh_exec"
	ActionGit          ActionType = "git"
	ActionVault        ActionType = "vault"
	ActionSchedule     ActionType = "schedule"
)

// PolicyDecision is the result of evaluating one proposed action.
type PolicyDecision struct {
	Allowed         bool     `json:"allowed"`
	Reason          string   `json:"reason,omitempty"`
	MatchedPatterns []string `json:"matchedPatterns,omitempty"`
}

// PolicyConfig is the named, immutable configuration a policy Engine is
// constructed from (spec §3). Empty allow-lists mean "no restriction";
// empty block-lists mean "no block".
type PolicyConfig struct {
	Name string `json:"name"`

	BlockedReadPaths  []string `json:"blockedReadPaths,omitempty"`
	BlockedWritePaths []string `json:"blockedWritePaths,omitempty"`

	// DangerousCommandPatterns are regular expressions matched
	// case-insensitively against the full command string.
	DangerousCommandPatterns []string `json:"dangerousCommandPatterns,omitempty"`

	AllowedDomains  []string `json:"allowedDomains,omitempty"`
	AllowedSSHHosts []string `json:"allowedSshHosts,omitempty"`
	AllowedRepos    []string `json:"allowedRepos,omitempty"`

	// RequestsPerSecond and Burst configure an optional per-agent request
	// rate limit. Zero means "no limit".
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty"`
	Burst             int     `json:"burst,omitempty"`
}
