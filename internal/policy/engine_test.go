package policy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tamalebot/tamalebot/internal/model"
)

func TestEvaluateCommandDeniesDangerousPrefix(t *testing.T) {
	e := New(model.PolicyConfig{
		DangerousCommandPatterns: []string{`rm\s+-rf\s+/`},
	}, "")

	// False-positive cost is accepted by design: this command operates on a
	// workspace subdirectory but still matches the "rm -rf /" prefix pattern.
	d := e.Evaluate(model.ActionCommand, "rm -rf /tmp/workspace/old_files")
	require.False(t, d.Allowed)
	require.Contains(t, d.MatchedPatterns, `rm\s+-rf\s+/`)
}

func TestEvaluateCommandAllowsSafeCommand(t *testing.T) {
	e := New(model.PolicyConfig{DangerousCommandPatterns: []string{`rm\s+-rf\s+/`}}, "")
	d := e.Evaluate(model.ActionCommand, "echo hello")
	require.True(t, d.Allowed)
}

func TestEvaluateCommandDropsInvalidPatterns(t *testing.T) {
	e := New(model.PolicyConfig{DangerousCommandPatterns: []string{"(unterminated"}}, "")
	require.Empty(t, e.compiledPatterns)
	d := e.Evaluate(model.ActionCommand, "anything")
	require.True(t, d.Allowed)
}

func TestEvaluateFileReadDeniesExactBlockedFile(t *testing.T) {
	e := New(model.PolicyConfig{BlockedReadPaths: []string{"/etc/shadow"}}, "")
	d := e.Evaluate(model.ActionFileRead, "/etc/shadow")
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "sensitive file")
}

func TestEvaluateFileReadDeniesBlockedDirectory(t *testing.T) {
	e := New(model.PolicyConfig{BlockedReadPaths: []string{"/etc/ssh/"}}, "")
	d := e.Evaluate(model.ActionFileRead, "/etc/ssh/sshd_config")
	require.False(t, d.Allowed)
	require.Contains(t, d.Reason, "sensitive directory")
}

func TestEvaluateFileReadExpandsHome(t *testing.T) {
	e := New(model.PolicyConfig{BlockedReadPaths: []string{"~/.ssh/id_rsa"}}, "/home/agent")
	d := e.Evaluate(model.ActionFileRead, "~/.ssh/id_rsa")
	require.False(t, d.Allowed)
}

func TestEvaluateFileWriteDeniesBlockedPrefix(t *testing.T) {
	e := New(model.PolicyConfig{BlockedWritePaths: []string{"/etc"}}, "")
	d := e.Evaluate(model.ActionFileWrite, "/etc/passwd")
	require.False(t, d.Allowed)
}

func TestEvaluateHTTPRequestAllowListDenyAndAllow(t *testing.T) {
	e := New(model.PolicyConfig{AllowedDomains: []string{"api.anthropic.com", "api.openai.com"}}, "")

	denied := e.Evaluate(model.ActionHTTPRequest, "https://evil.com/exfil")
	require.False(t, denied.Allowed)
	require.Contains(t, denied.Reason, "evil.com")

	allowed := e.Evaluate(model.ActionHTTPRequest, "https://api.anthropic.com/v1/messages")
	require.True(t, allowed.Allowed)
}

func TestEvaluateHTTPRequestEmptyAllowListAllowsAll(t *testing.T) {
	e := New(model.PolicyConfig{}, "")
	d := e.Evaluate(model.ActionHTTPRequest, "https://anything.example/path")
	require.True(t, d.Allowed)
}

func TestEvaluateHTTPRequestInvalidURLDenied(t *testing.T) {
	e := New(model.PolicyConfig{AllowedDomains: []string{"example.com"}}, "")
	d := e.Evaluate(model.ActionHTTPRequest, "://not-a-url")
	require.False(t, d.Allowed)
	require.Equal(t, "Invalid URL", d.Reason)
}

func TestEvaluateHTTPRequestSuffixMatch(t *testing.T) {
	e := New(model.PolicyConfig{AllowedDomains: []string{"anthropic.com"}}, "")
	d := e.Evaluate(model.ActionHTTPRequest, "https://api.anthropic.com/v1")
	require.True(t, d.Allowed)
}

func TestEvaluateSSHExecHostMatching(t *testing.T) {
	e := New(model.PolicyConfig{AllowedSSHHosts: []string{"prod.example.com"}}, "")

	allowed := e.Evaluate(model.ActionSSHExec, "root@prod.example.com:22")
	require.True(t, allowed.Allowed)

	denied := e.Evaluate(model.ActionSSHExec, "root@evil.example.org:22")
	require.False(t, denied.Allowed)
}

func TestEvaluateGitAppliesAllowListOnlyForRemote(t *testing.T) {
	e := New(model.PolicyConfig{AllowedRepos: []string{"myorg/"}}, "")

	local := e.Evaluate(model.ActionGit, "status /workspace/repo")
	require.True(t, local.Allowed)

	remoteAllowed := e.Evaluate(model.ActionGit, "clone git@github.com:myorg/repo.git")
	require.True(t, remoteAllowed.Allowed)

	remoteDenied := e.Evaluate(model.ActionGit, "clone git@github.com:other/repo.git")
	require.False(t, remoteDenied.Allowed)
}

func TestEvaluateVaultAndScheduleAlwaysAllow(t *testing.T) {
	e := New(model.PolicyConfig{}, "")
	require.True(t, e.Evaluate(model.ActionVault, "anything").Allowed)
	require.True(t, e.Evaluate(model.ActionSchedule, "anything").Allowed)
}

func TestEvaluateUnknownActionTypeDefaultsAllow(t *testing.T) {
	e := New(model.PolicyConfig{}, "")
	d := e.Evaluate(model.ActionType("unknown"), "anything")
	require.True(t, d.Allowed)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := New(model.PolicyConfig{BlockedWritePaths: []string{"/etc"}}, "")
	for i := 0; i < 10; i++ {
		d := e.Evaluate(model.ActionFileWrite, "/etc/passwd")
		require.False(t, d.Allowed)
	}
}

func TestAllowRateWithoutConfigAlwaysAllows(t *testing.T) {
	e := New(model.PolicyConfig{}, "")
	for i := 0; i < 100; i++ {
		require.True(t, e.AllowRate("agent-1"))
	}
}

func TestAllowRateEnforcesBurst(t *testing.T) {
	e := New(model.PolicyConfig{RequestsPerSecond: 1, Burst: 2}, "")
	require.True(t, e.AllowRate("agent-1"))
	require.True(t, e.AllowRate("agent-1"))
	require.False(t, e.AllowRate("agent-1"))
}

func TestCommandReasonCapsAtTwoPatterns(t *testing.T) {
	e := New(model.PolicyConfig{DangerousCommandPatterns: []string{"rm", "curl", "wget"}}, "")
	d := e.Evaluate(model.ActionCommand, "rm curl wget")
	require.False(t, d.Allowed)
	require.Len(t, d.MatchedPatterns, 3)
	require.Equal(t, 2, strings.Count(d.Reason, ",")+1)
}
