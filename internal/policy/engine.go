// Package policy implements the stateless decision function every mediated
// action passes through before it reaches the outside world (spec §4.1).
package policy

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/tamalebot/tamalebot/internal/model"
)

// Engine evaluates policy decisions. It is stateless with respect to the
// decisions it makes (spec §8: for any config and any input the decision
// is deterministic) — the only mutable state is the optional per-agent
// rate limiter, which is a resource budget, not a decision input.
type Engine struct {
	cfg model.PolicyConfig

	compiledPatterns []compiledPattern
	home             string

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type compiledPattern struct {
	source string
	re     *regexp.Regexp
}

// New constructs an Engine from a policy configuration. Home is the
// process-wide home directory used to expand "~"-prefixed paths; pass ""
// to use os.UserHomeDir(). Invalid regular expressions among
// DangerousCommandPatterns are silently dropped (spec §4.1).
func New(cfg model.PolicyConfig, home string) *Engine {
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		}
	}

	e := &Engine{
		cfg:      cfg,
		home:     home,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, p := range cfg.DangerousCommandPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			continue
		}
		e.compiledPatterns = append(e.compiledPatterns, compiledPattern{source: p, re: re})
	}
	return e
}

// Evaluate makes an allow/deny decision for a proposed action. Unknown
// action types default to allow (spec §4.1).
func (e *Engine) Evaluate(actionType model.ActionType, target string) model.PolicyDecision {
	switch actionType {
	case model.ActionFileRead:
		return e.evaluateFileRead(target)
	case model.ActionFileWrite:
		return e.evaluateFileWrite(target)
	case model.ActionCommand:
		return e.evaluateCommand(target)
	case model.ActionHTTPRequest:
		return e.evaluateHost(target, e.cfg.AllowedDomains, "domain")
	case model.ActionSSHExec:
		return e.evaluateSSHExec(target)
	case model.ActionGit:
		return e.evaluateGit(target)
	case model.ActionVault, model.ActionSchedule:
		return model.PolicyDecision{Allowed: true}
	default:
		return model.PolicyDecision{Allowed: true}
	}
}

// AllowRate consumes one token from the per-agent rate limiter, when a
// request rate limit is configured. Returns true when the request may
// proceed. Absent configuration always allows (spec §3: "optional request
// rate limit").
func (e *Engine) AllowRate(agentID string) bool {
	if e.cfg.RequestsPerSecond <= 0 {
		return true
	}
	e.mu.Lock()
	l, ok := e.limiters[agentID]
	if !ok {
		burst := e.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(e.cfg.RequestsPerSecond), burst)
		e.limiters[agentID] = l
	}
	e.mu.Unlock()
	return l.Allow()
}

func (e *Engine) expandHome(path string) string {
	if strings.HasPrefix(path, "~") && e.home != "" {
		return e.home + strings.TrimPrefix(path, "~")
	}
	return path
}

func (e *Engine) evaluateFileRead(target string) model.PolicyDecision {
	expanded := e.expandHome(target)
	for _, blocked := range e.cfg.BlockedReadPaths {
		expandedBlocked := e.expandHome(blocked)
		if expanded == expandedBlocked {
			return model.PolicyDecision{Allowed: false, Reason: fmt.Sprintf("sensitive file: %s", blocked)}
		}
		if strings.HasSuffix(expandedBlocked, "/") && strings.HasPrefix(expanded, expandedBlocked) {
			return model.PolicyDecision{Allowed: false, Reason: fmt.Sprintf("sensitive directory: %s", blocked)}
		}
	}
	return model.PolicyDecision{Allowed: true}
}

func (e *Engine) evaluateFileWrite(target string) model.PolicyDecision {
	expanded := e.expandHome(target)
	for _, blocked := range e.cfg.BlockedWritePaths {
		expandedBlocked := e.expandHome(blocked)
		if strings.HasPrefix(expanded, expandedBlocked) {
			return model.PolicyDecision{Allowed: false, Reason: fmt.Sprintf("blocked write path: %s", blocked)}
		}
	}
	return model.PolicyDecision{Allowed: true}
}

func (e *Engine) evaluateCommand(command string) model.PolicyDecision {
	var matched []string
	for _, p := range e.compiledPatterns {
		if p.re.MatchString(command) {
			matched = append(matched, p.source)
		}
	}
	if len(matched) == 0 {
		return model.PolicyDecision{Allowed: true}
	}

	reasonPatterns := matched
	if len(reasonPatterns) > 2 {
		reasonPatterns = reasonPatterns[:2]
	}
	return model.PolicyDecision{
		Allowed:         false,
		Reason:          fmt.Sprintf("command matches dangerous pattern(s): %s", strings.Join(reasonPatterns, ", ")),
		MatchedPatterns: matched,
	}
}

// evaluateHost applies the shared allow-list matching rule used by
// http_request and ssh_exec (spec §4.1): empty allow-list means allow;
// otherwise the host must equal an allowed entry exactly, or end with
// "." + an allowed entry (suffix match at a label boundary).
func (e *Engine) evaluateHost(target string, allowed []string, kind string) model.PolicyDecision {
	if len(allowed) == 0 {
		return model.PolicyDecision{Allowed: true}
	}

	u, err := url.Parse(target)
	if err != nil || u.Hostname() == "" {
		return model.PolicyDecision{Allowed: false, Reason: "Invalid URL"}
	}
	host := u.Hostname()

	if hostAllowed(host, allowed) {
		return model.PolicyDecision{Allowed: true}
	}
	return model.PolicyDecision{Allowed: false, Reason: fmt.Sprintf("%s %q is not in the allowed %s list", host, host, kind)}
}

func (e *Engine) evaluateSSHExec(target string) model.PolicyDecision {
	if len(e.cfg.AllowedSSHHosts) == 0 {
		return model.PolicyDecision{Allowed: true}
	}
	host := sshHostFromTarget(target)
	if host == "" {
		return model.PolicyDecision{Allowed: false, Reason: "Invalid ssh target"}
	}
	if hostAllowed(host, e.cfg.AllowedSSHHosts) {
		return model.PolicyDecision{Allowed: true}
	}
	return model.PolicyDecision{Allowed: false, Reason: fmt.Sprintf("host %q is not in the allowed ssh host list", host)}
}

// sshHostFromTarget extracts host from a "user@host:port" target.
func sshHostFromTarget(target string) string {
	rest := target
	if i := strings.Index(rest, "@"); i >= 0 {
		rest = rest[i+1:]
	}
	if i := strings.LastIndex(rest, ":"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// hostAllowed matches host against allowed entries: exact match, or
// suffix match at a label boundary ("." + entry).
func hostAllowed(host string, allowed []string) bool {
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// evaluateGit applies the allow-list only when the target looks remote
// (contains "://", "@", or "github.com"), matching by substring
// containment (spec §4.1). target is "action  repo-or-path".
func (e *Engine) evaluateGit(target string) model.PolicyDecision {
	parts := strings.SplitN(target, " ", 2)
	repoOrPath := ""
	if len(parts) == 2 {
		repoOrPath = strings.TrimSpace(parts[1])
	}

	looksRemote := strings.Contains(repoOrPath, "://") ||
		strings.Contains(repoOrPath, "@") ||
		strings.Contains(repoOrPath, "github.com")
	if !looksRemote || len(e.cfg.AllowedRepos) == 0 {
		return model.PolicyDecision{Allowed: true}
	}

	for _, allowed := range e.cfg.AllowedRepos {
		if strings.Contains(repoOrPath, allowed) {
			return model.PolicyDecision{Allowed: true}
		}
	}
	return model.PolicyDecision{Allowed: false, Reason: fmt.Sprintf("repository %q is not in the allowed repository list", repoOrPath)}
}
