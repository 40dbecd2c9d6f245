package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/mitchellh/mapstructure"
	"golang.org/x/crypto/ssh"

	"github.com/tamalebot/tamalebot/internal/model"
)

var gitSchema = model.ToolSchema{
	Name:        "git",
	Description: "Operate on a git repository: clone, pull, push, status, diff, commit, log, checkout.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":   map[string]any{"type": "string", "enum": []string{"clone", "pull", "push", "status", "diff", "commit", "log", "checkout"}},
			"repo":     map[string]any{"type": "string"},
			"url":      map[string]any{"type": "string"},
			"branch":   map[string]any{"type": "string"},
			"message":  map[string]any{"type": "string"},
			"key_name": map[string]any{"type": "string"},
		},
		"required": []string{"action"},
	},
}

type gitInput struct {
	Action  string `mapstructure:"action"`
	Repo    string `mapstructure:"repo"`
	URL     string `mapstructure:"url"`
	Branch  string `mapstructure:"branch"`
	Message string `mapstructure:"message"`
	KeyName string `mapstructure:"key_name"`
}

// execGit mediates git operations. For clone/pull/push, if a vault is
// available, a deploy key is materialized identically to ssh_exec and
// used as the transport auth (spec §4.5, "git").
func (e *Executor) execGit(ctx context.Context, raw map[string]any) model.ToolResult {
	var in gitInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return errorResult("invalid git arguments: %v", err)
	}
	if in.Action == "" {
		return errorResult("git: \"action\" is required")
	}
	if in.Repo == "" {
		in.Repo = e.WorkDir
	}

	repoOrPath := in.Repo
	if in.URL != "" {
		repoOrPath = in.URL
	}
	target := in.Action + " " + repoOrPath

	return e.mediate(model.ActionGit, target, func() (string, bool) {
		return e.runGit(ctx, in)
	})
}

func (e *Executor) runGit(ctx context.Context, in gitInput) (string, bool) {
	switch in.Action {
	case "clone":
		return e.gitClone(ctx, in)
	case "pull":
		return e.gitPull(ctx, in)
	case "push":
		return e.gitPush(ctx, in)
	case "status":
		return e.gitStatus(in)
	case "diff":
		return e.gitDiff(in)
	case "commit":
		return e.gitCommit(in)
	case "log":
		return e.gitLog(in)
	case "checkout":
		return e.gitCheckout(in)
	default:
		return fmt.Sprintf("git: unknown action %q", in.Action), true
	}
}

// deployKeyAuth materializes the named vault credential to a temporary,
// owner-only file and returns a go-git transport auth method backed by it,
// unlinking the file on every exit path (spec §4.5).
func (e *Executor) deployKeyAuth(keyName string) (transport.AuthMethod, func(), error) {
	if e.Vault == nil || keyName == "" {
		return nil, func() {}, nil
	}

	cred, err := e.Vault.Get(keyName)
	if err != nil {
		return nil, func() {}, fmt.Errorf("load deploy key %q: %w", keyName, err)
	}
	if cred == nil {
		return nil, func() {}, fmt.Errorf("deploy key %q not found in vault", keyName)
	}

	keyFile, err := os.CreateTemp("", "tamalebot-deploykey-*")
	if err != nil {
		return nil, func() {}, fmt.Errorf("create temporary deploy key file: %w", err)
	}
	cleanup := func() { os.Remove(keyFile.Name()) }

	if err := keyFile.Chmod(0o600); err != nil {
		keyFile.Close()
		cleanup()
		return nil, func() {}, fmt.Errorf("secure temporary deploy key file: %w", err)
	}
	if _, err := keyFile.WriteString(cred.Value); err != nil {
		keyFile.Close()
		cleanup()
		return nil, func() {}, fmt.Errorf("write temporary deploy key file: %w", err)
	}
	keyFile.Close()

	auth, err := gitssh.NewPublicKeysFromFile("git", keyFile.Name(), "")
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("load deploy key %q: %w", keyName, err)
	}
	auth.HostKeyCallback = ssh.InsecureIgnoreHostKey()

	return auth, cleanup, nil
}

func (e *Executor) gitClone(ctx context.Context, in gitInput) (string, bool) {
	if in.URL == "" {
		return "git clone: \"url\" is required", true
	}
	auth, cleanup, err := e.deployKeyAuth(in.KeyName)
	if err != nil {
		return err.Error(), true
	}
	defer cleanup()

	_, err = git.PlainCloneContext(ctx, in.Repo, false, &git.CloneOptions{URL: in.URL, Auth: auth})
	if err != nil {
		return fmt.Sprintf("git clone failed: %v", err), true
	}
	return fmt.Sprintf("cloned %s into %s", in.URL, in.Repo), false
}

func (e *Executor) gitPull(ctx context.Context, in gitInput) (string, bool) {
	repo, err := git.PlainOpen(in.Repo)
	if err != nil {
		return fmt.Sprintf("git pull: failed to open %s: %v", in.Repo, err), true
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Sprintf("git pull: failed to get worktree: %v", err), true
	}
	auth, cleanup, err := e.deployKeyAuth(in.KeyName)
	if err != nil {
		return err.Error(), true
	}
	defer cleanup()

	err = wt.PullContext(ctx, &git.PullOptions{RemoteName: "origin", Auth: auth})
	if err != nil {
		if err == git.NoErrAlreadyUpToDate {
			return "already up to date", false
		}
		return fmt.Sprintf("git pull failed: %v", err), true
	}
	return "pulled latest changes", false
}

func (e *Executor) gitPush(ctx context.Context, in gitInput) (string, bool) {
	repo, err := git.PlainOpen(in.Repo)
	if err != nil {
		return fmt.Sprintf("git push: failed to open %s: %v", in.Repo, err), true
	}
	auth, cleanup, err := e.deployKeyAuth(in.KeyName)
	if err != nil {
		return err.Error(), true
	}
	defer cleanup()

	if err := repo.PushContext(ctx, &git.PushOptions{Auth: auth}); err != nil {
		if err == git.NoErrAlreadyUpToDate {
			return "already up to date", false
		}
		return fmt.Sprintf("git push failed: %v", err), true
	}
	return "pushed changes", false
}

func (e *Executor) gitStatus(in gitInput) (string, bool) {
	repo, err := git.PlainOpen(in.Repo)
	if err != nil {
		return fmt.Sprintf("git status: failed to open %s: %v", in.Repo, err), true
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Sprintf("git status: failed to get worktree: %v", err), true
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Sprintf("git status failed: %v", err), true
	}
	if status.IsClean() {
		return "working tree clean", false
	}
	return strings.TrimSpace(status.String()), false
}

func (e *Executor) gitDiff(in gitInput) (string, bool) {
	repo, err := git.PlainOpen(in.Repo)
	if err != nil {
		return fmt.Sprintf("git diff: failed to open %s: %v", in.Repo, err), true
	}
	head, err := repo.Head()
	if err != nil {
		return fmt.Sprintf("git diff: failed to resolve HEAD: %v", err), true
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Sprintf("git diff: failed to load HEAD commit: %v", err), true
	}
	parents := commit.Parents()
	parent, err := parents.Next()
	if err != nil {
		return "git diff: HEAD has no parent commit to diff against", true
	}
	patch, err := parent.Patch(commit)
	if err != nil {
		return fmt.Sprintf("git diff failed: %v", err), true
	}
	return truncate(patch.String(), fileReadCap), false
}

func (e *Executor) gitCommit(in gitInput) (string, bool) {
	if in.Message == "" {
		return "git commit: \"message\" is required", true
	}
	repo, err := git.PlainOpen(in.Repo)
	if err != nil {
		return fmt.Sprintf("git commit: failed to open %s: %v", in.Repo, err), true
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Sprintf("git commit: failed to get worktree: %v", err), true
	}
	if _, err := wt.Add("."); err != nil {
		return fmt.Sprintf("git commit: failed to stage changes: %v", err), true
	}
	hash, err := wt.Commit(in.Message, &git.CommitOptions{
		Author: &object.Signature{Name: "tamalebot", Email: "tamalebot@localhost", When: time.Now()},
	})
	if err != nil {
		return fmt.Sprintf("git commit failed: %v", err), true
	}
	return fmt.Sprintf("committed %s", hash.String()), false
}

func (e *Executor) gitLog(in gitInput) (string, bool) {
	repo, err := git.PlainOpen(in.Repo)
	if err != nil {
		return fmt.Sprintf("git log: failed to open %s: %v", in.Repo, err), true
	}
	iter, err := repo.Log(&git.LogOptions{})
	if err != nil {
		return fmt.Sprintf("git log failed: %v", err), true
	}

	const maxEntries = 20
	var lines []string
	count := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if count >= maxEntries {
			return storerStop
		}
		lines = append(lines, fmt.Sprintf("%s %s", c.Hash.String()[:8], strings.SplitN(c.Message, "\n", 2)[0]))
		count++
		return nil
	})
	if err != nil && err != storerStop {
		return fmt.Sprintf("git log failed: %v", err), true
	}
	return strings.Join(lines, "\n"), false
}

func (e *Executor) gitCheckout(in gitInput) (string, bool) {
	if in.Branch == "" {
		return "git checkout: \"branch\" is required", true
	}
	repo, err := git.PlainOpen(in.Repo)
	if err != nil {
		return fmt.Sprintf("git checkout: failed to open %s: %v", in.Repo, err), true
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Sprintf("git checkout: failed to get worktree: %v", err), true
	}
	err = wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName(in.Branch)})
	if err != nil {
		return fmt.Sprintf("git checkout failed: %v", err), true
	}
	return fmt.Sprintf("checked out %s", in.Branch), false
}

// storerStop is a sentinel used to break out of object.CommitIter.ForEach
// once the log entry cap is reached.
var storerStop = fmt.Errorf("tamalebot: stop iteration")
