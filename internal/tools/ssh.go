package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
	"golang.org/x/crypto/ssh"

	"github.com/tamalebot/tamalebot/internal/model"
)

const (
	sshExecDefaultUser    = "root"
	sshExecDefaultPort    = 22
	sshExecDefaultKeyName = "SSH_KEY"
	sshExecDefaultTimeout = 30 * time.Second
)

var sshExecSchema = model.ToolSchema{
	Name:        "ssh_exec",
	Description: "Execute a command on a remote host over SSH using a key stored in the vault.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"host":       map[string]any{"type": "string"},
			"command":    map[string]any{"type": "string"},
			"user":       map[string]any{"type": "string"},
			"port":       map[string]any{"type": "integer"},
			"key_name":   map[string]any{"type": "string"},
			"timeout_ms": map[string]any{"type": "integer"},
		},
		"required": []string{"host", "command"},
	},
}

type sshExecInput struct {
	Host      string `mapstructure:"host"`
	Command   string `mapstructure:"command"`
	User      string `mapstructure:"user"`
	Port      int    `mapstructure:"port"`
	KeyName   string `mapstructure:"key_name"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

func (e *Executor) execSSHExec(ctx context.Context, raw map[string]any) model.ToolResult {
	var in sshExecInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return errorResult("invalid ssh_exec arguments: %v", err)
	}
	if in.Host == "" || in.Command == "" {
		return errorResult("ssh_exec: \"host\" and \"command\" are required")
	}
	if in.User == "" {
		in.User = sshExecDefaultUser
	}
	if in.Port == 0 {
		in.Port = sshExecDefaultPort
	}
	if in.KeyName == "" {
		in.KeyName = sshExecDefaultKeyName
	}
	timeout := sshExecDefaultTimeout
	if in.TimeoutMs > 0 {
		timeout = time.Duration(in.TimeoutMs) * time.Millisecond
	}

	target := in.User + "@" + in.Host + ":" + strconv.Itoa(in.Port)

	return e.mediate(model.ActionSSHExec, target, func() (string, bool) {
		return e.runSSHExec(ctx, in, timeout)
	})
}

func (e *Executor) runSSHExec(ctx context.Context, in sshExecInput, timeout time.Duration) (string, bool) {
	if e.Vault == nil {
		return "ssh_exec: no vault configured to look up ssh keys", true
	}

	cred, err := e.Vault.Get(in.KeyName)
	if err != nil {
		return fmt.Sprintf("ssh_exec: failed to load key %q: %v", in.KeyName, err), true
	}
	if cred == nil {
		return fmt.Sprintf("ssh_exec: key %q not found in vault", in.KeyName), true
	}

	// The private key is materialized to a temporary, owner-only file and
	// unlinked on every exit path, even failure (spec §4.5, §5).
	keyFile, err := os.CreateTemp("", "tamalebot-sshkey-*")
	if err != nil {
		return fmt.Sprintf("ssh_exec: failed to create temporary key file: %v", err), true
	}
	keyPath := keyFile.Name()
	defer os.Remove(keyPath)

	if err := keyFile.Chmod(0o600); err != nil {
		keyFile.Close()
		return fmt.Sprintf("ssh_exec: failed to secure temporary key file: %v", err), true
	}
	if _, err := keyFile.WriteString(cred.Value); err != nil {
		keyFile.Close()
		return fmt.Sprintf("ssh_exec: failed to write temporary key file: %v", err), true
	}
	keyFile.Close()

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Sprintf("ssh_exec: failed to reread temporary key file: %v", err), true
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return fmt.Sprintf("ssh_exec: failed to parse private key %q: %v", in.KeyName, err), true
	}

	clientCfg := &ssh.ClientConfig{
		User:            in.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		Timeout:         timeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // first-use-trust policy, resolved deliberately (see DESIGN.md)
	}

	addr := fmt.Sprintf("%s:%d", in.Host, in.Port)
	client, err := ssh.Dial("tcp", addr, clientCfg)
	if err != nil {
		return fmt.Sprintf("ssh_exec: failed to connect to %s: %v", addr, err), true
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return fmt.Sprintf("ssh_exec: failed to open session: %v", err), true
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(in.Command) }()

	select {
	case <-ctx.Done():
		return "ssh_exec: command cancelled", true
	case <-time.After(timeout):
		return fmt.Sprintf("ssh_exec: command timed out after %s", timeout), true
	case err := <-done:
		combined := stdout.String()
		if stderr.Len() > 0 {
			combined += "\n--- stderr ---\n" + stderr.String()
		}
		combined = truncate(combined, shellOutputCap)
		if err != nil {
			return fmt.Sprintf("ssh_exec: command failed: %v\n%s", err, combined), true
		}
		return combined, false
	}
}
