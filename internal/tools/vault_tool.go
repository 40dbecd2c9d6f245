package tools

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/vault"
)

var vaultSchema = model.ToolSchema{
	Name:        "vault",
	Description: "Manage encrypted credentials: set, get, delete, list, generate_ssh_key.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":      map[string]any{"type": "string", "enum": []string{"set", "get", "delete", "list", "generate_ssh_key"}},
			"name":        map[string]any{"type": "string"},
			"value":       map[string]any{"type": "string"},
			"type":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
		},
		"required": []string{"action"},
	},
}

type vaultInput struct {
	Action      string `mapstructure:"action"`
	Name        string `mapstructure:"name"`
	Value       string `mapstructure:"value"`
	Type        string `mapstructure:"type"`
	Description string `mapstructure:"description"`
}

// execVault mediates vault operations as an ordinary tool action (spec
// §4.5, "vault"). The action-kind target string is "{action} {name}" so
// per-credential audit review is possible from the journal alone.
func (e *Executor) execVault(raw map[string]any) model.ToolResult {
	var in vaultInput
	if err := mapstructure.Decode(raw, &in); err != nil {
		return errorResult("invalid vault arguments: %v", err)
	}
	if in.Action == "" {
		return errorResult("vault: \"action\" is required")
	}
	if e.Vault == nil {
		return errorResult("vault: no vault configured for this agent")
	}

	target := strings.TrimSpace(in.Action + " " + in.Name)

	return e.mediate(model.ActionVault, target, func() (string, bool) {
		switch in.Action {
		case "set":
			return e.vaultSet(in)
		case "get":
			return e.vaultGet(in)
		case "delete":
			return e.vaultDelete(in)
		case "list":
			return e.vaultList()
		case "generate_ssh_key":
			return e.vaultGenerateSSHKey(in)
		default:
			return fmt.Sprintf("vault: unknown action %q", in.Action), true
		}
	})
}

func (e *Executor) vaultSet(in vaultInput) (string, bool) {
	if in.Name == "" || in.Value == "" {
		return "vault set: \"name\" and \"value\" are required", true
	}
	credType := model.CredentialType(in.Type)
	if credType == "" {
		credType = model.CredentialGeneric
	}
	if err := e.Vault.Set(in.Name, in.Value, credType, in.Description); err != nil {
		return fmt.Sprintf("vault set failed: %v", err), true
	}
	return fmt.Sprintf("stored credential %q", in.Name), false
}

// vaultGet applies the masking contract: a tool-mediated get never returns
// full plaintext (spec §4.3, "Observable contract: masking").
func (e *Executor) vaultGet(in vaultInput) (string, bool) {
	if in.Name == "" {
		return "vault get: \"name\" is required", true
	}
	cred, err := e.Vault.Get(in.Name)
	if err != nil {
		return fmt.Sprintf("vault get failed: %v", err), true
	}
	if cred == nil {
		return fmt.Sprintf("credential %q not found", in.Name), true
	}
	return fmt.Sprintf("%s (type: %s)", vault.Mask(cred.Value), cred.Meta.Type), false
}

func (e *Executor) vaultDelete(in vaultInput) (string, bool) {
	if in.Name == "" {
		return "vault delete: \"name\" is required", true
	}
	if err := e.Vault.Delete(in.Name); err != nil {
		return fmt.Sprintf("vault delete failed: %v", err), true
	}
	return fmt.Sprintf("deleted credential %q", in.Name), false
}

func (e *Executor) vaultList() (string, bool) {
	entries, err := e.Vault.List()
	if err != nil {
		return fmt.Sprintf("vault list failed: %v", err), true
	}
	if len(entries) == 0 {
		return "no credentials stored", false
	}
	var lines []string
	for _, entry := range entries {
		lines = append(lines, fmt.Sprintf("%s (%s)", entry.Name, entry.Meta.Type))
	}
	return strings.Join(lines, "\n"), false
}

func (e *Executor) vaultGenerateSSHKey(in vaultInput) (string, bool) {
	if in.Name == "" {
		return "vault generate_ssh_key: \"name\" is required", true
	}
	pub, err := e.Vault.GenerateSSHKey(in.Name)
	if err != nil {
		return fmt.Sprintf("vault generate_ssh_key failed: %v", err), true
	}
	return pub, false
}
