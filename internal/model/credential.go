package model

import (
	"fmt"
	"regexp"
	"time"
)

// CredentialType enumerates the kinds of secret the vault can hold (spec §3).
type CredentialType string

const (
	CredentialAPIKey      CredentialType = "api-key"
	CredentialSSHPrivate  CredentialType = "ssh-private-key"
	CredentialSSHPublic   CredentialType = "ssh-public-key"
	CredentialToken       CredentialType = "token"
	CredentialDatabaseURL CredentialType = "database-url"
	CredentialGeneric     CredentialType = "generic"
)

// credentialNamePattern enforces spec §3's name constraint: [A-Z][A-Z0-9_]{1,63}.
var credentialNamePattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{1,63}$`)

// ValidateCredentialName reports whether name satisfies the vault's naming
// constraint.
func ValidateCredentialName(name string) error {
	if !credentialNamePattern.MatchString(name) {
		return fmt.Errorf("model: invalid credential name %q: must match [A-Z][A-Z0-9_]{1,63}", name)
	}
	return nil
}

// CredentialMeta is the non-secret metadata stored alongside a credential
// (spec §3, §6).
type CredentialMeta struct {
	Type        CredentialType `json:"type"`
	Description string         `json:"description,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// StoredCredential is the on-disk representation of an encrypted secret
// (spec §3, §6).
type StoredCredential struct {
	Encrypted string         `json:"encrypted"`
	IV        string         `json:"iv"`
	Tag       string         `json:"tag"`
	Meta      CredentialMeta `json:"meta"`
}

// CredentialValue is the plaintext view returned by the vault's library API.
type CredentialValue struct {
	Value string         `json:"value"`
	Meta  CredentialMeta `json:"meta"`
}
