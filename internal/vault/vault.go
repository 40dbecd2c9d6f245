// Package vault implements the persistent encrypted credential store (spec
// §4.3). Entries live under the "vault/" prefix of a storage.Backend, one
// JSON object per credential at key "vault/{NAME}.json".
package vault

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/tamalebot/tamalebot/internal/audit"
	"github.com/tamalebot/tamalebot/internal/model"
	"github.com/tamalebot/tamalebot/internal/storage"
)

const (
	keyLen         = 32
	pbkdf2Iters    = 100_000
	ivLen          = 12
	maxValueLen    = 16384
	minValueLen    = 1
	keyPrefix      = "vault/"
	maskMinLen     = 4
	maskMaxLen     = 20
	maskPrefixSize = 4
)

// Vault is a per-agent encrypted credential store. The encryption key is
// derived once, at construction, from a source secret and the agent's
// identity — a vault blob for agent A cannot be decrypted by agent B even
// with the same source string (spec §4.3, §8).
type Vault struct {
	backend storage.Backend
	journal *audit.Journal
	agentID string
	key     []byte
}

// New derives the vault's encryption key from source and constructs a
// Vault backed by backend. journal receives vault_set / not-found /
// decryption-failed audit entries; pass nil to disable auditing (e.g. in
// tests that only exercise the library API).
func New(backend storage.Backend, journal *audit.Journal, agentID, source string) *Vault {
	salt := []byte(fmt.Sprintf("tamalebot-vault-%s", agentID))
	key := pbkdf2.Key([]byte(source), salt, pbkdf2Iters, keyLen, sha256.New)
	return &Vault{backend: backend, journal: journal, agentID: agentID, key: key}
}

func pathFor(name string) string {
	return keyPrefix + name + ".json"
}

func (v *Vault) log(actionType model.ActionType, target string, decision model.Decision, reason string) {
	if v.journal == nil {
		return
	}
	_, _ = v.journal.Log(v.agentID, actionType, target, decision, reason, nil)
}

// Set validates name, validates the value length, encrypts value under a
// fresh IV, and stores it (spec §4.3).
func (v *Vault) Set(name, value string, credType model.CredentialType, description string) error {
	if err := model.ValidateCredentialName(name); err != nil {
		return err
	}
	if len(value) < minValueLen || len(value) > maxValueLen {
		return fmt.Errorf("vault: value length %d out of range [%d, %d]", len(value), minValueLen, maxValueLen)
	}

	stored, err := v.encrypt(value, model.CredentialMeta{
		Type:        credType,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("vault: marshal %s: %w", name, err)
	}
	if err := v.backend.Put(context.Background(), pathFor(name), data); err != nil {
		return fmt.Errorf("vault: store %s: %w", name, err)
	}

	v.log(model.ActionVault, name, model.DecisionAllowed, "vault_set")
	return nil
}

// Get reads and decrypts the credential stored under name, returning the
// plaintext value and its metadata. A missing or corrupt entry is not an
// error: it returns (nil, nil) after auditing "not found" or "decryption
// failed" respectively (spec §4.3).
func (v *Vault) Get(name string) (*model.CredentialValue, error) {
	if err := model.ValidateCredentialName(name); err != nil {
		return nil, err
	}

	data, err := v.backend.Get(context.Background(), pathFor(name))
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", name, err)
	}
	if data == nil {
		v.log(model.ActionVault, name, model.DecisionAllowed, "not found")
		return nil, nil
	}

	var stored model.StoredCredential
	if err := json.Unmarshal(data, &stored); err != nil {
		v.log(model.ActionVault, name, model.DecisionAllowed, "decryption failed")
		return nil, nil
	}

	plaintext, err := v.decrypt(stored)
	if err != nil {
		v.log(model.ActionVault, name, model.DecisionAllowed, "decryption failed")
		return nil, nil
	}

	return &model.CredentialValue{Value: plaintext, Meta: stored.Meta}, nil
}

// Delete removes the credential stored under name, if any.
func (v *Vault) Delete(name string) error {
	if err := model.ValidateCredentialName(name); err != nil {
		return err
	}
	if err := v.backend.Delete(context.Background(), pathFor(name)); err != nil {
		return fmt.Errorf("vault: delete %s: %w", name, err)
	}
	return nil
}

// CredentialListEntry is one row of List's output: a name and its
// non-secret metadata, never the plaintext value.
type CredentialListEntry struct {
	Name string
	Meta model.CredentialMeta
}

// List enumerates stored credential metadata, skipping any entry that
// fails to parse (spec §4.3: "skips corrupt entries").
func (v *Vault) List() ([]CredentialListEntry, error) {
	keys, err := v.backend.List(context.Background(), keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("vault: list: %w", err)
	}

	var out []CredentialListEntry
	for _, key := range keys {
		name := strings.TrimSuffix(strings.TrimPrefix(key, keyPrefix), ".json")
		data, err := v.backend.Get(context.Background(), key)
		if err != nil || data == nil {
			continue
		}
		var stored model.StoredCredential
		if err := json.Unmarshal(data, &stored); err != nil {
			continue
		}
		out = append(out, CredentialListEntry{Name: name, Meta: stored.Meta})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Name < out[k].Name })
	return out, nil
}

// GenerateSSHKey generates an Ed25519 keypair, stores the private key under
// name and the public key under "{name}_PUB", and returns the public key
// re-encoded in authorized-keys format with comment
// "tamalebot-{name-lowercased}" (spec §4.3).
func (v *Vault) GenerateSSHKey(name string) (string, error) {
	authorizedKey, privatePEM, err := generateEd25519KeyPair(name)
	if err != nil {
		return "", err
	}

	if err := v.Set(name, privatePEM, model.CredentialSSHPrivate, "generated ssh key"); err != nil {
		return "", err
	}
	if err := v.Set(name+"_PUB", authorizedKey, model.CredentialSSHPublic, "generated ssh public key"); err != nil {
		return "", err
	}
	return authorizedKey, nil
}

// Mask reproduces the observable contract used when "get" is performed via
// a tool rather than the library API: only the first four characters of
// the value are revealed, followed by between four and twenty mask
// characters (four plus the value length modulo 17); a value of four
// characters or fewer is followed by four mask characters (spec §4.3).
func Mask(value string) string {
	if len(value) <= maskPrefixSize {
		return value + strings.Repeat("*", maskMinLen)
	}
	prefix := value[:maskPrefixSize]
	maskLen := maskMinLen + (len(value) % (maskMaxLen - maskMinLen + 1))
	return prefix + strings.Repeat("*", maskLen)
}

func (v *Vault) encrypt(plaintext string, meta model.CredentialMeta) (model.StoredCredential, error) {
	block, err := aes.NewCipher(v.key)
	if err != nil {
		return model.StoredCredential{}, fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return model.StoredCredential{}, fmt.Errorf("vault: new gcm: %w", err)
	}

	iv := make([]byte, ivLen)
	if _, err := rand.Read(iv); err != nil {
		return model.StoredCredential{}, fmt.Errorf("vault: generate iv: %w", err)
	}

	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]

	return model.StoredCredential{
		Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
		IV:        base64.StdEncoding.EncodeToString(iv),
		Tag:       base64.StdEncoding.EncodeToString(tag),
		Meta:      meta,
	}, nil
}

func (v *Vault) decrypt(stored model.StoredCredential) (string, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(stored.Encrypted)
	if err != nil {
		return "", fmt.Errorf("vault: decode ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(stored.IV)
	if err != nil {
		return "", fmt.Errorf("vault: decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(stored.Tag)
	if err != nil {
		return "", fmt.Errorf("vault: decode tag: %w", err)
	}

	block, err := aes.NewCipher(v.key)
	if err != nil {
		return "", fmt.Errorf("vault: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("vault: new gcm: %w", err)
	}

	sealed := append(ciphertext, tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("vault: open: %w", err)
	}
	return string(plaintext), nil
}
