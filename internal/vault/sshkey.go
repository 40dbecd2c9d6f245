package vault

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// generateEd25519KeyPair generates a fresh Ed25519 keypair and returns the
// public key in single-line authorized-keys format (comment
// "tamalebot-{name-lowercased}") alongside the PEM-encoded private key
// (spec §4.3).
func generateEd25519KeyPair(name string) (authorizedKey string, privatePEM string, err error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("vault: generate ed25519 key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return "", "", fmt.Errorf("vault: wrap public key: %w", err)
	}
	comment := fmt.Sprintf("tamalebot-%s", strings.ToLower(name))
	line := strings.TrimSuffix(string(ssh.MarshalAuthorizedKey(sshPub)), "\n")
	authorizedKey = line + " " + comment

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return "", "", fmt.Errorf("vault: marshal private key: %w", err)
	}
	privatePEM = string(pem.EncodeToMemory(block))

	return authorizedKey, privatePEM, nil
}
