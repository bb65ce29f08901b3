package orchestrator

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// Keypair holds one workload's SSH identity. The private key never
// leaves the database row; the public half is uploaded to the provider.
type Keypair struct {
	PublicKey  string
	PrivateKey string
}

// generateKeypair creates a fresh ed25519 identity in OpenSSH format.
func generateKeypair(comment string) (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("encode public key: %w", err)
	}
	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		authorized += " " + comment
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("encode private key: %w", err)
	}

	return &Keypair{
		PublicKey:  authorized,
		PrivateKey: string(pem.EncodeToMemory(block)),
	}, nil
}
