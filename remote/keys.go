package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// KeyPair is the key shared by every node of a cluster so that nodes can reach each other.
type KeyPair struct {
	// PrivateKey is an OpenSSH PEM block
	PrivateKey []byte
	// PublicKey is an authorized_keys line
	PublicKey []byte
}

func GenerateKeyPair(comment string) (KeyPair, error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(private, comment)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to marshal private key: %w", err)
	}

	sshPublic, err := ssh.NewPublicKey(public)
	if err != nil {
		return KeyPair{}, fmt.Errorf("failed to convert public key: %w", err)
	}

	return KeyPair{
		PrivateKey: pem.EncodeToMemory(block),
		PublicKey:  ssh.MarshalAuthorizedKey(sshPublic),
	}, nil
}

// Signer parses the private half of the pair.
func (kp KeyPair) Signer() (ssh.Signer, error) {
	return ssh.ParsePrivateKey(kp.PrivateKey)
}
