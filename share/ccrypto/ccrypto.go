package ccrypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/ssh"
)

// Seed2Signer derives the transport host key from a seed string. The same
// seed always yields the same key, so a node keeps a stable identity
// without persisting key material. An empty seed uses the system CSPRNG.
func Seed2Signer(seed string) (ssh.Signer, error) {
	var r io.Reader = rand.Reader
	if seed != "" {
		r = NewDetermRand([]byte(seed))
	}
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, err
	}
	return ssh.NewSignerFromKey(priv)
}

// FingerprintKey returns the base64 encoded SHA-256 hash of an SSH
// public key, matching the OpenSSH fingerprint format minus the
// "SHA256:" prefix.
func FingerprintKey(k ssh.PublicKey) string {
	sum := sha256.Sum256(k.Marshal())
	return base64.StdEncoding.EncodeToString(sum[:])
}
