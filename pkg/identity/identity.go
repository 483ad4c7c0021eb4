// Package identity provides the author identities embedded in log entries
// and the provider that signs and verifies on their behalf.
package identity

import (
	"fmt"

	"github.com/Mindburn-Labs/oplog/pkg/canonical"
)

// DefaultType is the identity type produced by the built-in provider.
const DefaultType = "ed25519"

// LegacyType marks identities synthesized from version-0 entries, which
// carried a bare public key instead of a full descriptor.
const LegacyType = "legacy"

// Signatures holds the self-certification of an identity: the id signed by
// the signing key, and the public key (concatenated with the id signature)
// signed again to bind the two.
type Signatures struct {
	ID        string `json:"id"`
	PublicKey string `json:"publicKey"`
}

// Identity is the descriptor embedded in every entry. All exported fields
// are part of the wire format; the provider handle is not serialized.
type Identity struct {
	ID         string     `json:"id"`
	PublicKey  string     `json:"publicKey"`
	Signatures Signatures `json:"signatures"`
	Type       string     `json:"type"`

	provider Provider
}

// Provider returns the provider this identity was created by, or nil for a
// deserialized identity.
func (i *Identity) Provider() Provider {
	return i.provider
}

// WithProvider returns a copy of the identity bound to p. Used when
// rehydrating identities from storage.
func (i *Identity) WithProvider(p Provider) *Identity {
	c := *i
	c.provider = p
	return &c
}

// Hash returns the RFC 8785 canonical hash of the descriptor.
func (i *Identity) Hash() (string, error) {
	return canonical.Hash(i)
}

// Provider signs data on behalf of identities and verifies signatures made
// by any key.
type Provider interface {
	// Sign signs data with the key behind the given identity and returns the
	// signature as a hex string.
	Sign(i *Identity, data []byte) (string, error)
	// Verify reports whether sig is a valid signature by publicKey over data.
	Verify(sig, publicKey string, data []byte) (bool, error)
}

// VerifyIdentity checks the descriptor's self-certification signatures.
func VerifyIdentity(p Provider, i *Identity) error {
	if i == nil {
		return fmt.Errorf("identity is nil")
	}
	if i.Type == LegacyType {
		// Legacy identities carry no self-certification.
		return nil
	}
	ok, err := p.Verify(i.Signatures.ID, i.PublicKey, []byte(i.ID))
	if err != nil {
		return fmt.Errorf("verify identity id signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("identity id signature does not verify for %q", i.ID)
	}
	ok, err = p.Verify(i.Signatures.PublicKey, i.PublicKey, []byte(i.PublicKey+i.Signatures.ID))
	if err != nil {
		return fmt.Errorf("verify identity key signature: %w", err)
	}
	if !ok {
		return fmt.Errorf("identity key signature does not verify for %q", i.ID)
	}
	return nil
}
