package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
)

// Ed25519Provider is the default in-memory provider. It keeps one ed25519
// signing key per identity id and hex-encodes keys and signatures.
type Ed25519Provider struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

// NewEd25519Provider returns an empty provider.
func NewEd25519Provider() *Ed25519Provider {
	return &Ed25519Provider{keys: make(map[string]ed25519.PrivateKey)}
}

// CreateIdentity generates (or reuses) a signing key for id and returns the
// self-certified descriptor.
func (p *Ed25519Provider) CreateIdentity(id string) (*Identity, error) {
	if id == "" {
		return nil, fmt.Errorf("identity id must not be empty")
	}

	p.mu.Lock()
	priv, ok := p.keys[id]
	if !ok {
		var err error
		_, priv, err = ed25519.GenerateKey(rand.Reader)
		if err != nil {
			p.mu.Unlock()
			return nil, fmt.Errorf("key generation failed: %w", err)
		}
		p.keys[id] = priv
	}
	p.mu.Unlock()

	return p.certify(id, priv)
}

// CreateIdentityFromSeed derives the signing key deterministically from a
// 32-byte seed. Identical (id, seed) pairs produce identical descriptors,
// which is what fixture tests rely on.
func (p *Ed25519Provider) CreateIdentityFromSeed(id string, seed []byte) (*Identity, error) {
	if id == "" {
		return nil, fmt.Errorf("identity id must not be empty")
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	p.mu.Lock()
	p.keys[id] = priv
	p.mu.Unlock()

	return p.certify(id, priv)
}

func (p *Ed25519Provider) certify(id string, priv ed25519.PrivateKey) (*Identity, error) {
	pub := hex.EncodeToString(priv.Public().(ed25519.PublicKey))

	sigID := hex.EncodeToString(ed25519.Sign(priv, []byte(id)))
	sigPK := hex.EncodeToString(ed25519.Sign(priv, []byte(pub+sigID)))

	return &Identity{
		ID:         id,
		PublicKey:  pub,
		Signatures: Signatures{ID: sigID, PublicKey: sigPK},
		Type:       DefaultType,
		provider:   p,
	}, nil
}

// Sign signs data with the key behind i.
func (p *Ed25519Provider) Sign(i *Identity, data []byte) (string, error) {
	if i == nil {
		return "", fmt.Errorf("identity is nil")
	}

	p.mu.RLock()
	priv, ok := p.keys[i.ID]
	p.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("no signing key for identity %q", i.ID)
	}

	return hex.EncodeToString(ed25519.Sign(priv, data)), nil
}

// Verify reports whether sig is a valid ed25519 signature by publicKey over
// data. Both sig and publicKey are hex strings.
func (p *Ed25519Provider) Verify(sig, publicKey string, data []byte) (bool, error) {
	pub, err := hex.DecodeString(publicKey)
	if err != nil {
		return false, fmt.Errorf("invalid public key hex: %w", err)
	}
	raw, err := hex.DecodeString(sig)
	if err != nil {
		return false, fmt.Errorf("invalid signature hex: %w", err)
	}
	if len(pub) != ed25519.PublicKeySize {
		return false, fmt.Errorf("invalid public key size")
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, raw), nil
}
