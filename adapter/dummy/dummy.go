// Package dummy implements adapter.Signer without any real cryptography,
// for local development and the spec's end-to-end test scenarios. Its
// signature format is fixed by spec.md §9: a human-readable string that
// Verify parses back apart, rather than an opaque byte blob.
package dummy

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/outpace-network/validatorworker/adapter"
)

// Signer is a trivial adapter.Signer: its "signature" is a literal string
// naming the hash and the identity, with no unforgeability at all.
type Signer struct {
	identity adapter.Identity
}

// New returns a dummy Signer identifying itself as id.
func New(id string) *Signer {
	return &Signer{identity: adapter.Identity(id)}
}

func (s *Signer) Init(ctx context.Context) error { return nil }

func (s *Signer) Unlock(ctx context.Context, passphrase string) error { return nil }

func (s *Signer) WhoAmI() adapter.Identity { return s.identity }

func (s *Signer) Sign(ctx context.Context, hash [32]byte) (adapter.Signature, error) {
	return format(hash, s.identity), nil
}

func (s *Signer) Verify(identity adapter.Identity, hash [32]byte, sig adapter.Signature) bool {
	return sig == format(hash, identity)
}

func format(hash [32]byte, id adapter.Identity) adapter.Signature {
	return adapter.Signature(fmt.Sprintf("Dummy adapter signature for %s by %s", hex.EncodeToString(hash[:]), id))
}
