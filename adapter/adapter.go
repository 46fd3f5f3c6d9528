// Package adapter defines the signing capability set of spec.md §4.3: a
// small lifecycle + sign/verify interface that the ethereum and dummy
// implementations satisfy, modeled on the teacher's PrivValidator /
// accountsigner split between key lifecycle and raw signature operations.
package adapter

import "context"

// Identity is the adapter's public identifier: a validator id string
// (e.g. a hex-encoded address for the ethereum adapter, or the configured
// --dummyIdentity for the dummy adapter).
type Identity string

// Signature is the wire form of a signature: implementation-defined bytes,
// rendered as the adapter sees fit (the ethereum adapter uses raw ECDSA
// signature bytes hex-encoded; the dummy adapter uses its literal string
// format).
type Signature string

// Signer is the capability set spec.md §4.3 requires of a signing adapter.
// Init/Unlock are lifecycle calls; WhoAmI/Sign/Verify are the per-tick
// operations. Sign may block on a hardware key or passphrase-protected
// keystore, hence the context.
type Signer interface {
	// Init prepares the adapter (e.g. loading a keystore file) without
	// requiring a passphrase yet.
	Init(ctx context.Context) error
	// Unlock decrypts the adapter's private key material. A no-op for
	// adapters that hold no encrypted material (the dummy adapter).
	Unlock(ctx context.Context, passphrase string) error
	// WhoAmI returns this adapter's identity.
	WhoAmI() Identity
	// Sign signs a 32-byte hash and returns the signature.
	Sign(ctx context.Context, hash [32]byte) (Signature, error)
	// Verify checks that sig is identity's signature over hash.
	Verify(identity Identity, hash [32]byte, sig Signature) bool
}
