// Package ethereum implements adapter.Signer backed by an encrypted
// keystore file and secp256k1 ECDSA signatures, the way cmd/utils/flags.go's
// keystore-unlock flow and crypto.Sign/VerifySignature are used throughout
// the teacher codebase. The keystore core types (KeyStore, Account) are
// go-ethereum's own — the teacher's own accounts/keystore package in this
// pack only retained its Key struct and tests, not the KeyStore/Account
// types its call sites depend on, so this adapter imports the upstream
// library gtos itself forked from (see DESIGN.md).
package ethereum

import (
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/outpace-network/validatorworker/adapter"
)

var (
	ErrNotUnlocked    = errors.New("ethereum adapter: account not unlocked")
	ErrAccountMissing = errors.New("ethereum adapter: keystore file does not contain an account")
)

// Signer is an adapter.Signer backed by a single go-ethereum keystore file.
type Signer struct {
	keystoreFile string
	ks           *keystore.KeyStore
	account      accounts.Account
	unlocked     bool
}

// New returns an ethereum Signer for the account stored in keystoreFile.
// Init loads and decrypts the file's address (without needing the
// passphrase); Unlock decrypts the private key material itself.
func New(keystoreFile string) *Signer {
	return &Signer{keystoreFile: keystoreFile}
}

// Init loads the keystore directory containing keystoreFile, per
// accounts/keystore's directory-scan model (cmd/utils/flags.go's
// MakeAddress/ks.Accounts flow), and locates the account matching the
// keystore file's own address.
func (s *Signer) Init(ctx context.Context) error {
	dir := filepath.Dir(s.keystoreFile)
	s.ks = keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP)

	for _, acc := range s.ks.Accounts() {
		if acc.URL.Path == s.keystoreFile {
			s.account = acc
			return nil
		}
	}
	return ErrAccountMissing
}

// Unlock decrypts the account's private key so Sign can be used.
func (s *Signer) Unlock(ctx context.Context, passphrase string) error {
	if err := s.ks.Unlock(s.account, passphrase); err != nil {
		return err
	}
	s.unlocked = true
	return nil
}

// WhoAmI returns the account's address as a hex string identity.
func (s *Signer) WhoAmI() adapter.Identity {
	return adapter.Identity(s.account.Address.Hex())
}

// Sign produces an ECDSA secp256k1 signature over hash, hex-encoded.
func (s *Signer) Sign(ctx context.Context, hash [32]byte) (adapter.Signature, error) {
	if !s.unlocked {
		return "", ErrNotUnlocked
	}
	sig, err := s.ks.SignHash(s.account, hash[:])
	if err != nil {
		return "", err
	}
	return adapter.Signature(hex.EncodeToString(sig)), nil
}

// Verify recovers the public key from sig over hash and checks it matches
// identity's address.
func (s *Signer) Verify(identity adapter.Identity, hash [32]byte, sig adapter.Signature) bool {
	raw, err := hex.DecodeString(string(sig))
	if err != nil || len(raw) != 65 {
		return false
	}
	pub, err := crypto.SigToPub(hash[:], raw)
	if err != nil {
		return false
	}
	return adapter.Identity(crypto.PubkeyToAddress(*pub).Hex()) == identity
}
