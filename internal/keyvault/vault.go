// Package keyvault generates execution keypairs and signs transactions on
// behalf of the rest of the engine. Callers only ever hold an opaque secret
// handle; raw key material stays between the vault and its backend.
package keyvault

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ErrKeyDecode marks a persisted secret handle that cannot be resolved into
// usable key material. This is data corruption, not a transient fault: do not
// retry, flag the wallet inactive instead.
var ErrKeyDecode = errors.New("keyvault: key material cannot be decoded")

const handlePrefix = "vault:"

// Backend is the pluggable secret resolver behind the vault. The production
// backend is the Badger secret store (encrypted at rest); tests use Memory.
type Backend interface {
	GetString(key string) (string, bool, error)
	SetString(key, val string) error
}

type Vault struct {
	backend Backend
}

func New(backend Backend) *Vault {
	return &Vault{backend: backend}
}

// Generate creates a fresh ed25519 keypair, stores the secret under a new
// vault key and returns the public key plus the opaque handle. The caller is
// responsible for persisting the handle.
func (v *Vault) Generate() (solana.PublicKey, string, error) {
	w := solana.NewWallet()
	key := "wallet/" + uuid.NewString()
	if err := v.backend.SetString(key, w.PrivateKey.String()); err != nil {
		return solana.PublicKey{}, "", errors.Wrap(err, "keyvault: store secret")
	}
	return w.PublicKey(), handlePrefix + key, nil
}

// Import stores an externally supplied base58 secret (e.g. the operator's
// master wallet) under the given vault key and returns its handle.
func (v *Vault) Import(key string, privateKeyBase58 string) (string, error) {
	priv, err := solana.PrivateKeyFromBase58(strings.TrimSpace(privateKeyBase58))
	if err != nil {
		return "", errors.Wrap(ErrKeyDecode, err.Error())
	}
	if err := v.backend.SetString(key, priv.String()); err != nil {
		return "", errors.Wrap(err, "keyvault: store secret")
	}
	return handlePrefix + key, nil
}

// Resolve turns a secret handle into a private key. Two forms are accepted:
// "vault:<key>" resolved through the backend, and a raw base58 secret (legacy
// records that predate the vault indirection). Anything else fails with
// ErrKeyDecode.
func (v *Vault) Resolve(handle string) (solana.PrivateKey, error) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return nil, errors.Wrap(ErrKeyDecode, "empty handle")
	}
	if strings.HasPrefix(handle, handlePrefix) {
		key := strings.TrimPrefix(handle, handlePrefix)
		val, ok, err := v.backend.GetString(key)
		if err != nil {
			return nil, errors.Wrap(err, "keyvault: backend get")
		}
		if !ok {
			return nil, errors.Wrapf(ErrKeyDecode, "no secret under %q", key)
		}
		priv, err := solana.PrivateKeyFromBase58(val)
		if err != nil {
			return nil, errors.Wrapf(ErrKeyDecode, "stored secret under %q: %v", key, err)
		}
		return priv, nil
	}
	priv, err := solana.PrivateKeyFromBase58(handle)
	if err != nil {
		return nil, errors.Wrapf(ErrKeyDecode, "raw handle: %v", err)
	}
	return priv, nil
}

// PublicKey resolves a handle and returns its public key without exposing the
// secret to the caller.
func (v *Vault) PublicKey(handle string) (solana.PublicKey, error) {
	priv, err := v.Resolve(handle)
	if err != nil {
		return solana.PublicKey{}, err
	}
	return priv.PublicKey(), nil
}

// SignTransaction signs tx with the key behind handle. Deterministic given the
// inputs; the handle's key must be one of the transaction's required signers.
func (v *Vault) SignTransaction(handle string, tx *solana.Transaction) error {
	priv, err := v.Resolve(handle)
	if err != nil {
		return err
	}
	pub := priv.PublicKey()
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(pub) {
			return &priv
		}
		return nil
	}); err != nil {
		return fmt.Errorf("keyvault: sign: %w", err)
	}
	return nil
}
