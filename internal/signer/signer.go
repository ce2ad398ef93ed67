// Package signer produces the merchant's vkey witness for a transaction.
package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cmatc13/merchantpay/internal/trp"
	"github.com/cmatc13/merchantpay/pkg/config"
	"github.com/cmatc13/merchantpay/pkg/errors"
)

// MerchantSigner signs transaction hashes with the merchant key. The key is
// checked on every call so a service started without one still answers.
type MerchantSigner struct {
	secretHex string
}

// New creates a signer from the merchant config section.
func New(cfg config.MerchantConfig) *MerchantSigner {
	return &MerchantSigner{secretHex: strings.TrimSpace(cfg.SigningKey)}
}

// Configured reports whether a key is set at all.
func (s *MerchantSigner) Configured() bool {
	return s.secretHex != ""
}

// Sign signs the raw bytes of txHashHex and returns exactly one vkey witness.
func (s *MerchantSigner) Sign(txHashHex string) ([]trp.Witness, error) {
	key, err := s.privateKey()
	if err != nil {
		return nil, err
	}

	hash, err := hex.DecodeString(txHashHex)
	if err != nil {
		return nil, errors.SigningFailed(errors.PaymentErrInvalidHex, "Transaction hash is not valid hex", err)
	}

	signature := ed25519.Sign(key, hash)
	publicKey := key.Public().(ed25519.PublicKey)

	return []trp.Witness{
		trp.VKeyWitness(hex.EncodeToString(publicKey), hex.EncodeToString(signature)),
	}, nil
}

// PublicKey returns the merchant verification key as hex.
func (s *MerchantSigner) PublicKey() (string, error) {
	key, err := s.privateKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(key.Public().(ed25519.PublicKey)), nil
}

func (s *MerchantSigner) privateKey() (ed25519.PrivateKey, error) {
	if s.secretHex == "" {
		return nil, errors.MerchantKeyMissing(config.MerchantKeyEnv)
	}
	raw, err := hex.DecodeString(s.secretHex)
	if err != nil {
		return nil, errors.MerchantKeyInvalid(err)
	}
	seed, err := seedFromKey(raw)
	if err != nil {
		return nil, errors.MerchantKeyInvalid(err)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

// seedFromKey accepts a bare 32-byte seed, the cardano-cli cborHex form
// (0x5820 followed by the seed), or a 64-byte seed||public key.
func seedFromKey(raw []byte) ([]byte, error) {
	switch {
	case len(raw) == ed25519.SeedSize:
		return raw, nil
	case len(raw) == ed25519.SeedSize+2 && raw[0] == 0x58 && raw[1] == ed25519.SeedSize:
		return raw[2:], nil
	case len(raw) == ed25519.PrivateKeySize:
		seed := raw[:ed25519.SeedSize]
		derived := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)
		if !derived.Equal(ed25519.PublicKey(raw[ed25519.SeedSize:])) {
			return nil, fmt.Errorf("public key half does not match seed")
		}
		return seed, nil
	default:
		return nil, fmt.Errorf("key is %d bytes, want %d", len(raw), ed25519.SeedSize)
	}
}
