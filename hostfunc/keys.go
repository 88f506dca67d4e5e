package hostfunc

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/hkdf"
)

const seedSize = 32

var (
	ErrUnknownScheme = errors.New("unknown signature scheme")
	ErrInvalidKey    = errors.New("invalid key material")
)

// Keys derives and uses signing keys. Private key material for every
// scheme is a 32-byte seed or scalar derived with HKDF-SHA256, so the
// same (seed, scheme) always yields the same pair on a given host.
type Keys struct {
	salt []byte
}

// NewKeys returns a Keys whose derivations are bound to salt.
func NewKeys(salt []byte) *Keys {
	return &Keys{salt: append([]byte(nil), salt...)}
}

// Derive returns key material for seed under scheme.
func (k *Keys) Derive(seed []byte, scheme Scheme) (KeyPair, error) {
	if !known(scheme) {
		return KeyPair{}, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}

	priv := make([]byte, seedSize)
	reader := hkdf.New(sha256.New, seed, k.salt, []byte("hostbridge/key/"+string(scheme)))
	if _, err := io.ReadFull(reader, priv); err != nil {
		return KeyPair{}, fmt.Errorf("derive key: %w", err)
	}
	if scheme == ECDSAP256 {
		priv = p256Scalar(priv)
	}

	pub, err := PublicKey(priv, scheme)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Scheme: scheme, Private: priv, Public: pub}, nil
}

// PublicKey returns the public half of priv.
func PublicKey(priv []byte, scheme Scheme) ([]byte, error) {
	switch scheme {
	case Ed25519:
		if len(priv) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes", ErrInvalidKey, ed25519.SeedSize)
		}
		return ed25519.NewKeyFromSeed(priv).Public().(ed25519.PublicKey), nil
	case ECDSAP256:
		sk, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), priv)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		return sk.PublicKey.Bytes()
	case Dilithium3:
		pk, _, err := dilithiumKey(priv)
		if err != nil {
			return nil, err
		}
		return pk.MarshalBinary()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// Sign signs message with priv.
func Sign(message, priv []byte, scheme Scheme) ([]byte, error) {
	switch scheme {
	case Ed25519:
		if len(priv) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes", ErrInvalidKey, ed25519.SeedSize)
		}
		return ed25519.Sign(ed25519.NewKeyFromSeed(priv), message), nil
	case ECDSAP256:
		sk, err := ecdsa.ParseRawPrivateKey(elliptic.P256(), priv)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		digest := sha256.Sum256(message)
		return ecdsa.SignASN1(rand.Reader, sk, digest[:])
	case Dilithium3:
		_, sk, err := dilithiumKey(priv)
		if err != nil {
			return nil, err
		}
		sig := make([]byte, mode3.SignatureSize)
		mode3.SignTo(sk, message, sig)
		return sig, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
}

// Verify reports whether sig is a valid signature of message under pub.
// Malformed keys or signatures verify false.
func Verify(message, pub, sig []byte, scheme Scheme) bool {
	switch scheme {
	case Ed25519:
		if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
			return false
		}
		return ed25519.Verify(pub, message, sig)
	case ECDSAP256:
		pk, err := ecdsa.ParseUncompressedPublicKey(elliptic.P256(), pub)
		if err != nil {
			return false
		}
		digest := sha256.Sum256(message)
		return ecdsa.VerifyASN1(pk, digest[:], sig)
	case Dilithium3:
		if len(sig) != mode3.SignatureSize {
			return false
		}
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return false
		}
		return mode3.Verify(&pk, message, sig)
	default:
		return false
	}
}

func known(scheme Scheme) bool {
	for _, s := range Schemes() {
		if s == scheme {
			return true
		}
	}
	return false
}

func dilithiumKey(seed []byte) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	if len(seed) != mode3.SeedSize {
		return nil, nil, fmt.Errorf("%w: dilithium3 seed must be %d bytes", ErrInvalidKey, mode3.SeedSize)
	}
	var s [mode3.SeedSize]byte
	copy(s[:], seed)
	pk, sk := mode3.NewKeyFromSeed(&s)
	return pk, sk, nil
}

// p256Scalar maps 32 uniform bytes onto [1, N-1].
func p256Scalar(b []byte) []byte {
	n := elliptic.P256().Params().N
	d := new(big.Int).SetBytes(b)
	d.Mod(d, new(big.Int).Sub(n, big.NewInt(1)))
	d.Add(d, big.NewInt(1))
	return d.FillBytes(make([]byte, seedSize))
}
