// Package keyderiv derives deterministic deposit addresses from a master
// seed. Derivation is pure: the same seed and index always produce the same
// address, so the address book can be rebuilt from the database alone.
package keyderiv

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

// Provider derives chain addresses from derivation indexes
type Provider interface {
	// DeriveAddress returns the deposit address at the given index
	DeriveAddress(index int64) (string, error)
}

const (
	// addressVersionByte is the network prefix for mainnet addresses,
	// which base58-encodes to a leading "T"
	addressVersionByte = 0x41

	defaultIterations = 2048
	seedKeyLength     = 64
)

// HDProvider implements Provider with seed-stretched HMAC derivation
type HDProvider struct {
	seed []byte
}

// NewHDProvider creates a provider from a master seed phrase. The seed is
// stretched with PBKDF2 so a short configuration value still yields full
// key entropy.
func NewHDProvider(masterSeed string, iterations int) (*HDProvider, error) {
	if masterSeed == "" {
		return nil, fmt.Errorf("master seed is required")
	}
	if iterations <= 0 {
		iterations = defaultIterations
	}

	seed := pbkdf2.Key([]byte(masterSeed), []byte("mnemonic"), iterations, seedKeyLength, sha256.New)
	return &HDProvider{seed: seed}, nil
}

// DeriveAddress derives the address at the given index
func (p *HDProvider) DeriveAddress(index int64) (string, error) {
	if index < 0 {
		return "", fmt.Errorf("derivation index must be non-negative: %d", index)
	}

	mac := hmac.New(sha256.New, p.seed)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(index))
	mac.Write(buf[:])
	keyMaterial := mac.Sum(nil)

	// Address payload is the version byte followed by the low 20 bytes
	// of the derived key hash
	payload := make([]byte, 0, 21)
	payload = append(payload, addressVersionByte)
	payload = append(payload, keyMaterial[len(keyMaterial)-20:]...)

	return base58CheckEncode(payload), nil
}

// base58CheckEncode appends a 4-byte double-SHA256 checksum and encodes
// the result in base58
func base58CheckEncode(payload []byte) string {
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])

	full := make([]byte, 0, len(payload)+4)
	full = append(full, payload...)
	full = append(full, second[:4]...)

	return base58Encode(full)
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

func base58Encode(input []byte) string {
	x := new(big.Int).SetBytes(input)
	radix := big.NewInt(58)
	mod := new(big.Int)

	out := make([]byte, 0, len(input)*2)
	for x.Sign() > 0 {
		x.DivMod(x, radix, mod)
		out = append(out, base58Alphabet[mod.Int64()])
	}

	// Leading zero bytes encode as the alphabet's zero character
	for _, b := range input {
		if b != 0 {
			break
		}
		out = append(out, base58Alphabet[0])
	}

	// Reverse
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	return string(out)
}
