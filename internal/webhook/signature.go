// Package webhook receives and verifies account event notifications pushed
// by the identity directory.
package webhook

import (
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"cdcam/internal/directory"
)

// VerifySignature reports whether sigJWT is a three-segment JWS whose
// RSA-SHA256 signature over the first two segments matches the directory's
// published key. Verification fails closed: any defect in the token or the
// key material yields false, never an error.
func VerifySignature(sigJWT string, key directory.PublicKey) bool {
	parts := strings.Split(sigJWT, ".")
	if len(parts) != 3 {
		return false
	}

	pub, err := ParsePublicKey(key)
	if err != nil {
		return false
	}

	sig, err := decodeSegment(parts[2])
	if err != nil {
		return false
	}

	signingString := parts[0] + "." + parts[1]
	return jwt.SigningMethodRS256.Verify(signingString, sig, pub) == nil
}

// ParsePublicKey assembles an RSA public key from the directory's modulus
// and exponent, both base64url-encoded unsigned big-endian integers.
func ParsePublicKey(key directory.PublicKey) (*rsa.PublicKey, error) {
	nBytes, err := decodeSegment(key.Modulus)
	if err != nil {
		return nil, err
	}
	eBytes, err := decodeSegment(key.Exponent)
	if err != nil {
		return nil, err
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	if n.Sign() <= 0 || e.Sign() <= 0 {
		return nil, errors.New("empty key material")
	}
	if !e.IsInt64() || e.Int64() > int64(1<<31-1) {
		return nil, errors.New("exponent out of range")
	}

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// decodeSegment accepts both base64url and standard base64, padded or not.
// The directory is inconsistent about which variant it emits.
func decodeSegment(s string) ([]byte, error) {
	s = strings.ReplaceAll(s, "-", "+")
	s = strings.ReplaceAll(s, "_", "/")
	s = strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodeString(s)
}
