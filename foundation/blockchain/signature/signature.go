// Package signature provides helper functions for handling the simulator's
// key, address, signing and hashing needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros. It is the previous hash of the
// genesis block.
const ZeroHash string = "0000000000000000000000000000000000000000000000000000000000000000"

// KeyPair holds a hex encoded secp256k1 key pair. The public key is the
// uncompressed 65 byte form and both keys carry the 0x prefix.
type KeyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// =============================================================================

// GenerateKeyPair produces a fresh key pair from a cryptographically secure
// random source.
func GenerateKeyPair() (KeyPair, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generating key: %w", err)
	}

	return FromECDSA(privateKey), nil
}

// FromECDSA converts a private key into its hex encoded key pair.
func FromECDSA(privateKey *ecdsa.PrivateKey) KeyPair {
	return KeyPair{
		PublicKey:  hexutil.Encode(crypto.FromECDSAPub(&privateKey.PublicKey)),
		PrivateKey: hexutil.Encode(crypto.FromECDSA(privateKey)),
	}
}

// ToECDSA parses a hex encoded private key, with or without the 0x prefix.
func ToECDSA(privateKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
}

// DeriveAddress returns the checksummed 20 byte address for the public key.
// The address is the last 20 bytes of the Keccak256 of the public key.
func DeriveAddress(publicKey string) (string, error) {
	pub, err := toPublicKey(publicKey)
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

// Sign uses the specified private key to sign the message. The signature is
// deterministic for the same key and message and is returned as the hex
// encoded 65 byte [R|S|V] form.
func Sign(privateKey string, message string) (string, error) {
	pk, err := ToECDSA(privateKey)
	if err != nil {
		return "", fmt.Errorf("parsing private key: %w", err)
	}

	// Prepare the data for signing.
	data := stamp(message)

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, pk)
	if err != nil {
		return "", err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(&pk.PublicKey), data, rs) {
		return "", errors.New("invalid signature")
	}

	return hexutil.Encode(sig), nil
}

// Verify reports whether the signature was produced over the message by the
// private key matching the public key. Any malformed input returns false.
func Verify(publicKey string, message string, signature string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()

	pub, err := hexutil.Decode(publicKey)
	if err != nil {
		return false
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}

	return crypto.VerifySignature(pub, stamp(message), sig[:crypto.RecoveryIDOffset])
}

// RecoverPublicKey extracts the public key that produced the signature over
// the message.
func RecoverPublicKey(message string, signature string) (pk string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovering public key: %v", r)
		}
	}()

	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("decoding signature: %w", err)
	}

	if len(sig) != crypto.SignatureLength {
		return "", errors.New("invalid signature length")
	}

	pub, err := crypto.SigToPub(stamp(message), sig)
	if err != nil {
		return "", err
	}

	return hexutil.Encode(crypto.FromECDSAPub(pub)), nil
}

// Hash returns the sha256 of the value as a lowercase hex string with no
// prefix.
func Hash(value string) string {
	hash := sha256.Sum256([]byte(value))
	return hex.EncodeToString(hash[:])
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents the message with the
// simulator's stamp embedded into the final hash.
func stamp(message string) []byte {

	// Hash the message into a 32 byte array. This will provide
	// a data length consistency with all messages.
	msgHash := crypto.Keccak256([]byte(message))

	// The stamp keeps signatures produced here unique to the simulator.
	stamp := []byte("\x19BlockSim Signed Message:\n32")

	return crypto.Keccak256(stamp, msgHash)
}

// toPublicKey decodes a hex encoded uncompressed public key.
func toPublicKey(publicKey string) (*ecdsa.PublicKey, error) {
	b, err := hexutil.Decode(publicKey)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}

	pub, err := crypto.UnmarshalPubkey(b)
	if err != nil {
		return nil, fmt.Errorf("unmarshal public key: %w", err)
	}

	return pub, nil
}
