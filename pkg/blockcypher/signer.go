package blockcypher

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Signer produces signatures for the tosign digests of an unsigned skeleton.
type Signer interface {
	// Sign returns one DER-encoded hex signature and one hex public key per
	// tosign digest, in order.
	Sign(tosign []string) (signatures []string, pubkeys []string, err error)
}

// KeySigner signs with a single secp256k1 private key, as used by operating
// accounts. Keys never leave the process.
type KeySigner struct {
	priv *btcec.PrivateKey
}

// NewKeySigner builds a signer from a hex-encoded private key.
func NewKeySigner(privHex string) (*KeySigner, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid private key length %d", len(raw))
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return &KeySigner{priv: priv}, nil
}

// Sign signs each tosign digest with the account key.
func (s *KeySigner) Sign(tosign []string) ([]string, []string, error) {
	pubHex := hex.EncodeToString(s.priv.PubKey().SerializeCompressed())

	signatures := make([]string, 0, len(tosign))
	pubkeys := make([]string, 0, len(tosign))
	for _, digestHex := range tosign {
		digest, err := hex.DecodeString(digestHex)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid tosign digest: %w", err)
		}
		sig := btcecdsa.Sign(s.priv, digest)
		signatures = append(signatures, hex.EncodeToString(sig.Serialize()))
		pubkeys = append(pubkeys, pubHex)
	}
	return signatures, pubkeys, nil
}
