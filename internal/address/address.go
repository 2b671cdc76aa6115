// Package address validates and normalizes asset addresses per network.
package address

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mr-tron/base58"

	"solana-sniper/internal/domain"
)

// MetaplexMetadataProgram owns token metadata accounts on Solana.
const MetaplexMetadataProgram = "metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s"

const pdaMarker = "ProgramDerivedAddress"

// Normalize validates address for network and returns its canonical form.
// Solana keys are returned unchanged; EVM addresses are EIP-55 checksummed.
// Errors wrap domain.ErrValidation.
func Normalize(network domain.Network, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", fmt.Errorf("%w: empty address", domain.ErrValidation)
	}
	switch {
	case network == domain.NetworkSolana:
		if _, err := DecodeSolana(address); err != nil {
			return "", err
		}
		return address, nil
	case network.IsEVM():
		if !common.IsHexAddress(address) {
			return "", fmt.Errorf("%w: %q is not a hex address", domain.ErrValidation, address)
		}
		return common.HexToAddress(address).Hex(), nil
	default:
		return "", fmt.Errorf("%w: unsupported network %q", domain.ErrValidation, network)
	}
}

// DecodeSolana decodes a base58 public key and checks its length.
func DecodeSolana(address string) ([]byte, error) {
	raw, err := base58.Decode(address)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base58 %q: %v", domain.ErrValidation, address, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: public key %q has %d bytes, want 32", domain.ErrValidation, address, len(raw))
	}
	return raw, nil
}

// IsOnCurve reports whether a 32-byte key is a valid ed25519 point.
// Program-derived addresses are always off the curve.
func IsOnCurve(key []byte) bool {
	if len(key) != 32 {
		return false
	}
	_, err := new(edwards25519.Point).SetBytes(key)
	return err == nil
}

// IsProgramDerived reports whether a Solana address is a PDA, i.e. has no private key.
func IsProgramDerived(address string) bool {
	raw, err := DecodeSolana(address)
	if err != nil {
		return false
	}
	return !IsOnCurve(raw)
}

// FindProgramAddress derives the canonical PDA and bump for seeds under programID.
func FindProgramAddress(seeds [][]byte, programID string) (string, byte, error) {
	program, err := DecodeSolana(programID)
	if err != nil {
		return "", 0, err
	}
	for bump := byte(255); bump > 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{bump})
		h.Write(program)
		h.Write([]byte(pdaMarker))
		sum := h.Sum(nil)
		if !IsOnCurve(sum) {
			return base58.Encode(sum), bump, nil
		}
	}
	return "", 0, fmt.Errorf("no viable bump for program %s", programID)
}

// MetadataAddress returns the Metaplex metadata account for a mint.
func MetadataAddress(mint string) (string, error) {
	mintKey, err := DecodeSolana(mint)
	if err != nil {
		return "", err
	}
	program, err := DecodeSolana(MetaplexMetadataProgram)
	if err != nil {
		return "", err
	}
	pda, _, err := FindProgramAddress([][]byte{[]byte("metadata"), program, mintKey}, MetaplexMetadataProgram)
	return pda, err
}
