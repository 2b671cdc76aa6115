package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// SPL token program ids.
const (
	TokenProgram     = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022Program = "TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb"
)

// mintLayoutSize is the fixed prefix of an SPL mint account; Token-2022
// extensions follow it.
const mintLayoutSize = 82

// Mint is the decoded state of an SPL mint account.
type Mint struct {
	MintAuthority   *string
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority *string
	Program         string // owning token program, set by the caller
}

// IsTokenProgram reports whether owner is an SPL token program.
func IsTokenProgram(owner string) bool {
	return owner == TokenProgram || owner == Token2022Program
}

// ParseMint decodes base64 account data using the SPL mint layout.
func ParseMint(data string) (*Mint, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode mint data: %w", err)
	}
	if len(raw) < mintLayoutSize {
		return nil, fmt.Errorf("mint data too short: %d bytes", len(raw))
	}

	m := &Mint{
		MintAuthority:   readOptionalKey(raw[0:36]),
		Supply:          binary.LittleEndian.Uint64(raw[36:44]),
		Decimals:        raw[44],
		IsInitialized:   raw[45] == 1,
		FreezeAuthority: readOptionalKey(raw[46:82]),
	}
	return m, nil
}

// readOptionalKey decodes a COption<Pubkey>: u32 tag followed by 32 bytes.
func readOptionalKey(b []byte) *string {
	if binary.LittleEndian.Uint32(b[0:4]) == 0 {
		return nil
	}
	key := base58.Encode(b[4:36])
	return &key
}
