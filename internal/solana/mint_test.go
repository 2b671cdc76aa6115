package solana

import (
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/mr-tron/base58"
)

func encodeMint(mintAuth, freezeAuth []byte, supply uint64, decimals uint8) string {
	raw := make([]byte, mintLayoutSize)
	if mintAuth != nil {
		binary.LittleEndian.PutUint32(raw[0:4], 1)
		copy(raw[4:36], mintAuth)
	}
	binary.LittleEndian.PutUint64(raw[36:44], supply)
	raw[44] = decimals
	raw[45] = 1
	if freezeAuth != nil {
		binary.LittleEndian.PutUint32(raw[46:50], 1)
		copy(raw[50:82], freezeAuth)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestParseMint(t *testing.T) {
	authority := make([]byte, 32)
	authority[0] = 7

	m, err := ParseMint(encodeMint(authority, nil, 1_000_000, 6))
	if err != nil {
		t.Fatalf("ParseMint: %v", err)
	}
	if m.MintAuthority == nil || *m.MintAuthority != base58.Encode(authority) {
		t.Errorf("MintAuthority = %v, want %s", m.MintAuthority, base58.Encode(authority))
	}
	if m.FreezeAuthority != nil {
		t.Errorf("FreezeAuthority = %v, want nil", *m.FreezeAuthority)
	}
	if m.Supply != 1_000_000 || m.Decimals != 6 || !m.IsInitialized {
		t.Errorf("unexpected mint state: %+v", m)
	}
}

func TestParseMint_Renounced(t *testing.T) {
	freeze := make([]byte, 32)
	freeze[31] = 9

	m, err := ParseMint(encodeMint(nil, freeze, 5, 9))
	if err != nil {
		t.Fatalf("ParseMint: %v", err)
	}
	if m.MintAuthority != nil {
		t.Error("mint authority should be absent")
	}
	if m.FreezeAuthority == nil {
		t.Error("freeze authority should be present")
	}
}

func TestParseMint_Short(t *testing.T) {
	if _, err := ParseMint(base64.StdEncoding.EncodeToString([]byte{1, 2, 3})); err == nil {
		t.Fatal("expected error for short data")
	}
}
