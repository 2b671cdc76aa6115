package address

import (
	"errors"
	"testing"

	"solana-sniper/internal/domain"
)

const wrappedSOL = "So11111111111111111111111111111111111111112"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		network domain.Network
		address string
		want    string
		wantErr bool
	}{
		{name: "solana mint", network: domain.NetworkSolana, address: wrappedSOL, want: wrappedSOL},
		{name: "solana bad base58", network: domain.NetworkSolana, address: "0OIl", wantErr: true},
		{name: "solana short key", network: domain.NetworkSolana, address: "abc", wantErr: true},
		{
			name:    "evm checksum",
			network: domain.NetworkEthereum,
			address: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
			want:    "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed",
		},
		{name: "evm malformed", network: domain.NetworkBase, address: "0x1234", wantErr: true},
		{name: "empty", network: domain.NetworkSolana, address: "  ", wantErr: true},
		{name: "unknown network", network: domain.Network("tron"), address: wrappedSOL, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.network, tt.address)
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFindProgramAddress_IsOffCurve(t *testing.T) {
	pda, _, err := FindProgramAddress([][]byte{[]byte("seed")}, MetaplexMetadataProgram)
	if err != nil {
		t.Fatalf("FindProgramAddress: %v", err)
	}
	if !IsProgramDerived(pda) {
		t.Errorf("derived address %s should be off curve", pda)
	}

	again, _, _ := FindProgramAddress([][]byte{[]byte("seed")}, MetaplexMetadataProgram)
	if again != pda {
		t.Errorf("derivation not deterministic: %s != %s", pda, again)
	}
}

func TestMetadataAddress(t *testing.T) {
	pda, err := MetadataAddress(wrappedSOL)
	if err != nil {
		t.Fatalf("MetadataAddress: %v", err)
	}
	if _, err := DecodeSolana(pda); err != nil {
		t.Errorf("metadata address not a valid key: %v", err)
	}
	if _, err := MetadataAddress("bad"); err == nil {
		t.Error("expected error for invalid mint")
	}
}
