package discovery

import (
	"fmt"
	"strings"

	"solana-sniper/internal/address"
	"solana-sniper/internal/domain"
)

// Known launch program IDs.
const (
	// RaydiumAMMV4 is the Raydium AMM v4 program ID.
	RaydiumAMMV4 = "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"
	// PumpFun is the pump.fun program ID.
	PumpFun = "6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P"
)

var programAliases = map[string]string{
	"raydium": RaydiumAMMV4,
	"pumpfun": PumpFun,
}

// ResolvePrograms maps aliases ("raydium", "pumpfun") to program IDs and
// validates raw IDs. Duplicates are dropped, order is kept.
func ResolvePrograms(names []string) ([]string, error) {
	seen := make(map[string]bool, len(names))
	var ids []string
	for _, name := range names {
		id, ok := programAliases[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			if _, err := address.DecodeSolana(name); err != nil {
				return nil, fmt.Errorf("%w: program %q: %v", domain.ErrFatalConfig, name, err)
			}
			id = name
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no discovery programs configured", domain.ErrFatalConfig)
	}
	return ids, nil
}
