package discovery

import "solana-sniper/internal/solana"

// LaunchMint returns the token created by a launch transaction: the first
// post-balance mint that is not a quote asset. Empty if none.
func LaunchMint(tx *solana.Transaction) string {
	if tx == nil || tx.Meta == nil {
		return ""
	}
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint != "" && !solana.IsQuoteMint(b.Mint) {
			return b.Mint
		}
	}
	return ""
}
