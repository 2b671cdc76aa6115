package solana

// SignatureInfo is one entry of getSignaturesForAddress, newest first.
type SignatureInfo struct {
	Signature string `json:"signature"`
	Slot      int64  `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Err       any    `json:"err"`
}

// SignaturesOpts pages through getSignaturesForAddress. Zero fields are
// left out of the request.
type SignaturesOpts struct {
	Before string
	Until  string
	Limit  int
}

// Well-known mints that are never candidates themselves.
const (
	WrappedSOLMint = "So11111111111111111111111111111111111111112"
	USDCMint       = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	USDTMint       = "Es9vMFrzaCERmJfrF4H2FYD4KCoNkY11McCe8BenwNYB"
)

// IsQuoteMint reports whether mint is a quote asset rather than a new token.
func IsQuoteMint(mint string) bool {
	switch mint {
	case WrappedSOLMint, USDCMint, USDTMint:
		return true
	}
	return false
}
