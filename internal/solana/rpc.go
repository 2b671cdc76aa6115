package solana

import "context"

// RPCClient is the subset of Solana JSON-RPC used by discovery and analysis.
// Lookups of unknown transactions or accounts return nil with no error.
type RPCClient interface {
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetTokenLargestAccounts returns up to 20 of the largest holder
	// accounts of a mint.
	GetTokenLargestAccounts(ctx context.Context, mint string) ([]TokenAccountBalance, error)
	GetTokenSupply(ctx context.Context, mint string) (*TokenAmount, error)
}

// Transaction is the part of a confirmed transaction that launch
// resolution reads.
type Transaction struct {
	Signature string
	Slot      int64
	BlockTime int64 // unix seconds, 0 when the node has none
	Meta      *TransactionMeta
	Message   *TransactionMessage
}

type TransactionMeta struct {
	Err               any            `json:"err"`
	LogMessages       []string       `json:"logMessages"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

type TransactionMessage struct {
	AccountKeys []string `json:"accountKeys"`
}

// TokenBalance is one entry of a transaction's post token balances.
type TokenBalance struct {
	AccountIndex int    `json:"accountIndex"`
	Mint         string `json:"mint"`
	Owner        string `json:"owner"`
}

// AccountInfo is an account with its data still base64 encoded.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       string
	Executable bool
	RentEpoch  uint64
}

// TokenAmount is an SPL token quantity as returned by the RPC.
type TokenAmount struct {
	Amount   string  `json:"amount"` // raw integer amount
	Decimals int     `json:"decimals"`
	UIAmount float64 `json:"uiAmount"`
}

// TokenAccountBalance is one holder account from getTokenLargestAccounts.
type TokenAccountBalance struct {
	Address string `json:"address"`
	TokenAmount
}
