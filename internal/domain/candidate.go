package domain

// Candidate represents a newly discovered asset awaiting admission.
type Candidate struct {
	ID           string  // deterministic hash of (network, address)
	Network      Network // chain the asset lives on
	Address      string  // token contract or mint address
	Pool         *string // pool address (nullable)
	TxSignature  string  // discovery transaction, empty when unknown
	DiscoveredAt int64   // Unix timestamp in milliseconds
	QuickScore   float64 // [0,100]; orders the intake queue
}

// Key returns the (network, address) identity used for deduplication.
func (c *Candidate) Key() string {
	return CandidateKey(c.Network, c.Address)
}

// CandidateKey builds the deduplication key for a network and address.
func CandidateKey(network Network, address string) string {
	return string(network) + ":" + address
}
