package domain

// Network identifies the chain a candidate is traded on.
type Network string

const (
	NetworkSolana   Network = "solana"
	NetworkEthereum Network = "ethereum"
	NetworkBase     Network = "base"
	NetworkBSC      Network = "bsc"
)

// String returns the string representation of Network.
func (n Network) String() string {
	return string(n)
}

// IsValid checks if the network is a supported value.
func (n Network) IsValid() bool {
	switch n {
	case NetworkSolana, NetworkEthereum, NetworkBase, NetworkBSC:
		return true
	}
	return false
}

// IsEVM reports whether addresses on this network are 20-byte hex addresses.
func (n Network) IsEVM() bool {
	return n == NetworkEthereum || n == NetworkBase || n == NetworkBSC
}
