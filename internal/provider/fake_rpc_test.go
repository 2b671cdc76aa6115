package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"sync"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"solana-sniper/internal/solana"
)

type fakeRPC struct {
	mu         sync.Mutex
	accounts   map[string]*solana.AccountInfo
	signatures map[string][]solana.SignatureInfo
	largest    map[string][]solana.TokenAccountBalance
	supply     map[string]*solana.TokenAmount
	calls      map[string]int
	err        error
}

var _ solana.RPCClient = (*fakeRPC)(nil)

func newFakeRPC() *fakeRPC {
	return &fakeRPC{
		accounts:   map[string]*solana.AccountInfo{},
		signatures: map[string][]solana.SignatureInfo{},
		largest:    map[string][]solana.TokenAccountBalance{},
		supply:     map[string]*solana.TokenAmount{},
		calls:      map[string]int{},
	}
}

func (f *fakeRPC) count(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.err
}

func (f *fakeRPC) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRPC) GetTransaction(context.Context, string) (*solana.Transaction, error) {
	return nil, f.count("getTransaction")
}

func (f *fakeRPC) GetSignaturesForAddress(_ context.Context, address string, _ *solana.SignaturesOpts) ([]solana.SignatureInfo, error) {
	if err := f.count("getSignaturesForAddress"); err != nil {
		return nil, err
	}
	return f.signatures[address], nil
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	if err := f.count("getAccountInfo"); err != nil {
		return nil, err
	}
	return f.accounts[pubkey], nil
}

func (f *fakeRPC) GetTokenLargestAccounts(_ context.Context, mint string) ([]solana.TokenAccountBalance, error) {
	if err := f.count("getTokenLargestAccounts"); err != nil {
		return nil, err
	}
	return f.largest[mint], nil
}

func (f *fakeRPC) GetTokenSupply(_ context.Context, mint string) (*solana.TokenAmount, error) {
	if err := f.count("getTokenSupply"); err != nil {
		return nil, err
	}
	return f.supply[mint], nil
}

// key returns a deterministic base58 public key.
func key(b byte) string {
	return base58.Encode(bytes.Repeat([]byte{b}, 32))
}

// onCurveKey returns a key that has a private key (the ed25519 base point).
func onCurveKey() []byte {
	return edwards25519.NewGeneratorPoint().Bytes()
}

func mintData(mintAuth, freezeAuth []byte) string {
	raw := make([]byte, 82)
	if mintAuth != nil {
		binary.LittleEndian.PutUint32(raw[0:4], 1)
		copy(raw[4:36], mintAuth)
	}
	binary.LittleEndian.PutUint64(raw[36:44], 1_000_000_000)
	raw[44] = 6
	raw[45] = 1
	if freezeAuth != nil {
		binary.LittleEndian.PutUint32(raw[46:50], 1)
		copy(raw[50:82], freezeAuth)
	}
	return base64.StdEncoding.EncodeToString(raw)
}
