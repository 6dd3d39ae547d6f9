package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"testing"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/internal/chain"
	"github.com/m3rciful/walletbot/internal/custody"
	"github.com/m3rciful/walletbot/internal/store"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Options{Level: "error"})
	os.Exit(m.Run())
}

type fakeStore struct {
	accounts map[string]*store.Account
	inserts  int
	// conflictWith makes the next InsertIfAbsent report a lost race and
	// installs this account as the committed winner.
	conflictWith *store.Account
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[string]*store.Account)}
}

func (f *fakeStore) FindByIdentity(_ context.Context, id string) (*store.Account, error) {
	if acct, ok := f.accounts[id]; ok {
		return acct, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) InsertIfAbsent(_ context.Context, acct *store.Account) (bool, error) {
	if f.conflictWith != nil {
		f.accounts[acct.ChatIdentity] = f.conflictWith
		f.conflictWith = nil
		return false, nil
	}
	if _, ok := f.accounts[acct.ChatIdentity]; ok {
		return false, nil
	}
	f.inserts++
	f.accounts[acct.ChatIdentity] = acct
	return true, nil
}

type fakeCustody struct {
	calls    int
	failTags map[chain.Tag]bool
	keys     []string
}

func (f *fakeCustody) CreateChainAccount(_ context.Context, key string, tag chain.Tag) (custody.Binding, error) {
	f.calls++
	f.keys = append(f.keys, key)
	if f.failTags[tag] {
		return custody.Binding{}, fmt.Errorf("%w: boom", custody.ErrProvider)
	}
	return custody.Binding{
		Address:        fmt.Sprintf("%s-addr-%s", tag, key),
		KeyShareHandle: fmt.Sprintf("%s-share-%s", tag, key),
	}, nil
}

type fakeReader struct {
	raw *big.Int
	err error
}

func (f *fakeReader) Balance(context.Context, string) (*big.Int, error) {
	return f.raw, f.err
}

func newService(st Store, cust Custody, readers map[chain.Tag]BalanceReader) *Service {
	return NewService(st, cust, readers, "test-ns")
}

func TestProvisionCreatesAllChains(t *testing.T) {
	st := newFakeStore()
	cust := &fakeCustody{}
	svc := newService(st, cust, nil)

	acct, err := svc.Provision(context.Background(), "1001", "alice")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if len(acct.Chains) != 2 {
		t.Fatalf("chains = %d, want 2", len(acct.Chains))
	}
	for _, tag := range chain.All() {
		if _, ok := acct.Binding(tag); !ok {
			t.Errorf("missing binding for %s", tag)
		}
	}
	if st.inserts != 1 {
		t.Errorf("inserts = %d, want 1", st.inserts)
	}
	for _, key := range cust.keys {
		if key != "test-ns:1001" {
			t.Errorf("identity key = %q, want test-ns:1001", key)
		}
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	st := newFakeStore()
	cust := &fakeCustody{}
	svc := newService(st, cust, nil)

	first, err := svc.Provision(context.Background(), "1001", "alice")
	if err != nil {
		t.Fatalf("first Provision: %v", err)
	}
	second, err := svc.Provision(context.Background(), "1001", "alice")
	if err != nil {
		t.Fatalf("second Provision: %v", err)
	}
	if first != second {
		t.Error("second Provision returned a different account")
	}
	if st.inserts != 1 {
		t.Errorf("inserts = %d, want 1", st.inserts)
	}
	if cust.calls != 2 {
		t.Errorf("custody calls = %d, want 2 (one per chain, first pass only)", cust.calls)
	}
}

func TestProvisionAtomicOnCustodyFailure(t *testing.T) {
	st := newFakeStore()
	cust := &fakeCustody{failTags: map[chain.Tag]bool{chain.Solana: true}}
	svc := newService(st, cust, nil)

	_, err := svc.Provision(context.Background(), "1001", "alice")
	if !errors.Is(err, ErrProvisioningFailed) {
		t.Fatalf("err = %v, want ErrProvisioningFailed", err)
	}
	if st.inserts != 0 {
		t.Errorf("inserts = %d, want 0 (no partial account)", st.inserts)
	}
	if _, err := st.FindByIdentity(context.Background(), "1001"); !errors.Is(err, store.ErrNotFound) {
		t.Error("partial account was persisted")
	}
}

func TestProvisionLostRaceReturnsWinner(t *testing.T) {
	st := newFakeStore()
	winner := &store.Account{ChatIdentity: "1001", DisplayName: "first"}
	cust := &fakeCustody{}
	svc := newService(st, cust, nil)

	st.conflictWith = winner

	acct, err := svc.Provision(context.Background(), "1001", "alice")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	if acct != winner {
		t.Error("expected the committed account to be returned after conflict")
	}
}

func TestProvisionRequiresIdentity(t *testing.T) {
	svc := newService(newFakeStore(), &fakeCustody{}, nil)
	if _, err := svc.Provision(context.Background(), "", "alice"); !errors.Is(err, ErrIdentityMissing) {
		t.Fatalf("err = %v, want ErrIdentityMissing", err)
	}
}

func TestAccountMissing(t *testing.T) {
	svc := newService(newFakeStore(), &fakeCustody{}, nil)
	if _, err := svc.Account(context.Background(), "1001"); !errors.Is(err, ErrAccountMissing) {
		t.Fatalf("err = %v, want ErrAccountMissing", err)
	}
}

func TestBalancesIsolatesChainFailures(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, &fakeCustody{}, map[chain.Tag]BalanceReader{
		chain.EVM:    &fakeReader{err: errors.New("rpc down")},
		chain.Solana: &fakeReader{raw: big.NewInt(5_000_000_000)},
	})

	acct := &store.Account{
		ChatIdentity: "1001",
		Chains: map[chain.Tag]store.ChainBinding{
			chain.EVM:    {Address: "0xabc"},
			chain.Solana: {Address: "sol-addr"},
		},
	}

	results := svc.Balances(context.Background(), acct)
	if len(results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(results))
	}
	if results[chain.EVM].Err == nil {
		t.Error("expected EVM failure to be reported")
	}
	if results[chain.Solana].Err != nil {
		t.Fatalf("Solana result err = %v, want nil", results[chain.Solana].Err)
	}
	if results[chain.Solana].Raw.Cmp(big.NewInt(5_000_000_000)) != 0 {
		t.Errorf("Solana balance = %s, want 5000000000", results[chain.Solana].Raw)
	}
}

func TestProvisionThenBalances(t *testing.T) {
	st := newFakeStore()
	svc := newService(st, &fakeCustody{}, map[chain.Tag]BalanceReader{
		chain.EVM:    &fakeReader{raw: big.NewInt(0)},
		chain.Solana: &fakeReader{raw: big.NewInt(0)},
	})

	acct, err := svc.Provision(context.Background(), "1001", "alice")
	if err != nil {
		t.Fatalf("Provision: %v", err)
	}
	results := svc.Balances(context.Background(), acct)
	for _, tag := range chain.All() {
		res, ok := results[tag]
		if !ok {
			t.Fatalf("missing result for %s", tag)
		}
		if res.Err != nil {
			t.Errorf("%s err = %v, want nil", tag, res.Err)
		}
		if res.Raw.Sign() != 0 {
			t.Errorf("%s balance = %s, want 0", tag, res.Raw)
		}
	}
}
