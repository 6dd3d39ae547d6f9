package transfer

import (
	"context"
	"errors"
	"math/big"
	"os"
	"strings"
	"testing"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/internal/chain"
	"github.com/m3rciful/walletbot/internal/store"
	"github.com/m3rciful/walletbot/internal/wallet"
)

func TestMain(m *testing.M) {
	logger.Init(logger.Options{Level: "error"})
	os.Exit(m.Run())
}

const validEVMAddress = "0xABCDEF0123456789ABCDEF0123456789ABCDEF01"

type fakeResolver struct {
	acct *store.Account
	err  error
}

func (f *fakeResolver) FindByIdentity(context.Context, string) (*store.Account, error) {
	return f.acct, f.err
}

type fakeSigner struct {
	calls     int
	txID      string
	err       error
	gotHandle string
	gotChain  chain.Tag
	gotDest   string
	gotAmount *big.Int
}

func (f *fakeSigner) SignAndSend(_ context.Context, handle string, tag chain.Tag, dest string, amount *big.Int) (string, error) {
	f.calls++
	f.gotHandle = handle
	f.gotChain = tag
	f.gotDest = dest
	f.gotAmount = amount
	return f.txID, f.err
}

func testAccount() *store.Account {
	return &store.Account{
		ID:           1,
		ChatIdentity: "1001",
		DisplayName:  "alice",
		Chains: map[chain.Tag]store.ChainBinding{
			chain.EVM:    {Address: "0x1111111111111111111111111111111111111111", KeyShareHandle: "evm-share"},
			chain.Solana: {Address: "Fs2vrLXPTk6b7XvvwV7zJLx2Apf5DRZQLPniXncLAuu7", KeyShareHandle: "sol-share"},
		},
	}
}

func newTestMachine(resolver AccountResolver, signer Signer) *Machine {
	return NewMachine(resolver, NewExecutor(signer, nil))
}

func TestGuidedTransferCompletes(t *testing.T) {
	acct := testAccount()
	signer := &fakeSigner{txID: "0xfeed"}
	m := newTestMachine(&fakeResolver{acct: acct}, signer)

	sess, prompt, err := m.Start(acct, chain.EVM)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.State != AwaitingAddress {
		t.Fatalf("state = %s, want %s", sess.State, AwaitingAddress)
	}
	if prompt == "" {
		t.Fatal("expected an address prompt")
	}

	reply := m.Advance(context.Background(), sess, validEVMAddress)
	if sess.State != AwaitingAmount {
		t.Fatalf("state = %s, want %s", sess.State, AwaitingAmount)
	}
	if reply == "" {
		t.Fatal("expected an amount prompt")
	}

	reply = m.Advance(context.Background(), sess, "0.05")
	if sess.State != Completed {
		t.Fatalf("state = %s, want %s", sess.State, Completed)
	}
	if !strings.Contains(reply, "0xfeed") {
		t.Errorf("confirmation %q does not include the transaction id", reply)
	}

	if signer.calls != 1 {
		t.Fatalf("signer calls = %d, want 1", signer.calls)
	}
	if signer.gotHandle != "evm-share" {
		t.Errorf("signer handle = %q, want evm-share", signer.gotHandle)
	}
	if signer.gotDest != validEVMAddress {
		t.Errorf("signer destination = %q, want %q", signer.gotDest, validEVMAddress)
	}
	wantWei, _ := new(big.Int).SetString("50000000000000000", 10)
	if signer.gotAmount.Cmp(wantWei) != 0 {
		t.Errorf("signer amount = %s wei, want %s", signer.gotAmount, wantWei)
	}
}

func TestInvalidAddressAborts(t *testing.T) {
	acct := testAccount()
	signer := &fakeSigner{txID: "tx"}
	m := newTestMachine(&fakeResolver{acct: acct}, signer)

	sess, _, err := m.Start(acct, chain.EVM)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	reply := m.Advance(context.Background(), sess, "not-an-address")
	if sess.State != Aborted {
		t.Fatalf("state = %s, want %s", sess.State, Aborted)
	}
	if reply == "" {
		t.Fatal("expected a failure explanation")
	}
	if signer.calls != 0 {
		t.Errorf("signer calls = %d, want 0", signer.calls)
	}
}

func TestNegativeAmountAbortsWithoutExecuting(t *testing.T) {
	acct := testAccount()
	signer := &fakeSigner{txID: "tx"}
	m := newTestMachine(&fakeResolver{acct: acct}, signer)

	sess, _, err := m.Start(acct, chain.EVM)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Advance(context.Background(), sess, validEVMAddress)

	reply := m.Advance(context.Background(), sess, "-3")
	if sess.State != Aborted {
		t.Fatalf("state = %s, want %s", sess.State, Aborted)
	}
	if reply == "" {
		t.Fatal("expected a failure explanation")
	}
	if signer.calls != 0 {
		t.Errorf("signer calls = %d, want 0", signer.calls)
	}
}

func TestNonNumericAmountAborts(t *testing.T) {
	acct := testAccount()
	signer := &fakeSigner{}
	m := newTestMachine(&fakeResolver{acct: acct}, signer)

	sess, _, _ := m.Start(acct, chain.Solana)
	m.Advance(context.Background(), sess, "Fs2vrLXPTk6b7XvvwV7zJLx2Apf5DRZQLPniXncLAuu7")
	m.Advance(context.Background(), sess, "lots")
	if sess.State != Aborted {
		t.Fatalf("state = %s, want %s", sess.State, Aborted)
	}
	if signer.calls != 0 {
		t.Errorf("signer calls = %d, want 0", signer.calls)
	}
}

func TestAccountGoneAtExecutionAborts(t *testing.T) {
	acct := testAccount()
	signer := &fakeSigner{txID: "tx"}
	// The account disappears between session start and execution.
	m := newTestMachine(&fakeResolver{err: store.ErrNotFound}, signer)

	sess, _, err := m.Start(acct, chain.EVM)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	m.Advance(context.Background(), sess, validEVMAddress)
	reply := m.Advance(context.Background(), sess, "1")
	if sess.State != Aborted {
		t.Fatalf("state = %s, want %s", sess.State, Aborted)
	}
	if !strings.Contains(reply, "/start") {
		t.Errorf("reply %q should tell the user to register again", reply)
	}
	if signer.calls != 0 {
		t.Errorf("signer calls = %d, want 0", signer.calls)
	}
}

func TestExecutionFailureAborts(t *testing.T) {
	acct := testAccount()
	signer := &fakeSigner{err: errors.New("broadcast refused")}
	m := newTestMachine(&fakeResolver{acct: acct}, signer)

	sess, _, _ := m.Start(acct, chain.EVM)
	m.Advance(context.Background(), sess, validEVMAddress)
	reply := m.Advance(context.Background(), sess, "0.5")
	if sess.State != Aborted {
		t.Fatalf("state = %s, want %s", sess.State, Aborted)
	}
	if reply == "" {
		t.Fatal("expected a failure explanation")
	}
	if signer.calls != 1 {
		t.Errorf("signer calls = %d, want exactly 1 (no retry)", signer.calls)
	}
}

func TestStartRequiresChainBinding(t *testing.T) {
	acct := testAccount()
	delete(acct.Chains, chain.Solana)
	m := newTestMachine(&fakeResolver{acct: acct}, &fakeSigner{})

	if _, _, err := m.Start(acct, chain.Solana); !errors.Is(err, wallet.ErrAccountMissing) {
		t.Fatalf("err = %v, want ErrAccountMissing", err)
	}
}

func TestExecutorConvertsSolanaAmount(t *testing.T) {
	acct := testAccount()
	signer := &fakeSigner{txID: "sig"}
	m := newTestMachine(&fakeResolver{acct: acct}, signer)

	sess, _, _ := m.Start(acct, chain.Solana)
	m.Advance(context.Background(), sess, "Fs2vrLXPTk6b7XvvwV7zJLx2Apf5DRZQLPniXncLAuu7")
	m.Advance(context.Background(), sess, "0.25")
	if sess.State != Completed {
		t.Fatalf("state = %s, want %s", sess.State, Completed)
	}
	if signer.gotAmount.Cmp(big.NewInt(250_000_000)) != 0 {
		t.Errorf("signer amount = %s lamports, want 250000000", signer.gotAmount)
	}
	if signer.gotChain != chain.Solana {
		t.Errorf("signer chain = %s, want %s", signer.gotChain, chain.Solana)
	}
}
