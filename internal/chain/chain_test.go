package chain

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/etherfuse-arb/internal/crypto"
)

type fakeRPC struct {
	mu        sync.Mutex
	blockhash solana.Hash
	accounts  map[solana.PublicKey][]byte
	sent      []*solana.Transaction
	statuses  []*rpc.SignatureStatusesResult
	polls     int
}

func (f *fakeRPC) GetLatestBlockhash(context.Context, rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	return &rpc.GetLatestBlockhashResult{Value: &rpc.LatestBlockhashResult{Blockhash: f.blockhash}}, nil
}

func (f *fakeRPC) GetAccountInfo(_ context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	data, ok := f.accounts[account]
	if !ok {
		return nil, rpc.ErrNotFound
	}
	return &rpc.GetAccountInfoResult{Value: &rpc.Account{Data: rpc.DataBytesOrJSONFromBytes(data)}}, nil
}

func (f *fakeRPC) SendTransactionWithOpts(_ context.Context, tx *solana.Transaction, _ rpc.TransactionOpts) (solana.Signature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return tx.Signatures[0], nil
}

func (f *fakeRPC) GetSignatureStatuses(context.Context, bool, ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.polls
	if idx >= len(f.statuses) {
		idx = len(f.statuses) - 1
	}
	f.polls++
	return &rpc.GetSignatureStatusesResult{Value: []*rpc.SignatureStatusesResult{f.statuses[idx]}}, nil
}

func newTestClient(t *testing.T, r RPC) (*Client, solana.PrivateKey) {
	t.Helper()
	key := solana.NewWallet().PrivateKey
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(r, key, ClientConfig{ComputeUnitPrice: 100_000, ConfirmPollInterval: time.Millisecond}, logger), key
}

func writeKeygenFile(t *testing.T, key solana.PrivateKey) string {
	t.Helper()
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	data, err := json.Marshal(ints)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadKeypairPlain(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	path := writeKeygenFile(t, key)

	got, err := LoadKeypair(path, "")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), got.PublicKey())
}

func TestLoadKeypairEncrypted(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	blob, err := crypto.EncryptKey(key, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "id.enc.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := LoadKeypair(path, "pw")
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), got.PublicKey())

	_, err = LoadKeypair(path, "wrong")
	assert.Error(t, err)
}

func TestLoadKeypairRequiresPath(t *testing.T) {
	_, err := LoadKeypair("", "")
	assert.ErrorContains(t, err, "--keypair")
}

func TestAssociatedTokenAddresses(t *testing.T) {
	wallet := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	spl, err := AssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	t22, err := AssociatedToken2022Address(wallet, mint)
	require.NoError(t, err)

	want, _, err := solana.FindAssociatedTokenAddress(wallet, mint)
	require.NoError(t, err)
	assert.Equal(t, want, spl)
	assert.NotEqual(t, spl, t22)
}

func tokenAccountData(amount uint64) []byte {
	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[64:72], amount)
	return data
}

func TestDecodeTokenAmount(t *testing.T) {
	got, err := DecodeTokenAmount(tokenAccountData(42_000_000))
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), got)

	_, err = DecodeTokenAmount(make([]byte, 10))
	assert.Error(t, err)
}

func TestTokenBalances(t *testing.T) {
	f := &fakeRPC{accounts: map[solana.PublicKey][]byte{}}
	c, key := newTestClient(t, f)

	ata, err := AssociatedTokenAddress(key.PublicKey(), USDCMint)
	require.NoError(t, err)
	f.accounts[ata] = tokenAccountData(5_000_000)

	usdc, err := c.USDCBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), usdc)

	bond, err := c.StablebondBalance(context.Background(), solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Zero(t, bond, "missing account is an empty balance")
}

func TestBuildAndSign(t *testing.T) {
	f := &fakeRPC{blockhash: solana.Hash{9, 9, 9}}
	c, key := newTestClient(t, f)

	ix := system.NewTransferInstruction(1, key.PublicKey(), solana.NewWallet().PublicKey()).Build()
	tx, err := c.BuildAndSign(context.Background(), ix)
	require.NoError(t, err)

	assert.Equal(t, f.blockhash, tx.Message.RecentBlockhash)
	assert.Equal(t, key.PublicKey(), tx.Message.AccountKeys[0], "wallet pays")
	require.Len(t, tx.Message.Instructions, 2)

	budgetProgram := computebudget.NewSetComputeUnitPriceInstruction(1).Build().ProgramID()
	first := tx.Message.Instructions[0]
	assert.Equal(t, budgetProgram, tx.Message.AccountKeys[first.ProgramIDIndex])
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}

func TestSignReplacesExistingSignatures(t *testing.T) {
	f := &fakeRPC{blockhash: solana.Hash{1}}
	c, key := newTestClient(t, f)

	ix := system.NewTransferInstruction(1, key.PublicKey(), solana.NewWallet().PublicKey()).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, f.blockhash, solana.TransactionPayer(key.PublicKey()))
	require.NoError(t, err)
	tx.Signatures = []solana.Signature{{1, 2, 3}}

	require.NoError(t, c.Sign(tx))
	require.Len(t, tx.Signatures, 1)
	assert.NoError(t, tx.VerifySignatures())
}

func TestSendAndConfirm(t *testing.T) {
	f := &fakeRPC{
		blockhash: solana.Hash{1},
		statuses: []*rpc.SignatureStatusesResult{
			nil,
			{ConfirmationStatus: rpc.ConfirmationStatusProcessed},
			{ConfirmationStatus: rpc.ConfirmationStatusConfirmed, Slot: 77},
		},
	}
	c, key := newTestClient(t, f)

	ix := system.NewTransferInstruction(1, key.PublicKey(), solana.NewWallet().PublicKey()).Build()
	tx, err := c.BuildAndSign(context.Background(), ix)
	require.NoError(t, err)

	sig, err := c.SendAndConfirm(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
	assert.Equal(t, 3, f.polls)
	assert.Len(t, f.sent, 1)
}

func TestSendAndConfirmOnChainError(t *testing.T) {
	f := &fakeRPC{
		blockhash: solana.Hash{1},
		statuses: []*rpc.SignatureStatusesResult{
			{ConfirmationStatus: rpc.ConfirmationStatusProcessed, Err: map[string]any{"InstructionError": []any{0, "Custom"}}},
		},
	}
	c, key := newTestClient(t, f)

	ix := system.NewTransferInstruction(1, key.PublicKey(), solana.NewWallet().PublicKey()).Build()
	tx, err := c.BuildAndSign(context.Background(), ix)
	require.NoError(t, err)

	_, err = c.SendAndConfirm(context.Background(), tx)
	assert.ErrorContains(t, err, "failed")
}

func TestSendAndConfirmHonoursContext(t *testing.T) {
	f := &fakeRPC{
		blockhash: solana.Hash{1},
		statuses:  []*rpc.SignatureStatusesResult{nil},
	}
	c, key := newTestClient(t, f)

	ix := system.NewTransferInstruction(1, key.PublicKey(), solana.NewWallet().PublicKey()).Build()
	tx, err := c.BuildAndSign(context.Background(), ix)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.SendAndConfirm(ctx, tx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
