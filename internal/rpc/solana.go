package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/gagliardetto/solana-go"
	solrpc "github.com/gagliardetto/solana-go/rpc"

	"github.com/m3rciful/walletbot/core/logger"
)

// SolanaReader reads balances from a Solana RPC endpoint.
type SolanaReader struct {
	client *solrpc.Client
}

// NewSolana builds a client for the Solana RPC endpoint.
func NewSolana(rpcURL string) *SolanaReader {
	return &SolanaReader{client: solrpc.New(rpcURL)}
}

// Balance returns the finalized balance in lamports.
func (r *SolanaReader) Balance(ctx context.Context, address string) (*big.Int, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("solana balance: %w", err)
	}
	start := time.Now()
	out, err := r.client.GetBalance(ctx, pub, solrpc.CommitmentFinalized)
	logger.RPC.Debug("balance query",
		slog.String("event", "rpc.balance"),
		slog.String("chain", "SOLANA"),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	)
	if err != nil {
		return nil, fmt.Errorf("solana balance: %w", err)
	}
	return new(big.Int).SetUint64(out.Value), nil
}
