// Package rpc provides read-only balance clients for the supported chains.
package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/m3rciful/walletbot/core/logger"
)

// EVMReader reads balances from an Ethereum-compatible JSON-RPC endpoint.
type EVMReader struct {
	client *ethclient.Client
}

// DialEVM connects to the EVM RPC endpoint.
func DialEVM(ctx context.Context, rpcURL string) (*EVMReader, error) {
	start := time.Now()
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	logger.RPC.Info("evm rpc connected",
		slog.String("event", "rpc.dial"),
		slog.String("chain", "EVM"),
		slog.Duration("duration", logger.Took(start)),
	)
	return &EVMReader{client: client}, nil
}

// Balance returns the latest balance in wei.
func (r *EVMReader) Balance(ctx context.Context, address string) (*big.Int, error) {
	start := time.Now()
	bal, err := r.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	logger.RPC.Debug("balance query",
		slog.String("event", "rpc.balance"),
		slog.String("chain", "EVM"),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	)
	if err != nil {
		return nil, fmt.Errorf("evm balance: %w", err)
	}
	return bal, nil
}

// Close releases the underlying RPC connection.
func (r *EVMReader) Close() {
	r.client.Close()
}
