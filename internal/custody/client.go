// Package custody talks to the external MPC custody provider that creates
// chain accounts, holds key shares, and signs and broadcasts transactions.
package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/internal/chain"
)

// ErrProvider is the base error for custody provider failures.
var ErrProvider = errors.New("custody provider error")

// Binding is a freshly created chain account: a public address and the opaque
// key-share handle the provider expects back on signing calls.
type Binding struct {
	Address        string
	KeyShareHandle string
}

// Config holds custody client settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// CreateAttempts bounds retries on account creation. Signing is never
	// retried here: one session, one transaction attempt.
	CreateAttempts int
}

// Client is an HTTP JSON client for the custody provider API.
type Client struct {
	baseURL        string
	createAttempts int
	http           *http.Client
	log            *slog.Logger
}

// NewClient builds a custody client from config.
func NewClient(cfg Config) *Client {
	attempts := cfg.CreateAttempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:        cfg.BaseURL,
		createAttempts: attempts,
		http: &http.Client{
			Timeout: timeout,
			Transport: &authTransport{
				base:   http.DefaultTransport,
				apiKey: cfg.APIKey,
			},
		},
		log: logger.CUST,
	}
}

// authTransport adds API key authentication to provider requests.
type authTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}
	return t.base.RoundTrip(req)
}

type createAccountRequest struct {
	RequestID   string `json:"request_id"`
	IdentityKey string `json:"identity_key"`
	ChainType   string `json:"chain_type"`
}

type createAccountResponse struct {
	Address        string `json:"address"`
	KeyShareHandle string `json:"key_share_handle"`
}

// CreateChainAccount asks the provider to create one chain account for the
// deterministic identity key. The request id makes retries idempotent on the
// provider side.
func (c *Client) CreateChainAccount(ctx context.Context, identityKey string, tag chain.Tag) (Binding, error) {
	req := createAccountRequest{
		RequestID:   uuid.NewString(),
		IdentityKey: identityKey,
		ChainType:   string(tag),
	}

	var resp createAccountResponse
	var lastErr error
	for attempt := 1; attempt <= c.createAttempts; attempt++ {
		lastErr = c.post(ctx, "/v1/accounts", req, &resp)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr != nil {
		c.log.Error("create chain account failed",
			slog.String("event", "custody.create"),
			slog.String("chain", string(tag)),
			slog.String("err", lastErr.Error()),
		)
		return Binding{}, fmt.Errorf("%w: create %s account: %v", ErrProvider, tag, lastErr)
	}
	if resp.Address == "" || resp.KeyShareHandle == "" {
		return Binding{}, fmt.Errorf("%w: create %s account: incomplete response", ErrProvider, tag)
	}

	c.log.Info("chain account created",
		slog.String("event", "custody.create"),
		slog.String("chain", string(tag)),
		slog.String("address", resp.Address),
	)
	return Binding{Address: resp.Address, KeyShareHandle: resp.KeyShareHandle}, nil
}

type signRequest struct {
	KeyShareHandle string `json:"key_share_handle"`
	ChainType      string `json:"chain_type"`
	Destination    string `json:"destination"`
	// Amount is in the chain's smallest unit, encoded as a decimal string to
	// survive values beyond int64.
	Amount string `json:"amount"`
}

type signResponse struct {
	TransactionID string `json:"transaction_id"`
}

// SignAndSend signs and broadcasts a transfer via the provider. The provider
// fails loudly: no transaction id is ever returned without a broadcast.
// Exactly one attempt is made.
func (c *Client) SignAndSend(ctx context.Context, keyShareHandle string, tag chain.Tag, destination string, amount *big.Int) (string, error) {
	req := signRequest{
		KeyShareHandle: keyShareHandle,
		ChainType:      string(tag),
		Destination:    destination,
		Amount:         amount.String(),
	}

	var resp signResponse
	if err := c.post(ctx, "/v1/transactions", req, &resp); err != nil {
		return "", fmt.Errorf("%w: sign and send on %s: %v", ErrProvider, tag, err)
	}
	if resp.TransactionID == "" {
		return "", fmt.Errorf("%w: sign and send on %s: empty transaction id", ErrProvider, tag)
	}
	return resp.TransactionID, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
