// Package chain defines the supported blockchain tags and the unit
// conversions between native display amounts and smallest on-chain units.
package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Tag identifies a supported blockchain.
type Tag string

const (
	// EVM is the Ethereum-compatible chain.
	EVM Tag = "EVM"
	// Solana is the Solana chain.
	Solana Tag = "SOLANA"
)

// ErrInvalidAmount reports a transfer amount that failed validation.
var ErrInvalidAmount = errors.New("invalid amount")

// ErrUnknownChain reports an unsupported chain tag.
var ErrUnknownChain = errors.New("unknown chain")

// All returns every supported chain tag. Order is stable.
func All() []Tag {
	return []Tag{EVM, Solana}
}

// ParseTag resolves user-facing chain names to a Tag.
func ParseTag(s string) (Tag, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "evm", "eth", "ethereum":
		return EVM, true
	case "solana", "sol":
		return Solana, true
	}
	return "", false
}

// Decimals returns the number of decimal places between the chain's smallest
// unit and its display unit (wei -> ETH, lamports -> SOL).
func (t Tag) Decimals() int32 {
	switch t {
	case EVM:
		return 18
	case Solana:
		return 9
	}
	return 0
}

// Unit returns the display unit symbol for the chain.
func (t Tag) Unit() string {
	switch t {
	case EVM:
		return "ETH"
	case Solana:
		return "SOL"
	}
	return ""
}

// ParseAmount parses a user-supplied amount in display units. The text must
// parse as a number strictly greater than zero.
func ParseAmount(text string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: not a number", ErrInvalidAmount)
	}
	if amount.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: must be greater than zero", ErrInvalidAmount)
	}
	return amount, nil
}

// ToSmallestUnit converts a display-unit amount to the chain's smallest unit.
// Fractions below the smallest unit are rejected rather than silently truncated.
func ToSmallestUnit(t Tag, amount decimal.Decimal) (*big.Int, error) {
	dec := t.Decimals()
	if dec == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChain, t)
	}
	scaled := amount.Shift(dec)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: more than %d decimal places", ErrInvalidAmount, dec)
	}
	return scaled.BigInt(), nil
}

// FromSmallestUnit converts a smallest-unit balance to display units.
func FromSmallestUnit(t Tag, raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, 0).Shift(-t.Decimals())
}

// FormatBalance renders a smallest-unit balance for display. Solana balances
// are rounded to 4 decimal places; rounding here is presentation only.
func FormatBalance(t Tag, raw *big.Int) string {
	amount := FromSmallestUnit(t, raw)
	if t == Solana {
		amount = amount.Round(4)
	}
	return fmt.Sprintf("%s %s", amount.String(), t.Unit())
}
