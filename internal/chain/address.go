package chain

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/gagliardetto/solana-go"
)

// ErrInvalidAddress reports a destination address that failed validation for
// its chain. Malformed and off-curve Solana keys share this error class.
var ErrInvalidAddress = errors.New("invalid address")

// evmAddressRe matches a 0x-prefixed 40-hex-digit address. The prefix is
// mandatory; go-ethereum's IsHexAddress tolerates its absence, which we do not.
var evmAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// ValidateAddress checks address syntax for the given chain.
// EVM addresses must match the fixed 0x-prefixed hex pattern. Solana addresses
// must parse as a base58 public key and lie on the ed25519 curve.
func ValidateAddress(t Tag, address string) error {
	switch t {
	case EVM:
		if !evmAddressRe.MatchString(address) {
			return fmt.Errorf("%w: expected 0x-prefixed 40 hex characters", ErrInvalidAddress)
		}
		return nil
	case Solana:
		pub, err := solana.PublicKeyFromBase58(address)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		if !pub.IsOnCurve() {
			return fmt.Errorf("%w: public key is not on the curve", ErrInvalidAddress)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownChain, t)
}
