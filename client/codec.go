package client

import (
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

const (
	// BaseUnitDecimals is the number of decimal places between display and base units.
	BaseUnitDecimals = 6

	// BaseUnitFactor is the number of base units in one display unit.
	BaseUnitFactor = 1_000_000

	// MinDisplayAmount is the smallest amount the builder will submit.
	MinDisplayAmount = 0.1

	// DefaultFeeBaseUnits is the fee attached to a request when the caller supplies none.
	DefaultFeeBaseUnits uint64 = 100_000

	// AddressPrefix is the human-readable prefix of every ledger address.
	AddressPrefix = "aleo1"

	// AddressLength is the total length of a ledger address, prefix included.
	AddressLength = len(AddressPrefix) + 59

	// DefaultTreasuryAddress receives operations that do not name a recipient.
	DefaultTreasuryAddress = "aleo1MASi45ub7Qe4ZE36UT5G6cU4ud8Fhhe4deS4F3cw9KTAb8dLcukC7edhDQ7"
)

var maxBaseUnits = decimalFromUint64(math.MaxUint64)

func decimalFromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// ToBaseUnits converts a display amount into base units, flooring any
// fraction smaller than one base unit.
func ToBaseUnits(display float64) (uint64, error) {
	if math.IsNaN(display) || math.IsInf(display, 0) {
		return 0, NewError(KindValidation, "amount must be a finite number", nil)
	}
	if display < 0 {
		return 0, NewError(KindValidation, "amount must not be negative", nil)
	}

	base := decimal.NewFromFloat(display).Shift(BaseUnitDecimals).Floor()
	if base.GreaterThan(maxBaseUnits) {
		return 0, NewError(KindValidation, "amount is too large", nil)
	}
	return base.BigInt().Uint64(), nil
}

// ToDisplayUnits converts base units into a display amount.
func ToDisplayUnits(base uint64) float64 {
	f, _ := decimalFromUint64(base).Shift(-BaseUnitDecimals).Float64()
	return f
}

// IsValidAddress reports whether addr has the ledger address prefix, the
// expected length, and a base58 body.
func IsValidAddress(addr string) bool {
	if len(addr) != AddressLength || !strings.HasPrefix(addr, AddressPrefix) {
		return false
	}
	_, err := base58.Decode(addr[len(AddressPrefix):])
	return err == nil
}

// FormatAddressForDisplay shortens addr to its first head and last tail
// characters joined by an ellipsis.
func FormatAddressForDisplay(addr string, head, tail int) string {
	if head < 0 {
		head = 0
	}
	if tail < 0 {
		tail = 0
	}
	if len(addr) <= head+tail {
		return addr
	}
	return addr[:head] + "…" + addr[len(addr)-tail:]
}

// TransactionID is a transaction identifier reported by the wallet or the
// ledger. It is a claim made by an external collaborator and has not been
// checked against ledger state by this package.
type TransactionID string

var transactionIDPattern = regexp.MustCompile(`^at1[0-9a-z]{59}$`)

// WellFormed reports whether id follows the confirmed transaction id format.
func (id TransactionID) WellFormed() bool {
	return transactionIDPattern.MatchString(string(id))
}

func (id TransactionID) String() string {
	return string(id)
}
