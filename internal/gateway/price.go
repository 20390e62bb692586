package gateway

import (
	"math/big"
	"strings"

	"github.com/educhain-network/educhain-go/internal/educhain"
)

// Unit-correction rule for course prices. Draft prices are decimal strings
// in whole-currency units; inputs above the threshold are treated as
// likely already-scaled (a teacher typing "50" meaning 0.05) and divided
// by the divisor before base-unit conversion.
//
// This is a documented guess-correcting policy carried over unchanged from
// the original client. It is not precision-safe and must not be refined
// without confirming the intended semantics.
const (
	priceUnitThreshold = 10
	priceUnitDivisor   = 1000
)

// baseUnitsPerCoin is 10^18: prices are stored and transferred in the
// ledger's smallest indivisible unit.
var baseUnitsPerCoin = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// ParsePrice converts a draft price string into base units, applying the
// documented unit-correction rule. The result is exact: inputs that do not
// land on a whole number of base units are rejected.
func ParsePrice(input string) (*big.Int, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, educhain.NewError(educhain.ErrCodeValidation, "price is required")
	}

	value, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return nil, educhain.NewError(educhain.ErrCodeValidation, "price must be a decimal number: "+trimmed)
	}
	if value.Sign() < 0 {
		return nil, educhain.NewError(educhain.ErrCodeValidation, "price must be non-negative: "+trimmed)
	}

	if value.Cmp(new(big.Rat).SetInt64(priceUnitThreshold)) > 0 {
		value.Quo(value, new(big.Rat).SetInt64(priceUnitDivisor))
	}

	value.Mul(value, new(big.Rat).SetInt(baseUnitsPerCoin))
	if !value.IsInt() {
		return nil, educhain.NewError(educhain.ErrCodeValidation,
			"price has more precision than the ledger's base unit: "+trimmed)
	}
	return new(big.Int).Set(value.Num()), nil
}

// FormatPrice renders a base-unit amount as a whole-currency decimal
// string, the inverse of ParsePrice without the unit-correction rule.
func FormatPrice(baseUnits *big.Int) string {
	if baseUnits == nil {
		return "0"
	}
	value := new(big.Rat).SetFrac(new(big.Int).Set(baseUnits), baseUnitsPerCoin)
	out := value.FloatString(18)
	out = strings.TrimRight(out, "0")
	return strings.TrimSuffix(out, ".")
}
