package mapping

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// zeroDecimalCurrencies are ISO 4217 currencies whose minor unit equals
// the major unit.
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {},
	"KRW": {}, "MGA": {}, "PYG": {}, "RWF": {}, "UGX": {}, "VND": {},
	"VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// threeDecimalCurrencies use a thousandth minor unit.
var threeDecimalCurrencies = map[string]struct{}{
	"BHD": {}, "IQD": {}, "JOD": {}, "KWD": {}, "LYD": {}, "OMR": {}, "TND": {},
}

// CurrencyExponent returns the number of minor-unit digits for a currency
func CurrencyExponent(currency string) int32 {
	code := strings.ToUpper(currency)
	if _, ok := zeroDecimalCurrencies[code]; ok {
		return 0
	}
	if _, ok := threeDecimalCurrencies[code]; ok {
		return 3
	}
	return 2
}

// MinorUnits converts a decimal amount in major units to integer minor
// units at the currency's declared precision. Amounts with residue beyond
// the currency precision are rejected rather than silently rounded, since
// they indicate a provider payload we misread.
func MinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	exp := CurrencyExponent(currency)
	scaled := amount.Shift(exp)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has sub-minor-unit precision for %s", amount, currency)
	}
	return scaled.IntPart(), nil
}

// ParseAmount parses a provider amount field, which may arrive as a JSON
// number or a decimal string, into minor units.
func ParseAmount(value any, currency string) (int64, error) {
	if currency == "" {
		return 0, fmt.Errorf("amount without currency")
	}
	var dec decimal.Decimal
	switch v := value.(type) {
	case string:
		var err error
		dec, err = decimal.NewFromString(v)
		if err != nil {
			return 0, fmt.Errorf("malformed amount %q: %w", v, err)
		}
	case float64:
		dec = decimal.NewFromFloat(v)
	case int64:
		dec = decimal.NewFromInt(v)
	case int:
		dec = decimal.NewFromInt(int64(v))
	case decimal.Decimal:
		dec = v
	default:
		return 0, fmt.Errorf("unsupported amount type %T", value)
	}
	return MinorUnits(dec, currency)
}
