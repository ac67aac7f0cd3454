package validator

import "strings"

// CurrencyClass groups supported currencies by how their minimum transactable
// amounts are derived: fiat minimums come from the smallest cash unit,
// stablecoin minimums from processor floors, crypto minimums per asset.
type CurrencyClass string

const (
	ClassFiat       CurrencyClass = "fiat"
	ClassStablecoin CurrencyClass = "stablecoin"
	ClassCrypto     CurrencyClass = "crypto"
)

var currencyClasses = map[string]CurrencyClass{
	"USD": ClassFiat,
	"EUR": ClassFiat,
	"GBP": ClassFiat,
	"CAD": ClassFiat,
	"AUD": ClassFiat,
	"JPY": ClassFiat,
	"CHF": ClassFiat,
	"SEK": ClassFiat,
	"NOK": ClassFiat,
	"DKK": ClassFiat,

	"USDC": ClassStablecoin,
	"USDT": ClassStablecoin,
	"DAI":  ClassStablecoin,
	"BUSD": ClassStablecoin,
	"TUSD": ClassStablecoin,
	"GUSD": ClassStablecoin,

	"BTC":  ClassCrypto,
	"ETH":  ClassCrypto,
	"BNB":  ClassCrypto,
	"ADA":  ClassCrypto,
	"DOT":  ClassCrypto,
	"LINK": ClassCrypto,
	"UNI":  ClassCrypto,
	"LTC":  ClassCrypto,
	"BCH":  ClassCrypto,
	"XRP":  ClassCrypto,
}

// Per-currency minimum transactable amounts, in the currency's own unit.
// Amounts below these are rejected at construction, never clamped.
var minimumAmounts = map[string]float64{
	"USD": 0.01,
	"EUR": 0.01,
	"GBP": 0.01,
	"CAD": 0.01,
	"AUD": 0.01,
	"JPY": 1,
	"CHF": 0.01,
	"SEK": 0.01,
	"NOK": 0.01,
	"DKK": 0.01,

	"USDC": 0.50,
	"USDT": 0.50,
	"DAI":  0.50,
	"BUSD": 0.50,
	"TUSD": 0.50,
	"GUSD": 0.50,

	"BTC":  0.0001,
	"ETH":  0.001,
	"BNB":  0.001,
	"ADA":  1,
	"DOT":  0.1,
	"LINK": 0.1,
	"UNI":  0.01,
	"LTC":  0.001,
	"BCH":  0.001,
	"XRP":  1,
}

// IsSupportedCurrency reports whether code is a known currency (case-insensitive).
func IsSupportedCurrency(code string) bool {
	_, ok := currencyClasses[strings.ToUpper(code)]
	return ok
}

// ClassOf returns the class of a supported currency, or an empty class for
// unknown codes.
func ClassOf(code string) CurrencyClass {
	return currencyClasses[strings.ToUpper(code)]
}

// MinimumTransactable returns the minimum transactable amount for a supported
// currency. The second return value is false for unknown currencies.
func MinimumTransactable(code string) (float64, bool) {
	min, ok := minimumAmounts[strings.ToUpper(code)]
	return min, ok
}

// SupportedCurrencies returns all supported currency codes. The result is a
// fresh slice; callers may mutate it freely.
func SupportedCurrencies() []string {
	codes := make([]string, 0, len(currencyClasses))
	for code := range currencyClasses {
		codes = append(codes, code)
	}
	return codes
}
