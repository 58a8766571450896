package domain

import "strings"

// minimumChargeAmounts lists Stripe's published minimum charge amounts in the
// smallest unit of each settlement currency. Currencies not listed fall back
// to DefaultMinimumChargeAmount.
//
// See https://stripe.com/docs/currencies#minimum-and-maximum-charge-amounts
var minimumChargeAmounts = map[string]int64{
	"usd": 50,
	"aed": 200,
	"aud": 50,
	"bgn": 100,
	"brl": 50,
	"cad": 50,
	"chf": 50,
	"czk": 1500,
	"dkk": 250,
	"eur": 50,
	"gbp": 30,
	"hkd": 400,
	"huf": 17500,
	"inr": 50,
	"jpy": 50,
	"mxn": 1000,
	"myr": 200,
	"nok": 300,
	"nzd": 50,
	"pln": 200,
	"ron": 200,
	"sek": 300,
	"sgd": 50,
	"thb": 1000,
}

// DefaultMinimumChargeAmount is used for currencies without a published
// minimum. Matches the USD floor.
const DefaultMinimumChargeAmount int64 = 50

// zeroDecimalCurrencies are charged in whole units rather than hundredths.
var zeroDecimalCurrencies = map[string]struct{}{
	"bif": {}, "clp": {}, "djf": {}, "gnf": {}, "jpy": {}, "kmf": {},
	"krw": {}, "mga": {}, "pyg": {}, "rwf": {}, "ugx": {}, "vnd": {},
	"vuv": {}, "xaf": {}, "xof": {}, "xpf": {},
}

// MinimumChargeAmount returns the smallest amount Stripe will charge for the
// given ISO currency code, in the currency's smallest unit.
func MinimumChargeAmount(currency string) int64 {
	if min, ok := minimumChargeAmounts[strings.ToLower(currency)]; ok {
		return min
	}
	return DefaultMinimumChargeAmount
}

// IsZeroDecimalCurrency reports whether the currency has no fractional unit.
func IsZeroDecimalCurrency(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToLower(currency)]
	return ok
}
