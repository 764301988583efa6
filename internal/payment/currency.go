package payment

import (
	"math"
	"strings"
)

// Zero-decimal currencies are charged in whole units; everything else uses
// a 1/100 minor unit.
var currencyMinorUnits = map[string]int64{
	"BIF": 1,
	"CLP": 1,
	"DJF": 1,
	"GNF": 1,
	"JPY": 1,
	"KMF": 1,
	"KRW": 1,
	"MGA": 1,
	"PYG": 1,
	"RWF": 1,
	"UGX": 1,
	"VND": 1,
	"VUV": 1,
	"XAF": 1,
	"XOF": 1,
	"XPF": 1,
}

// MinorUnitMultiplier returns the factor converting a major-unit amount of
// the given currency into the gateway's minor unit.
func MinorUnitMultiplier(currency string) int64 {
	if m, ok := currencyMinorUnits[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return m
	}
	return 100
}

// ToMinorUnits converts a major-unit amount to the integer minor-unit
// amount the gateway expects, rounding to the nearest unit.
func ToMinorUnits(amount float64, currency string) int64 {
	return int64(math.Round(amount * float64(MinorUnitMultiplier(currency))))
}

// ToMajorUnits converts a gateway-reported minor-unit amount back to major
// units.
func ToMajorUnits(amountMinor int64, currency string) float64 {
	return float64(amountMinor) / float64(MinorUnitMultiplier(currency))
}
