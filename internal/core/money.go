// Package core holds the domain types shared by the store, the query layer
// and the backup machinery.
//
// This file contains the money helpers. Arithmetic is done in decimal so that
// USD snapshots and rates round the same way on every platform.
package core

import (
	"math"

	"github.com/shopspring/decimal"
)

// BaseCurrency is implicitly rate 1 and never looked up.
const BaseCurrency = "USD"

const rateScale = 6

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// ComputeUSD returns amount*rate rounded to two decimals. This is the value
// stored as a record's usdAmount at write time.
func ComputeUSD(amount, rate float64) float64 {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(amount).
		Mul(decimal.NewFromFloat(NormalizeRate(rate))).
		Round(2).
		Float64()
	return f
}

// NormalizeRate coerces non-finite and non-positive rates to 1 and rounds
// the rest to six decimals.
func NormalizeRate(rate float64) float64 {
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 1
	}
	f, _ := decimal.NewFromFloat(rate).Round(rateScale).Float64()
	if f <= 0 {
		return 1
	}
	return f
}

// SumRounded adds already rounded values and rounds the total again.
func SumRounded(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// Sub2 returns a-b rounded to two decimals.
func Sub2(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}
