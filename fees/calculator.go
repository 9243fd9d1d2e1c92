/*
calculator.go - Fee amount calculation

PURPOSE:
  Turns a resolved rate into a monetary amount. Pure arithmetic, exact
  decimals, two-decimal currency precision. Callers treat zero or negative
  results as "no assessment" and never persist them.
*/
package fees

import "github.com/shopspring/decimal"

// CalculateAmount computes base rate x quantity, rounded to two decimal
// places.
func CalculateAmount(info RateInfo) decimal.Decimal {
	return info.BaseRate.Mul(info.Quantity).Round(2)
}
