package currency

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatUSD renders amount as "$1,234.56".
func FormatUSD(amount float64) string {
	return Format(amount, "$")
}

// Format renders amount with two decimals, comma thousands separators and the
// given symbol prefix. Negative amounts are prefixed with "-".
func Format(amount float64, symbol string) string {
	cents := math.Round(amount * 100)

	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return sign + symbol + printer.Sprintf("%.2f", cents/100)
}
