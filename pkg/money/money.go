// Package money formats the decimal strings the rental API uses for prices.
// Amounts are only ever parsed for display and for the pre-submit estimate;
// the server's recorded total is authoritative.
package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Currency is appended by FormatWithCurrency.
const Currency = "so'm"

// Parse reads a decimal string such as "450000.00".
func Parse(amount string) (float64, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return 0, fmt.Errorf("empty amount")
	}
	v, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return v, nil
}

// Format renders amount with grouping separators. Whole amounts drop their
// fraction ("450000.00" -> "450,000"). Unparseable input is returned as is.
func Format(amount string) string {
	v, err := Parse(amount)
	if err != nil {
		return amount
	}
	return formatFloat(v)
}

// FormatWithCurrency is Format followed by the currency name.
func FormatWithCurrency(amount string) string {
	return Format(amount) + " " + Currency
}

func formatFloat(v float64) string {
	if v == math.Trunc(v) {
		return humanize.FormatFloat("#,###.", v)
	}
	return humanize.FormatFloat("#,###.##", v)
}

// RentalDays counts calendar days between start and end inclusively, so a
// same-day rental is one day.
func RentalDays(start, end time.Time) int {
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		return 0
	}
	return days
}

// Estimate multiplies the daily price by the number of days and returns the
// formatted total. It is an estimate shown before submission only.
func Estimate(pricePerDay string, days int) (string, error) {
	v, err := Parse(pricePerDay)
	if err != nil {
		return "", err
	}
	return formatFloat(v * float64(days)), nil
}
