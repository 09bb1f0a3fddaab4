// Package money converts between numeric amounts and the compact strings the
// site displays ("3.4k", "4m", "1.2b").
package money

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned by Parse when no number can be read.
var ErrInvalidAmount = errors.New("invalid amount")

var (
	numberPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
	stripChars   = strings.NewReplacer(",", "", "$", "")
)

type unit struct {
	size   float64
	suffix string
}

var units = []unit{
	{1e9, "b"},
	{1e6, "m"},
	{1e3, "k"},
}

// Format renders num in the compact display form without a currency sign.
// Units are chosen before rounding, so 999999 renders as "1000k".
func Format(num float64) string {
	if math.IsNaN(num) {
		return "0"
	}

	for _, u := range units {
		if num >= u.size {
			return strings.TrimSuffix(toFixed(num/u.size, 1), ".0") + u.suffix
		}
	}

	if num == math.Floor(num) {
		return strconv.FormatFloat(num, 'f', 0, 64)
	}

	s := toFixed(num, 2)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// FormatDollars is Format with the currency sign used across the site.
func FormatDollars(num float64) string {
	return "$" + Format(num)
}

// Parse reads amounts such as "5m", "3.4k", "$1,200", " 1.2B ". Like the
// site's input fields it accepts a numeric prefix and ignores trailing text.
func Parse(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.Fields(s), "")
	s = stripChars.Replace(s)

	multiplier := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		multiplier = 1e3
	case strings.HasSuffix(s, "m"):
		multiplier = 1e6
	case strings.HasSuffix(s, "b"):
		multiplier = 1e9
	}
	if multiplier != 1 {
		s = s[:len(s)-1]
	}

	num, ok := parsePrefix(s)
	if !ok {
		return 0, ErrInvalidAmount
	}
	return num * multiplier, nil
}

func parsePrefix(s string) (float64, bool) {
	match := numberPrefix.FindString(s)
	if match == "" {
		return 0, false
	}
	num, err := strconv.ParseFloat(match, 64)
	if err != nil || math.IsNaN(num) {
		return 0, false
	}
	return num, true
}

// toFixed rounds half away from zero before formatting, matching how the
// browser renders the same amounts.
func toFixed(num float64, digits int) string {
	p := math.Pow10(digits)
	return strconv.FormatFloat(math.Round(num*p)/p, 'f', digits, 64)
}
