package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/tender-intel/internal/model"
)

// Budget is a parsed money figure or range.
type Budget struct {
	Min      *float64
	Max      *float64
	Currency string
}

var (
	amountRe = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(billion|bn|million|mn|m|thousand|k)?\b`)

	currencyMarkers = []struct {
		marker   string
		currency string
	}{
		{"hk$", "HKD"},
		{"hkd", "HKD"},
		{"港幣", "HKD"},
		{"港元", "HKD"},
		{"us$", "USD"},
		{"usd", "USD"},
		{"sgd", "SGD"},
		{"sg$", "SGD"},
		{"s$", "SGD"},
		{"rmb", "CNY"},
		{"cny", "CNY"},
	}
)

// DefaultCurrency is the currency assumed when a figure carries no marker.
func DefaultCurrency(j model.Jurisdiction) string {
	switch j {
	case model.JurisdictionHK:
		return "HKD"
	case model.JurisdictionSG:
		return "SGD"
	}
	return ""
}

// ParseBudget reads figures such as "HK$1.2M", "SGD 50,000" or
// "$100k - $250k". A single figure sets both ends of the range.
func ParseBudget(raw string, j model.Jurisdiction) (Budget, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Budget{}, false
	}
	lower := strings.ToLower(s)

	b := Budget{Currency: DefaultCurrency(j)}
	for _, cm := range currencyMarkers {
		if strings.Contains(lower, cm.marker) {
			b.Currency = cm.currency
			break
		}
	}
	if strings.Contains(lower, "萬") || strings.Contains(lower, "万") {
		return parseCJKBudget(lower, b)
	}

	type amount struct {
		value float64
		unit  string
	}
	var amounts []amount
	for _, m := range amountRe.FindAllStringSubmatch(lower, 3) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil || v <= 0 {
			continue
		}
		amounts = append(amounts, amount{value: v, unit: m[2]})
	}
	if len(amounts) == 0 {
		return Budget{}, false
	}

	first, last := amounts[0], amounts[len(amounts)-1]
	// "1.2 - 1.5M": the unit on the upper bound applies to both.
	if first.unit == "" && last.unit != "" {
		first.unit = last.unit
	}
	lo := first.value * multiplier(first.unit)
	hi := last.value * multiplier(last.unit)
	if lo > hi {
		lo, hi = hi, lo
	}
	b.Min, b.Max = &lo, &hi
	return b, true
}

func multiplier(unit string) float64 {
	switch strings.ToLower(unit) {
	case "billion", "bn":
		return 1e9
	case "million", "mn", "m":
		return 1e6
	case "thousand", "k":
		return 1e3
	}
	return 1
}

var cjkAmountRe = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)\s*(億|亿|萬|万)`)

func parseCJKBudget(s string, b Budget) (Budget, bool) {
	m := cjkAmountRe.FindStringSubmatch(s)
	if m == nil {
		return Budget{}, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil || v <= 0 {
		return Budget{}, false
	}
	switch m[2] {
	case "億", "亿":
		v *= 1e8
	default:
		v *= 1e4
	}
	b.Min, b.Max = &v, &v
	return b, true
}
