package catalog

import (
	"regexp"
	"strconv"
)

var priceToken = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ParsePriceAmount extracts the first decimal token from a raw price string
// such as "£8.99". Returns 0 when no numeric token is present.
func ParsePriceAmount(raw string) float64 {
	token := priceToken.FindString(raw)
	if token == "" {
		return 0
	}
	amount, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0
	}
	return amount
}
