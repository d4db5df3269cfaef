package ledger

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/fulmenhq/bundlepress/pkg/config"
)

// PriceDecimals is the number of fractional digits of the native currency.
const PriceDecimals = 9

// ParsePrice converts a decimal amount such as "1.5" to base units.
func ParsePrice(s string) (uint64, error) {
	return ParsePriceDecimals(s, PriceDecimals)
}

// ParsePriceDecimals converts a decimal amount to base units of a currency with
// the given number of fractional digits. Digits beyond that precision are an
// error, not rounded.
func ParsePriceDecimals(s string, decimals int) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("price is empty")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if len(frac) > decimals {
		return 0, fmt.Errorf("price %q has more than %d decimal places", s, decimals)
	}
	if strings.HasPrefix(whole, "-") || strings.HasPrefix(whole, "+") {
		return 0, fmt.Errorf("price %q must be a plain non-negative number", s)
	}
	units, err := strconv.ParseUint(whole+frac+strings.Repeat("0", decimals-len(frac)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return units, nil
}

// FormatPrice renders base units as a decimal amount.
func FormatPrice(units uint64) string {
	scale := uint64(math.Pow10(PriceDecimals))
	whole, frac := units/scale, units%scale
	if frac == 0 {
		return strconv.FormatUint(whole, 10)
	}
	return strings.TrimRight(fmt.Sprintf("%d.%0*d", whole, PriceDecimals, frac), "0")
}

var dateLayouts = []string{
	"02 Jan 2006 15:04:05 MST",
	"2 Jan 2006 15:04:05 MST",
	time.RFC1123,
	time.RFC1123Z,
	time.RFC3339,
}

// ParseDate accepts "now" or a date such as "04 Dec 1995 00:12:00 GMT" and
// returns unix seconds.
func ParseDate(s string, now time.Time) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "now") {
		return now.Unix(), nil
	}
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.Unix(), nil
		}
	}
	return 0, fmt.Errorf("unrecognised date %q, use \"now\" or a date like \"04 Dec 1995 00:12:00 GMT\"", s)
}

// PaymentFlags selects where sale proceeds go.
type PaymentFlags struct {
	TokenMint    string
	TokenAccount string
	Treasury     string
}

// Validate rejects contradictory payment settings.
func (p PaymentFlags) Validate() error {
	if p.TokenMint == "" && p.TokenAccount == "" {
		return nil
	}
	if p.Treasury != "" {
		return &config.ConfigError{Key: "treasury-account", Message: "cannot be combined with spl-token or spl-token-account"}
	}
	if p.TokenMint == "" {
		return &config.ConfigError{Key: "spl-token", Message: "required when spl-token-account is set"}
	}
	if p.TokenAccount == "" {
		return &config.ConfigError{Key: "spl-token-account", Message: "required when spl-token is set"}
	}
	return nil
}
