package broker

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

// ErrNotOSI is returned by ParseOSI for symbols that do not follow the
// OSI option format, typically equity tickers.
var ErrNotOSI = errors.New("symbol is not in OSI option format")

// OSIContract is the decoded form of an OSI option symbol.
type OSIContract struct {
	Underlying string
	Expiration time.Time
	OptionType models.OptionType
	Strike     float64
}

/// FormatOSI encodes an option contract as an OSI symbol:
// UNDERLYING + YYMMDD + P/C + 8-digit strike in thousandths.
// Strikes are rounded to the nearest thousandth of a dollar.
func FormatOSI(underlying string, expiration time.Time, optType models.OptionType, strike float64) string {
	const eps = 1e-9
	strikeInt := int(math.Round(strike*1000 + eps))

	typeChar := "C"
	if optType == models.OptionTypePut {
		typeChar = "P"
	}

	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(underlying), expiration.Format("060102"), typeChar, strikeInt)
}

// ParseOSI decodes an OSI option symbol. The underlying may be 1-6
// characters; the tail is always YYMMDD + P/C + 8 strike digits.
// Symbols that do not match return ErrNotOSI.
func ParseOSI(symbol string) (OSIContract, error) {
	s := strings.TrimSpace(symbol)
	if len(s) < 16 {
		return OSIContract{}, ErrNotOSI
	}

	// The tail is fixed width, so split from the right.
	strikeStr := s[len(s)-8:]
	typeChar := s[len(s)-9]
	dateStr := s[len(s)-15 : len(s)-9]
	underlying := strings.TrimSpace(s[:len(s)-15])

	if underlying == "" || !allDigits(strikeStr) || !allDigits(dateStr) {
		return OSIContract{}, ErrNotOSI
	}

	var optType models.OptionType
	switch typeChar {
	case 'P', 'p':
		optType = models.OptionTypePut
	case 'C', 'c':
		optType = models.OptionTypeCall
	default:
		return OSIContract{}, ErrNotOSI
	}

	expiration, err := time.Parse("060102", dateStr)
	if err != nil {
		return OSIContract{}, ErrNotOSI
	}

	strikeInt, err := strconv.Atoi(strikeStr)
	if err != nil {
		return OSIContract{}, ErrNotOSI
	}

	return OSIContract{
		Underlying: strings.ToUpper(underlying),
		Expiration: expiration,
		OptionType: optType,
		Strike:     float64(strikeInt) / 1000,
	}, nil
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
