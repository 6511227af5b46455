package challan

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const numberPrefix = "CH"

// ErrMalformedNumber is returned by ParseNumber.
var ErrMalformedNumber = errors.New("challan: malformed number")

// FormatNumber renders CH-<year>-<seq>, with the sequence padded to at least three digits.
func FormatNumber(year, seq int) string {
	return fmt.Sprintf("%s-%04d-%03d", numberPrefix, year, seq)
}

// ParseNumber is the inverse of FormatNumber.
func ParseNumber(s string) (year, seq int, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 || parts[0] != numberPrefix || len(parts[1]) != 4 || len(parts[2]) < 3 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedNumber, s)
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedNumber, s)
	}
	seq, err = strconv.Atoi(parts[2])
	if err != nil || seq <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrMalformedNumber, s)
	}
	return year, seq, nil
}
