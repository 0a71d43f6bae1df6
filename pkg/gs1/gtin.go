package gs1

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ErrInvalidGTIN is returned for codes with a bad length, non-digits or a
// wrong check digit.
var ErrInvalidGTIN = eris.New("gs1: invalid gtin")

// NormalizeGTIN strips separators, validates the check digit and returns
// the code left-padded to GTIN-14. GTIN-8, GTIN-12 (UPC-A), GTIN-13
// (EAN-13) and GTIN-14 are accepted.
func NormalizeGTIN(code string) (string, error) {
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '\t':
			return -1
		}
		return r
	}, code)

	switch len(digits) {
	case 8, 12, 13, 14:
	default:
		return "", eris.Wrapf(ErrInvalidGTIN, "length %d", len(digits))
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", eris.Wrapf(ErrInvalidGTIN, "%q is not numeric", code)
		}
	}
	if CheckDigit(digits[:len(digits)-1]) != digits[len(digits)-1] {
		return "", eris.Wrapf(ErrInvalidGTIN, "check digit of %s", digits)
	}
	return strings.Repeat("0", 14-len(digits)) + digits, nil
}

// ValidGTIN reports whether code is a well-formed GTIN.
func ValidGTIN(code string) bool {
	_, err := NormalizeGTIN(code)
	return err == nil
}

// CheckDigit computes the mod-10 check digit for the payload digits.
// Weights alternate 3 and 1 starting from the rightmost digit.
func CheckDigit(payload string) byte {
	sum := 0
	for i := 0; i < len(payload); i++ {
		d := int(payload[len(payload)-1-i] - '0')
		if i%2 == 0 {
			d *= 3
		}
		sum += d
	}
	return byte('0' + (10-sum%10)%10)
}
