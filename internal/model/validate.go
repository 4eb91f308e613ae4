package model

import (
	"errors"
	"strconv"
	"strings"
)

// Validation failure reasons, reported back to the originating client.
var (
	ErrInvalidCode  = errors.New("invalid-code")
	ErrInvalidGrids = errors.New("invalid-grids")
	ErrZeroGrids    = errors.New("zero-grids")
)

// NormalizeWarrantNumber strips everything but letters and digits from a
// raw warrant number. The result must be 1–8 characters; anything else is
// rejected with ErrInvalidCode. Case is preserved as entered.
func NormalizeWarrantNumber(raw string) (string, error) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || len(cleaned) > 8 {
		return "", ErrInvalidCode
	}
	return cleaned, nil
}

// ParseGrids parses cut/recovery counts from their wire representation.
// Both must be non-negative integers (ErrInvalidGrids otherwise), and at
// least one must be positive (ErrZeroGrids for a 0/0 pair).
func ParseGrids(cutRaw, recoveryRaw string) (cut, recovery int, err error) {
	cut, err = strconv.Atoi(strings.TrimSpace(cutRaw))
	if err != nil || cut < 0 {
		return 0, 0, ErrInvalidGrids
	}
	recovery, err = strconv.Atoi(strings.TrimSpace(recoveryRaw))
	if err != nil || recovery < 0 {
		return 0, 0, ErrInvalidGrids
	}
	if cut == 0 && recovery == 0 {
		return 0, 0, ErrZeroGrids
	}
	return cut, recovery, nil
}
