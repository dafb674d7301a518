package crawler

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// windDirectionAlphabet covers compass points, "-" and CAL(m).
	windDirectionAlphabet = "NSEW-CAL"
	humidityMissing       = "-----"
)

// ValidateRecord checks the encoding assumptions the parser relies on. A
// violation means the upstream format changed and is never retried.
func ValidateRecord(rec Record) error {
	if dir, ok := rec.Fields[WindDirectionColumn]; ok {
		if i := strings.IndexFunc(dir, func(r rune) bool {
			return !strings.ContainsRune(windDirectionAlphabet, r)
		}); i >= 0 {
			return fmt.Errorf("%w: wind direction %q has unexpected character at %d", ErrInvariantViolation, dir, i)
		}
	}
	if hr, ok := rec.Fields[HumidityColumn]; ok && hr != humidityMissing {
		v, err := strconv.ParseFloat(hr, 64)
		if err != nil {
			return fmt.Errorf("%w: humidity %q is not a number", ErrInvariantViolation, hr)
		}
		if v < 0 || v > 100 {
			return fmt.Errorf("%w: humidity %v outside [0,100]", ErrInvariantViolation, v)
		}
	}
	return nil
}
