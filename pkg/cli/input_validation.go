// Package cli holds command-line input checks
package cli

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "blackswan/pkg/errors"
)

var (
	sqlPattern    = regexp.MustCompile(`['"]\s*;\s*|\b(DROP|DELETE|UPDATE|INSERT)\b`)
	symbolPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9.\-_]{0,15}$`)
)

// ValidateInput checks for potentially malicious input patterns
func ValidateInput(input string) error {
	// Command injection
	if strings.Contains(input, ";") || strings.Contains(input, "&&") || strings.Contains(input, "||") {
		return fmt.Errorf("%w: potentially malicious input detected", apperrors.ErrInvalidInput)
	}

	// Path traversal
	if strings.Contains(input, "../") || strings.Contains(input, "..\\") {
		return fmt.Errorf("%w: potentially malicious input detected", apperrors.ErrInvalidInput)
	}

	if sqlPattern.MatchString(strings.ToUpper(input)) {
		return fmt.Errorf("%w: potentially malicious input detected", apperrors.ErrInvalidInput)
	}

	return nil
}

// ValidateSymbol accepts ticker-like names such as TSLA, BRK.B or BTC-USD.
// Empty means no filter and is allowed.
func ValidateSymbol(symbol string) error {
	if symbol == "" {
		return nil
	}
	if err := ValidateInput(symbol); err != nil {
		return err
	}
	if !symbolPattern.MatchString(symbol) {
		return fmt.Errorf("%w: symbol %q", apperrors.ErrInvalidInput, symbol)
	}
	return nil
}

// ValidateFilePath rejects paths carrying shell control sequences or NUL bytes.
// Relative paths, including parent references, are allowed on the command line.
func ValidateFilePath(path string) error {
	if strings.ContainsRune(path, 0) {
		return fmt.Errorf("%w: path contains NUL byte", apperrors.ErrInvalidInput)
	}
	for _, seq := range []string{";", "&&", "||", "`", "$("} {
		if strings.Contains(path, seq) {
			return fmt.Errorf("%w: path %q contains %q", apperrors.ErrInvalidInput, path, seq)
		}
	}
	return nil
}

// ParsePercentiles parses a comma separated list such as "2.5,50,97.5"
func ParsePercentiles(list string) ([]float64, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	parts := strings.Split(list, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		q, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: percentile %q", apperrors.ErrInvalidInput, p)
		}
		if !(q >= 0 && q <= 100) {
			return nil, fmt.Errorf("%w: %v is outside [0, 100]", apperrors.ErrInvalidPercentile, q)
		}
		out = append(out, q)
	}
	return out, nil
}
