package cli

import (
	"testing"

	apperrors "blackswan/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid input", "normal_command --flag value", false},
		{"malicious command injection", "ls; rm -rf /", true},
		{"path traversal attempt", "../../../etc/passwd", true},
		{"sql injection attempt", "'; DROP TABLE users; --", true},
		{"empty input", "", false},
		{"input with spaces", "command with spaces", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
				assert.Contains(t, err.Error(), "potentially malicious input detected")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateSymbol(t *testing.T) {
	for _, ok := range []string{"", "TSLA", "brk.b", "BTC-USD", "X"} {
		assert.NoError(t, ValidateSymbol(ok), ok)
	}
	for _, bad := range []string{"TS LA", "-TSLA", "AAPL;ls", "A$", "THIS_SYMBOL_IS_FAR_TOO_LONG"} {
		assert.ErrorIs(t, ValidateSymbol(bad), apperrors.ErrInvalidInput, bad)
	}
}

func TestValidateFilePath(t *testing.T) {
	assert.NoError(t, ValidateFilePath("data/stocks.csv"))
	assert.NoError(t, ValidateFilePath("../shared/stocks.csv"))
	assert.ErrorIs(t, ValidateFilePath("x.csv; rm -rf /"), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, ValidateFilePath("$(whoami).csv"), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, ValidateFilePath("a\x00b"), apperrors.ErrInvalidInput)
}

func TestParsePercentiles(t *testing.T) {
	qs, err := ParsePercentiles("2.5, 50,97.5")
	require.NoError(t, err)
	assert.Equal(t, []float64{2.5, 50, 97.5}, qs)

	qs, err = ParsePercentiles("")
	require.NoError(t, err)
	assert.Nil(t, qs)

	_, err = ParsePercentiles("5,abc")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = ParsePercentiles("101")
	assert.ErrorIs(t, err, apperrors.ErrInvalidPercentile)
}
