package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    string
		wantErr bool
	}{
		{name: "plain string", raw: "100", want: "100"},
		{name: "two decimals kept", raw: "99.99", want: "99.99"},
		{name: "three decimals rounded half-up", raw: "100.555", want: "100.56"},
		{name: "json number", raw: json.Number("42.005"), want: "42.01"},
		{name: "float input", raw: float64(12.5), want: "12.50"},
		{name: "float noise tolerated", raw: float64(10.000000001), want: "10"},
		{name: "int", raw: 50, want: "50"},
		{name: "int64", raw: int64(7), want: "7"},
		{name: "decimal passthrough", raw: decimal.RequireFromString("1.23"), want: "1.23"},
		{name: "zero", raw: "0", wantErr: true},
		{name: "negative", raw: "-1", wantErr: true},
		{name: "rounds to zero", raw: "0.004", wantErr: true},
		{name: "not numeric", raw: "abc", wantErr: true},
		{name: "empty string", raw: "", wantErr: true},
		{name: "unsupported type", raw: true, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			want := decimal.RequireFromString(tt.want)
			assert.True(t, want.Equal(got), "want %s, got %s", want, got)
		})
	}
}

func TestNormalizeAlwaysTwoFractionalDigits(t *testing.T) {
	got, err := Normalize("3.14159")
	require.NoError(t, err)
	assert.Equal(t, "3.14", got.StringFixed(2))
	assert.True(t, decimal.RequireFromString("3.14").Equal(got))
}
