package utils

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundMoneyBankers(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"10.125", "10.12"},
		{"10.135", "10.14"},
		{"10.124", "10.12"},
		{"10.126", "10.13"},
		{"0.005", "0"},
		{"0.015", "0.02"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := RoundMoney(decimal.RequireFromString(tt.in))
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got),
				"expected %s, got %s", tt.want, got)
		})
	}
}

func TestPercentOf(t *testing.T) {
	got := PercentOf(decimal.RequireFromString("200000"), decimal.RequireFromString("10"))
	assert.True(t, decimal.RequireFromString("20000").Equal(got), "got %s", got)

	got = PercentOf(decimal.RequireFromString("101.25"), decimal.RequireFromString("10"))
	assert.True(t, decimal.RequireFromString("10.12").Equal(got), "got %s", got)
}

func TestParseMoney(t *testing.T) {
	got, err := ParseMoney("80000.50")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("80000.50").Equal(got))

	_, err = ParseMoney("not-money")
	require.Error(t, err)

	_, err = ParseMoney("-5")
	require.Error(t, err)
}
