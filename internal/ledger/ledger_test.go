package ledger

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	cases := []struct {
		name     string
		amount   string
		decimals int32
		want     string
		wantErr  bool
	}{
		{name: "lamports", amount: "0.1", decimals: 9, want: "100000000"},
		{name: "whole", amount: "2", decimals: 9, want: "2000000000"},
		{name: "smallest lamport", amount: "0.000000001", decimals: 9, want: "1"},
		{name: "wei", amount: "1.5", decimals: 18, want: "1500000000000000000"},
		{name: "too precise", amount: "0.0000000001", decimals: 9, wantErr: true},
		{name: "zero", amount: "0", decimals: 9, wantErr: true},
		{name: "negative", amount: "-1", decimals: 9, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToBaseUnits(decimal.RequireFromString(tc.amount), tc.decimals)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.String())
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	got := FromBaseUnits(big.NewInt(1_500_000_000), 9)
	assert.True(t, got.Equal(decimal.RequireFromString("1.5")), got.String())
	assert.True(t, FromBaseUnits(nil, 9).IsZero())
}
