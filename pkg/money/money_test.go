package money

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	a, err := Parse("30")
	require.NoError(t, err)
	require.Equal(t, Amount(3000), a)

	a, err = Parse("10.505")
	require.NoError(t, err)
	require.Equal(t, Amount(1051), a)

	_, err = Parse("ten")
	require.Error(t, err)
}

func TestPercentRounding(t *testing.T) {
	ten := decimal.NewFromInt(10)

	require.Equal(t, Amount(1000), MustParse("100").Percent(ten))
	require.Equal(t, Amount(301), MustParse("30.05").Percent(ten))
	require.Equal(t, Amount(300), MustParse("30.04").Percent(ten))
	require.Equal(t, Amount(0), Amount(0).Percent(ten))
}

func TestAmountJSON(t *testing.T) {
	var body struct {
		Amount Amount `json:"amount"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"amount":100}`), &body))
	require.Equal(t, Amount(10000), body.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount":"5.25"}`), &body))
	require.Equal(t, Amount(525), body.Amount)

	out, err := json.Marshal(body)
	require.NoError(t, err)
	require.JSONEq(t, `{"amount":5.25}`, string(out))

	require.Equal(t, "0.07", Amount(7).String())
}
