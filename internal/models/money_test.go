package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	cases := []struct {
		in   string
		want Money
	}{
		{"19.99", 1999},
		{"25", 2500},
		{"25.00", 2500},
		{"0.1", 10},
		{".5", 50},
		{"19.995", 2000},
		{"19.994", 1999},
		{"-3.25", -325},
		{" 100.01 ", 10001},
	}

	for _, tc := range cases {
		got, err := ParseMoney(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestParseMoneyRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1e3", "12,50"} {
		_, err := ParseMoney(in)
		assert.Error(t, err, in)
	}
}

func TestMoneyTimesIsExact(t *testing.T) {
	price, err := ParseMoney("19.99")
	require.NoError(t, err)

	// 19.99 has no exact binary representation; integer cents keep it exact
	assert.Equal(t, int64(5997), price.Times(3).Cents())
	assert.Equal(t, "59.97", price.Times(3).String())
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "75.00", Money(7500).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "-1.50", Money(-150).String())
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Amount: 7500})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"75.00"}`, string(data))

	var out struct {
		Amount Money `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":12.3}`), &out))
	assert.Equal(t, Money(1230), out.Amount)
}

func TestMoneyScan(t *testing.T) {
	var m Money
	require.NoError(t, m.Scan([]byte("1234.50")))
	assert.Equal(t, Money(123450), m)

	require.NoError(t, m.Scan(nil))
	assert.Equal(t, Money(0), m)

	assert.Error(t, m.Scan(3.14))
}
