package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_RoundTripsThroughString(t *testing.T) {
	cases := []string{"10.50", "-125.00", "0.00", "100000.00", "10"}
	for _, c := range cases {
		m, err := Parse(c)
		require.NoError(t, err)
		m2, err := Parse(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, m2)
	}
}

func TestParse_RejectsMoreThanTwoDecimals(t *testing.T) {
	_, err := Parse("10.555")
	assert.Error(t, err)
}

func TestParse_RejectsEmpty(t *testing.T) {
	_, err := Parse("")
	assert.Error(t, err)
}

func TestString_FormatsNegative(t *testing.T) {
	m := FromMinor(-12500)
	assert.Equal(t, "-125.00", m.String())
}

func TestString_FormatsPositive(t *testing.T) {
	m := FromMinor(1050)
	assert.Equal(t, "10.50", m.String())
}

func TestSubAndLessThan_CreditLimitCheck(t *testing.T) {
	balance := FromMinor(-48000)
	limit := FromMinor(-50000)
	fee := FromMinor(5000)

	newBalance := balance.Sub(fee)
	assert.True(t, newBalance.LessThan(limit), "expected -530.00 < -500.00")
}

func TestMulRate_RoundsToNearestMinorUnit(t *testing.T) {
	fee := FromMinor(2500) // 25.00
	commission := fee.MulRate(0.10)
	assert.Equal(t, FromMinor(250), commission) // 2.50
}

func TestJSON_RoundTrips(t *testing.T) {
	m := FromMinor(12345)
	data, err := m.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"123.45"`, string(data))

	var m2 Money
	require.NoError(t, m2.UnmarshalJSON(data))
	assert.Equal(t, m, m2)
}

func TestScan_AcceptsStringBytesFloatInt(t *testing.T) {
	var m Money

	require.NoError(t, m.Scan("10.50"))
	assert.Equal(t, FromMinor(1050), m)

	require.NoError(t, m.Scan([]byte("10.50")))
	assert.Equal(t, FromMinor(1050), m)

	require.NoError(t, m.Scan(float64(10.5)))
	assert.Equal(t, FromMinor(1050), m)

	require.NoError(t, m.Scan(int64(10)))
	assert.Equal(t, FromMinor(1000), m)

	require.NoError(t, m.Scan(nil))
	assert.Equal(t, Money(0), m)
}
