package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArithmetic(t *testing.T) {
	assert.Equal(t, Amount(1500), Add(1000, 500))
	assert.Equal(t, Amount(300), SubClamped(1000, 700))
	assert.Equal(t, Zero, SubClamped(700, 1000))
	assert.Equal(t, Zero, SubClamped(700, 700))
	assert.Equal(t, Amount(300), Min(300, 500))
	assert.Equal(t, -1, Compare(1, 2))
	assert.Equal(t, 0, Compare(2, 2))
	assert.Equal(t, 1, Compare(3, 2))
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Zero.Validate())
	assert.NoError(t, Amount(10).Validate())

	err := Amount(-1).Validate()
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestParse(t *testing.T) {
	t.Run("whole and fractional values", func(t *testing.T) {
		a, err := Parse("1500")
		require.NoError(t, err)
		assert.Equal(t, Amount(150000), a)

		a, err = Parse("1500.25")
		require.NoError(t, err)
		assert.Equal(t, Amount(150025), a)
	})

	t.Run("too many decimal places", func(t *testing.T) {
		_, err := Parse("10.005")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := Parse("ten pesos")
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("negative parses but does not validate", func(t *testing.T) {
		a, err := Parse("-5")
		require.NoError(t, err)
		assert.ErrorIs(t, a.Validate(), ErrInvalidAmount)
	})
}

func TestString(t *testing.T) {
	assert.Equal(t, "0.00", Zero.String())
	assert.Equal(t, "1250.50", Amount(125050).String())
	assert.Equal(t, "0.07", Amount(7).String())
}

func TestJSON(t *testing.T) {
	var payload struct {
		Amount Amount `json:"amount"`
	}

	require.NoError(t, json.Unmarshal([]byte(`{"amount": 500}`), &payload))
	assert.Equal(t, Amount(50000), payload.Amount)

	require.NoError(t, json.Unmarshal([]byte(`{"amount": "300.75"}`), &payload))
	assert.Equal(t, Amount(30075), payload.Amount)

	err := json.Unmarshal([]byte(`{"amount": "1.234"}`), &payload)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":"300.75"}`, string(out))
}
