package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAction_Valid(t *testing.T) {
	t.Parallel()

	for _, a := range []Action{ActionKeep, ActionMarkOOS, ActionMarkInStock, ActionUpdatePrice, ActionFlagWrong, ActionRemoveDead} {
		assert.True(t, a.Valid(), string(a))
	}
	assert.False(t, Action("DELETE_ROW").Valid())
	assert.False(t, Action("").Valid())
}

func TestAction_Destructive(t *testing.T) {
	t.Parallel()

	assert.True(t, ActionRemoveDead.Destructive())
	assert.True(t, ActionMarkOOS.Destructive())
	assert.True(t, ActionFlagWrong.Destructive())
	assert.False(t, ActionKeep.Destructive())
	assert.False(t, ActionUpdatePrice.Destructive())
	assert.False(t, ActionMarkInStock.Destructive())
}

func TestAIVerdict_PriceDrift(t *testing.T) {
	t.Parallel()

	price := func(f float64) *float64 { return &f }

	tests := []struct {
		name     string
		detected *float64
		expected float64
		want     float64
	}{
		{"no detected price", nil, 100, 0},
		{"no expected price", price(42), 0, 0},
		{"exact match", price(100), 100, 0},
		{"ten percent over", price(110), 100, 0.1},
		{"ten percent under", price(90), 100, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := AIVerdict{DetectedPrice: tt.detected}
			assert.InDelta(t, tt.want, v.PriceDrift(tt.expected), 1e-9)
		})
	}
}
