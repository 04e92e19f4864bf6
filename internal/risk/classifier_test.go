package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wheelhouse-trading/wheelhouse/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name            string
		underlyingPrice float64
		strike          float64
		optType         models.OptionType
		dte             int
		want            models.RiskTier
	}{
		{"put ITM near expiry", 95, 100, models.OptionTypePut, 5, models.RiskCritical},
		{"put at the money near expiry", 100, 100, models.OptionTypePut, 5, models.RiskCritical},
		{"put ITM far from expiry", 95, 100, models.OptionTypePut, 30, models.RiskHigh},
		{"put OTM but close", 100, 103, models.OptionTypePut, 5, models.RiskModerate},
		{"put safely OTM", 100, 120, models.OptionTypePut, 5, models.RiskLow},
		{"call ITM near expiry", 110, 100, models.OptionTypeCall, 3, models.RiskCritical},
		{"call ITM far from expiry", 110, 100, models.OptionTypeCall, 21, models.RiskHigh},
		{"call OTM within band", 100, 104, models.OptionTypeCall, 21, models.RiskModerate},
		{"call safely OTM", 100, 130, models.OptionTypeCall, 21, models.RiskLow},
		{"critical boundary at 7 dte", 95, 100, models.OptionTypePut, 7, models.RiskCritical},
		{"high just past critical boundary", 95, 100, models.OptionTypePut, 8, models.RiskHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.underlyingPrice, tt.strike, tt.optType, tt.dte)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_ModerateBandIsSymmetric(t *testing.T) {
	// The moderate band is symmetric: a call 4% below strike and a put
	// 4% above strike both land in moderate.
	assert.Equal(t, models.RiskModerate, Classify(104, 100, models.OptionTypePut, 30))
	assert.Equal(t, models.RiskModerate, Classify(96.2, 100, models.OptionTypeCall, 30))
}

func TestAssess(t *testing.T) {
	a := Assess("AAPL250704P00185000", "AAPL", 180, 185, models.OptionTypePut, 4)

	assert.Equal(t, models.RiskCritical, a.Tier)
	assert.True(t, a.InTheMoney)
	assert.Equal(t, "AAPL", a.Underlying)
	assert.Equal(t, 4, a.DTE)
	assert.Contains(t, a.Message, "in the money")

	low := Assess("AAPL250704P00150000", "AAPL", 180, 150, models.OptionTypePut, 4)
	assert.Equal(t, models.RiskLow, low.Tier)
	assert.False(t, low.InTheMoney)
}
