package extraction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMCutThresholdSingleValue(t *testing.T) {
	assert.Equal(t, 0.7, MCutThreshold([]float64{0.7}))
}

func TestMCutThresholdPicksLargestGap(t *testing.T) {
	// sorted desc: 0.9, 0.85, 0.4, 0.1 -> gaps: 0.05, 0.45, 0.3 -> biggest gap at idx 1
	got := MCutThreshold([]float64{0.1, 0.9, 0.4, 0.85})
	assert.InDelta(t, (0.85+0.4)/2, got, 1e-9)
}

func TestMCutThresholdUnsortedInputIsSortedInternally(t *testing.T) {
	a := MCutThreshold([]float64{0.2, 0.8, 0.5})
	b := MCutThreshold([]float64{0.8, 0.5, 0.2})
	assert.Equal(t, a, b)
}
