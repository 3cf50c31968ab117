package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMathStats(t *testing.T) {
	data := []float64{3, 1, 4, 1, 5}

	assert.Equal(t, 5.0, Max(data...))
	assert.Equal(t, 1.0, Min(data...))
	assert.Equal(t, 3.0, Mean(data...))
	assert.Equal(t, 2.8, Avg(data...))

	// 偶数个取中间两个的平均
	assert.Equal(t, 2.0, Mean(1, 3))
}

func TestMathStatsEmpty(t *testing.T) {
	assert.Equal(t, -1.0, Max())
	assert.Equal(t, -1.0, Min())
	assert.Equal(t, -1.0, Mean())
	assert.Equal(t, -1.0, Avg())
}
