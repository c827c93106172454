package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineMeters_SamePoint(t *testing.T) {
	d := HaversineMeters(41.0082, 28.9784, 41.0082, 28.9784)
	assert.Zero(t, d)
}

func TestHaversineMeters_KnownDistance(t *testing.T) {
	// 伊斯坦布尔 -> 安卡拉，约 350km
	d := HaversineMeters(41.0082, 28.9784, 39.9334, 32.8597)
	assert.InDelta(t, 350000, d, 5000)
}

func TestHaversineMeters_ShortDistance(t *testing.T) {
	// 纬度方向 0.001 度约 111 米
	d := HaversineMeters(41.0000, 29.0000, 41.0010, 29.0000)
	assert.InDelta(t, 111, d, 1)
}

func TestWithinRange(t *testing.T) {
	// 同一点对任意正半径都在范围内
	assert.True(t, WithinRange(10, 20, 10, 20, 0.001))

	// 约 111 米间隔
	assert.True(t, WithinRange(41.0000, 29.0000, 41.0010, 29.0000, 500))
	assert.False(t, WithinRange(41.0000, 29.0000, 41.0100, 29.0000, 500))
}
