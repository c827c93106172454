// Package geo 提供空域探测所需的大圆距离计算。
package geo

import "math"

// EarthRadiusMeters 地球平均半径（米）
const EarthRadiusMeters = 6371000

// HaversineMeters 计算两个经纬度坐标之间的大圆距离（米）。
// 高度差对 500 米量级的遭遇判定影响可以忽略，不参与计算。
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaPhi := (lat2 - lat1) * math.Pi / 180
	deltaLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

// WithinRange 判断两点是否在给定范围内
func WithinRange(lat1, lon1, lat2, lon2, rangeMeters float64) bool {
	return HaversineMeters(lat1, lon1, lat2, lon2) <= rangeMeters
}
