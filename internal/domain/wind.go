package domain

import "math"

// WindSpeed derives wind speed in m/s from the u (eastward) and v (northward)
// components.
func WindSpeed(u, v float64) float64 {
	return math.Hypot(u, v)
}

// WindDirection derives the meteorological wind direction in degrees from the
// u and v components: the direction the wind blows FROM, 0° at north,
// increasing clockwise. Components must be aggregated before calling this;
// averaging direction angles directly is a circular-mean pitfall.
func WindDirection(u, v float64) float64 {
	deg := math.Mod(270.0-Rad2Deg(math.Atan2(v, u)), 360.0)
	if deg < 0 {
		deg += 360.0
	}
	return deg
}
