package track

import "math"

// lidar casts the configured number of rays, spread evenly over the
// half plane in front of the vehicle, and returns the distance to the
// nearest obstacle or track edge along each ray, normalised by
// RayRange
func (t *Track) lidar() []float64 {
	n := t.config.Rays
	dists := make([]float64, n)
	if n == 0 {
		return dists
	}

	pos := t.car.GetPosition()
	heading := t.car.GetAngle()

	for i := range dists {
		offset := 0.0
		if n > 1 {
			offset = -math.Pi/2 + math.Pi*float64(i)/float64(n-1)
		}
		angle := heading + offset
		dx, dy := math.Cos(angle), math.Sin(angle)

		nearest := RayRange
		if d, ok := edgeHit(pos.Y, dy); ok && d < nearest {
			nearest = d
		}
		for _, o := range t.obstacles {
			d, ok := circleHit(pos.X, pos.Y, dx, dy, o.centre.X, o.centre.Y,
				o.radius)
			if ok && d < nearest {
				nearest = d
			}
		}
		dists[i] = nearest / RayRange
	}
	return dists
}

// edgeHit returns the distance along a ray from height y with vertical
// direction component dy to the track edge it crosses
func edgeHit(y, dy float64) (float64, bool) {
	switch {
	case dy > 0:
		return (Width - y) / dy, true
	case dy < 0:
		return -y / dy, true
	}
	return 0, false
}

// circleHit returns the distance along the unit ray (x, y) + s(dx, dy)
// to the first intersection with the circle at (cx, cy) of radius r
func circleHit(x, y, dx, dy, cx, cy, r float64) (float64, bool) {
	ox, oy := x-cx, y-cy
	b := ox*dx + oy*dy
	c := ox*ox + oy*oy - r*r
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}

	root := math.Sqrt(disc)
	if s := -b - root; s >= 0 {
		return s, true
	}
	if s := -b + root; s >= 0 {
		return s, true
	}
	return 0, false
}
