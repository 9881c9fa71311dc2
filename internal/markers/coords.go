package markers

import "gonum.org/v1/gonum/spatial/r3"

// YUpToZUp converts a position from a Y-up capture frame (TRC exports from
// most optical systems) to the Z-up frame used by the chart views. The store
// itself is never rotated; callers apply this at the display boundary.
func YUpToZUp(p r3.Vec) r3.Vec {
	return r3.Vec{X: p.X, Y: -p.Z, Z: p.Y}
}

// ZUpToYUp is the inverse of YUpToZUp.
func ZUpToYUp(p r3.Vec) r3.Vec {
	return r3.Vec{X: p.X, Y: p.Z, Z: -p.Y}
}
