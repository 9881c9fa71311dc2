// Package repair fills missing samples in a marker trajectory.
//
// Two paths are offered. Classical methods fit a one-dimensional interpolant
// per axis to the valid samples of the full series and evaluate it over the
// selected range. The supported families are piecewise linear, nearest,
// previous-value, B-splines of any degree (quadratic, cubic, polynomial,
// spline), global polynomials (barycentric, krogh) and the shape-preserving
// pchip and akima cubics.
//
// Pattern repair reconstructs a marker from reference markers instead. The
// offset from each reference to the target is captured once at an anchor
// frame and replayed against the references' live positions, blended by
// inverse distance.
//
// Both paths validate everything before writing and report what they did
// in a Result. Callers must rerun outlier detection afterwards.
package repair
